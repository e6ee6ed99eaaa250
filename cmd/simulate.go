// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nategreco/uBike/pkg/ergolink"
	"github.com/nategreco/uBike/pkg/monitor"
	"github.com/nategreco/uBike/pkg/simulator"
	"github.com/nategreco/uBike/pkg/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	simRPM         int
	simRecordPath  string
	simMetricsAddr string
	simRedisAddr   string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate the ergometer drive board",
	Long: `Answer a bike controller as the ergometer drive board would.

The simulator reports a fixed cadence, acknowledges resistance writes and
configuration commands, and moves the incline one raw unit toward its target
on every incline poll.

Optional outputs:
  --record FILE          capture every received and sent line
  --metrics-addr ADDR    serve /metrics, /state, /stats, /version and /health
  --redis ADDR           publish state to a Redis hash and channel

A statistics summary is printed on exit (Ctrl+C).`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().IntVar(&simRPM, "rpm", 80, "Cadence reported to the controller")
	simulateCmd.Flags().StringVar(&simRecordPath, "record", "", "Write a capture file")
	simulateCmd.Flags().StringVar(&simMetricsAddr, "metrics-addr", "", "Status server listen address")
	simulateCmd.Flags().StringVar(&simRedisAddr, "redis", "", "Redis address for state telemetry")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("rpm") {
		cfg.Simulator.RPM = simRPM
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Monitor.Addr = simMetricsAddr
	}
	if cmd.Flags().Changed("redis") {
		cfg.Redis.Addr = simRedisAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	c, err := codec()
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := ergolink.NewStatistics()
	var simOpts []simulator.Option
	simOpts = append(simOpts, simulator.WithLogger(log))

	var metrics *monitor.Metrics
	if cfg.Monitor.Addr != "" {
		metrics = monitor.NewMetrics(stats)
		simOpts = append(simOpts, simulator.WithObserver(metrics))
	}

	var publisher *telemetry.Publisher
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis %s: %w", cfg.Redis.Addr, err)
		}

		publisher = telemetry.NewPublisher(client, telemetry.Config{
			Key:     cfg.Redis.Key,
			Channel: cfg.Redis.Channel,
		}, log)
		publisher.Start(ctx)
		simOpts = append(simOpts, simulator.WithObserver(publisher))
	}

	sim := simulator.New(cfg.Simulator.RPM, simOpts...)

	var capture *ergolink.CaptureWriter
	if simRecordPath != "" {
		f, err := os.Create(simRecordPath)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %w", err)
		}
		defer f.Close()
		capture = ergolink.NewCaptureWriter(f)
	}

	if metrics != nil {
		status := monitor.NewServer(monitor.ServerConfig{
			Addr:       cfg.Monitor.Addr,
			Version:    version,
			Metrics:    metrics,
			Statistics: stats,
			State:      func() interface{} { return sim.State() },
			Logger:     log,
		})
		go func() {
			if err := status.Run(ctx); err != nil {
				log.Errorf("Status server error: %v", err)
			}
		}()
	}

	fmt.Printf("ubike - Drive Board Simulator\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Cadence: %d rpm, checksum: %s\n", cfg.Simulator.RPM, c.Mode)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	server := simulator.NewServer(conn, sim, simulator.ServerConfig{
		Codec:      c,
		Logger:     log,
		Statistics: stats,
		Capture:    capture,
	})
	runErr := server.Run(ctx)

	if publisher != nil {
		publisher.Close()
		if n := publisher.Dropped(); n > 0 {
			log.Warnf("Dropped %d telemetry updates", n)
		}
	}

	fmt.Println()
	fmt.Print(stats.String())
	return runErr
}
