// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package monitor exposes simulator state and protocol statistics over HTTP
// as JSON and Prometheus metrics.
package monitor

import (
	"github.com/nategreco/uBike/pkg/ergolink"
	"github.com/nategreco/uBike/pkg/simulator"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ubike"

// Metrics holds the Prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	actualIncline prometheus.Gauge
	targetIncline prometheus.Gauge
	rpm           prometheus.Gauge
	resistance    prometheus.Gauge
	commands      *prometheus.CounterVec
}

// NewMetrics creates the collectors. stats may be nil.
func NewMetrics(stats *ergolink.Statistics) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		actualIncline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "incline_actual_raw",
			Help:      "Actual incline in raw units",
		}),
		targetIncline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "incline_target_raw",
			Help:      "Target incline in raw units",
		}),
		rpm: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rpm",
			Help:      "Reported cadence",
		}),
		resistance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resistance_level",
			Help:      "Last accepted resistance magnitude",
		}),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_handled_total",
				Help:      "Commands handled by the simulator",
			},
			[]string{"kind"},
		),
	}

	m.registry.MustRegister(
		m.actualIncline,
		m.targetIncline,
		m.rpm,
		m.resistance,
		m.commands,
	)
	if stats != nil {
		m.registry.MustRegister(newStatsCollector(stats))
	}
	return m
}

// Registry returns the registry backing /metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveState implements simulator.Observer
func (m *Metrics) ObserveState(cmd ergolink.Command, state simulator.State) {
	m.commands.WithLabelValues(ergolink.FormatKind(cmd.Kind)).Inc()
	m.actualIncline.Set(float64(state.ActualIncline))
	m.targetIncline.Set(float64(state.TargetIncline))
	m.rpm.Set(float64(state.RPM))
	m.resistance.Set(float64(state.Resistance))
}

// statsCollector exports Statistics counters at scrape time
type statsCollector struct {
	stats    *ergolink.Statistics
	lines    *prometheus.Desc
	errors   *prometheus.Desc
	timeouts *prometheus.Desc
	sent     *prometheus.Desc
	unknown  *prometheus.Desc
	anomaly  *prometheus.Desc
}

func newStatsCollector(stats *ergolink.Statistics) *statsCollector {
	return &statsCollector{
		stats: stats,
		lines: prometheus.NewDesc(namespace+"_lines_total",
			"Lines received, valid or not", nil, nil),
		errors: prometheus.NewDesc(namespace+"_framing_errors_total",
			"Lines discarded by the framing layer", []string{"reason"}, nil),
		timeouts: prometheus.NewDesc(namespace+"_read_timeouts_total",
			"Transport reads that returned without a line", nil, nil),
		sent: prometheus.NewDesc(namespace+"_frames_sent_total",
			"Frames written to the transport", nil, nil),
		unknown: prometheus.NewDesc(namespace+"_unknown_commands_total",
			"Valid frames matching no command", nil, nil),
		anomaly: prometheus.NewDesc(namespace+"_anomalies_total",
			"Commands with out of range parameters", nil, nil),
	}
}

// Describe implements prometheus.Collector
func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.lines
	ch <- c.errors
	ch <- c.timeouts
	ch <- c.sent
	ch <- c.unknown
	ch <- c.anomaly
}

// Collect implements prometheus.Collector
func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats.Snapshot()
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	counter(c.lines, s.TotalLines)
	counter(c.errors, s.BadStart, "bad_start")
	counter(c.errors, s.BadTerminator, "bad_terminator")
	counter(c.errors, s.ChecksumErrors, "checksum")
	counter(c.errors, s.InvalidHex, "invalid_hex")
	counter(c.errors, s.Oversized, "oversized")
	counter(c.timeouts, s.ReadTimeouts)
	counter(c.sent, s.Sent)
	counter(c.unknown, s.Unknown)
	counter(c.anomaly, s.Anomalies)
}
