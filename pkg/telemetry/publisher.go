// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry mirrors simulator state into a Redis hash and announces
// each change on a pub/sub channel.
package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nategreco/uBike/pkg/ergolink"
	"github.com/nategreco/uBike/pkg/simulator"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Defaults for Config
const (
	DefaultKey     = "ubike"
	DefaultChannel = "ubike"
	queueSize      = 64
	publishTimeout = time.Second
)

// Config configures a Publisher
type Config struct {
	Key     string // hash holding the latest state
	Channel string // channel receiving the command kind on every update
}

type update struct {
	cmd   ergolink.Command
	state simulator.State
}

// Publisher implements simulator.Observer. Updates are queued and written by
// a background goroutine; when the queue is full the update is dropped.
type Publisher struct {
	client  redis.Cmdable
	cfg     Config
	log     logrus.FieldLogger
	queue   chan update
	wg      sync.WaitGroup
	mu      sync.Mutex
	dropped uint64
	send    func(ctx context.Context, cmd ergolink.Command, state simulator.State) error
}

// NewPublisher creates a publisher writing through client
func NewPublisher(client redis.Cmdable, cfg Config, log logrus.FieldLogger) *Publisher {
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &Publisher{
		client: client,
		cfg:    cfg,
		log:    log,
		queue:  make(chan update, queueSize),
	}
	p.send = p.Publish
	return p
}

// Start runs the writer until Close is called. Updates still queued when ctx
// is cancelled are written with a fresh deadline each.
func (p *Publisher) Start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for u := range p.queue {
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := p.send(pctx, u.cmd, u.state); err != nil {
				p.log.Warnf("Telemetry publish failed: %v", err)
			}
			cancel()
		}
	}()
}

// Close stops accepting updates and waits for the writer to drain the queue
func (p *Publisher) Close() {
	close(p.queue)
	p.wg.Wait()
}

// ObserveState queues an update without blocking
func (p *Publisher) ObserveState(cmd ergolink.Command, state simulator.State) {
	select {
	case p.queue <- update{cmd: cmd, state: state}:
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
	}
}

// Dropped returns the number of updates lost to a full queue
func (p *Publisher) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Publish writes one state to the hash and announces it in one pipeline
func (p *Publisher) Publish(ctx context.Context, cmd ergolink.Command, state simulator.State) error {
	pipe := p.client.Pipeline()
	pipe.HSet(ctx, p.cfg.Key, Fields(state))
	pipe.Publish(ctx, p.cfg.Channel, ergolink.FormatKind(cmd.Kind))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish state: %w", err)
	}
	return nil
}

// Fields maps a state to hash fields
func Fields(state simulator.State) map[string]interface{} {
	return map[string]interface{}{
		"incline:actual":  state.ActualIncline,
		"incline:target":  state.TargetIncline,
		"incline:degrees": strconv.FormatFloat(state.ActualDegrees(), 'f', 1, 64),
		"rpm":             state.RPM,
		"resistance":      state.Resistance,
	}
}
