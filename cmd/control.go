// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nategreco/uBike/pkg/controller"
	"github.com/nategreco/uBike/pkg/ergolink"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	controlUpdateInterval time.Duration
	controlStartupDelay   time.Duration
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI acting as the bike controller",
	Long: `Drive an ergometer drive board (or the simulator) from an interactive
terminal UI, taking the place of the bike's controller board.

On start the configuration handshake is sent, followed by the initial
resistance and an incline read. After that cadence is polled every update
interval, the incline is stepped toward its target and the resistance
magnitude follows the display resistance and current incline.

Features:
  - Real-time cadence, incline, resistance and power display
  - Keyboard control of incline and resistance
  - Direct entry of target incline (degrees) and resistance level
  - Statistics tracking and event logging
  - Automatic reconnection on connection loss

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().DurationVar(&controlUpdateInterval, "update-interval", 250*time.Millisecond, "Interval between controller updates")
	controlCmd.Flags().DurationVar(&controlStartupDelay, "startup-delay", controller.DefaultStartupDelay, "Delay before the configuration handshake")
}

// connectionManager handles connection lifecycle and reconnection
type connectionManager struct {
	conn       Connection
	connInfo   string
	mu         sync.RWMutex
	p          *tea.Program
	ctx        context.Context
	dispatcher *ergolink.Dispatcher
	ctrl       *controller.Controller
}

func (cm *connectionManager) getConn() Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn
}

func (cm *connectionManager) setConn(conn Connection, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conn = conn
	cm.connInfo = connInfo
}

// Write sends to the current connection
func (cm *connectionManager) Write(p []byte) (int, error) {
	conn := cm.getConn()
	if conn == nil {
		return 0, ErrConnectionClosed
	}
	return conn.Write(p)
}

// tuiLogHook forwards log entries to the event log of the TUI. Fire never
// blocks since entries are logged while the controller holds its lock.
type tuiLogHook struct {
	entries chan controlLogMsg
}

func newTUILogHook() *tuiLogHook {
	return &tuiLogHook{entries: make(chan controlLogMsg, 256)}
}

func (h *tuiLogHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.ErrorLevel, logrus.WarnLevel, logrus.InfoLevel}
}

func (h *tuiLogHook) Fire(entry *logrus.Entry) error {
	select {
	case h.entries <- controlLogMsg{
		timestamp: entry.Time,
		message:   entry.Message,
		isError:   entry.Level <= logrus.WarnLevel,
	}:
	default:
	}
	return nil
}

// forward delivers queued entries to the TUI until ctx ends
func (h *tuiLogHook) forward(ctx context.Context, p *tea.Program) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.entries:
			p.Send(msg)
		}
	}
}

func runControl(cmd *cobra.Command, args []string) error {
	c, err := codec()
	if err != nil {
		return err
	}

	// Open initial connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stats := ergolink.NewStatistics()
	cm := &connectionManager{
		conn:     conn,
		connInfo: connInfo,
		ctx:      ctx,
	}

	// The TUI owns the terminal, log output goes to the event log instead
	log.SetOutput(io.Discard)

	// Replies are routed to the controller, which sends through the dispatcher
	handler := ergolink.HandlerFunc(func(cmd ergolink.Command) (ergolink.Command, bool) {
		return cm.ctrl.HandleCommand(cmd)
	})
	cm.dispatcher = ergolink.NewDispatcher(cm, handler,
		ergolink.WithCodec(c),
		ergolink.WithLogger(log),
		ergolink.WithStatistics(stats),
	)
	cm.ctrl = controller.New(cm.dispatcher, controller.WithLogger(log), controller.WithStartupDelay(controlStartupDelay))

	// Create TUI model with connection manager
	m := initialControlModel(cm.ctrl, stats, connInfo)

	// Create TUI program with alt screen
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	cm.p = p

	hook := newTUILogHook()
	log.AddHook(hook)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		hook.forward(ctx, p)
	}()
	go func() {
		defer wg.Done()
		cm.readerLoop()
	}()

	// Run TUI
	_, err = p.Run()
	cancel()
	if conn := cm.getConn(); conn != nil {
		conn.Close()
	}
	wg.Wait()

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// readerLoop runs sessions on the connection with automatic reconnection
func (cm *connectionManager) readerLoop() {
	for {
		err := cm.runSession()
		if cm.ctx.Err() != nil {
			return
		}

		// Notify TUI about connection loss
		cm.p.Send(connectionLostMsg{err: err})

		// Attempt to reconnect
		if !cm.reconnect() {
			return // Shutdown requested during reconnect
		}
	}
}

// runSession configures the drive board and keeps it updated while reading
// replies from the current connection. It returns when the connection fails
// or shutdown is requested.
func (cm *connectionManager) runSession() error {
	ctx, cancel := context.WithCancel(cm.ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cm.controlLoop(ctx)
	}()
	defer wg.Wait()

	reader := ergolink.NewLineReader(cm.getConn())
	for {
		line, err := reader.ReadLine(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ergolink.ErrReadTimeout):
			continue
		case errors.Is(err, ergolink.ErrLineTooLong):
			cm.p.Send(controlDataMsg{err: err})
			continue
		default:
			return err
		}

		command, err := cm.dispatcher.ProcessLine(line)
		if errors.Is(err, ergolink.ErrTransport) {
			return err
		}
		cm.p.Send(controlDataMsg{cmd: command, err: err})
	}
}

// controlLoop runs the handshake and then updates the drive board until ctx ends
func (cm *connectionManager) controlLoop(ctx context.Context) {
	err := cm.ctrl.Init(ctx)
	if ctx.Err() != nil {
		return
	}
	cm.p.Send(initDoneMsg{err: err})

	ticker := time.NewTicker(controlUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := cm.ctrl.Update(ctx); err != nil && ctx.Err() == nil {
				log.Warnf("Update failed: %v", err)
			}
		}
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	// Close old connection
	if conn := cm.getConn(); conn != nil {
		conn.Close()
	}
	cm.setConn(nil, "")

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.ctx.Done():
			return false
		case <-time.After(backoff):
		}

		// Attempt to reconnect
		conn, connInfo, err := OpenConnection()
		if err == nil {
			cm.setConn(conn, connInfo)

			// Notify TUI about reconnection
			cm.p.Send(reconnectedMsg{connInfo: connInfo})
			return true
		}

		// Exponential backoff
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
