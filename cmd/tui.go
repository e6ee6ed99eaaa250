// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nategreco/uBike/pkg/ergolink"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// busValues holds the latest parameters seen on the bus
type busValues struct {
	timestamp     time.Time
	rpm           uint16
	resistance    uint16
	targetIncline uint16
	actualIncline uint16
	hasRPM        bool
	hasResistance bool
	hasTarget     bool
	hasActual     bool
	configAcks    int
}

// update records the parameter carried by cmd
func (b *busValues) update(cmd ergolink.Command) {
	b.timestamp = time.Now()
	switch cmd.Kind {
	case ergolink.KindReplyRPM:
		b.rpm, b.hasRPM = cmd.Value, true
	case ergolink.KindSetResistance, ergolink.KindAckResistance:
		b.resistance, b.hasResistance = cmd.Value, true
	case ergolink.KindSetIncline, ergolink.KindAckIncline:
		b.targetIncline, b.hasTarget = cmd.Value, true
	case ergolink.KindReplyIncline:
		b.actualIncline, b.hasActual = cmd.Value, true
	case ergolink.KindConfigAck:
		b.configAcks = max(b.configAcks, cmd.Step)
	}
}

// TUI model
type model struct {
	connInfo      string
	statsInterval int
	showAll       bool
	stats         *ergolink.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int
	synchronized  bool
	invalidLines  int
	width         int
	height        int
	quitting      bool
	bus           busValues
}

// Messages
type tickMsg time.Time
type syncMsg struct {
	invalidLines int
}

func initialModel(connInfo string, statsInterval int, showAll bool) model {
	return model{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         ergolink.NewStatistics(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		// Redraw with fresh rates
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.invalidLines = msg.invalidLines
		if msg.invalidLines > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid lines", msg.invalidLines), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case lineEvent:
		m.applyEvent(msg)
	}

	return m, nil
}

// applyEvent records one received line
func (m *model) applyEvent(ev lineEvent) {
	if ev.err != nil {
		if m.synchronized {
			m.stats.RecordError(ev.err)
			m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", ev.err), true)
		}
		return
	}

	m.stats.RecordCommand(ev.cmd, ev.validationErrors)
	m.bus.update(ev.cmd)

	switch {
	case len(ev.validationErrors) > 0:
		for _, err := range ev.validationErrors {
			m.addLogEntry(fmt.Sprintf("%s: %s", ergolink.FormatKind(ev.cmd.Kind), err.Message), true)
		}
	case ev.cmd.Kind == ergolink.KindUnknown:
		m.addLogEntry(fmt.Sprintf("Unknown format: %X", ev.cmd.Payload), false)
	case m.showAll:
		m.addLogEntry(fmt.Sprintf("%s (valid)", ev.cmd), false)
	}
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("UBIKE - ERROR DETECTION"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All packets"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Press 'q' to quit", m.connInfo, mode)))
	s.WriteString("\n\n")

	// Sync status
	if !m.synchronized {
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
	} else {
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidLines > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid lines)", m.invalidLines)))
		}
	}
	s.WriteString("\n\n")

	// Statistics
	c := m.stats.Snapshot()
	framingErrors := c.BadStart + c.BadTerminator + c.ChecksumErrors + c.InvalidHex + c.Oversized
	var validPercent, errorPercent float64
	if c.TotalLines > 0 {
		validPercent = float64(c.ValidPackets) * 100.0 / float64(c.TotalLines)
		errorPercent = float64(framingErrors) * 100.0 / float64(c.TotalLines)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", c.TotalLines)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", c.ValidPackets, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", framingErrors, errorPercent)),
	))

	if framingErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Checksum:"), errorStyle.Render(fmt.Sprintf("%d", c.ChecksumErrors)),
			statsLabelStyle.Render("Start/End:"), errorStyle.Render(fmt.Sprintf("%d", c.BadStart+c.BadTerminator)),
			statsLabelStyle.Render("Hex/Size:"), errorStyle.Render(fmt.Sprintf("%d", c.InvalidHex+c.Oversized)),
		))
	}

	if c.Unknown > 0 || c.Anomalies > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Unknown:"), warningStyle.Render(fmt.Sprintf("%d", c.Unknown)),
			statsLabelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", c.Anomalies)),
		))
	}

	errorRate := statsValueStyle.Render(fmt.Sprintf("%.1f err/s", c.ErrorRate))
	if c.ErrorRate > 0 {
		errorRate = errorStyle.Render(fmt.Sprintf("%.1f err/s", c.ErrorRate))
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Packet Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f pkts/s", c.PacketRate)),
		statsLabelStyle.Render("Error Rate:"), errorRate,
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Bus values (only shown once something was decoded)
	if !m.bus.timestamp.IsZero() {
		s.WriteString(statsLabelStyle.Render("Latest Bus Values:"))
		s.WriteString("\n")

		busContent := strings.Builder{}
		value := func(label string, ok bool, text string) {
			if !ok {
				text = "-"
			}
			busContent.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render(label), statsValueStyle.Render(text)))
		}
		value("Cadence:", m.bus.hasRPM, fmt.Sprintf("%d RPM", m.bus.rpm))
		value("Resistance:", m.bus.hasResistance, fmt.Sprintf("%d", m.bus.resistance))
		value("Target incline:", m.bus.hasTarget, fmt.Sprintf("%.1f°", ergolink.InclineDegrees(m.bus.targetIncline)))
		value("Actual incline:", m.bus.hasActual, fmt.Sprintf("%.1f°", ergolink.InclineDegrees(m.bus.actualIncline)))
		value("Configured:", m.bus.configAcks > 0, fmt.Sprintf("%d/%d", m.bus.configAcks, ergolink.ConfigSteps))

		s.WriteString(boxStyle.Render(strings.TrimRight(busContent.String(), "\n")))
		s.WriteString("\n\n")
	}

	// Error log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 15 // Reserve space for header and stats
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
