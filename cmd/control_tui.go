// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nategreco/uBike/pkg/controller"
	"github.com/nategreco/uBike/pkg/ergolink"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	controlRefreshInterval = 250 * time.Millisecond
	minInclineDegrees      = -10.0
	maxInclineDegrees      = 20.0
	minGradePercent        = -10.0
	maxGradePercent        = 20.0
)

// Input modes
const (
	inputNone = iota
	inputIncline
	inputResistance
	inputGrade
	inputLoad
)

//////////////////////////////////////////////////////////////
// Key bindings
//////////////////////////////////////////////////////////////

type controlKeyMap struct {
	InclineUp      key.Binding
	InclineDown    key.Binding
	ResistanceUp   key.Binding
	ResistanceDown key.Binding
	SetIncline     key.Binding
	SetResistance  key.Binding
	Grade          key.Binding
	Load           key.Binding
	Submit         key.Binding
	Cancel         key.Binding
	Help           key.Binding
	Quit           key.Binding
}

func (k controlKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.InclineUp, k.InclineDown, k.ResistanceUp, k.ResistanceDown, k.Help, k.Quit}
}

func (k controlKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.InclineUp, k.InclineDown, k.SetIncline, k.Grade},
		{k.ResistanceUp, k.ResistanceDown, k.SetResistance, k.Load},
		{k.Submit, k.Cancel, k.Help, k.Quit},
	}
}

var controlKeys = controlKeyMap{
	InclineUp:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "incline up")),
	InclineDown:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "incline down")),
	ResistanceUp:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "resistance up")),
	ResistanceDown: key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "resistance down")),
	SetIncline:     key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "enter incline")),
	SetResistance:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "enter resistance")),
	Grade:          key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "enter grade %")),
	Load:           key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "enter load %")),
	Submit:         key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "apply")),
	Cancel:         key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	Help:           key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
	Quit:           key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	ctrl     *controller.Controller
	connInfo string

	// Monitoring (reused from tui.go patterns)
	stats         *ergolink.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int
	data          controller.Data

	// Control
	keys      controlKeyMap
	help      help.Model
	input     textinput.Model
	inputMode int

	// UI state
	width          int
	height         int
	synchronized   bool
	configured     bool
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type controlDataMsg struct {
	cmd ergolink.Command
	err error
}

type controlLogMsg struct {
	timestamp time.Time
	message   string
	isError   bool
}

type initDoneMsg struct {
	err error
}

type connectionLostMsg struct {
	err error
}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(ctrl *controller.Controller, stats *ergolink.Statistics, connInfo string) controlModel {
	ti := textinput.New()
	ti.CharLimit = 6
	ti.Width = 10

	return controlModel{
		ctrl:          ctrl,
		connInfo:      connInfo,
		stats:         stats,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		data:          ctrl.Data(),
		keys:          controlKeys,
		help:          help.New(),
		input:         ti,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(controlRefreshInterval, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case controlTickMsg:
		m.data = m.ctrl.Data()
		return m, controlTickCmd()

	case controlDataMsg:
		m.processControlData(msg)

	case controlLogMsg:
		m.errorLog = append(m.errorLog, errorLogEntry{
			timestamp: msg.timestamp,
			message:   msg.message,
			isError:   msg.isError,
		})
		m.trimLog()

	case initDoneMsg:
		m.configured = true
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Configuration incomplete: %v", msg.err), true)
		} else {
			m.addLogEntry("Drive board configured", false)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.synchronized = false
		m.configured = false
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Connection lost: %v, reconnecting...", msg.err), true)
		} else {
			m.addLogEntry("Connection lost, reconnecting...", true)
		}

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry(fmt.Sprintf("Reconnected: %s", msg.connInfo), false)
	}

	return m, nil
}

func (m *controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.inputMode != inputNone {
		switch {
		case key.Matches(msg, m.keys.Submit):
			m.submitInput()
			return *m, nil
		case key.Matches(msg, m.keys.Cancel):
			m.closeInput()
			return *m, nil
		case msg.String() == "ctrl+c":
			m.quitting = true
			return *m, tea.Quit
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return *m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return *m, tea.Quit
	case key.Matches(msg, m.keys.InclineUp, m.keys.InclineDown):
		m.ctrl.AdjustIncline(controller.EvaluateButton(
			key.Matches(msg, m.keys.InclineUp), key.Matches(msg, m.keys.InclineDown)))
	case key.Matches(msg, m.keys.ResistanceUp, m.keys.ResistanceDown):
		m.ctrl.AdjustResistance(controller.EvaluateButton(
			key.Matches(msg, m.keys.ResistanceUp), key.Matches(msg, m.keys.ResistanceDown)))
	case key.Matches(msg, m.keys.SetIncline):
		cmd := m.openInput(inputIncline, "0.0")
		return *m, cmd
	case key.Matches(msg, m.keys.SetResistance):
		cmd := m.openInput(inputResistance, "1")
		return *m, cmd
	case key.Matches(msg, m.keys.Grade):
		cmd := m.openInput(inputGrade, "0.0")
		return *m, cmd
	case key.Matches(msg, m.keys.Load):
		cmd := m.openInput(inputLoad, "50")
		return *m, cmd
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	m.data = m.ctrl.Data()
	return *m, nil
}

func (m *controlModel) openInput(mode int, placeholder string) tea.Cmd {
	m.inputMode = mode
	m.input.Reset()
	m.input.Placeholder = placeholder
	return m.input.Focus()
}

func (m *controlModel) closeInput() {
	m.inputMode = inputNone
	m.input.Blur()
	m.input.Reset()
}

// submitInput applies the entered target to the controller
func (m *controlModel) submitInput() {
	defer m.closeInput()
	value := strings.TrimSpace(m.input.Value())

	switch m.inputMode {
	case inputIncline:
		degrees, err := strconv.ParseFloat(value, 64)
		if err != nil || degrees < minInclineDegrees || degrees > maxInclineDegrees {
			m.addLogEntry(fmt.Sprintf("Invalid incline (%.0f to %.0f degrees): %s", minInclineDegrees, maxInclineDegrees, value), true)
			return
		}
		m.ctrl.SetIncline(ergolink.InclineRaw(degrees))

	case inputResistance:
		level, err := strconv.Atoi(value)
		if err != nil || level < controller.DisplayResistanceMin || level > controller.DisplayResistanceMax {
			m.addLogEntry(fmt.Sprintf("Invalid resistance (%d to %d): %s", controller.DisplayResistanceMin, controller.DisplayResistanceMax, value), true)
			return
		}
		m.ctrl.SetDisplayResistance(level)

	case inputGrade:
		t, err := parseGradeTarget(value)
		if err != nil {
			m.addLogEntry(err.Error(), true)
			return
		}
		m.ctrl.ApplyTargets(t)

	case inputLoad:
		t, err := parseLoadTarget(value)
		if err != nil {
			m.addLogEntry(err.Error(), true)
			return
		}
		m.ctrl.ApplyTargets(t)
	}
	m.data = m.ctrl.Data()
}

// parseGradeTarget converts a grade in percent to a target in 0.01 % units
func parseGradeTarget(value string) (controller.Targets, error) {
	pct, err := strconv.ParseFloat(value, 64)
	if err != nil || pct < minGradePercent || pct > maxGradePercent {
		return controller.Targets{}, fmt.Errorf("Invalid grade (%.0f to %.0f %%): %s", minGradePercent, maxGradePercent, value)
	}
	return controller.Targets{
		Incline:    int16(math.Round(pct * 100)),
		Resistance: controller.ResistanceUnset,
	}, nil
}

// parseLoadTarget converts a load in percent of the resistance range to a
// target in 0.5 % units
func parseLoadTarget(value string) (controller.Targets, error) {
	pct, err := strconv.ParseFloat(value, 64)
	if err != nil || pct < 0 || pct > 100 {
		return controller.Targets{}, fmt.Errorf("Invalid load (0 to 100 %%): %s", value)
	}
	return controller.Targets{
		Incline:    controller.InclineUnset,
		Resistance: uint8(math.Round(pct * 2)),
	}, nil
}

// processControlData records one line received from the drive board
func (m *controlModel) processControlData(msg controlDataMsg) {
	if msg.err != nil {
		if m.synchronized {
			m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.err), true)
		}
		return
	}

	if !m.synchronized {
		m.synchronized = true
		m.addLogEntry("Synchronized", false)
	}

	for _, v := range ergolink.ValidateCommand(msg.cmd) {
		m.addLogEntry(fmt.Sprintf("%s: %s", ergolink.FormatKind(msg.cmd.Kind), v.Message), true)
	}
	if msg.cmd.IsRequest() {
		m.addLogEntry(fmt.Sprintf("Unexpected request from drive board: %s", msg.cmd), true)
	}
}

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.errorLog = append(m.errorLog, errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	m.trimLog()
}

// trimLog keeps only the last N entries
func (m *controlModel) trimLog() {
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m controlModel) View() string {
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

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	var s strings.Builder
	s.WriteString(titleStyle.Render("UBIKE - CONTROL"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(m.connInfo))
	s.WriteString("\n\n")

	// Connection status
	switch {
	case m.connectionLost:
		s.WriteString(errorStyle.Render("✗ Connection lost, reconnecting..."))
	case !m.configured:
		s.WriteString(warningStyle.Render("⏳ Configuring drive board..."))
	case !m.data.Synced:
		s.WriteString(warningStyle.Render("⏳ Waiting for first incline reading..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Running"))
	}
	s.WriteString("\n\n")

	bikePanel := boxStyle.Render(m.renderBikePanel(statsLabelStyle, statsValueStyle, warningStyle))
	statsPanel := boxStyle.Render(m.renderStatistics(statsLabelStyle, statsValueStyle, errorStyle))
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, bikePanel, " ", statsPanel))
	s.WriteString("\n")

	if m.inputMode != inputNone {
		label := "Target incline (degrees):"
		switch m.inputMode {
		case inputResistance:
			label = fmt.Sprintf("Resistance level (%d-%d):", controller.DisplayResistanceMin, controller.DisplayResistanceMax)
		case inputGrade:
			label = "Target grade (%):"
		case inputLoad:
			label = "Target load (% of range):"
		}
		s.WriteString(focusedBoxStyle.Render(statsLabelStyle.Render(label) + " " + m.input.View()))
		s.WriteString("\n")
	}

	s.WriteString(m.renderEventLog(statsLabelStyle, headerStyle, errorStyle, warningStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))

	return s.String()
}

func (m controlModel) renderBikePanel(labelStyle, valueStyle, warningStyle lipgloss.Style) string {
	d := m.data
	var b strings.Builder

	row := func(label, value string) {
		b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render(fmt.Sprintf("%-12s", label)), value))
	}

	row("Cadence:", valueStyle.Render(fmt.Sprintf("%d RPM", d.RPM)))
	row("Power:", valueStyle.Render(fmt.Sprintf("%d W", d.Watts)))
	row("Resistance:", valueStyle.Render(fmt.Sprintf("%d / %d", d.DisplayResistance, controller.DisplayResistanceMax))+
		" "+lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(fmt.Sprintf("(magnet %d)", d.Resistance)))

	incline := valueStyle.Render(fmt.Sprintf("%.1f°", ergolink.InclineDegrees(d.ActualIncline)))
	if d.ActualIncline != d.TargetIncline {
		incline += warningStyle.Render(fmt.Sprintf(" → %.1f°", ergolink.InclineDegrees(d.TargetIncline)))
	}
	row("Incline:", incline)

	return strings.TrimRight(b.String(), "\n")
}

func (m controlModel) renderStatistics(labelStyle, valueStyle, errorStyle lipgloss.Style) string {
	c := m.stats.Snapshot()
	errs := c.BadStart + c.BadTerminator + c.ChecksumErrors + c.InvalidHex + c.Oversized

	errText := valueStyle.Render(fmt.Sprintf("%d", errs))
	if errs > 0 {
		errText = errorStyle.Render(fmt.Sprintf("%d", errs))
	}

	return fmt.Sprintf("%s %s\n%s %s\n%s %s\n%s %s",
		labelStyle.Render("Received:"), valueStyle.Render(fmt.Sprintf("%d", c.ValidPackets)),
		labelStyle.Render("Sent:    "), valueStyle.Render(fmt.Sprintf("%d", c.Sent)),
		labelStyle.Render("Errors:  "), errText,
		labelStyle.Render("Rate:    "), valueStyle.Render(fmt.Sprintf("%.1f pkts/s", c.PacketRate)),
	)
}

func (m controlModel) renderEventLog(labelStyle, headerStyle, errorStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 20
	if logHeight < 3 {
		logHeight = 3
	}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	var logContent strings.Builder
	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for i := startIdx; i < len(m.errorLog); i++ {
		entry := m.errorLog[i]
		timestamp := headerStyle.Render(entry.timestamp.Format("15:04:05.000"))
		if entry.isError {
			logContent.WriteString(fmt.Sprintf("%s %s\n", timestamp, errorStyle.Render("✗ "+entry.message)))
		} else {
			logContent.WriteString(fmt.Sprintf("%s %s\n", timestamp, warningStyle.Render("ℹ "+entry.message)))
		}
	}

	s.WriteString(boxStyle.Width(max(m.width-4, 20)).Render(strings.TrimRight(logContent.String(), "\n")))
	return s.String()
}
