package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/oxplot/go-pdsink"
	"github.com/oxplot/go-pdsink/tcdpm"
	"github.com/oxplot/go-pdsink/tcpe"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the sink with a live view of the negotiation",
	RunE: func(cmd *cobra.Command, args []string) error {
		policy, err := cfg.SinkPolicy()
		if err != nil {
			return err
		}
		dev, err := openDevice()
		if err != nil {
			return err
		}
		defer dev.Close()
		m, err := newManager(dev, policy)
		if err != nil {
			return err
		}

		p := tea.NewProgram(newWatchModel(m, cfg.Tick, describePolicy(policy)),
			tea.WithContext(cmd.Context()), tea.WithOutput(cmd.OutOrStdout()))
		_, err = p.Run()
		return err
	},
}

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// TUI model
type watchModel struct {
	manager       *tcdpm.Manager
	interval      time.Duration
	policy        string
	status        tcdpm.Status
	eventLog      []eventLogEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time

func newWatchModel(m *tcdpm.Manager, interval time.Duration, policy string) watchModel {
	return watchModel{
		manager:       m,
		interval:      interval,
		policy:        policy,
		status:        m.Status(),
		maxLogEntries: 12,
		width:         80,
		height:        24,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		m.tickCmd(),
		tea.EnterAltScreen,
	)
}

func (m watchModel) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
		ev := m.manager.Tick()
		m.status = m.manager.Status()
		for e := ev.Pop(); e != typec.EventNone; e = ev.Pop() {
			// vbus updates are shown in the status box
			if e == typec.EventVbus {
				continue
			}
			m.addLogEntry(describeEvent(e, m.status), e == typec.EventDetached)
		}
		return m, m.tickCmd()
	}

	return m, nil
}

func (m *watchModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m watchModel) View() string {
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

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	dimStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	st := m.status

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("PDSINK"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Chip 0x%02x | Policy: %s | Press 'q' to quit", st.ChipID, m.policy)))
	s.WriteString("\n\n")

	// Status
	cc := "none"
	if st.CCPin != 0 {
		cc = fmt.Sprintf("CC%d", st.CCPin)
	}
	power := dimStyle.Render("not ready")
	if st.SelectedVoltageMv != 0 {
		power = valueStyle.Render(fmt.Sprintf("%s %s", millivolts(st.SelectedVoltageMv), milliamps(st.SelectedCurrentMa)))
	}
	var status strings.Builder
	status.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("State:"), valueStyle.Render(st.State.String()),
		labelStyle.Render("CC:"), valueStyle.Render(cc),
		labelStyle.Render("VBUS:"), valueStyle.Render(millivolts(st.VbusMv).String()),
	))
	status.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Power:"), power))
	s.WriteString(boxStyle.Render(status.String()))
	s.WriteString("\n\n")

	// Capabilities
	var caps strings.Builder
	caps.WriteString(labelStyle.Render("Source capabilities"))
	if len(st.Capabilities) == 0 {
		caps.WriteString("\n")
		if st.State < tcpe.StateConnected {
			caps.WriteString(dimStyle.Render("waiting..."))
		} else {
			caps.WriteString(dimStyle.Render("none"))
		}
	}
	for i := range st.Capabilities {
		pos := uint8(i) + 1
		marker := " "
		switch {
		case pos == st.CurrentCapability:
			marker = "*"
		case pos == st.RequestedCapability:
			marker = ">"
		}
		line := fmt.Sprintf("%s %d) %s", marker, pos, tcdpm.FormatCapabilities(st.Capabilities[i:i+1]))
		caps.WriteString("\n")
		if pos == st.CurrentCapability {
			caps.WriteString(valueStyle.Render(line))
		} else {
			caps.WriteString(line)
		}
	}
	s.WriteString(boxStyle.Render(caps.String()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Events"))
	s.WriteString("\n")
	if len(m.eventLog) == 0 {
		s.WriteString(dimStyle.Render("(none yet)"))
		s.WriteString("\n")
	}
	for _, e := range m.eventLog {
		line := fmt.Sprintf("%s %s", e.timestamp.Format("15:04:05.000"), e.message)
		if e.isError {
			s.WriteString(errorStyle.Render(line))
		} else {
			s.WriteString(line)
		}
		s.WriteString("\n")
	}

	return s.String()
}
