package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// UI Model
type model struct {
	spinner      spinner.Model
	progress     progress.Model
	cfg          Config
	queueURL     string
	sent         int
	successful   int
	failed       int
	sentByKind   map[MessageKind]int
	recentLogs   []logEntry
	errors       []string
	minLatency   time.Duration
	maxLatency   time.Duration
	totalLatency time.Duration
	throughput   float64
	startTime    time.Time
	currentTime  time.Time
	isComplete   bool
	width        int
}

type logEntry struct {
	timestamp time.Time
	message   string
	kind      MessageKind
	success   bool
}

type tickMsg time.Time
type resultMsg Result
type completeMsg struct{}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Background(lipgloss.Color("235")).
			Padding(0, 1).
			MarginBottom(1)

	configValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("117")).
				Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	kindStyles = map[MessageKind]lipgloss.Style{
		KindLogin:     lipgloss.NewStyle().Foreground(lipgloss.Color("99")),
		KindDuplicate: lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		KindInvalid:   lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	}

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("111"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2).
			MarginBottom(1)
)

func initialModel(cfg Config, queueURL string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		spinner:    s,
		progress:   progress.New(progress.WithDefaultGradient()),
		cfg:        cfg,
		queueURL:   queueURL,
		sentByKind: make(map[MessageKind]int),
		recentLogs: make([]logEntry, 0, 15),
		startTime:  time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = msg.Width - 4
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tickMsg:
		m.currentTime = time.Time(msg)
		if !m.isComplete {
			return m, tickCmd()
		}
		return m, nil

	case resultMsg:
		return m.record(Result(msg)), nil

	case completeMsg:
		m.isComplete = true
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// record folds one send result into the counters
func (m model) record(r Result) model {
	m.sent++
	m.totalLatency += r.Duration
	if m.sent == 1 || r.Duration < m.minLatency {
		m.minLatency = r.Duration
	}
	if r.Duration > m.maxLatency {
		m.maxLatency = r.Duration
	}

	entry := logEntry{timestamp: time.Now(), kind: r.Kind, success: r.Success}
	if r.Success {
		m.successful++
		m.sentByKind[r.Kind]++
		entry.message = fmt.Sprintf("Message %d sent (%v)", r.Index, r.Duration.Round(time.Millisecond))
	} else {
		m.failed++
		entry.message = fmt.Sprintf("Message %d failed: %s", r.Index, r.Error)
		m.errors = append([]string{fmt.Sprintf("[%s] %s", r.Kind, r.Error)}, m.errors...)
		if len(m.errors) > 5 {
			m.errors = m.errors[:5]
		}
	}

	m.recentLogs = append([]logEntry{entry}, m.recentLogs...)
	if len(m.recentLogs) > 10 {
		m.recentLogs = m.recentLogs[:10]
	}

	if elapsed := time.Since(m.startTime).Seconds(); elapsed > 0 {
		m.throughput = float64(m.successful) / elapsed
	}
	return m
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Login Event Generator") + "\n")

	progressPercent := float64(m.sent) / float64(m.cfg.Messages)
	progressText := fmt.Sprintf("Progress: %d/%d messages (%.1f%%)", m.sent, m.cfg.Messages, progressPercent*100)
	if !m.isComplete {
		progressText = m.spinner.View() + " " + progressText
	} else {
		progressText = "✓ " + progressText
	}
	b.WriteString(progressText + "\n")
	b.WriteString(m.progress.ViewAs(progressPercent) + "\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.renderMetricsPanel(), m.renderConfigPanel()) + "\n")
	b.WriteString(m.renderLogPanel() + "\n")
	if len(m.errors) > 0 {
		b.WriteString(m.renderErrorPanel() + "\n")
	}

	if m.isComplete {
		b.WriteString(successStyle.Render("\n✓ Done! Press 'q' to quit"))
	} else {
		b.WriteString(labelStyle.Render("\nPress 'q' to quit"))
	}
	return b.String()
}

func (m model) renderMetricsPanel() string {
	elapsed := m.currentTime.Sub(m.startTime)
	if elapsed <= 0 {
		elapsed = time.Since(m.startTime)
	}

	avg := "N/A"
	if m.sent > 0 {
		avg = (m.totalLatency / time.Duration(m.sent)).Round(time.Millisecond).String()
	}

	lines := []string{
		labelStyle.Render("Sent: ") + valueStyle.Render(fmt.Sprintf("%d", m.sent)),
		labelStyle.Render("Successful: ") + successStyle.Render(fmt.Sprintf("%d", m.successful)),
		labelStyle.Render("Failed: ") + errorStyle.Render(fmt.Sprintf("%d", m.failed)),
		"",
	}
	for _, k := range []MessageKind{KindLogin, KindDuplicate, KindInvalid} {
		lines = append(lines, kindStyles[k].Render(fmt.Sprintf("%-10s", k))+valueStyle.Render(fmt.Sprintf("%d", m.sentByKind[k])))
	}
	lines = append(lines,
		"",
		labelStyle.Render("Latency min/avg/max: ")+valueStyle.Render(fmt.Sprintf("%v / %s / %v",
			m.minLatency.Round(time.Millisecond), avg, m.maxLatency.Round(time.Millisecond))),
		labelStyle.Render("Elapsed: ")+valueStyle.Render(elapsed.Round(time.Second).String()),
		labelStyle.Render("Throughput: ")+valueStyle.Render(fmt.Sprintf("%.2f msg/s", m.throughput)),
	)

	return boxStyle.Width(48).Render(strings.Join(lines, "\n"))
}

func (m model) renderConfigPanel() string {
	displayQueueURL := m.queueURL
	if len(displayQueueURL) > 34 {
		displayQueueURL = "..." + displayQueueURL[len(displayQueueURL)-31:]
	}

	lines := []string{
		labelStyle.Render("Configuration:"),
		labelStyle.Render("  Queue: ") + configValueStyle.Render(displayQueueURL),
		labelStyle.Render("  Workers: ") + configValueStyle.Render(fmt.Sprintf("%d", m.cfg.Concurrency)),
		labelStyle.Render("  Null ratio: ") + configValueStyle.Render(fmt.Sprintf("%.0f%%", m.cfg.NullRatio*100)),
		labelStyle.Render("  Duplicates: ") + configValueStyle.Render(fmt.Sprintf("%.0f%%", m.cfg.DuplicateRatio*100)),
		labelStyle.Render("  Invalid: ") + configValueStyle.Render(fmt.Sprintf("%.0f%%", m.cfg.InvalidRatio*100)),
	}
	return boxStyle.Width(48).Render(strings.Join(lines, "\n"))
}

func (m model) renderLogPanel() string {
	var logs strings.Builder
	logs.WriteString(labelStyle.Render("Recent Activity:") + "\n\n")

	if len(m.recentLogs) == 0 {
		logs.WriteString(labelStyle.Render("  No activity yet..."))
	}
	for _, entry := range m.recentLogs {
		style, icon := successStyle, "✓"
		if !entry.success {
			style, icon = errorStyle, "✗"
		}
		logs.WriteString(fmt.Sprintf("  %s %s %s %s\n",
			labelStyle.Render(entry.timestamp.Format("15:04:05.000")),
			kindStyles[entry.kind].Render(fmt.Sprintf("%-9s", entry.kind)),
			style.Render(icon),
			entry.message,
		))
	}

	return boxStyle.Width(96).Render(logs.String())
}

func (m model) renderErrorPanel() string {
	var errorList strings.Builder
	errorList.WriteString(errorStyle.Render("⚠ Recent Errors:") + "\n\n")
	for _, err := range m.errors {
		errorList.WriteString(fmt.Sprintf("  %s %s\n", errorStyle.Render("•"), err))
	}
	return boxStyle.Width(96).Render(errorList.String())
}
