package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/lockstep/internal/events"
)

// Model is the bubbletea model behind `lockstep watch`.
type Model struct {
	client *client
	now    func() time.Time

	width  int
	height int

	health   HealthState
	jobs     map[string]*JobState
	eventLog []events.Event
	table    table.Model

	ticker   Ticker
	activity Activity
	theme    Theme

	hubEvents chan events.Event
	lastError string
}

// New creates a dashboard for the API at apiURL. apiKey may be empty when
// the server runs without authentication.
func New(apiURL, apiKey string) *Model {
	return &Model{
		client:    newClient(apiURL, apiKey),
		now:       time.Now,
		jobs:      make(map[string]*JobState),
		table:     newJobTable(),
		ticker:    NewTicker(),
		theme:     NewDefaultTheme(),
		hubEvents: make(chan events.Event, 100),
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.client.subscribe(m.hubEvents),
		receiveNextEvent(m.hubEvents),
		m.client.fetchHealth,
		m.client.fetchLocks,
		tick(),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if s := msg.String(); s == "q" || s == "ctrl+c" {
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(max(m.width-8, 20))

	case tickMsg:
		m.ticker.Tick()
		m.activity.Decay(m.now())
		m.refreshTable()
		return m, tick()

	case eventMsg:
		e := events.Event(msg)
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}
		m.activity.OnEvent(m.now())
		updateJobState(m.jobs, e)
		m.refreshTable()
		m.health.Connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health = HealthState{
			Status:        msg.Status,
			Owner:         msg.Owner,
			UptimeSeconds: msg.UptimeSeconds,
			AssignedJobs:  msg.AssignedJobs,
			LocksValid:    msg.LocksValid,
			LocksExpired:  msg.LocksExpired,
			Connected:     true,
			LastCheck:     m.now(),
		}
		for _, job := range msg.AssignedJobs {
			jobFor(m.jobs, job)
		}
		m.refreshTable()
		m.lastError = ""
		return m, tea.Tick(pollInterval, func(time.Time) tea.Msg { return m.client.fetchHealth() })

	case locksMsg:
		applyLocks(m.jobs, msg.Locks)
		m.refreshTable()
		return m, tea.Tick(pollInterval, func(time.Time) tea.Msg { return m.client.fetchLocks() })

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		if msg.err != nil {
			m.lastError = fmt.Sprintf("event stream: %v, reconnecting...", msg.err)
		}
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		// receiveNextEvent is still blocked on hubEvents and picks up the
		// new subscription.
		return m, m.client.subscribe(m.hubEvents)

	case pollErrMsg:
		m.lastError = msg.err.Error()
		return m, tea.Tick(pollInterval, func(time.Time) tea.Msg { return m.client.fetch(msg.path) })
	}

	return m, nil
}

func (m *Model) refreshTable() {
	m.table.SetRows(jobRows(m.jobs, m.now()))
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting..."
	}

	parts := []string{
		renderHeader(m.health, m.ticker, m.activity, m.theme, m.width, m.now()),
		renderJobs(m.table, len(m.jobs) == 0, m.theme, m.width),
		renderEventStream(m.eventLog, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Select job"))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
