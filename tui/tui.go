// ABOUTME: Terminal User Interface using bubbletea framework
// ABOUTME: Interactive dashboard for connections, sync runs, jobs, and approvals
package tui

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
	"github.com/restriden/simpli-immo-sub001/sync"
)

const (
	refreshInterval   = 5 * time.Second
	manualSyncTimeout = 15 * time.Minute
	activityLogSize   = 5
)

// Model is the main bubbletea model.
type Model struct {
	db     *sql.DB
	syncer *sync.Syncer

	connections []models.Connection
	runs        []models.SyncRun
	jobs        []models.AnalysisJob
	approvals   []models.FollowupApproval
	leadNames   map[uuid.UUID]string

	selected int
	syncing  bool
	spinner  spinner.Model
	messages []string

	width  int
	height int
	err    error
}

// NewModel creates a new TUI model.
func NewModel(database *sql.DB, syncer *sync.Syncer) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = busyStyle

	return Model{
		db:      database,
		syncer:  syncer,
		spinner: sp,
		width:   80,
		height:  24,
	}
}

// Run starts the full-screen dashboard and blocks until the user quits.
func Run(database *sql.DB, syncer *sync.Syncer) error {
	program := tea.NewProgram(NewModel(database, syncer), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

type tickMsg time.Time

// dataMsg carries a fresh snapshot of everything the dashboard shows.
type dataMsg struct {
	connections []models.Connection
	runs        []models.SyncRun
	jobs        []models.AnalysisJob
	approvals   []models.FollowupApproval
	leadNames   map[uuid.UUID]string
	err         error
}

// syncDoneMsg is sent when a manually triggered sync finishes.
type syncDoneMsg struct {
	results []sync.Result
	err     error
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadData(), m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		return m, tea.Batch(m.loadData(), tick())
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case dataMsg:
		return m.handleData(msg), nil
	case syncDoneMsg:
		return m.handleSyncDone(msg)
	}
	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.connections)-1 {
			m.selected++
		}
	case "enter":
		if m.syncing || len(m.connections) == 0 {
			return m, nil
		}
		conn := m.connections[m.selected]
		if !conn.IsActive {
			m.addMessage(fmt.Sprintf("Connection %s is inactive", conn.LocationID))
			return m, nil
		}
		m.syncing = true
		m.addMessage(fmt.Sprintf("Starting sync for %s...", conn.LocationID))
		return m, m.runSync(&conn)
	case "s":
		if m.syncing {
			return m, nil
		}
		m.syncing = true
		m.addMessage("Starting sync for all connections...")
		return m, m.runSync(nil)
	case "r":
		return m, m.loadData()
	}

	return m, nil
}

func (m Model) handleData(msg dataMsg) Model {
	if msg.err != nil {
		m.err = msg.err
		return m
	}

	m.err = nil
	m.connections = msg.connections
	m.runs = msg.runs
	m.jobs = msg.jobs
	m.approvals = msg.approvals
	m.leadNames = msg.leadNames
	if m.selected >= len(m.connections) {
		m.selected = 0
	}

	return m
}

func (m Model) handleSyncDone(msg syncDoneMsg) (tea.Model, tea.Cmd) {
	m.syncing = false

	if msg.err != nil {
		m.addMessage(fmt.Sprintf("✗ sync failed: %v", msg.err))
	}
	for _, res := range msg.results {
		if res.Err != nil {
			m.addMessage(fmt.Sprintf("✗ %s: %v", res.LocationID, res.Err))
			continue
		}
		total := 0
		for _, count := range res.Counts {
			total += count.Synced
		}
		m.addMessage(fmt.Sprintf("✓ %s: %d items synced", res.LocationID, total))
	}

	return m, m.loadData()
}

// loadData fetches a dashboard snapshot off the UI goroutine.
func (m Model) loadData() tea.Cmd {
	database := m.db
	return func() tea.Msg {
		var msg dataMsg
		if msg.connections, msg.err = db.ListConnections(database, false); msg.err != nil {
			return msg
		}
		if msg.runs, msg.err = db.ListSyncRuns(database, nil, 6); msg.err != nil {
			return msg
		}
		if msg.jobs, msg.err = db.ListRecentAnalysisJobs(database, 4); msg.err != nil {
			return msg
		}
		if msg.approvals, msg.err = db.ListPendingApprovals(database, 6); msg.err != nil {
			return msg
		}

		msg.leadNames = make(map[uuid.UUID]string, len(msg.approvals))
		for _, approval := range msg.approvals {
			lead, err := db.GetLead(database, approval.LeadID)
			if err != nil || lead == nil {
				continue
			}
			msg.leadNames[approval.LeadID] = lead.Name
		}

		return msg
	}
}

// runSync triggers a sync in the background. A nil connection syncs all
// active connections.
func (m Model) runSync(conn *models.Connection) tea.Cmd {
	syncer := m.syncer
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), manualSyncTimeout)
		defer cancel()

		if conn != nil {
			res := syncer.SyncConnection(ctx, conn, models.SyncTypeFull)
			return syncDoneMsg{results: []sync.Result{res}}
		}

		results, err := syncer.SyncAll(ctx, models.SyncTypeFull)
		return syncDoneMsg{results: results, err: err}
	}
}

// addMessage appends to the activity log, keeping the most recent entries.
func (m *Model) addMessage(msg string) {
	stamped := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), msg)
	m.messages = append(m.messages, stamped)
	if len(m.messages) > activityLogSize {
		m.messages = m.messages[len(m.messages)-activityLogSize:]
	}
}
