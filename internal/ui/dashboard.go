// Package ui renders the keeper dashboard: mirror counts by battle status,
// recent winners, keeper runs and the activity feed.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/orchestrator"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage/models"
	"github.com/rovshanmuradov/bonk-keeper/internal/ui/style"
)

const (
	recentLimit   = 10
	activityLimit = 6
	loadTimeout   = 10 * time.Second
)

// Source reads the mirror.
type Source interface {
	CountTokensByStatus(ctx context.Context) (map[string]int64, error)
	RecentWinners(ctx context.Context, limit int) ([]*models.Winner, error)
	RecentRuns(ctx context.Context, limit int) ([]*models.RunHistory, error)
	RecentActivities(ctx context.Context, limit int) ([]*models.Activity, error)
}

// BatchRunner runs one batch pass on demand.
type BatchRunner interface {
	RunBatch(ctx context.Context) (*orchestrator.Summary, error)
}

// Dashboard is the bubbletea model of `keeper dashboard`.
type Dashboard struct {
	source   Source
	runner   BatchRunner
	interval time.Duration
	logger   *zap.Logger

	keys    KeyMap
	help    help.Model
	winners table.Model
	runs    table.Model
	focus   int

	snapshot  *SnapshotMsg
	running   bool
	lastBatch *orchestrator.Summary
	lastErr   *ErrorMsg
	width     int
}

// NewDashboard creates the model. runner may be nil, which disables "t".
func NewDashboard(source Source, runner BatchRunner, interval time.Duration, logger *zap.Logger) *Dashboard {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	d := &Dashboard{
		source:   source,
		runner:   runner,
		interval: interval,
		logger:   logger.Named("dashboard"),
		keys:     DefaultKeyMap(),
		help:     help.New(),
	}

	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(style.Cyan).Bold(true)
	styles.Selected = styles.Selected.Foreground(style.Base03).Background(style.Cyan)

	d.winners = table.New(
		table.WithColumns([]table.Column{
			{Title: "Winner", Width: 14},
			{Title: "Loser", Width: 12},
			{Title: "SOL", Width: 10},
			{Title: "Spoils", Width: 8},
			{Title: "Status", Width: 12},
			{Title: "Pool", Width: 12},
		}),
		table.WithHeight(recentLimit),
		table.WithFocused(true),
		table.WithStyles(styles),
	)
	d.runs = table.New(
		table.WithColumns([]table.Column{
			{Title: "Run", Width: 6},
			{Title: "Started", Width: 9},
			{Title: "Status", Width: 10},
			{Title: "Chk", Width: 4},
			{Title: "OK", Width: 4},
			{Title: "Fail", Width: 4},
			{Title: "Skip", Width: 4},
			{Title: "Avg ms", Width: 8},
		}),
		table.WithHeight(recentLimit),
		table.WithStyles(styles),
	)
	return d
}

func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(d.load(), d.tick())
}

func (d *Dashboard) tick() tea.Cmd {
	return tea.Tick(d.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// load reads one snapshot of the mirror.
func (d *Dashboard) load() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		counts, err := d.source.CountTokensByStatus(ctx)
		if err != nil {
			return ErrorMsg{Error: err, Title: "count tokens"}
		}
		winners, err := d.source.RecentWinners(ctx, recentLimit)
		if err != nil {
			return ErrorMsg{Error: err, Title: "recent winners"}
		}
		runs, err := d.source.RecentRuns(ctx, recentLimit)
		if err != nil {
			return ErrorMsg{Error: err, Title: "recent runs"}
		}
		activities, err := d.source.RecentActivities(ctx, activityLimit)
		if err != nil {
			return ErrorMsg{Error: err, Title: "activity feed"}
		}
		return SnapshotMsg{Counts: counts, Winners: winners, Runs: runs, Activities: activities, At: time.Now()}
	}
}

func (d *Dashboard) runBatch() tea.Cmd {
	return func() tea.Msg {
		summary, err := d.runner.RunBatch(context.Background())
		return BatchDoneMsg{Summary: summary, Err: err}
	}
}

func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.help.Width = msg.Width
		return d, nil

	case tickMsg:
		return d, tea.Batch(d.load(), d.tick())

	case SnapshotMsg:
		d.snapshot = &msg
		d.lastErr = nil
		d.winners.SetRows(winnerRows(msg.Winners))
		d.runs.SetRows(runRows(msg.Runs))
		return d, nil

	case BatchDoneMsg:
		d.running = false
		d.lastBatch = msg.Summary
		if msg.Err != nil {
			d.lastErr = &ErrorMsg{Error: msg.Err, Title: "batch"}
			d.logger.Warn("dashboard batch failed", zap.Error(msg.Err))
		}
		return d, d.load()

	case ErrorMsg:
		d.lastErr = &msg
		return d, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, d.keys.Quit):
			return d, tea.Quit
		case key.Matches(msg, d.keys.Refresh):
			return d, d.load()
		case key.Matches(msg, d.keys.Trigger):
			if d.runner == nil || d.running {
				return d, nil
			}
			d.running = true
			return d, d.runBatch()
		case key.Matches(msg, d.keys.Tab):
			d.focus = (d.focus + 1) % 2
			if d.focus == 0 {
				d.winners.Focus()
				d.runs.Blur()
			} else {
				d.runs.Focus()
				d.winners.Blur()
			}
			return d, nil
		case key.Matches(msg, d.keys.Help):
			d.help.ShowAll = !d.help.ShowAll
			return d, nil
		}
	}

	var cmd tea.Cmd
	if d.focus == 0 {
		d.winners, cmd = d.winners.Update(msg)
	} else {
		d.runs, cmd = d.runs.Update(msg)
	}
	return d, cmd
}

func (d *Dashboard) View() string {
	var b strings.Builder
	b.WriteString(style.HeaderStyle.Render("⚔️  BONK BATTLE KEEPER"))
	b.WriteString("\n")

	if d.snapshot == nil {
		b.WriteString(style.MutedStyle.Render("loading mirror..."))
	} else {
		b.WriteString(d.countsView())
		b.WriteString("\n")
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			style.PanelStyle.Render(style.TitleStyle.Render("Recent winners")+"\n"+d.winners.View()),
			style.PanelStyle.Render(style.TitleStyle.Render("Keeper runs")+"\n"+d.runs.View()),
		))
		b.WriteString("\n")
		b.WriteString(d.activityView())
	}

	b.WriteString("\n")
	b.WriteString(d.statusLine())
	b.WriteString("\n")
	b.WriteString(d.help.View(d.keys))
	return b.String()
}

func (d *Dashboard) countsView() string {
	var boxes []string
	for s := battle.Status(0); s.Valid(); s++ {
		name := s.String()
		boxes = append(boxes, style.Counter(name, d.snapshot.Counts[name], style.StatusColor(name)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

func (d *Dashboard) activityView() string {
	if len(d.snapshot.Activities) == 0 {
		return style.MutedStyle.Render("no activity yet")
	}
	lines := []string{style.TitleStyle.Render("Activity")}
	for _, a := range d.snapshot.Activities {
		lines = append(lines, fmt.Sprintf("%s  %-20s %s",
			style.MutedStyle.Render(a.CreatedAt.Local().Format("15:04:05")),
			a.Kind,
			shortKey(a.Mint)))
	}
	return strings.Join(lines, "\n")
}

func (d *Dashboard) statusLine() string {
	var parts []string
	if d.snapshot != nil {
		parts = append(parts, style.MutedStyle.Render("updated "+d.snapshot.At.Format("15:04:05")))
	}
	if d.running {
		parts = append(parts, style.WarningStyle.Render("batch running..."))
	} else if s := d.lastBatch; s != nil {
		parts = append(parts, style.SuccessStyle.Render(fmt.Sprintf(
			"last batch: checked %d, ok %d, failed %d, skipped %d",
			s.Checked, s.Succeeded, s.Failed, s.Skipped)))
	}
	if d.lastErr != nil {
		parts = append(parts, style.ErrorStyle.Render(fmt.Sprintf("%s: %v", d.lastErr.Title, d.lastErr.Error)))
	}
	return strings.Join(parts, "  ")
}

func winnerRows(winners []*models.Winner) []table.Row {
	rows := make([]table.Row, 0, len(winners))
	for _, w := range winners {
		name := w.Symbol
		if name == "" {
			name = shortKey(w.Mint)
		}
		loser := w.LoserSymbol
		if loser == "" {
			loser = shortKey(w.LoserMint)
		}
		rows = append(rows, table.Row{
			name,
			loser,
			w.FinalSolCollected.StringFixed(3),
			w.SpoilsSol.StringFixed(3),
			w.Status,
			shortKey(w.PoolID),
		})
	}
	return rows
}

func runRows(runs []*models.RunHistory) []table.Row {
	rows := make([]table.Row, 0, len(runs))
	for _, r := range runs {
		started := "-"
		if r.StartedAt != nil {
			started = r.StartedAt.Local().Format("15:04:05")
		}
		rows = append(rows, table.Row{
			r.RunName,
			started,
			r.Status,
			fmt.Sprint(r.Checked),
			fmt.Sprint(r.SuccessCount),
			fmt.Sprint(r.ErrorCount),
			fmt.Sprint(r.Skipped),
			fmt.Sprintf("%.0f", r.AverageExecutionTime),
		})
	}
	return rows
}

// shortKey abbreviates a base58 address as abcd…wxyz.
func shortKey(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:4] + "…" + s[len(s)-4:]
}
