package dashboard

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/strategies"
)

var modelLog = logrus.WithField("module", "dashboard.model")

type tab int

const (
	tabPortfolio tab = iota
	tabStrategies
	tabChart
)

var tabNames = []string{"Portfolio", "Strategies", "Chart"}

// 编辑框字段顺序
const (
	fieldName = iota
	fieldDescription
	fieldParameters
	fieldCount
)

type updateMsg struct {
	snapshot *Snapshot
}

type actionDoneMsg struct {
	op  string
	err error
}

type saveDoneMsg struct {
	err error
}

type tickMsg time.Time

type model struct {
	snapshot *Snapshot
	updateCh <-chan *Snapshot
	actions  Actions
	opts     Options
	width    int
	height   int

	tab      tab
	selected int

	editor        *strategies.Editor
	field         int
	saving        bool
	pendingDelete *domain.Strategy
	showMetrics   bool
	candle        bool

	status string
}

func newModel(updateCh <-chan *Snapshot, actions Actions, opts Options) model {
	opts.withDefaults()
	return model{
		snapshot: &Snapshot{Title: opts.Title},
		updateCh: updateCh,
		actions:  actions,
		opts:     opts,
		editor:   strategies.NewEditor(nil),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.waitForUpdate(),
		m.tick(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case updateMsg:
		m.snapshot = msg.snapshot
		m.clampSelection()
		return m, m.waitForUpdate()
	case actionDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.op, msg.err)
		} else {
			m.status = msg.op + " ok"
		}
		return m, nil
	case saveDoneMsg:
		m.saving = false
		m.editor.Complete(msg.err)
		if msg.err != nil {
			m.status = fmt.Sprintf("save failed: %v", msg.err)
		} else {
			m.status = "strategy saved"
		}
		return m, nil
	case tickMsg:
		return m, m.tick()
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	if m.pendingDelete != nil {
		return m.handleConfirmKey(key)
	}
	if m.editor.IsOpen() {
		return m.handleEditorKey(msg)
	}

	switch key {
	case "q":
		return m, tea.Quit
	case "tab", "right":
		m.tab = (m.tab + 1) % tab(len(tabNames))
	case "shift+tab", "left":
		m.tab = (m.tab + tab(len(tabNames)) - 1) % tab(len(tabNames))
	case "1", "2", "3":
		m.tab = tab(key[0] - '1')
	case "r":
		m.status = "refreshing..."
		return m, m.run("refresh", func(ctx context.Context) error { return m.actions.Refresh(ctx) })
	}

	switch m.tab {
	case tabStrategies:
		return m.handleStrategiesKey(key)
	case tabChart:
		return m.handleChartKey(key)
	}
	return m, nil
}

func (m model) handleStrategiesKey(key string) (tea.Model, tea.Cmd) {
	list := m.snapshot.Strategies.Strategies
	switch key {
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(list)-1 {
			m.selected++
		}
	case "n":
		m.editor.OpenNew()
		m.field = fieldName
	case "e":
		if s, ok := m.current(); ok {
			m.editor.OpenEdit(s)
			m.field = fieldName
		}
	case "m":
		m.showMetrics = !m.showMetrics
	case " ":
		s, ok := m.current()
		if !ok {
			return m, nil
		}
		// 以当前展示的状态为准，提交取反值
		id, current := s.ID, s.IsActive
		return m, m.run("toggle", func(ctx context.Context) error { return m.actions.Toggle(ctx, id, current) })
	case "d":
		if s, ok := m.current(); ok {
			m.pendingDelete = &s
		}
	}
	return m, nil
}

func (m model) handleConfirmKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "y", "Y":
		id := m.pendingDelete.ID
		m.pendingDelete = nil
		return m, m.run("delete", func(ctx context.Context) error { return m.actions.Delete(ctx, id) })
	case "n", "N", "esc":
		m.pendingDelete = nil
		m.status = "delete cancelled"
	}
	return m, nil
}

func (m model) handleEditorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.saving {
		return m, nil
	}
	switch msg.String() {
	case "esc":
		m.editor.Cancel()
		return m, nil
	case "tab", "down":
		m.field = (m.field + 1) % fieldCount
		return m, nil
	case "shift+tab", "up":
		m.field = (m.field + fieldCount - 1) % fieldCount
		return m, nil
	case "enter", "ctrl+s":
		m.saving = true
		mode, id, in := m.editor.Submission()
		actions := m.actions
		return m, func() tea.Msg {
			return saveDoneMsg{err: actions.Save(context.Background(), mode, id, in)}
		}
	case "backspace":
		v := m.fieldValue()
		if r := []rune(*v); len(r) > 0 {
			*v = string(r[:len(r)-1])
		}
		return m, nil
	}
	if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
		v := m.fieldValue()
		*v += string(msg.Runes)
		if msg.Type == tea.KeySpace && len(msg.Runes) == 0 {
			*v += " "
		}
	}
	return m, nil
}

func (m model) handleChartKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "[", "]":
		step := 1
		if key == "[" {
			step = -1
		}
		tf := m.snapshot.ChartKey.Timeframe.Next(step)
		m.actions.SetTimeframe(tf)
		m.status = "timeframe " + tf.String()
	case "c":
		m.candle = !m.candle
	}
	return m, nil
}

func (m model) fieldValue() *string {
	switch m.field {
	case fieldDescription:
		return &m.editor.Draft.Description
	case fieldParameters:
		return &m.editor.Draft.Parameters
	default:
		return &m.editor.Draft.Name
	}
}

func (m model) current() (domain.Strategy, bool) {
	list := m.snapshot.Strategies.Strategies
	if m.selected < 0 || m.selected >= len(list) {
		return domain.Strategy{}, false
	}
	return list[m.selected], true
}

func (m *model) clampSelection() {
	n := len(m.snapshot.Strategies.Strategies)
	if m.selected >= n {
		m.selected = n - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		err := fn(context.Background())
		if err != nil {
			modelLog.WithError(err).Warnf("%s failed", op)
		}
		return actionDoneMsg{op: op, err: err}
	}
}

// waitForUpdate 阻塞等待快照，积压时只取最新的
func (m model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-m.updateCh
		if !ok {
			return nil
		}
		for {
			select {
			case latest, ok := <-m.updateCh:
				if !ok {
					return updateMsg{snapshot: snap}
				}
				snap = latest
			default:
				return updateMsg{snapshot: snap}
			}
		}
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
