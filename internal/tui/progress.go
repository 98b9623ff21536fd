// Package tui отображает ход массового запуска в терминале.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

// Константы для TUI
const (
	defaultBarWidth = 48 // Ширина полосы прогресса
	maxLogLines     = 6  // Сколько последних элементов показывать

	keyStop = "s"
	keyQuit = "q"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// eventMsg - очередное событие запуска.
type eventMsg struct {
	ev models.BulkEvent
}

// streamClosedMsg - поток событий закрыт.
type streamClosedMsg struct{}

// waitForEvent читает одно событие из потока.
func waitForEvent(events <-chan models.BulkEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

// ProgressModel - модель экрана прогресса массового запуска.
type ProgressModel struct {
	events   <-chan models.BulkEvent
	stop     func() bool
	mode     models.BulkMode
	total    int
	done     int
	errors   int
	lines    []string
	stopping bool
	finished bool
	summary  *models.BulkEvent
	bar      progress.Model
	spin     spinner.Model
}

// NewProgressModel создает модель. stop вызывается по клавише s или Ctrl+C.
func NewProgressModel(events <-chan models.BulkEvent, mode models.BulkMode, total int, stop func() bool) ProgressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle

	return ProgressModel{
		events: events,
		stop:   stop,
		mode:   mode,
		total:  total,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(defaultBarWidth)),
		spin:   sp,
	}
}

// Init запускает спиннер и чтение потока событий.
func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, waitForEvent(m.events))
}

// Update обрабатывает входящие сообщения.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(defaultBarWidth, max(msg.Width-4, 10))
		return m, nil

	case tea.KeyMsg:
		switch {
		case msg.Type == tea.KeyCtrlC || msg.String() == keyStop:
			if !m.stopping && !m.finished && m.stop != nil {
				m.stopping = m.stop()
			}
			return m, nil
		case msg.String() == keyQuit && m.finished:
			return m, tea.Quit
		}
		return m, nil

	case eventMsg:
		return m.applyEvent(msg.ev)

	case streamClosedMsg:
		m.finished = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m ProgressModel) applyEvent(ev models.BulkEvent) (tea.Model, tea.Cmd) {
	m.done = ev.Done
	m.errors = ev.Errors
	if ev.Total > 0 {
		m.total = ev.Total
	}

	if ev.Kind == models.BulkEventSummary {
		m.finished = true
		m.summary = &ev
		return m, tea.Quit
	}

	if ev.Item != nil {
		m.lines = append(m.lines, formatItem(ev.Item))
		if len(m.lines) > maxLogLines {
			m.lines = m.lines[len(m.lines)-maxLogLines:]
		}
	}
	return m, waitForEvent(m.events)
}

func formatItem(item *models.BulkItemResult) string {
	if item.Error != "" {
		return errStyle.Render(fmt.Sprintf("✗ %s: %s", item.AssetID, item.Error))
	}
	if c := item.Candidate; c != nil && c.Optimized {
		return okStyle.Render(fmt.Sprintf("✓ %s → %s  %d KB → %d KB (-%d%%)",
			item.AssetID, c.ID, c.OriginalKB, c.OptimizedKB, c.Percent))
	}
	if c := item.Candidate; c != nil {
		return okStyle.Render(fmt.Sprintf("✓ %s → %s восстановлен", item.AssetID, c.ID))
	}
	return okStyle.Render("✓ " + item.AssetID)
}

// Percent возвращает долю обработанных элементов.
func (m ProgressModel) Percent() float64 {
	if m.total <= 0 {
		return 0
	}
	return float64(m.done) / float64(m.total)
}

// Summary возвращает итоговое событие, если оно получено.
func (m ProgressModel) Summary() (models.BulkEvent, bool) {
	if m.summary == nil {
		return models.BulkEvent{}, false
	}
	return *m.summary, true
}

// View отрисовывает экран прогресса.
func (m ProgressModel) View() string {
	var b strings.Builder

	title := "Оптимизация изображений"
	if m.mode == models.BulkRestore {
		title = "Восстановление оригиналов"
	}
	if m.finished {
		b.WriteString(titleStyle.Render(title) + "\n\n")
	} else {
		b.WriteString(m.spin.View() + " " + titleStyle.Render(title) + "\n\n")
	}

	b.WriteString(m.bar.ViewAs(m.Percent()))
	b.WriteString(fmt.Sprintf("  %d/%d", m.done, m.total))
	if m.errors > 0 {
		b.WriteString(errStyle.Render(fmt.Sprintf("  ошибок: %d", m.errors)))
	}
	b.WriteString("\n\n")

	for _, line := range m.lines {
		b.WriteString(line + "\n")
	}

	switch {
	case m.finished:
		b.WriteString("\n" + hintStyle.Render("Готово."))
	case m.stopping:
		b.WriteString("\n" + hintStyle.Render("Остановка после текущего элемента..."))
	default:
		b.WriteString("\n" + hintStyle.Render("s или Ctrl+C - остановить после текущего элемента"))
	}
	return b.String() + "\n"
}

// RunProgress показывает прогресс запуска до его завершения.
func RunProgress(events <-chan models.BulkEvent, mode models.BulkMode, total int, stop func() bool) error {
	p := tea.NewProgram(NewProgressModel(events, mode, total, stop))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("ошибка при запуске TUI: %w", err)
	}
	return nil
}
