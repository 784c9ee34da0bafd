package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tagrade/tagrade/internal/lock"
	"github.com/tagrade/tagrade/internal/util"
)

// Source lists the locks to display.
type Source interface {
	List() ([]lock.Descriptor, error)
}

// Remover force-removes one lock.
type Remover func(d lock.Descriptor) error

// Messages

type locksLoadedMsg struct {
	locks []lock.Descriptor
	err   error
}

// LocksChangedMsg asks the browser to reload; the watcher sends it.
type LocksChangedMsg struct{}

type removedMsg struct {
	lock lock.Descriptor
	err  error
}

type tickMsg time.Time

// Options configures the browser.
type Options struct {
	Title    string
	Holder   string // the viewer; their locks are highlighted
	Theme    Theme
	ShowHost bool
	Now      func() time.Time
}

// Model is the bubbletea model of the lock browser.
type Model struct {
	source Source
	remove Remover
	opts   Options

	locks    []lock.Descriptor
	visible  []lock.Descriptor
	cursor   int
	filter   textinput.Model
	filterOn bool

	confirming bool
	status     string
	err        error

	width  int
	height int
}

// NewModel creates a browser over source. remove may be nil for a
// read-only view.
func NewModel(source Source, remove Remover, opts Options) Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Title == "" {
		opts.Title = "locks"
	}

	ti := textinput.New()
	ti.Placeholder = "lab, student or holder"
	ti.Prompt = "/ "
	ti.CharLimit = 64

	return Model{
		source: source,
		remove: remove,
		opts:   opts,
		filter: ti,
		width:  80,
		height: 24,
	}
}

// Init loads the first listing and starts the age ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), tick())
}

func (m Model) load() tea.Cmd {
	return func() tea.Msg {
		locks, err := m.source.List()
		return locksLoadedMsg{locks: locks, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tickMsg:
		return m, tick()

	case LocksChangedMsg:
		return m, m.load()

	case locksLoadedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.locks = msg.locks
			m.applyFilter()
		}
		return m, nil

	case removedMsg:
		if msg.err != nil {
			m.status = ""
			m.err = fmt.Errorf("remove %s: %w", msg.lock, msg.err)
		} else {
			m.err = nil
			m.status = "removed " + msg.lock.String()
		}
		return m, m.load()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if m.filterOn {
		switch msg.String() {
		case "esc":
			m.filterOn = false
			m.filter.Blur()
			m.filter.SetValue("")
			m.applyFilter()
			return m, nil
		case "enter":
			m.filterOn = false
			m.filter.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.applyFilter()
		return m, cmd
	}

	if m.confirming {
		m.confirming = false
		if msg.String() != "y" {
			m.status = "removal cancelled"
			return m, nil
		}
		d, ok := m.selected()
		if !ok || m.remove == nil {
			return m, nil
		}
		m.status = "removing " + d.String() + "…"
		remove := m.remove
		return m, func() tea.Msg {
			return removedMsg{lock: d, err: remove(d)}
		}
	}

	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.visible)-1 {
			m.cursor++
		}
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = max(len(m.visible)-1, 0)
	case "/":
		m.filterOn = true
		m.status = ""
		return m, m.filter.Focus()
	case "r":
		return m, m.load()
	case "d", "x":
		if _, ok := m.selected(); ok && m.remove != nil {
			m.confirming = true
			m.status = ""
		}
	}
	return m, nil
}

func (m *Model) applyFilter() {
	query := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	visible := make([]lock.Descriptor, 0, len(m.locks))
	for _, d := range m.locks {
		if query == "" || matches(d, query) {
			visible = append(visible, d)
		}
	}
	m.visible = visible
	if m.cursor >= len(m.visible) {
		m.cursor = max(len(m.visible)-1, 0)
	}
}

func matches(d lock.Descriptor, query string) bool {
	for _, field := range []string{d.Lab, d.Student, d.Holder, string(d.Kind)} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

func (m Model) selected() (lock.Descriptor, bool) {
	if m.cursor < 0 || m.cursor >= len(m.visible) {
		return lock.Descriptor{}, false
	}
	return m.visible[m.cursor], true
}

// Visible returns the locks that pass the current filter.
func (m Model) Visible() []lock.Descriptor {
	return m.visible
}

// View renders the browser.
func (m Model) View() string {
	t := m.opts.Theme
	var b strings.Builder

	title := fmt.Sprintf("%s  %d lock(s)", m.opts.Title, len(m.locks))
	if len(m.visible) != len(m.locks) {
		title += fmt.Sprintf(", %d shown", len(m.visible))
	}
	b.WriteString(t.Title.Render(title))
	b.WriteString("\n\n")

	cols := m.columns()
	b.WriteString(t.Header.Render(m.renderCells(cols, header(m.opts.ShowHost))))
	b.WriteString("\n")

	rows := max(m.height-8, 1)
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	if len(m.visible) == 0 {
		b.WriteString(t.Muted.Render("  no locks"))
		b.WriteString("\n")
	}
	for i := start; i < len(m.visible) && i < start+rows; i++ {
		d := m.visible[i]
		line := m.renderCells(cols, m.cells(d))

		style := t.Row
		switch {
		case i == m.cursor:
			style = t.Selected
		case d.Holder == m.opts.Holder:
			style = t.Mine
		case d.Kind == lock.KindEmail:
			style = t.Email
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	switch {
	case m.filterOn || m.filter.Value() != "":
		b.WriteString("\n" + m.filter.View())
	case m.confirming:
		if d, ok := m.selected(); ok {
			b.WriteString("\n" + t.Warning.Render(fmt.Sprintf("Remove %s? (y/N)", d)))
		}
	}
	if m.err != nil {
		b.WriteString("\n" + t.Error.Render(util.TruncateString(m.err.Error(), m.width)))
	} else if m.status != "" {
		b.WriteString("\n" + t.Muted.Render(m.status))
	}

	b.WriteString("\n" + m.help())

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = util.TruncateANSI(line, m.width)
	}
	return strings.Join(lines, "\n")
}

func (m Model) help() string {
	t := m.opts.Theme
	keys := []struct{ key, desc string }{
		{"↑/↓", "move"},
		{"/", "filter"},
		{"r", "refresh"},
	}
	if m.remove != nil {
		keys = append(keys, struct{ key, desc string }{"d", "remove"})
	}
	keys = append(keys, struct{ key, desc string }{"q", "quit"})

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = t.HelpKey.Render(k.key) + " " + k.desc
	}
	return t.HelpBar.Render(strings.Join(parts, "  "))
}

func header(showHost bool) []string {
	h := []string{"KIND", "LAB", "STUDENT", "HOLDER", "AGE"}
	if showHost {
		h = append(h, "ORIGIN")
	}
	return h
}

func (m Model) cells(d lock.Descriptor) []string {
	lab := d.Lab
	if d.Kind == lock.KindEmail {
		lab = "-"
	}
	c := []string{string(d.Kind), lab, d.Student, d.Holder, age(m.opts.Now().Sub(d.CreatedAt))}
	if m.opts.ShowHost {
		c = append(c, d.Host+":"+strconv.Itoa(d.PID))
	}
	return c
}

// columns splits the terminal width between the cells.
func (m Model) columns() []int {
	widths := []int{8, 16, 14, 12, 8}
	if m.opts.ShowHost {
		widths = append(widths, 22)
	}
	used := 0
	for _, w := range widths {
		used += w + 1
	}
	if extra := m.width - used - 2; extra > 0 {
		// Lab and student names take the slack.
		widths[1] += extra / 2
		widths[2] += extra - extra/2
	}
	return widths
}

func (m Model) renderCells(widths []int, cells []string) string {
	out := make([]string, len(cells))
	for i, c := range cells {
		w := widths[i]
		out[i] = lipgloss.NewStyle().Width(w).MaxWidth(w).Render(util.TruncateString(c, w))
	}
	return "  " + strings.Join(out, " ")
}

func age(d time.Duration) string {
	switch {
	case d < 0:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd", int(d.Hours())/24)
	}
}
