package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"arcadeops/internal/inspect"
	"arcadeops/internal/notice"
)

// InspectorModel drives an inspect.Inspector: pick a game by search-as-you-type,
// then walk the categories.
type InspectorModel struct {
	ctx       context.Context
	in        *inspect.Inspector
	notices   <-chan notice.Notice
	styles    Styles
	log       noticeLog
	query     textinput.Model
	desc      textinput.Model
	results    []inspect.Unit
	cursor     int
	duplicates []inspect.Duplicate
}

type searchMsg struct {
	query string
	units []inspect.Unit
}

func NewInspectorModel(ctx context.Context, in *inspect.Inspector, notices <-chan notice.Notice) InspectorModel {
	q := textinput.New()
	q.Placeholder = "Search games…"
	q.Focus()
	d := textinput.New()
	d.Placeholder = "Describe the issue"
	d.CharLimit = 500
	return InspectorModel{ctx: ctx, in: in, notices: notices, styles: DefaultStyles(), query: q, desc: d}
}

// RunInspector opens a session and shows it until the user quits. Pending
// issue submissions are awaited before it returns.
func RunInspector(ctx context.Context, in *inspect.Inspector, d *inspect.AsyncDispatcher, notices <-chan notice.Notice) error {
	in.Open()
	_, err := tea.NewProgram(NewInspectorModel(ctx, in, notices), tea.WithContext(ctx)).Run()
	if d != nil {
		d.Wait()
	}
	in.Close()
	return err
}

func (m InspectorModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, listenNotices(m.notices))
}

func (m InspectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case noticeMsg:
		n := notice.Notice(msg)
		if dup, ok := n.Data.(inspect.Duplicate); ok {
			m.duplicates = append(m.duplicates, dup)
		}
		m.log.add(n)
		return m, listenNotices(m.notices)
	case searchMsg:
		if msg.query == m.query.Value() {
			m.results = msg.units
			m.cursor = 0
		}
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.in.State() == inspect.StateFinished {
			switch msg.String() {
			case "enter", "q", "esc":
				return m, tea.Quit
			case "!":
				m.overrideNext()
			}
			return m, nil
		}
		if _, ok := m.in.Unit(); !ok {
			return m.updateSearch(msg)
		}
		return m.updateCategory(msg)
	}
	return m, nil
}

func (m InspectorModel) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m, tea.Quit
	case "up":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down":
		if m.cursor < len(m.results)-1 {
			m.cursor++
		}
		return m, nil
	case "enter":
		if len(m.results) == 0 {
			return m, nil
		}
		if err := m.in.SelectUnit(m.results[m.cursor]); err != nil {
			m.log.add(notice.Warning("input", err.Error()))
		}
		m.query.Blur()
		return m, nil
	}
	before := m.query.Value()
	var cmd tea.Cmd
	m.query, cmd = m.query.Update(msg)
	if after := m.query.Value(); after != before {
		return m, tea.Batch(cmd, m.search(after))
	}
	return m, cmd
}

func (m InspectorModel) search(q string) tea.Cmd {
	ctx, in := m.ctx, m.in
	return func() tea.Msg {
		units, _ := in.Search(ctx, q)
		return searchMsg{query: q, units: units}
	}
}

func (m InspectorModel) updateCategory(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.desc.Focused() {
		switch msg.String() {
		case "enter", "esc", "tab":
			m.desc.Blur()
			m.report(m.in.SetDescription(m.desc.Value()))
			return m, nil
		}
		var cmd tea.Cmd
		m.desc, cmd = m.desc.Update(msg)
		return m, cmd
	}
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "o":
		m.report(m.in.Choose(inspect.OutcomeOK))
	case "n":
		m.report(m.in.Choose(inspect.OutcomeNA))
	case "i":
		if err := m.in.Choose(inspect.OutcomeIssue); err == nil {
			step, _ := m.in.Step()
			m.desc.SetValue(step.Draft.Description)
			m.desc.CursorEnd()
			cmd := m.desc.Focus()
			return m, cmd
		}
	case "tab":
		if step, err := m.in.Step(); err == nil && step.Choice == inspect.OutcomeIssue {
			cmd := m.desc.Focus()
			return m, cmd
		}
	case "p":
		m.cyclePriority()
	case "enter", "right":
		if step, err := m.in.Step(); err == nil && step.Choice == inspect.OutcomeIssue {
			_ = m.in.SetDescription(m.desc.Value())
		}
		if err := m.in.Forward(); err == nil {
			m.desc.SetValue("")
		}
	case "left", "backspace":
		m.report(m.in.Back())
		m.desc.SetValue("")
	case "!":
		m.overrideNext()
	}
	return m, nil
}

// overrideNext files the oldest rejected duplicate anyway.
func (m *InspectorModel) overrideNext() {
	if len(m.duplicates) == 0 {
		return
	}
	dup := m.duplicates[0]
	m.duplicates = m.duplicates[1:]
	m.report(m.in.OverrideDuplicate(dup))
}

func (m InspectorModel) duplicateHelp() string {
	if len(m.duplicates) == 0 {
		return ""
	}
	dup := m.duplicates[0]
	h := fmt.Sprintf(" • ! file %s duplicate anyway", dup.Request.Category)
	if n := len(m.duplicates); n > 1 {
		h += fmt.Sprintf(" (%d waiting)", n)
	}
	return h
}

func (m *InspectorModel) cyclePriority() {
	step, err := m.in.Step()
	if err != nil || step.Choice != inspect.OutcomeIssue {
		return
	}
	prios := m.in.Priorities()
	next := prios[0]
	for i, p := range prios {
		if p == step.Draft.Priority {
			next = prios[(i+1)%len(prios)]
		}
	}
	m.report(m.in.SetPriority(next))
}

// report shows input errors that the inspector did not already announce.
func (m *InspectorModel) report(err error) {
	if err == nil || errors.Is(err, inspect.ErrUnitLocked) {
		return
	}
	m.log.add(notice.Warning("input", err.Error()))
}

func (m InspectorModel) View() string {
	s := m.styles
	var b strings.Builder
	switch m.in.State() {
	case inspect.StateFinished:
		b.WriteString(s.Title.Render("Inspection complete") + "\n\n")
		for _, r := range m.in.Results() {
			line := fmt.Sprintf("  %-16s %s", r.Category, r.Outcome.Label())
			if r.Auto {
				line += s.Help.Render(" (reader down)")
			}
			b.WriteString(line + "\n")
		}
		b.WriteString(s.Help.Render("\nenter close"+m.duplicateHelp()) + "\n")
	case inspect.StateActive:
		if _, ok := m.in.Unit(); !ok {
			b.WriteString(m.viewSearch())
		} else {
			b.WriteString(m.viewCategory())
		}
	default:
		return ""
	}
	if len(m.log.items) > 0 {
		b.WriteString("\n" + m.log.render(s) + "\n")
	}
	return b.String()
}

func (m InspectorModel) viewSearch() string {
	s := m.styles
	var b strings.Builder
	b.WriteString(s.Title.Render("Inspect a game") + "\n")
	b.WriteString(m.query.View() + "\n")
	for i, u := range m.results {
		prefix := "  "
		if i == m.cursor {
			prefix = "▶ "
		}
		b.WriteString(prefix + u.Name + "\n")
	}
	b.WriteString(s.Help.Render("type to search • ↑/↓ pick • enter select • esc quit") + "\n")
	return b.String()
}

func (m InspectorModel) viewCategory() string {
	s := m.styles
	step, err := m.in.Step()
	if err != nil {
		return s.Error.Render(err.Error())
	}
	var b strings.Builder
	b.WriteString(s.Counter.Render(step.Counter+" • "+step.Unit.Name) + "\n")
	b.WriteString(s.Title.Render(step.Category.Name) + "\n")
	b.WriteString(s.Prompt.Render(step.Category.Help) + "\n")
	choices := make([]string, 0, 3)
	for _, o := range []inspect.Outcome{inspect.OutcomeOK, inspect.OutcomeIssue, inspect.OutcomeNA} {
		label := o.Label()
		if o == step.Choice {
			label = s.ActiveButton.Render(label)
		} else {
			label = s.Button.Render(label)
		}
		choices = append(choices, label)
	}
	b.WriteString(strings.Join(choices, " ") + "\n")
	if step.Choice == inspect.OutcomeIssue {
		b.WriteString(m.desc.View() + "\n")
		b.WriteString("Priority: " + step.Draft.Priority + "\n")
	}
	if step.Gated {
		b.WriteString(s.Warn.Render("Reader down: Controls and Tickets are N/A") + "\n")
	}
	help := "o ok • i issue • n n/a • p priority • enter next • ← back • q quit" + m.duplicateHelp()
	b.WriteString(s.Help.Render(help) + "\n")
	return b.String()
}
