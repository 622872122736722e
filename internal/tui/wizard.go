package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"arcadeops/internal/checklist"
	"arcadeops/internal/notice"
)

type editTarget int

const (
	editNone editTarget = iota
	editNotes
	editItemNotes
	editFigure
)

// WizardModel drives a checklist.Wizard from the keyboard. Every wizard call
// happens in Update; the save command only talks to the run sink.
type WizardModel struct {
	ctx     context.Context
	wizard  *checklist.Wizard
	notices <-chan notice.Notice
	styles  Styles
	log     noticeLog
	saving  bool
	err     error

	item   int
	figure int
	edit   editTarget
	input  textinput.Model
}

type savedMsg struct{ err error }

func NewWizardModel(ctx context.Context, w *checklist.Wizard, notices <-chan notice.Notice) WizardModel {
	in := textinput.New()
	in.CharLimit = 500
	return WizardModel{ctx: ctx, wizard: w, notices: notices, styles: DefaultStyles(), input: in}
}

// RunWizard opens the wizard and shows it until the run is saved or abandoned.
func RunWizard(ctx context.Context, w *checklist.Wizard, notices <-chan notice.Notice) error {
	if err := w.Open(); err != nil {
		return err
	}
	final, err := tea.NewProgram(NewWizardModel(ctx, w, notices), tea.WithContext(ctx)).Run()
	if err != nil {
		return err
	}
	if m, ok := final.(WizardModel); ok {
		return m.err
	}
	return nil
}

func (m WizardModel) Init() tea.Cmd {
	return listenNotices(m.notices)
}

func (m WizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case noticeMsg:
		m.log.add(notice.Notice(msg))
		return m, listenNotices(m.notices)
	case savedMsg:
		m.saving = false
		if err := m.wizard.Saved(msg.err); err != nil {
			return m, nil
		}
		return m, tea.Quit
	case tea.KeyMsg:
		if m.edit != editNone {
			return m.handleEdit(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m WizardModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if m.saving {
		// The sink call owns the summary copy; leave the wizard alone until savedMsg.
		if key == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	}
	if key == "ctrl+c" || key == "q" || key == "esc" {
		m.wizard.Abandon()
		return m, tea.Quit
	}
	if m.wizard.State() == checklist.StateFinished {
		if key == "enter" || key == "s" {
			m.saving = true
			return m, m.save()
		}
		return m, nil
	}
	if m.wizard.State() != checklist.StateDisplaying {
		return m, nil
	}
	v, err := m.wizard.View()
	if err != nil {
		m.err = err
		return m, tea.Quit
	}
	switch key {
	case "y":
		err = m.wizard.Answer(true)
	case "n":
		err = m.wizard.Answer(false)
	case "a":
		err = m.wizard.TriggerAction()
	case "d":
		err = m.wizard.MarkDone()
	case "up", "k":
		if m.item > 0 {
			m.item--
		}
	case "down", "j":
		if m.item < len(v.Items)-1 {
			m.item++
		}
	case "o", "i":
		if len(v.Items) == 0 {
			err = checklist.ErrWrongControl
			break
		}
		status := checklist.ItemOK
		if key == "i" {
			status = checklist.ItemIssue
		}
		it := v.Items[m.item]
		err = m.wizard.MarkItem(it.Name, status, it.Notes)
		if err == nil && status == checklist.ItemOK && m.item < len(v.Items)-1 {
			m.item++
		}
	case "t":
		return m.startEdit(v)
	case "f":
		if len(v.Figures) == 0 {
			err = checklist.ErrWrongControl
			break
		}
		m.figure = 0
		return m.beginEdit(editFigure, v.Figures[0].Value, v.Figures[0].Name)
	case "enter", "right", "l":
		err = m.forward()
	case "left", "h", "backspace":
		err = m.wizard.Back()
		m.item = 0
	}
	if err != nil && !errors.Is(err, checklist.ErrMissingResponse) {
		m.log.add(notice.Warning("input", err.Error()))
	}
	if m.wizard.State() == checklist.StateAborted {
		m.err = err
		return m, tea.Quit
	}
	return m, nil
}

func (m *WizardModel) forward() error {
	before := m.wizard.Index()
	err := m.wizard.Forward()
	if m.wizard.Index() != before {
		m.item = 0
	}
	return err
}

// startEdit opens the notes field for the step, or for the highlighted item
// on a sub-list step.
func (m WizardModel) startEdit(v checklist.View) (tea.Model, tea.Cmd) {
	if len(v.Items) > 0 {
		it := v.Items[m.item]
		if it.Status == "" {
			m.log.add(notice.Warning("input", "Mark "+it.Name+" OK or Issue before adding notes."))
			return m, nil
		}
		return m.beginEdit(editItemNotes, it.Notes, "Notes for "+it.Name)
	}
	if len(v.Buttons) == 0 && v.Kind == checklist.KindBoolean {
		m.log.add(notice.Warning("input", checklist.ErrWrongControl.Error()))
		return m, nil
	}
	return m.beginEdit(editNotes, v.Notes, "Notes")
}

func (m WizardModel) beginEdit(target editTarget, value, placeholder string) (tea.Model, tea.Cmd) {
	m.edit = target
	m.input.Placeholder = placeholder
	m.input.SetValue(value)
	m.input.CursorEnd()
	cmd := m.input.Focus()
	return m, cmd
}

func (m WizardModel) handleEdit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.wizard.Abandon()
		return m, tea.Quit
	case "esc":
		m.endEdit()
		return m, nil
	case "enter", "tab":
		return m.commitEdit()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m WizardModel) commitEdit() (tea.Model, tea.Cmd) {
	v, err := m.wizard.View()
	if err != nil {
		m.endEdit()
		return m, nil
	}
	text := m.input.Value()
	switch m.edit {
	case editNotes:
		err = m.wizard.SetNotes(text)
	case editItemNotes:
		it := v.Items[m.item]
		err = m.wizard.MarkItem(it.Name, it.Status, text)
	case editFigure:
		err = m.wizard.SetFigure(v.Figures[m.figure].Name, text)
		if err == nil && m.figure < len(v.Figures)-1 {
			m.figure++
			next := v.Figures[m.figure]
			return m.beginEdit(editFigure, next.Value, next.Name)
		}
	}
	if err != nil {
		m.log.add(notice.Warning("input", err.Error()))
	}
	m.endEdit()
	return m, nil
}

func (m *WizardModel) endEdit() {
	m.edit = editNone
	m.input.Blur()
	m.input.SetValue("")
}

// save takes the summary copy here, on the event loop; the returned command
// only calls the sink.
func (m WizardModel) save() tea.Cmd {
	ctx, commit := m.ctx, m.wizard.Saver()
	return func() tea.Msg {
		return savedMsg{err: commit(ctx)}
	}
}

func (m WizardModel) View() string {
	s := m.styles
	var b strings.Builder
	switch m.wizard.State() {
	case checklist.StateFinished:
		summary, _ := m.wizard.Summary()
		b.WriteString(s.Title.Render("Opening checklist complete") + "\n\n")
		b.WriteString(summaryHeadline(summary) + "\n\n")
		for _, e := range summary.Entries {
			lines := entryLines(e)
			head := "  " + lines[0]
			if e.Response.Issue() {
				head = s.Warn.Render(head)
			}
			b.WriteString(head + "\n")
			for _, l := range lines[1:] {
				b.WriteString(s.Help.Render("      "+l) + "\n")
			}
		}
		if m.saving {
			b.WriteString("\nSaving…\n")
		} else {
			b.WriteString(s.Help.Render("\nenter save and close • q discard") + "\n")
		}
	case checklist.StateDisplaying:
		v, err := m.wizard.View()
		if err != nil {
			return s.Error.Render(err.Error())
		}
		b.WriteString(m.renderStep(v))
	default:
		return ""
	}
	if len(m.log.items) > 0 {
		b.WriteString("\n" + m.log.render(s) + "\n")
	}
	return b.String()
}

func (m WizardModel) renderStep(v checklist.View) string {
	s := m.styles
	var b strings.Builder
	b.WriteString(s.Counter.Render(v.Counter) + "\n")
	b.WriteString(s.Title.Render(v.Title) + "\n")
	if v.Prompt != "" {
		b.WriteString(s.Prompt.Render(v.Prompt) + "\n")
	}
	if v.ActionTarget != "" {
		b.WriteString(s.Help.Render("→ "+v.ActionTarget) + "\n")
	}
	buttons := make([]string, 0, len(v.Buttons))
	for _, btn := range v.Buttons {
		style := s.Button
		if btn.Active {
			style = s.ActiveButton
		}
		buttons = append(buttons, style.Render(btn.Label))
	}
	if len(buttons) > 0 {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, buttons...) + "\n")
	}
	for i, it := range v.Items {
		prefix := "  "
		if i == m.item {
			prefix = "▶ "
		}
		status := "[ ]"
		switch it.Status {
		case checklist.ItemOK:
			status = s.Info.Render("[OK]")
		case checklist.ItemIssue:
			status = s.Warn.Render("[Issue Found]")
		}
		line := prefix + status + " " + it.Name
		if it.Label != "" {
			line += s.Help.Render("  " + it.Label)
		}
		b.WriteString(line + "\n")
		if it.Notes != "" {
			b.WriteString(s.Help.Render("      notes: "+it.Notes) + "\n")
		}
	}
	for _, f := range v.Figures {
		val := f.Value
		if val == "" {
			val = "-"
		}
		b.WriteString(s.Prompt.Render(f.Name+": "+val) + "\n")
	}
	if v.Notes != "" {
		b.WriteString(s.Prompt.Render("Notes: "+v.Notes) + "\n")
	}
	if m.edit != editNone {
		b.WriteString(m.input.View() + "\n")
	}
	back := "← Back"
	if v.BackDisabled {
		back = s.Disabled.Render(back)
	}
	forward := v.ForwardLabel + " →"
	if !v.Answered {
		forward = s.Disabled.Render(forward)
	}
	b.WriteString(back + "   " + forward + "\n")
	b.WriteString(s.Help.Render(stepHelp(v, m.edit)) + "\n")
	return b.String()
}

func stepHelp(v checklist.View, edit editTarget) string {
	if edit != editNone {
		return "enter save • esc cancel"
	}
	var help string
	switch {
	case len(v.Items) > 0:
		help = "↑/↓ item • o ok • i issue • t item notes • enter next"
	case len(v.Buttons) == 0:
		return "enter finish • ← back • q quit"
	case v.Kind == checklist.KindAction:
		help = "a action • d mark done • t notes • enter next"
	default:
		help = "y yes • n no • t notes • enter next"
	}
	if len(v.Figures) > 0 {
		help += " • f figures"
	}
	return help + " • ← back • q quit"
}
