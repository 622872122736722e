package tui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcadeops/internal/checklist"
	"arcadeops/internal/inspect"
	"arcadeops/internal/notice"
)

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

var enter = tea.KeyMsg{Type: tea.KeyEnter}

type runSink struct{ runs []checklist.Summary }

func (s *runSink) SaveRun(_ context.Context, sum checklist.Summary) error {
	s.runs = append(s.runs, sum)
	return nil
}

func testRegistry(t *testing.T) *checklist.Registry {
	t.Helper()
	reg, err := checklist.NewRegistry([]checklist.Step{
		{ID: "breakers", Title: "Breakers"},
		{ID: "tpt", Title: "TPT Goals", Kind: checklist.KindAction, ActionLabel: "Print TPT Sheet"},
		{ID: "final", Title: "Final Check", ConfirmOnFinish: true},
	})
	require.NoError(t, err)
	return reg
}

type staticFinder []inspect.Unit

func (f staticFinder) SearchUnits(_ context.Context, q string, limit int) ([]inspect.Unit, error) {
	var out []inspect.Unit
	for _, u := range f {
		if strings.Contains(strings.ToLower(u.Name), strings.ToLower(q)) {
			out = append(out, u)
		}
	}
	return out, nil
}

func update(t *testing.T, m tea.Model, msgs ...tea.Msg) (tea.Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		m, cmd = m.Update(msg)
	}
	return m, cmd
}

func TestWizardModelWalksAndSaves(t *testing.T) {
	sink := &runSink{}
	w := checklist.NewWizard(testRegistry(t), checklist.WithRunSink(sink))
	require.NoError(t, w.Open())
	m := NewWizardModel(context.Background(), w, nil)

	assert.Contains(t, m.View(), "Step 1 of 3")
	model, _ := update(t, m, enter)
	assert.Equal(t, 0, w.Index(), "unanswered step must not advance")

	model, _ = update(t, model, runes("n"), enter, runes("a"), enter)
	assert.Equal(t, 2, w.Index())
	assert.Contains(t, model.View(), checklist.ForwardFinish)

	model, _ = update(t, model, enter)
	require.Equal(t, checklist.StateFinished, w.State())
	view := model.View()
	assert.Contains(t, view, "3 of 3 steps completed")
	assert.Contains(t, view, "1 flagged")
	assert.Contains(t, view, "Breakers: no")
	assert.Contains(t, view, "TPT Goals: action taken")

	model, cmd := update(t, model, enter)
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, checklist.StateFinished, w.State(), "the save command must not touch the wizard")
	require.Len(t, sink.runs, 1)

	model, cmd = update(t, model, msg)
	require.NotNil(t, cmd)
	assert.Equal(t, checklist.StateClosed, w.State())
	assert.Len(t, sink.runs[0].Entries, 2)
}

type blockingSink struct {
	release chan struct{}
	runs    chan checklist.Summary
}

func (s blockingSink) SaveRun(_ context.Context, sum checklist.Summary) error {
	<-s.release
	s.runs <- sum
	return nil
}

func TestWizardModelSavesOffTheEventLoop(t *testing.T) {
	sink := blockingSink{release: make(chan struct{}), runs: make(chan checklist.Summary, 1)}
	w := checklist.NewWizard(testRegistry(t), checklist.WithRunSink(sink))
	require.NoError(t, w.Open())
	model, _ := update(t, NewWizardModel(context.Background(), w, nil), runes("y"), enter, runes("d"), enter, enter)
	require.Equal(t, checklist.StateFinished, w.State())

	model, cmd := update(t, model, enter)
	require.NotNil(t, cmd)
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()

	model, quit := update(t, model, runes("q"))
	assert.Nil(t, quit)
	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyEsc})
	for i := 0; i < 50; i++ {
		assert.Contains(t, model.View(), "Saving")
	}
	assert.Equal(t, checklist.StateFinished, w.State())

	close(sink.release)
	msg := <-done
	saved := <-sink.runs
	assert.Len(t, saved.Entries, 2)

	_, cmd = update(t, model, msg)
	require.NotNil(t, cmd)
	assert.Equal(t, checklist.StateClosed, w.State())
}

type failingSink struct{ err error }

func (s failingSink) SaveRun(context.Context, checklist.Summary) error { return s.err }

func TestWizardModelKeepsRunWhenSaveFails(t *testing.T) {
	w := checklist.NewWizard(testRegistry(t), checklist.WithRunSink(failingSink{err: errors.New("offline")}))
	require.NoError(t, w.Open())
	model, _ := update(t, NewWizardModel(context.Background(), w, nil), runes("y"), enter, runes("d"), enter, enter)

	model, cmd := update(t, model, enter)
	require.NotNil(t, cmd)
	model, cmd = update(t, model, cmd())
	assert.Nil(t, cmd)
	assert.Equal(t, checklist.StateFinished, w.State())
	assert.Contains(t, model.View(), "enter save and close")
}

func TestWizardModelItemsNotesAndFigures(t *testing.T) {
	reg, err := checklist.NewRegistry([]checklist.Step{
		{ID: "tpt", Title: "TPT Goals", Kind: checklist.KindAction, ActionLabel: "Print TPT Sheet", Figures: []string{"daily_tpt", "weekly_average_tpt"}},
		{ID: "bathrooms", Title: "Bathrooms", Items: []checklist.Item{{Name: "Sinks"}, {Name: "Locks"}}},
		{ID: "final", Title: "Final Check", ConfirmOnFinish: true},
	})
	require.NoError(t, err)
	sink := &runSink{}
	w := checklist.NewWizard(reg, checklist.WithRunSink(sink))
	require.NoError(t, w.Open())
	m := NewWizardModel(context.Background(), w, nil)

	model, _ := update(t, m, runes("d"), runes("t"), runes("on the desk"), enter)
	model, _ = update(t, model, runes("f"), runes("1450"), enter, runes("1300"), enter)
	view := model.View()
	assert.Contains(t, view, "Notes: on the desk")
	assert.Contains(t, view, "daily_tpt: 1450")
	assert.Contains(t, view, "weekly_average_tpt: 1300")

	model, _ = update(t, model, enter)
	require.Equal(t, 1, w.Index())
	model, _ = update(t, model, runes("y"))
	model, _ = update(t, model, runes("o"), runes("i"), runes("t"), runes("stall 2 latch"), enter)
	assert.Contains(t, model.View(), "[Issue Found] Locks")
	model, _ = update(t, model, enter, enter)
	require.Equal(t, checklist.StateFinished, w.State())

	view = model.View()
	assert.Contains(t, view, "TPT Goals: yes")
	assert.Contains(t, view, "daily_tpt: 1450")
	assert.Contains(t, view, "notes: on the desk")
	assert.Contains(t, view, "Bathrooms: no")
	assert.Contains(t, view, "Sinks: OK")
	assert.Contains(t, view, "Locks: Issue Found (stall 2 latch)")

	model, cmd := update(t, model, enter)
	_, _ = update(t, model, cmd())
	require.Len(t, sink.runs, 1)
	entries := sink.runs[0].Entries
	require.Len(t, entries, 2)
	assert.Equal(t, "on the desk", entries[0].Notes)
	assert.Equal(t, map[string]string{"daily_tpt": "1450", "weekly_average_tpt": "1300"}, entries[0].Figures)
	assert.Equal(t, []checklist.ItemResult{
		{Item: "Sinks", Status: checklist.ItemOK},
		{Item: "Locks", Status: checklist.ItemIssue, Notes: "stall 2 latch"},
	}, entries[1].Items)
}

func TestWizardModelQuitAbandons(t *testing.T) {
	w := checklist.NewWizard(testRegistry(t))
	require.NoError(t, w.Open())
	_, cmd := update(t, NewWizardModel(context.Background(), w, nil), runes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, checklist.StateClosed, w.State())
}

func TestWizardModelShowsNotices(t *testing.T) {
	ch := notice.NewChannel(4)
	w := checklist.NewWizard(testRegistry(t), checklist.WithNotices(ch))
	require.NoError(t, w.Open())
	m := NewWizardModel(context.Background(), w, ch.C())

	model, _ := update(t, m, enter)
	msg := m.Init()()
	model, _ = update(t, model, msg)
	assert.Contains(t, model.View(), "⚠")
}

func TestInspectorModelSearchAndIssue(t *testing.T) {
	var sent []inspect.IssueRequest
	in, err := inspect.New(inspect.DefaultSettings(),
		inspect.WithFinder(staticFinder{{ID: "7", Name: "Skee-Ball"}, {ID: "8", Name: "Galaga"}}),
		inspect.WithDispatcher(inspect.DispatchFunc(func(r inspect.IssueRequest) { sent = append(sent, r) })),
	)
	require.NoError(t, err)
	in.Open()
	m := NewInspectorModel(context.Background(), in, nil)

	model, cmd := update(t, m, runes("g"))
	require.NotNil(t, cmd)
	model, _ = update(t, model, searchMsg{query: "g", units: []inspect.Unit{{ID: "8", Name: "Galaga"}}})
	assert.Contains(t, model.View(), "Galaga")
	model, _ = update(t, model, enter)
	unit, ok := in.Unit()
	require.True(t, ok)
	assert.Equal(t, "8", unit.ID)

	model, _ = update(t, model, runes("i"))
	assert.Contains(t, model.View(), "Priority: Medium")
	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyEsc}, runes("p"), enter)
	require.Len(t, sent, 1)
	assert.Equal(t, "Safety issue", sent[0].Description)
	assert.Equal(t, "High", sent[0].Priority)
	assert.Equal(t, 1, in.Index())
	assert.NotContains(t, model.View(), "Priority:")
}

func TestInspectorModelDuplicateOverride(t *testing.T) {
	var sent []inspect.IssueRequest
	in, err := inspect.New(inspect.DefaultSettings(),
		inspect.WithDispatcher(inspect.DispatchFunc(func(r inspect.IssueRequest) { sent = append(sent, r) })))
	require.NoError(t, err)
	in.Open()
	require.NoError(t, in.SelectUnit(inspect.Unit{ID: "1", Name: "Pinball"}))

	dup := notice.Warning(notice.CodeIssueDuplicate, "dup")
	dup.Data = inspect.Duplicate{Request: inspect.IssueRequest{Category: "Sound"}, ExistingID: "IS-009"}
	model, _ := update(t, NewInspectorModel(context.Background(), in, nil), noticeMsg(dup))
	assert.Contains(t, model.View(), "file Sound duplicate anyway")

	_, _ = update(t, model, runes("!"))
	require.Len(t, sent, 1)
	assert.True(t, sent[0].AllowDuplicate)
}

func duplicateNotice(category, existing string) noticeMsg {
	n := notice.Warning(notice.CodeIssueDuplicate, existing+" already open")
	n.Data = inspect.Duplicate{Request: inspect.IssueRequest{Category: category}, ExistingID: existing}
	return noticeMsg(n)
}

func TestInspectorModelQueuesDuplicatesPastFinish(t *testing.T) {
	var sent []inspect.IssueRequest
	in, err := inspect.New(inspect.DefaultSettings(),
		inspect.WithDispatcher(inspect.DispatchFunc(func(r inspect.IssueRequest) { sent = append(sent, r) })))
	require.NoError(t, err)
	in.Open()
	require.NoError(t, in.SelectUnit(inspect.Unit{ID: "1", Name: "Pinball"}))

	model, _ := update(t, NewInspectorModel(context.Background(), in, nil), duplicateNotice("Sound", "IS-009"), duplicateNotice("Lights", "IS-010"))
	assert.Contains(t, model.View(), "file Sound duplicate anyway (2 waiting)")

	for in.State() != inspect.StateFinished {
		var cmd tea.Cmd
		model, cmd = update(t, model, runes("o"), enter)
		require.Nil(t, cmd)
	}
	model, _ = update(t, model, duplicateNotice("Tickets", "IS-011"))
	assert.Contains(t, model.View(), "Inspection complete")
	assert.Contains(t, model.View(), "(3 waiting)")

	for i := 0; i < 4; i++ {
		var cmd tea.Cmd
		model, cmd = update(t, model, runes("!"))
		assert.Nil(t, cmd, "! must not close the finished screen")
	}
	require.Len(t, sent, 3)
	assert.Equal(t, []string{"Sound", "Lights", "Tickets"}, []string{sent[0].Category, sent[1].Category, sent[2].Category})
	for _, r := range sent {
		assert.True(t, r.AllowDuplicate)
	}
	assert.NotContains(t, model.View(), "duplicate anyway")
}

func TestWizardPrompt(t *testing.T) {
	sink := &runSink{}
	var out bytes.Buffer
	w := checklist.NewWizard(testRegistry(t), checklist.WithRunSink(sink), checklist.WithNotices(PromptSink(&out)))

	input := strings.Join([]string{"", "y", "b", "n", "a", "", "", "y"}, "\n") + "\n"
	require.NoError(t, RunWizardPrompt(context.Background(), w, strings.NewReader(input), &out))

	require.Len(t, sink.runs, 1)
	entries := sink.runs[0].Entries
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Response.Value())
	assert.True(t, entries[1].Response.IsActionTaken())
	assert.Contains(t, out.String(), "[warning]")
	assert.Contains(t, out.String(), "3 of 3 steps completed")
	assert.Contains(t, out.String(), "Breakers: no")
	assert.Contains(t, out.String(), "TPT Goals: action taken")
}

func TestWizardPromptItemsAndNotes(t *testing.T) {
	reg, err := checklist.NewRegistry([]checklist.Step{
		{ID: "safety", Title: "Safety & Security", Items: []checklist.Item{
			{Name: "Alarms & Locks", Label: "Verify alarms and locks are secure."},
			{Name: "Lighting"},
		}},
		{ID: "tpt", Title: "TPT Goals", Kind: checklist.KindAction, ActionLabel: "Print TPT Sheet", Figures: []string{"games_out_of_range"}},
		{ID: "final", Title: "Final Check", ConfirmOnFinish: true},
	})
	require.NoError(t, err)
	sink := &runSink{}
	var out bytes.Buffer
	w := checklist.NewWizard(reg, checklist.WithRunSink(sink), checklist.WithNotices(PromptSink(&out)))

	input := []string{
		"t", "front door sticks",
		"c", "o", "i", "dark corner by skee-ball",
		"f", "3",
		"d",
		"",
		"y",
	}
	require.NoError(t, RunWizardPrompt(context.Background(), w, strings.NewReader(strings.Join(input, "\n")+"\n"), &out))

	require.Len(t, sink.runs, 1)
	entries := sink.runs[0].Entries
	require.Len(t, entries, 2)
	assert.Equal(t, "front door sticks", entries[0].Notes)
	assert.True(t, entries[0].Response.Issue())
	assert.Equal(t, []checklist.ItemResult{
		{Item: "Alarms & Locks", Status: checklist.ItemOK},
		{Item: "Lighting", Status: checklist.ItemIssue, Notes: "dark corner by skee-ball"},
	}, entries[0].Items)
	assert.Equal(t, map[string]string{"games_out_of_range": "3"}, entries[1].Figures)

	printed := out.String()
	assert.Contains(t, printed, "Alarms & Locks (Verify alarms and locks are secure.) [o]k/[i]ssue: ")
	assert.Contains(t, printed, "Safety & Security: no")
	assert.Contains(t, printed, "Lighting: Issue Found (dark corner by skee-ball)")
	assert.Contains(t, printed, "games_out_of_range: 3")
	assert.Contains(t, printed, "notes: front door sticks")
}

func TestWizardPromptEOFAbandons(t *testing.T) {
	sink := &runSink{}
	w := checklist.NewWizard(testRegistry(t), checklist.WithRunSink(sink))
	require.NoError(t, RunWizardPrompt(context.Background(), w, strings.NewReader("y\n"), &bytes.Buffer{}))
	assert.Empty(t, sink.runs)
	assert.Equal(t, checklist.StateClosed, w.State())
}

func TestInspectorPromptReaderGate(t *testing.T) {
	var filed []inspect.IssueRequest
	sink := inspect.IssueSinkFunc(func(_ context.Context, r inspect.IssueRequest) (string, error) {
		filed = append(filed, r)
		return "IS-001", nil
	})
	rec := &notice.Recorder{}
	var out bytes.Buffer
	d := inspect.NewAsyncDispatcher(sink, notice.Fanout(rec, PromptSink(&out)))
	in, err := inspect.New(inspect.DefaultSettings(),
		inspect.WithFinder(staticFinder{{ID: "7", Name: "Skee-Ball"}}),
		inspect.WithDispatcher(d), inspect.WithNotices(rec))
	require.NoError(t, err)

	// Controls and Tickets are skipped once the reader is flagged.
	lines := []string{"skee", "1", "o", "o", "i", "card reader dead", "high", "o", "o", "o", "o"}
	require.NoError(t, RunInspectorPrompt(context.Background(), in, d, rec, strings.NewReader(strings.Join(lines, "\n")+"\n"), &out))

	require.Len(t, filed, 1)
	assert.Equal(t, "Reader", filed[0].Category)
	assert.Equal(t, "High", filed[0].Priority)
	assert.Regexp(t, `Controls\s+N/A`, out.String())
	assert.Regexp(t, `Tickets\s+N/A`, out.String())
}
