package checklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"arcadeops/internal/notice"
)

// State is the wizard's position in the run lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateDisplaying State = "displaying"
	StateFinished   State = "finished"
	StateClosed     State = "closed"
	StateAborted    State = "aborted"
)

var (
	ErrMissingResponse = errors.New("missing response")
	ErrNotDisplaying   = errors.New("no checklist step is displayed")
	ErrWrongControl    = errors.New("control does not apply to this step")
	ErrUnknownItem     = errors.New("unknown checklist item")
	ErrUnknownFigure   = errors.New("unknown checklist figure")
)

// Entry is one answered step in a completion summary.
type Entry struct {
	StepID   string            `json:"step_id"`
	Title    string            `json:"title"`
	Kind     Kind              `json:"kind"`
	Persist  PersistPolicy     `json:"persist"`
	Response Response          `json:"response"`
	Notes    string            `json:"notes,omitempty"`
	Items    []ItemResult      `json:"items,omitempty"`
	Figures  map[string]string `json:"figures,omitempty"`
}

// HasNotes reports whether the entry or any of its items carries notes.
func (e Entry) HasNotes() bool {
	if e.Notes != "" {
		return true
	}
	for _, it := range e.Items {
		if it.Notes != "" {
			return true
		}
	}
	return false
}

// Summary is the content of a finished run. Completed counts the steps passed
// with Forward, the unstored confirmation step included.
type Summary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	TotalSteps int       `json:"total_steps"`
	Completed  int       `json:"completed"`
	Entries    []Entry   `json:"entries"`
}

// Issues returns the entries answered "no".
func (s Summary) Issues() []Entry {
	var out []Entry
	for _, e := range s.Entries {
		if e.Response.Issue() {
			out = append(out, e)
		}
	}
	return out
}

// RunSink persists finished runs (local database or remote API).
type RunSink interface {
	SaveRun(ctx context.Context, s Summary) error
}

type Option func(*Wizard)

func WithNotices(s notice.Sink) Option {
	return func(w *Wizard) {
		if s != nil {
			w.notices = s
		}
	}
}

func WithRunSink(s RunSink) Option {
	return func(w *Wizard) { w.sink = s }
}

// OnFinished registers the run-finished hook.
func OnFinished(fn func(Summary)) Option {
	return func(w *Wizard) { w.onFinished = fn }
}

func WithClock(now func() time.Time) Option {
	return func(w *Wizard) {
		if now != nil {
			w.now = now
		}
	}
}

// Wizard is the navigation controller of one checklist run.
type Wizard struct {
	reg        *Registry
	store      *Store
	index      int
	state      State
	runID      string
	startedAt  time.Time
	summary    *Summary
	notices    notice.Sink
	sink       RunSink
	onFinished func(Summary)
	now        func() time.Time
}

func NewWizard(reg *Registry, opts ...Option) *Wizard {
	w := &Wizard{
		reg:     reg,
		store:   NewStore(),
		state:   StateIdle,
		notices: notice.Discard,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Open starts a new run at step 0, discarding any previous run.
func (w *Wizard) Open() error {
	w.store.Clear()
	w.summary = nil
	w.index = 0
	w.state = StateDisplaying
	w.runID = uuid.NewString()
	w.startedAt = w.now().UTC()
	_, err := w.View()
	return err
}

func (w *Wizard) State() State { return w.state }
func (w *Wizard) Index() int   { return w.index }
func (w *Wizard) RunID() string {
	return w.runID
}

// Responses returns a copy of the answers recorded so far.
func (w *Wizard) Responses() map[string]Response { return w.store.Snapshot() }

// Summary returns the completion summary once the run is finished.
func (w *Wizard) Summary() (Summary, bool) {
	if w.summary == nil {
		return Summary{}, false
	}
	return *w.summary, true
}

// View renders the displayed step. A step that cannot be rendered aborts the run.
func (w *Wizard) View() (View, error) {
	if w.state != StateDisplaying {
		return View{}, ErrNotDisplaying
	}
	v, err := Render(w.reg, w.index, w.store)
	if err != nil {
		w.abort(err)
		return View{}, err
	}
	return v, nil
}

// Answer records yes/no for a boolean step without moving.
func (w *Wizard) Answer(yes bool) error {
	step, err := w.current()
	if err != nil {
		return err
	}
	if step.Kind != KindBoolean || step.ConfirmOnFinish || step.HasItems() {
		return ErrWrongControl
	}
	w.store.Set(step.ID, Bool(yes))
	return nil
}

// SetNotes records free-text notes on the displayed step; blank text clears them.
func (w *Wizard) SetNotes(text string) error {
	step, err := w.current()
	if err != nil {
		return err
	}
	if step.ConfirmOnFinish {
		return ErrWrongControl
	}
	w.store.SetNotes(step.ID, text)
	return nil
}

// MarkItem records one sub-list item of the displayed step. Once every item
// has a result the step is answered: "yes" when all are OK, "no" otherwise.
func (w *Wizard) MarkItem(name string, status ItemStatus, notes string) error {
	step, err := w.current()
	if err != nil {
		return err
	}
	if !step.HasItems() {
		return ErrWrongControl
	}
	if _, ok := step.Item(name); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownItem, name)
	}
	if status != ItemOK && status != ItemIssue {
		return fmt.Errorf("unknown item status %q", status)
	}
	w.store.SetItem(step.ID, ItemResult{Item: name, Status: status, Notes: notes})
	allOK := true
	for _, it := range step.Items {
		res, ok := w.store.Item(step.ID, it.Name)
		if !ok {
			return nil
		}
		allOK = allOK && res.Status == ItemOK
	}
	w.store.Set(step.ID, Bool(allOK))
	return nil
}

// SetFigure records a named value declared by the displayed step.
func (w *Wizard) SetFigure(name, value string) error {
	step, err := w.current()
	if err != nil {
		return err
	}
	if !step.HasFigure(name) {
		return fmt.Errorf("%w: %q", ErrUnknownFigure, name)
	}
	w.store.SetFigure(step.ID, name, value)
	return nil
}

// TriggerAction records the action marker and tells the user where the action points.
func (w *Wizard) TriggerAction() error {
	step, err := w.current()
	if err != nil {
		return err
	}
	if step.Kind != KindAction {
		return ErrWrongControl
	}
	w.store.Set(step.ID, ActionTaken())
	msg := step.ActionLabel
	if step.ActionTarget != "" {
		msg = fmt.Sprintf("%s: %s", step.ActionLabel, step.ActionTarget)
	}
	n := notice.Info(notice.CodeActionTriggered, msg)
	n.Data = step.ActionTarget
	w.notices.Notify(n)
	return nil
}

// MarkDone satisfies an action step without performing the action.
func (w *Wizard) MarkDone() error {
	step, err := w.current()
	if err != nil {
		return err
	}
	if step.Kind != KindAction {
		return ErrWrongControl
	}
	w.store.Set(step.ID, Bool(true))
	return nil
}

// Back moves to the previous step; it is a no-op on the first step.
func (w *Wizard) Back() error {
	if w.state != StateDisplaying {
		return ErrNotDisplaying
	}
	if w.index == 0 {
		return nil
	}
	w.index--
	_, err := w.View()
	return err
}

// Forward advances past an answered step, finishing the run on the last one.
func (w *Wizard) Forward() error {
	step, err := w.current()
	if err != nil {
		return err
	}
	if _, ok := w.store.Get(step.ID); !ok && !step.ConfirmOnFinish {
		w.notices.Notify(notice.Warning(notice.CodeMissingResponse,
			fmt.Sprintf("Please answer %q before continuing.", stepLabel(step))))
		return ErrMissingResponse
	}
	if w.index < w.reg.Len()-1 {
		w.index++
		_, err := w.View()
		return err
	}
	w.finish()
	return nil
}

// Close ends the run. A finished run is handed to the run sink first; when that
// fails the run stays finished so the caller can retry or Abandon.
func (w *Wizard) Close(ctx context.Context) error {
	if w.state == StateFinished {
		return w.Saved(w.Saver()(ctx))
	}
	w.discard(StateClosed)
	return nil
}

// Saver returns a function that hands a copy of the finished summary to the
// run sink. The function reads no wizard state, so a front-end may call it
// off its event loop and apply the outcome with Saved afterwards.
func (w *Wizard) Saver() func(context.Context) error {
	s, ok := w.Summary()
	sink := w.sink
	if !ok || sink == nil {
		return func(context.Context) error { return nil }
	}
	s.Entries = append([]Entry(nil), s.Entries...)
	return func(ctx context.Context) error { return sink.SaveRun(ctx, s) }
}

// Saved applies the outcome of a Saver call. Success closes the run; failure
// keeps it finished so the caller can retry or Abandon. It is a no-op unless
// the run is finished.
func (w *Wizard) Saved(err error) error {
	if w.state != StateFinished {
		return nil
	}
	if err != nil {
		w.notices.Notify(notice.Error(notice.CodeRunSaveFailed, "Saving the checklist failed: "+err.Error()))
		return err
	}
	if w.sink != nil {
		w.notices.Notify(notice.Info(notice.CodeRunSaved, "Checklist saved."))
	}
	w.discard(StateClosed)
	return nil
}

// Abandon ends the run without saving anything.
func (w *Wizard) Abandon() {
	w.discard(StateClosed)
}

func (w *Wizard) current() (Step, error) {
	if w.state != StateDisplaying {
		return Step{}, ErrNotDisplaying
	}
	step, ok := w.reg.Step(w.index)
	if !ok {
		err := fmt.Errorf("%w: index %d", ErrUnknownStep, w.index)
		w.abort(err)
		return Step{}, err
	}
	return step, nil
}

func (w *Wizard) finish() {
	s := Summary{
		RunID:      w.runID,
		StartedAt:  w.startedAt,
		FinishedAt: w.now().UTC(),
		TotalSteps: w.reg.Len(),
		Completed:  w.reg.Len(),
	}
	for _, step := range w.reg.Steps() {
		resp, ok := w.store.Get(step.ID)
		if !ok {
			continue
		}
		e := Entry{
			StepID:   step.ID,
			Title:    stepLabel(step),
			Kind:     step.Kind,
			Persist:  step.Persist,
			Response: resp,
			Notes:    w.store.Notes(step.ID),
			Figures:  w.store.Figures(step.ID),
		}
		for _, it := range step.Items {
			if res, ok := w.store.Item(step.ID, it.Name); ok {
				e.Items = append(e.Items, res)
			}
		}
		s.Entries = append(s.Entries, e)
	}
	w.summary = &s
	w.state = StateFinished
	n := notice.Info(notice.CodeRunFinished, fmt.Sprintf("Checklist complete: %d answers recorded.", len(s.Entries)))
	n.Data = s
	w.notices.Notify(n)
	if w.onFinished != nil {
		w.onFinished(s)
	}
}

func (w *Wizard) abort(err error) {
	w.notices.Notify(notice.Error(notice.CodeRunAborted, "Checklist aborted: "+err.Error()))
	w.discard(StateAborted)
}

func (w *Wizard) discard(state State) {
	w.store.Clear()
	w.summary = nil
	w.index = 0
	w.state = state
}

func stepLabel(s Step) string {
	if s.Title != "" {
		return s.Title
	}
	return s.ID
}

// Persisted returns the entries kept under each step's persistence policy:
// on_issue steps are only kept when answered "no" or carrying notes.
func (s Summary) Persisted() []Entry {
	out := make([]Entry, 0, len(s.Entries))
	for _, e := range s.Entries {
		if e.Persist == PersistOnIssue && !e.Response.Issue() && !e.HasNotes() {
			continue
		}
		out = append(out, e)
	}
	return out
}
