// Package inspect walks one game through the fixed inspection categories and
// files an issue for every category marked as a problem.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"arcadeops/internal/notice"
)

var (
	ErrNoUnit            = errors.New("pick a game first")
	ErrUnitLocked        = errors.New("a different game is already locked for this inspection")
	ErrNoChoice          = errors.New("choose OK, Issue or N/A")
	ErrEmptyDescription  = errors.New("issue description is required")
	ErrUnknownPriority   = errors.New("unknown priority")
	ErrNoIssueDraft      = errors.New("no issue draft for this category")
	ErrInactive          = errors.New("inspection is not in progress")
	ErrInvalidUnit       = errors.New("game id is required")
	ErrNothingToOverride = errors.New("no duplicate to resubmit")
)

// SearchLimit caps the number of suggestions returned while typing.
const SearchLimit = 8

type State string

const (
	StateIdle     State = "idle"
	StateActive   State = "active"
	StateFinished State = "finished"
	StateClosed   State = "closed"
)

// Unit is the game being inspected.
type Unit struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Result is the recorded outcome of a visited category.
type Result struct {
	Category string  `json:"category"`
	Outcome  Outcome `json:"outcome"`
	// Auto is set when the reader gate resolved the category without input.
	Auto bool `json:"auto,omitempty"`
}

// Draft is the inline issue form shown for an Issue choice.
type Draft struct {
	Description string
	Priority    string
}

// Settings are the facility-level values stamped onto every issue request.
type Settings struct {
	Categories      []Category
	Area            string
	UnitType        string
	Priorities      []string
	DefaultPriority string
	InitialStatus   string
}

// DefaultSettings matches the stock facility config.
func DefaultSettings() Settings {
	return Settings{
		Categories:      DefaultCategories,
		Area:            "Game Room",
		UnitType:        "game",
		Priorities:      []string{"Low", "Medium", "High"},
		DefaultPriority: "Medium",
		InitialStatus:   "Open",
	}
}

// Step is what a front-end draws for the current category.
type Step struct {
	Index        int
	Total        int
	Counter      string
	Category     Category
	Choice       Outcome
	Draft        Draft
	Unit         *Unit
	BackDisabled bool
	Last         bool
	Gated        bool
}

type Option func(*Inspector)

func WithNotices(s notice.Sink) Option {
	return func(in *Inspector) {
		if s != nil {
			in.notices = s
		}
	}
}

func WithDispatcher(d Dispatcher) Option {
	return func(in *Inspector) { in.dispatch = d }
}

func WithFinder(f UnitFinder) Option {
	return func(in *Inspector) { in.finder = f }
}

// OnFinished registers a hook fired with the results when the last category is recorded.
func OnFinished(fn func([]Result)) Option {
	return func(in *Inspector) { in.onFinished = fn }
}

// Inspector is the per-game inspection state machine. It is owned by one
// front-end and is not safe for concurrent use.
type Inspector struct {
	settings   Settings
	dispatch   Dispatcher
	finder     UnitFinder
	notices    notice.Sink
	onFinished func([]Result)

	state   State
	unit    *Unit
	index   int
	results []*Result
	gate    bool
	choice  Outcome
	draft   Draft
}

func New(settings Settings, opts ...Option) (*Inspector, error) {
	if len(settings.Categories) == 0 {
		settings.Categories = DefaultCategories
	}
	if err := validateCategories(settings.Categories); err != nil {
		return nil, err
	}
	if len(settings.Priorities) == 0 {
		settings.Priorities = DefaultSettings().Priorities
	}
	if settings.DefaultPriority == "" {
		settings.DefaultPriority = "Medium"
	}
	if !contains(settings.Priorities, settings.DefaultPriority) {
		return nil, fmt.Errorf("default priority %q not in %v", settings.DefaultPriority, settings.Priorities)
	}
	if settings.UnitType == "" {
		settings.UnitType = "game"
	}
	if settings.InitialStatus == "" {
		settings.InitialStatus = "Open"
	}
	cats := make([]Category, len(settings.Categories))
	copy(cats, settings.Categories)
	settings.Categories = cats

	in := &Inspector{
		settings: settings,
		notices:  notice.Discard,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in, nil
}

// Open starts a fresh session at the first category, discarding any previous one.
func (in *Inspector) Open() {
	in.state = StateActive
	in.unit = nil
	in.index = 0
	in.results = make([]*Result, len(in.settings.Categories))
	in.gate = false
	in.resetSelection()
}

func (in *Inspector) State() State { return in.state }
func (in *Inspector) Index() int   { return in.index }

// Gated reports whether the reader gate has closed for this session.
func (in *Inspector) Gated() bool { return in.gate }

func (in *Inspector) Unit() (Unit, bool) {
	if in.unit == nil {
		return Unit{}, false
	}
	return *in.unit, true
}

// Search returns up to SearchLimit units whose name contains query.
func (in *Inspector) Search(ctx context.Context, query string) ([]Unit, error) {
	q := strings.TrimSpace(query)
	if q == "" || in.finder == nil {
		return nil, nil
	}
	units, err := in.finder.SearchUnits(ctx, q, SearchLimit)
	if err != nil {
		in.notices.Notify(notice.Error(notice.CodeLookupFailed, "Game lookup failed: "+err.Error()))
		return nil, err
	}
	if len(units) > SearchLimit {
		units = units[:SearchLimit]
	}
	return units, nil
}

// SelectUnit locks the unit for the session. Reselecting the same unit is a no-op.
func (in *Inspector) SelectUnit(u Unit) error {
	if in.state != StateActive {
		return ErrInactive
	}
	u.ID = strings.TrimSpace(u.ID)
	if u.ID == "" {
		return ErrInvalidUnit
	}
	if in.unit != nil {
		if in.unit.ID == u.ID {
			return nil
		}
		in.notices.Notify(notice.Warning(notice.CodeUnitLocked, "Locked: "+in.unit.Name))
		return ErrUnitLocked
	}
	if strings.TrimSpace(u.Name) == "" {
		u.Name = u.ID
	}
	in.unit = &u
	return nil
}

// Choose sets the pending outcome for the current category. Choosing Issue
// opens the draft with the default description and priority.
func (in *Inspector) Choose(o Outcome) error {
	if in.state != StateActive {
		return ErrInactive
	}
	switch o {
	case OutcomeOK, OutcomeIssue, OutcomeNA:
	default:
		return fmt.Errorf("unknown outcome %q", o)
	}
	in.choice = o
	if o == OutcomeIssue {
		if in.draft.Description == "" {
			in.draft.Description = in.current().Name + " issue"
		}
		if in.draft.Priority == "" {
			in.draft.Priority = in.settings.DefaultPriority
		}
	}
	return nil
}

func (in *Inspector) SetDescription(s string) error {
	if in.state != StateActive {
		return ErrInactive
	}
	if in.choice != OutcomeIssue {
		return ErrNoIssueDraft
	}
	in.draft.Description = s
	return nil
}

func (in *Inspector) SetPriority(p string) error {
	if in.state != StateActive {
		return ErrInactive
	}
	if in.choice != OutcomeIssue {
		return ErrNoIssueDraft
	}
	for _, known := range in.settings.Priorities {
		if strings.EqualFold(known, strings.TrimSpace(p)) {
			in.draft.Priority = known
			return nil
		}
	}
	return fmt.Errorf("%w %q", ErrUnknownPriority, p)
}

// Forward records the current choice, emits an issue for an Issue outcome and
// moves to the next category that needs input. At the last category the
// session finishes.
func (in *Inspector) Forward() error {
	if in.state != StateActive {
		return ErrInactive
	}
	if in.unit == nil {
		in.notices.Notify(notice.Warning(notice.CodeNoUnit, "Pick a game first."))
		return ErrNoUnit
	}
	if in.choice == "" {
		in.notices.Notify(notice.Warning(notice.CodeNoChoice, "Choose: OK, Add Issue, or N/A."))
		return ErrNoChoice
	}
	cat := in.current()
	desc := strings.TrimSpace(in.draft.Description)
	if in.choice == OutcomeIssue && desc == "" {
		in.notices.Notify(notice.Warning(notice.CodeEmptyDescription, "Describe the "+cat.Name+" issue."))
		return ErrEmptyDescription
	}

	in.results[in.index] = &Result{Category: cat.Name, Outcome: in.choice}
	if cat.Name == CategoryReader && in.choice == OutcomeIssue {
		in.closeGate()
	}
	if in.choice == OutcomeIssue && in.dispatch != nil {
		in.dispatch.Dispatch(in.request(cat.Name, desc, in.draft.Priority))
	}
	in.advance()
	return nil
}

// Back returns to the previous category that takes input; it is a no-op at the first.
func (in *Inspector) Back() error {
	if in.state != StateActive {
		return ErrInactive
	}
	i := in.index - 1
	for i > 0 && in.skipped(i) {
		i--
	}
	if i < 0 {
		return nil
	}
	in.index = i
	in.resetSelection()
	return nil
}

// OverrideDuplicate resubmits a request that was rejected as a duplicate.
func (in *Inspector) OverrideDuplicate(d Duplicate) error {
	if in.dispatch == nil || d.Request.Category == "" {
		return ErrNothingToOverride
	}
	req := d.Request
	req.AllowDuplicate = true
	in.dispatch.Dispatch(req)
	return nil
}

// Close ends the session and discards its state.
func (in *Inspector) Close() {
	in.state = StateClosed
	in.unit = nil
	in.index = 0
	in.results = nil
	in.gate = false
	in.resetSelection()
}

// Results returns the recorded outcomes of visited categories in walk order.
func (in *Inspector) Results() []Result {
	out := make([]Result, 0, len(in.results))
	for _, r := range in.results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// Outcome returns the recorded outcome for a category.
func (in *Inspector) Outcome(category string) (Outcome, bool) {
	for _, r := range in.results {
		if r != nil && r.Category == category {
			return r.Outcome, true
		}
	}
	return "", false
}

// Step describes the current category.
func (in *Inspector) Step() (Step, error) {
	if in.state != StateActive {
		return Step{}, ErrInactive
	}
	total := len(in.settings.Categories)
	s := Step{
		Index:        in.index,
		Total:        total,
		Counter:      fmt.Sprintf("Step %d of %d", in.index+1, total),
		Category:     in.current(),
		Choice:       in.choice,
		Draft:        in.draft,
		BackDisabled: in.index == 0,
		Last:         in.index == total-1,
		Gated:        in.gate,
	}
	if in.unit != nil {
		u := *in.unit
		s.Unit = &u
	}
	return s, nil
}

// Priorities lists the selectable priorities.
func (in *Inspector) Priorities() []string {
	out := make([]string, len(in.settings.Priorities))
	copy(out, in.settings.Priorities)
	return out
}

func (in *Inspector) current() Category {
	return in.settings.Categories[in.index]
}

func (in *Inspector) skipped(i int) bool {
	return in.gate && gated(in.settings.Categories[i].Name)
}

// closeGate latches the reader gate. Gated categories already visited are
// rewritten to N/A; later ones are resolved as the walk passes them.
func (in *Inspector) closeGate() {
	in.gate = true
	for i, r := range in.results {
		if r != nil && gated(r.Category) {
			in.results[i] = autoNA(r.Category)
		}
	}
}

func autoNA(category string) *Result {
	return &Result{Category: category, Outcome: OutcomeNA, Auto: true}
}

func (in *Inspector) advance() {
	last := len(in.settings.Categories) - 1
	for {
		if in.index == last {
			in.finish()
			return
		}
		in.index++
		if !in.skipped(in.index) {
			break
		}
		in.results[in.index] = autoNA(in.current().Name)
	}
	in.resetSelection()
}

func (in *Inspector) finish() {
	in.state = StateFinished
	in.resetSelection()
	if in.onFinished != nil {
		in.onFinished(in.Results())
	}
}

func (in *Inspector) resetSelection() {
	in.choice = ""
	in.draft = Draft{}
}

func (in *Inspector) request(category, desc, priority string) IssueRequest {
	if priority == "" {
		priority = in.settings.DefaultPriority
	}
	return IssueRequest{
		Type:        in.settings.UnitType,
		Area:        in.settings.Area,
		UnitID:      in.unit.ID,
		UnitName:    in.unit.Name,
		Location:    in.unit.Name,
		Category:    category,
		Priority:    priority,
		Description: desc,
		Status:      in.settings.InitialStatus,
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
