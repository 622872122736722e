package checklist

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ActionTakenMarker is recorded when the user triggers a step's action control.
const ActionTakenMarker = "action taken"

// Response is a recorded answer: a boolean, or the action-taken marker.
type Response struct {
	value       bool
	actionTaken bool
}

// Bool builds a boolean response.
func Bool(v bool) Response { return Response{value: v} }

// ActionTaken builds the action-taken marker response.
func ActionTaken() Response { return Response{actionTaken: true} }

// IsActionTaken reports whether the response is the action marker.
func (r Response) IsActionTaken() bool { return r.actionTaken }

// Value returns the boolean value; the action marker counts as true.
func (r Response) Value() bool { return r.actionTaken || r.value }

// Issue reports whether the response flags a problem (a boolean "no").
func (r Response) Issue() bool { return !r.actionTaken && !r.value }

func (r Response) String() string {
	if r.actionTaken {
		return ActionTakenMarker
	}
	if r.value {
		return "yes"
	}
	return "no"
}

// ParseResponse reads the String form of a response.
func ParseResponse(s string) (Response, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true":
		return Bool(true), nil
	case "no", "false":
		return Bool(false), nil
	case ActionTakenMarker:
		return ActionTaken(), nil
	}
	return Response{}, fmt.Errorf("unknown response %q", s)
}

func (r Response) MarshalJSON() ([]byte, error) {
	if r.actionTaken {
		return json.Marshal(ActionTakenMarker)
	}
	return json.Marshal(r.value)
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*r = Bool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("response must be a boolean or %q", ActionTakenMarker)
	}
	if s != ActionTakenMarker {
		return fmt.Errorf("unknown response marker %q", s)
	}
	*r = ActionTaken()
	return nil
}

// ItemStatus is the result of one sub-list item.
type ItemStatus string

const (
	ItemOK    ItemStatus = "OK"
	ItemIssue ItemStatus = "Issue Found"
)

// ItemResult is the recorded state of one sub-list item.
type ItemResult struct {
	Item   string     `json:"item"`
	Status ItemStatus `json:"status"`
	Notes  string     `json:"notes,omitempty"`
}

// ParseItemStatus accepts "OK" or "Issue Found" in any case.
func ParseItemStatus(s string) (ItemStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ok":
		return ItemOK, nil
	case "issue found", "issue":
		return ItemIssue, nil
	}
	return "", fmt.Errorf("unknown item status %q", s)
}

// Store maps step ids to the answers of the current run, plus the notes,
// item results and figures recorded with them.
type Store struct {
	answers map[string]Response
	notes   map[string]string
	items   map[string]map[string]ItemResult
	figures map[string]map[string]string
}

func NewStore() *Store {
	s := &Store{}
	s.Clear()
	return s
}

// Set records (or overwrites) the answer for a step.
func (s *Store) Set(stepID string, r Response) {
	if s.answers == nil {
		s.answers = make(map[string]Response)
	}
	s.answers[stepID] = r
}

// Get returns the answer for a step; ok is false while the step is unanswered.
func (s *Store) Get(stepID string) (Response, bool) {
	r, ok := s.answers[stepID]
	return r, ok
}

// SetNotes records free-text notes for a step; blank notes are removed.
func (s *Store) SetNotes(stepID, notes string) {
	if s.notes == nil {
		s.notes = make(map[string]string)
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		delete(s.notes, stepID)
		return
	}
	s.notes[stepID] = notes
}

func (s *Store) Notes(stepID string) string { return s.notes[stepID] }

// SetItem records the result of one sub-list item.
func (s *Store) SetItem(stepID string, res ItemResult) {
	if s.items == nil {
		s.items = make(map[string]map[string]ItemResult)
	}
	if s.items[stepID] == nil {
		s.items[stepID] = make(map[string]ItemResult)
	}
	res.Notes = strings.TrimSpace(res.Notes)
	s.items[stepID][res.Item] = res
}

// Item returns the recorded result of a sub-list item.
func (s *Store) Item(stepID, item string) (ItemResult, bool) {
	res, ok := s.items[stepID][item]
	return res, ok
}

// SetFigure records a named value for a step; a blank value removes it.
func (s *Store) SetFigure(stepID, name, value string) {
	if s.figures == nil {
		s.figures = make(map[string]map[string]string)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		delete(s.figures[stepID], name)
		return
	}
	if s.figures[stepID] == nil {
		s.figures[stepID] = make(map[string]string)
	}
	s.figures[stepID][name] = value
}

// Figures returns a copy of the values recorded for a step, nil when empty.
func (s *Store) Figures(stepID string) map[string]string {
	if len(s.figures[stepID]) == 0 {
		return nil
	}
	out := make(map[string]string, len(s.figures[stepID]))
	for k, v := range s.figures[stepID] {
		out[k] = v
	}
	return out
}

// Clear empties the store for a new run.
func (s *Store) Clear() {
	s.answers = make(map[string]Response)
	s.notes = make(map[string]string)
	s.items = make(map[string]map[string]ItemResult)
	s.figures = make(map[string]map[string]string)
}

func (s *Store) Len() int { return len(s.answers) }

// Snapshot returns a copy of all recorded answers.
func (s *Store) Snapshot() map[string]Response {
	out := make(map[string]Response, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}
