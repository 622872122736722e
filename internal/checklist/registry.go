package checklist

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the answer shape a step expects.
type Kind string

const (
	KindBoolean Kind = "boolean"
	KindAction  Kind = "action"
)

// PersistPolicy controls which answers of a step are kept when a run is saved.
type PersistPolicy string

const (
	PersistAlways  PersistPolicy = "always"
	PersistOnIssue PersistPolicy = "on_issue"
)

// Item is one line of a step's sub-list, checked OK or flagged on its own.
type Item struct {
	Name  string
	Label string
}

// Step is one question or action of the opening checklist.
type Step struct {
	ID           string
	Title        string
	Prompt       string
	Kind         Kind
	ActionLabel  string
	ActionTarget string
	Persist      PersistPolicy
	// ConfirmOnFinish marks a closing confirmation step: pressing Finish is the answer.
	ConfirmOnFinish bool
	// Items turns a boolean step into a sub-list; the step's answer is derived
	// from the item results.
	Items []Item
	// Figures names free-form values recorded alongside the answer.
	Figures []string
}

// HasItems reports whether the step is answered item by item.
func (s Step) HasItems() bool { return len(s.Items) > 0 }

// Item looks up a sub-list item by name.
func (s Step) Item(name string) (Item, bool) {
	for _, it := range s.Items {
		if it.Name == name {
			return it, true
		}
	}
	return Item{}, false
}

// HasFigure reports whether name is one of the step's figures.
func (s Step) HasFigure(name string) bool {
	for _, f := range s.Figures {
		if f == name {
			return true
		}
	}
	return false
}

// Registry is the ordered, read-only list of steps for a run.
type Registry struct {
	steps []Step
	index map[string]int
}

// NewRegistry validates steps and freezes them into a Registry.
func NewRegistry(steps []Step) (*Registry, error) {
	if len(steps) == 0 {
		return nil, errors.New("checklist requires at least one step")
	}
	r := &Registry{
		steps: make([]Step, len(steps)),
		index: make(map[string]int, len(steps)),
	}
	for i, s := range steps {
		s.ID = strings.TrimSpace(s.ID)
		if s.ID == "" {
			return nil, fmt.Errorf("step %d: id is required", i)
		}
		if _, dup := r.index[s.ID]; dup {
			return nil, fmt.Errorf("step %s: duplicate id", s.ID)
		}
		switch s.Kind {
		case KindBoolean:
		case KindAction:
			if strings.TrimSpace(s.ActionLabel) == "" {
				return nil, fmt.Errorf("step %s: action steps require an action label", s.ID)
			}
		case "":
			s.Kind = KindBoolean
		default:
			return nil, fmt.Errorf("step %s: unknown kind %q", s.ID, s.Kind)
		}
		switch s.Persist {
		case PersistAlways, PersistOnIssue:
		case "":
			s.Persist = PersistAlways
		default:
			return nil, fmt.Errorf("step %s: unknown persist policy %q", s.ID, s.Persist)
		}
		if s.ConfirmOnFinish && i != len(steps)-1 {
			return nil, fmt.Errorf("step %s: confirm_on_finish is only allowed on the last step", s.ID)
		}
		if err := validateDetails(&s); err != nil {
			return nil, err
		}
		r.steps[i] = s
		r.index[s.ID] = i
	}
	return r, nil
}

// Len returns the number of steps.
func (r *Registry) Len() int { return len(r.steps) }

// Step returns the step at index i.
func (r *Registry) Step(i int) (Step, bool) {
	if r == nil || i < 0 || i >= len(r.steps) {
		return Step{}, false
	}
	return r.steps[i], true
}

// Index returns the position of a step id.
func (r *Registry) Index(id string) (int, bool) {
	i, ok := r.index[id]
	return i, ok
}

// Steps returns a copy of the ordered steps.
func (r *Registry) Steps() []Step {
	out := make([]Step, len(r.steps))
	copy(out, r.steps)
	return out
}

func validateDetails(s *Step) error {
	if len(s.Items) > 0 {
		if s.Kind != KindBoolean || s.ConfirmOnFinish {
			return fmt.Errorf("step %s: items are only allowed on boolean steps", s.ID)
		}
		items := make([]Item, len(s.Items))
		seen := make(map[string]bool, len(s.Items))
		for j, it := range s.Items {
			it.Name = strings.TrimSpace(it.Name)
			if it.Name == "" {
				return fmt.Errorf("step %s: item %d: name is required", s.ID, j)
			}
			if seen[it.Name] {
				return fmt.Errorf("step %s: duplicate item %q", s.ID, it.Name)
			}
			seen[it.Name] = true
			items[j] = it
		}
		s.Items = items
	}
	if len(s.Figures) > 0 {
		if s.ConfirmOnFinish {
			return fmt.Errorf("step %s: figures are not allowed on a confirmation step", s.ID)
		}
		figures := make([]string, len(s.Figures))
		seen := make(map[string]bool, len(s.Figures))
		for j, f := range s.Figures {
			f = strings.TrimSpace(f)
			if f == "" {
				return fmt.Errorf("step %s: figure %d: name is required", s.ID, j)
			}
			if seen[f] {
				return fmt.Errorf("step %s: duplicate figure %q", s.ID, f)
			}
			seen[f] = true
			figures[j] = f
		}
		s.Figures = figures
	}
	return nil
}
