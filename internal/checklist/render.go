package checklist

import (
	"errors"
	"fmt"
)

// ErrUnknownStep means an index did not resolve to a registered step.
var ErrUnknownStep = errors.New("checklist step not found")

// Control identifies one input control of a rendered step.
type Control string

const (
	ControlYes      Control = "yes"
	ControlNo       Control = "no"
	ControlAction   Control = "action"
	ControlMarkDone Control = "mark_done"
)

const (
	ForwardNext   = "Next Step"
	ForwardFinish = "Finish Checklist"
)

// Button is a rendered control and whether it reflects the recorded answer.
type Button struct {
	Control Control
	Label   string
	Active  bool
}

// ItemView is one sub-list line; Status is empty until the item is marked.
type ItemView struct {
	Name   string
	Label  string
	Status ItemStatus
	Notes  string
}

// FigureView is one named value of a step.
type FigureView struct {
	Name  string
	Value string
}

// View is everything a front-end needs to draw one step.
type View struct {
	Index        int
	Total        int
	Counter      string
	StepID       string
	Title        string
	Prompt       string
	Kind         Kind
	ActionTarget string
	Buttons      []Button
	Answered     bool
	BackDisabled bool
	ForwardLabel string
	Items        []ItemView
	Notes        string
	Figures      []FigureView
}

// Render builds the view for the step at index from the registry and store.
func Render(reg *Registry, index int, store *Store) (View, error) {
	step, ok := reg.Step(index)
	if !ok {
		return View{}, fmt.Errorf("%w: index %d", ErrUnknownStep, index)
	}
	total := reg.Len()
	v := View{
		Index:        index,
		Total:        total,
		Counter:      fmt.Sprintf("Step %d of %d", index+1, total),
		StepID:       step.ID,
		Title:        step.Title,
		Prompt:       step.Prompt,
		Kind:         step.Kind,
		ActionTarget: step.ActionTarget,
		BackDisabled: index == 0,
		ForwardLabel: ForwardNext,
	}
	if index == total-1 {
		v.ForwardLabel = ForwardFinish
	}
	resp, answered := store.Get(step.ID)
	v.Answered = answered || step.ConfirmOnFinish
	if step.ConfirmOnFinish {
		return v, nil
	}
	v.Notes = store.Notes(step.ID)
	figures := store.Figures(step.ID)
	for _, name := range step.Figures {
		v.Figures = append(v.Figures, FigureView{Name: name, Value: figures[name]})
	}
	if step.HasItems() {
		for _, it := range step.Items {
			iv := ItemView{Name: it.Name, Label: it.Label}
			if res, ok := store.Item(step.ID, it.Name); ok {
				iv.Status, iv.Notes = res.Status, res.Notes
			}
			v.Items = append(v.Items, iv)
		}
		return v, nil
	}
	switch step.Kind {
	case KindAction:
		v.Buttons = []Button{
			{Control: ControlAction, Label: step.ActionLabel, Active: answered && resp.IsActionTaken()},
			{Control: ControlMarkDone, Label: "Mark as Done", Active: answered && !resp.IsActionTaken() && resp.Value()},
		}
	default:
		v.Buttons = []Button{
			{Control: ControlYes, Label: "Yes/Done", Active: answered && resp.Value()},
			{Control: ControlNo, Label: "No/Issue", Active: answered && !resp.Value()},
		}
	}
	return v, nil
}
