package inspect

import (
	"fmt"
	"strings"
)

// Outcome is the user's verdict for one category.
type Outcome string

const (
	OutcomeOK    Outcome = "OK"
	OutcomeIssue Outcome = "ISSUE"
	OutcomeNA    Outcome = "NA"
)

// ParseOutcome accepts the canonical values plus the obvious spellings ("issue", "n/a").
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OK":
		return OutcomeOK, nil
	case "ISSUE":
		return OutcomeIssue, nil
	case "NA", "N/A":
		return OutcomeNA, nil
	}
	return "", fmt.Errorf("unknown outcome %q (want OK, ISSUE or NA)", s)
}

func (o Outcome) Label() string {
	switch o {
	case OutcomeIssue:
		return "Issue"
	case OutcomeNA:
		return "N/A"
	}
	return string(o)
}

// Category is one inspection dimension with its hint for the inspector.
type Category struct {
	Name string `yaml:"name" json:"name"`
	Help string `yaml:"help" json:"help"`
}

const (
	CategoryReader   = "Reader"
	CategoryControls = "Controls"
	CategoryTickets  = "Tickets"
)

// DefaultCategories is the walk order used when the facility config does not override it.
var DefaultCategories = []Category{
	{Name: "Safety", Help: "Check sharp edges, loose glass, cords."},
	{Name: "Power/Boot", Help: "Does it power on? Any boot errors?"},
	{Name: CategoryReader, Help: "Tap card. Do credits add?"},
	{Name: CategoryControls, Help: "Start a game. Test buttons/joystick/guns/wheel."},
	{Name: "Sound", Help: "Audio plays, correct level, no crackle?"},
	{Name: "Screen/Display", Help: "Picture, colors, brightness, no dead pixels?"},
	{Name: "Lights", Help: "Marquee/cabinet/playfield in attract and play?"},
	{Name: CategoryTickets, Help: "If ticket game: payout/card credit OK?"},
	{Name: "Appearance/Hardware", Help: "Glass, decals, screws, leveling, dust."},
}

// gated reports whether a category is auto-resolved once the reader gate closes.
func gated(name string) bool {
	return name == CategoryControls || name == CategoryTickets
}

func validateCategories(cats []Category) error {
	if len(cats) == 0 {
		return fmt.Errorf("inspection requires at least one category")
	}
	seen := make(map[string]bool, len(cats))
	for i, c := range cats {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("category %d: name is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("category %s: duplicate name", c.Name)
		}
		seen[c.Name] = true
	}
	if gated(cats[0].Name) {
		return fmt.Errorf("category %s cannot be first", cats[0].Name)
	}
	return nil
}
