package tui

import (
	"fmt"
	"sort"

	"arcadeops/internal/checklist"
)

func summaryHeadline(s checklist.Summary) string {
	return fmt.Sprintf("%d of %d steps completed, %d answered, %d flagged.", s.Completed, s.TotalSteps, len(s.Entries), len(s.Issues()))
}

// entryLines renders one answered step: "Title: response" first, then its
// figures, item results and notes.
func entryLines(e checklist.Entry) []string {
	lines := []string{fmt.Sprintf("%s: %s", e.Title, e.Response.String())}
	names := make([]string, 0, len(e.Figures))
	for name := range e.Figures {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%s: %s", name, e.Figures[name]))
	}
	for _, it := range e.Items {
		line := fmt.Sprintf("%s: %s", it.Item, it.Status)
		if it.Notes != "" {
			line += " (" + it.Notes + ")"
		}
		lines = append(lines, line)
	}
	if e.Notes != "" {
		lines = append(lines, "notes: "+e.Notes)
	}
	return lines
}
