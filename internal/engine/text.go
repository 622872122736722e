package engine

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// strict is safe for concurrent use; a cases.Caser is not, so one is built per call.
var strict = bluemonday.StrictPolicy()

// cleanText strips markup from user-entered text and stores it as plain NFC text.
func cleanText(s string) string {
	s = strict.Sanitize(norm.NFC.String(s))
	return strings.TrimSpace(html.UnescapeString(s))
}

// statusTokens maps the spellings people type to stored issue statuses.
var statusTokens = map[string]string{
	"open":           "Open",
	"in progress":    "In Progress",
	"inprogress":     "In Progress",
	"resolved":       "Closed",
	"done":           "Closed",
	"closed":         "Closed",
	"archived":       "Archived",
	"awaiting parts": "Awaiting Parts",
	"awaitingparts":  "Awaiting Parts",
	"awaitingpart":   "Awaiting Parts",
	"blocked":        "Blocked",
}

func token(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeStatus maps a status token onto its stored spelling. Unknown tokens
// are title-cased so filters still match case-insensitively.
func NormalizeStatus(s string) string {
	t := token(s)
	if t == "" {
		return ""
	}
	if v, ok := statusTokens[t]; ok {
		return v
	}
	return cases.Title(language.English).String(t)
}

// matchOption returns the configured spelling of v, compared by token.
func matchOption(options []string, v string) (string, bool) {
	t := token(v)
	for _, o := range options {
		if token(o) == t {
			return o, true
		}
	}
	return "", false
}
