package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"arcadeops/internal/notice"
)

const noticeBacklog = 4

type noticeMsg notice.Notice

// listenNotices waits for the next notice; the model re-arms it after each one.
func listenNotices(ch <-chan notice.Notice) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return noticeMsg(n)
	}
}

// noticeLog keeps the most recent notices for the status area.
type noticeLog struct {
	items []notice.Notice
}

func (l *noticeLog) add(n notice.Notice) {
	l.items = append(l.items, n)
	if len(l.items) > noticeBacklog {
		l.items = l.items[len(l.items)-noticeBacklog:]
	}
}

func (l noticeLog) render(s Styles) string {
	lines := make([]string, 0, len(l.items))
	for _, n := range l.items {
		lines = append(lines, s.notice(n))
	}
	return strings.Join(lines, "\n")
}
