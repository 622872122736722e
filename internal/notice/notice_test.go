package notice

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanoutStampsAndDelivers(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	Fanout(a, nil, b).Notify(Warning(CodeNoChoice, "choose"))

	require.Len(t, a.Notices(), 1)
	require.Len(t, b.Notices(), 1)
	assert.False(t, a.Notices()[0].At.IsZero())
	assert.Equal(t, a.Notices()[0].At, b.Notices()[0].At)
	assert.Equal(t, []string{CodeNoChoice}, b.Codes())
}

func TestChannelDropsInfoWhenFull(t *testing.T) {
	overflow := &Recorder{}
	c := NewChannel(1, WithOverflow(overflow))
	c.Notify(Info(CodeRunSaved, "first"))
	c.Notify(Info(CodeRunSaved, "second"))

	n := <-c.C()
	assert.Equal(t, "first", n.Message)
	select {
	case extra := <-c.C():
		t.Fatalf("unexpected notice %q", extra.Message)
	default:
	}
	assert.EqualValues(t, 1, c.Dropped())
	require.Len(t, overflow.Notices(), 1)
	assert.Equal(t, "second", overflow.Notices()[0].Message)
}

func TestChannelQueuesWarningsWhenFull(t *testing.T) {
	c := NewChannel(1)
	c.Notify(Info(CodeIssueSaved, "saved"))
	dup := Warning(CodeIssueDuplicate, "IS-001 already open")
	dup.Data = "IS-001"
	c.Notify(dup)
	c.Notify(Error(CodeIssueFailed, "offline"))

	var got []Notice
	for len(got) < 3 {
		select {
		case n := <-c.C():
			got = append(got, n)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of 3 notices", len(got))
		}
	}
	assert.Equal(t, []string{CodeIssueSaved, CodeIssueDuplicate, CodeIssueFailed}, []string{got[0].Code, got[1].Code, got[2].Code})
	assert.Equal(t, "IS-001", got[1].Data)
	assert.Zero(t, c.Dropped())
}

func TestChannelCloseHandsQueuedNoticesToOverflow(t *testing.T) {
	overflow := &Recorder{}
	c := NewChannel(1, WithOverflow(overflow))
	c.Notify(Info(CodeIssueSaved, "saved"))
	c.Notify(Warning(CodeIssueDuplicate, "dup"))
	c.Close()
	c.Close()

	assert.Eventually(t, func() bool { return c.Dropped() == 1 }, 2*time.Second, 10*time.Millisecond)
	c.Notify(Error(CodeIssueFailed, "late"))
	assert.EqualValues(t, 2, c.Dropped())
	assert.ElementsMatch(t, []string{CodeIssueDuplicate, CodeIssueFailed}, overflow.Codes())
}

func TestLogSinkMapsLevels(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))}

	sink.Notify(Info(CodeRunSaved, "saved"))
	sink.Notify(Error(CodeIssueFailed, "save failed"))

	assert.NotContains(t, buf.String(), CodeRunSaved)
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "code=issue_failed")
}

func TestRecorderReset(t *testing.T) {
	r := &Recorder{}
	r.Notify(Info(CodeRunFinished, "done"))
	r.Reset()
	assert.Empty(t, r.Notices())
}
