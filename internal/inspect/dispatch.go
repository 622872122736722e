package inspect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"arcadeops/internal/notice"
)

// IssueRequest is the record emitted for every Issue outcome.
type IssueRequest struct {
	Type           string `json:"type"`
	Area           string `json:"area"`
	UnitID         string `json:"game_id"`
	UnitName       string `json:"equipment_name"`
	Location       string `json:"equipment_location"`
	Category       string `json:"category"`
	Priority       string `json:"priority"`
	Description    string `json:"description"`
	Notes          string `json:"notes"`
	Status         string `json:"status"`
	AllowDuplicate bool   `json:"allow_duplicate,omitempty"`
}

// IssueSink creates issues and returns the new issue id.
type IssueSink interface {
	CreateIssue(ctx context.Context, req IssueRequest) (string, error)
}

// IssueSinkFunc adapts a function to IssueSink.
type IssueSinkFunc func(ctx context.Context, req IssueRequest) (string, error)

func (f IssueSinkFunc) CreateIssue(ctx context.Context, req IssueRequest) (string, error) {
	return f(ctx, req)
}

// UnitFinder looks up inspectable units by partial name.
type UnitFinder interface {
	SearchUnits(ctx context.Context, query string, limit int) ([]Unit, error)
}

// duplicateIssue is implemented by errors reporting that an equivalent open issue exists.
type duplicateIssue interface {
	error
	ExistingIssueID() string
}

// Duplicate is the payload of a duplicate notice; pass it to OverrideDuplicate to resubmit.
type Duplicate struct {
	Request    IssueRequest
	ExistingID string
}

// Saved is the payload of an issue-saved notice.
type Saved struct {
	ID      string
	Request IssueRequest
}

// Dispatcher hands issue requests to the outside world without blocking the caller.
type Dispatcher interface {
	Dispatch(req IssueRequest)
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(IssueRequest)

func (f DispatchFunc) Dispatch(req IssueRequest) { f(req) }

// AsyncDispatcher submits each request on its own goroutine and reports the
// outcome as a notice. Requests are never retried or cancelled.
type AsyncDispatcher struct {
	Sink    IssueSink
	Notices notice.Sink
	Timeout time.Duration

	wg sync.WaitGroup
}

func NewAsyncDispatcher(sink IssueSink, notices notice.Sink) *AsyncDispatcher {
	return &AsyncDispatcher{Sink: sink, Notices: notices, Timeout: 15 * time.Second}
}

func (d *AsyncDispatcher) Dispatch(req IssueRequest) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.notify(d.submit(req))
	}()
}

// Wait blocks until every dispatched request has resolved.
func (d *AsyncDispatcher) Wait() {
	d.wg.Wait()
}

func (d *AsyncDispatcher) submit(req IssueRequest) notice.Notice {
	if d.Sink == nil {
		return notice.Error(notice.CodeIssueFailed, "Save failed: no issue backend configured")
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	id, err := d.Sink.CreateIssue(ctx, req)
	if err != nil {
		var dup duplicateIssue
		if errors.As(err, &dup) {
			n := notice.Warning(notice.CodeIssueDuplicate,
				fmt.Sprintf("%s already has an open %s issue (%s).", req.UnitName, req.Category, dup.ExistingIssueID()))
			n.Data = Duplicate{Request: req, ExistingID: dup.ExistingIssueID()}
			return n
		}
		n := notice.Error(notice.CodeIssueFailed, fmt.Sprintf("Save failed (%s): %v", req.Category, err))
		n.Data = req
		return n
	}
	n := notice.Info(notice.CodeIssueSaved, fmt.Sprintf("Issue %s saved for %s.", id, req.Category))
	n.Data = Saved{ID: id, Request: req}
	return n
}

func (d *AsyncDispatcher) notify(n notice.Notice) {
	if d.Notices != nil {
		d.Notices.Notify(n)
	}
}
