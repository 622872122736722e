package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"arcadeops/internal/checklist"
	"arcadeops/internal/domain"
	"arcadeops/internal/events"
	"arcadeops/internal/repo"
)

type RunSaveOptions struct {
	FacilityID string
	ActorID    string
	Summary    checklist.Summary
}

// SaveChecklistRun stores a finished run. Answers are filtered by each step's
// persistence policy; counters cover every answer in the summary.
func (e Engine) SaveChecklistRun(ctx context.Context, opts RunSaveOptions) (domain.ChecklistRun, error) {
	facility, err := e.facility(opts.FacilityID)
	if err != nil {
		return domain.ChecklistRun{}, err
	}
	s := opts.Summary
	if s.TotalSteps <= 0 {
		return domain.ChecklistRun{}, invalid("total_steps must be positive")
	}
	if len(s.Entries) > s.TotalSteps {
		return domain.ChecklistRun{}, invalid("%d answers for %d steps", len(s.Entries), s.TotalSteps)
	}
	completed := s.Completed
	if completed == 0 {
		completed = len(s.Entries)
	}
	if completed < len(s.Entries) || completed > s.TotalSteps {
		return domain.ChecklistRun{}, invalid("completed must be between %d and %d", len(s.Entries), s.TotalSteps)
	}
	id := s.RunID
	if id == "" {
		id = uuid.NewString()
	}
	finished := s.FinishedAt
	if finished.IsZero() {
		finished = e.now()
	}
	started := s.StartedAt
	if started.IsZero() {
		started = finished
	}
	run := domain.ChecklistRun{
		ID:          id,
		FacilityID:  facility,
		StartedAt:   started.UTC().Format(time.RFC3339),
		FinishedAt:  finished.UTC().Format(time.RFC3339),
		TotalSteps:  s.TotalSteps,
		Completed:   completed,
		Answered:    len(s.Entries),
		IssueCount:  len(s.Issues()),
		CompletedBy: opts.ActorID,
		Entries:     []domain.ChecklistRunEntry{},
	}
	if run.CompletedBy == "" {
		run.CompletedBy = "local-user"
	}
	for _, entry := range s.Persisted() {
		out := domain.ChecklistRunEntry{
			StepID:   entry.StepID,
			Title:    cleanText(entry.Title),
			Response: entry.Response.String(),
			Notes:    cleanText(entry.Notes),
		}
		for _, it := range entry.Items {
			out.Items = append(out.Items, domain.ChecklistItemNote{Item: cleanText(it.Item), Status: string(it.Status), Notes: cleanText(it.Notes)})
		}
		if len(entry.Figures) > 0 {
			out.Figures = make(map[string]string, len(entry.Figures))
			for k, v := range entry.Figures {
				out.Figures[k] = cleanText(v)
			}
		}
		run.Entries = append(run.Entries, out)
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertChecklistRun(ctx, tx, run); err != nil {
			return fmt.Errorf("insert checklist run: %w", err)
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.ChecklistFinished, FacilityID: facility, EntityKind: "checklist_run", EntityID: run.ID, ActorID: run.CompletedBy,
			Payload: events.Payload{"completed": run.Completed, "answered": run.Answered, "total_steps": run.TotalSteps, "issues": run.IssueCount},
		})
	})
	if err != nil {
		return domain.ChecklistRun{}, err
	}
	return run, nil
}

// Progress is the badge shown for the latest opening checklist.
type Progress struct {
	Run   *domain.ChecklistRun `json:"run,omitempty"`
	Label string               `json:"label"`
}

// ChecklistProgress reports "X/N Done" for the most recent run, X being the
// steps completed, or "0/N Done" against the configured registry when nothing
// has been saved yet.
func (e Engine) ChecklistProgress(ctx context.Context, facilityID string) (Progress, error) {
	facility, err := e.facility(facilityID)
	if err != nil {
		return Progress{}, err
	}
	run, err := e.Repo.LatestChecklistRun(ctx, facility)
	if errors.Is(err, repo.ErrNotFound) {
		total := 0
		if e.Config != nil {
			total = len(e.Config.Checklist.Steps)
		}
		return Progress{Label: fmt.Sprintf("0/%d Done", total)}, nil
	}
	if err != nil {
		return Progress{}, err
	}
	return Progress{Run: &run, Label: fmt.Sprintf("%d/%d Done", run.Completed, run.TotalSteps)}, nil
}

func (e Engine) ListChecklistRuns(ctx context.Context, facilityID string, limit int) ([]domain.ChecklistRun, error) {
	facility, err := e.facility(facilityID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListChecklistRuns(ctx, facility, limit)
}
