package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"arcadeops/internal/domain"
)

// InsertChecklistRun stores a run and its answers in order.
func (r Repo) InsertChecklistRun(ctx context.Context, tx *sql.Tx, run domain.ChecklistRun) error {
	q := r.on(tx)
	if _, err := q.ExecContext(ctx, `INSERT INTO checklist_runs(id,facility_id,started_at,finished_at,total_steps,completed,answered,issue_count,completed_by) VALUES (?,?,?,?,?,?,?,?,?)`,
		run.ID, run.FacilityID, run.StartedAt, run.FinishedAt, run.TotalSteps, run.Completed, run.Answered, run.IssueCount, run.CompletedBy); err != nil {
		return err
	}
	for i, e := range run.Entries {
		items, figures, err := encodeDetails(e)
		if err != nil {
			return fmt.Errorf("answer %s: %w", e.StepID, err)
		}
		if _, err := q.ExecContext(ctx, `INSERT INTO checklist_answers(run_id,position,step_id,title,response,notes,items,figures) VALUES (?,?,?,?,?,?,?,?)`,
			run.ID, i, e.StepID, e.Title, e.Response, e.Notes, items, figures); err != nil {
			return err
		}
	}
	return nil
}

func encodeDetails(e domain.ChecklistRunEntry) (string, string, error) {
	items := e.Items
	if items == nil {
		items = []domain.ChecklistItemNote{}
	}
	figures := e.Figures
	if figures == nil {
		figures = map[string]string{}
	}
	rawItems, err := json.Marshal(items)
	if err != nil {
		return "", "", err
	}
	rawFigures, err := json.Marshal(figures)
	if err != nil {
		return "", "", err
	}
	return string(rawItems), string(rawFigures), nil
}

func (r Repo) checklistEntries(ctx context.Context, runID string) ([]domain.ChecklistRunEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT step_id,title,response,notes,items,figures FROM checklist_answers WHERE run_id=? ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []domain.ChecklistRunEntry{}
	for rows.Next() {
		var e domain.ChecklistRunEntry
		var items, figures string
		if err := rows.Scan(&e.StepID, &e.Title, &e.Response, &e.Notes, &items, &figures); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(items), &e.Items); err != nil {
			return nil, fmt.Errorf("answer %s items: %w", e.StepID, err)
		}
		if err := json.Unmarshal([]byte(figures), &e.Figures); err != nil {
			return nil, fmt.Errorf("answer %s figures: %w", e.StepID, err)
		}
		if len(e.Items) == 0 {
			e.Items = nil
		}
		if len(e.Figures) == 0 {
			e.Figures = nil
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const runColumns = `id,facility_id,started_at,finished_at,total_steps,completed,answered,issue_count,completed_by`

func scanRun(s interface{ Scan(...any) error }) (domain.ChecklistRun, error) {
	var run domain.ChecklistRun
	err := s.Scan(&run.ID, &run.FacilityID, &run.StartedAt, &run.FinishedAt, &run.TotalSteps, &run.Completed, &run.Answered, &run.IssueCount, &run.CompletedBy)
	return run, err
}

// LatestChecklistRun returns the most recently finished run with its answers.
func (r Repo) LatestChecklistRun(ctx context.Context, facilityID string) (domain.ChecklistRun, error) {
	run, err := scanRun(r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM checklist_runs WHERE facility_id=? ORDER BY finished_at DESC, id DESC LIMIT 1`, facilityID))
	if errors.Is(err, sql.ErrNoRows) {
		return run, ErrNotFound
	}
	if err != nil {
		return run, err
	}
	run.Entries, err = r.checklistEntries(ctx, run.ID)
	return run, err
}

// ListChecklistRuns returns run headers newest first, without answers.
func (r Repo) ListChecklistRuns(ctx context.Context, facilityID string, limit int) ([]domain.ChecklistRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+runColumns+` FROM checklist_runs WHERE facility_id=? ORDER BY finished_at DESC, id DESC LIMIT ?`, facilityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChecklistRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, run)
	}
	return res, rows.Err()
}
