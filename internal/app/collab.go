package app

import (
	"context"

	"arcadeops/internal/checklist"
	"arcadeops/internal/engine"
	"arcadeops/internal/inspect"
	arcadesdk "arcadeops/sdk/go"
)

// Collaborators are what the checklist wizard and the inspector talk to. The
// CLI builds them over the local engine or over a remote server.
type Collaborators struct {
	Issues inspect.IssueSink
	Units  inspect.UnitFinder
	Runs   checklist.RunSink
}

// Local wires the collaborators to the engine, attributing writes to actorID.
func Local(e engine.Engine, actorID string) Collaborators {
	return Collaborators{
		Issues: localIssues{e: e, actor: actorID},
		Units:  localUnits{e: e},
		Runs:   localRuns{e: e, actor: actorID},
	}
}

// Remote wires the collaborators to the REST API.
func Remote(c *arcadesdk.Client) Collaborators {
	return Collaborators{
		Issues: remoteIssues{c: c},
		Units:  remoteUnits{c: c},
		Runs:   remoteRuns{c: c},
	}
}

type localIssues struct {
	e     engine.Engine
	actor string
}

func (l localIssues) CreateIssue(ctx context.Context, req inspect.IssueRequest) (string, error) {
	is, err := l.e.CreateIssue(ctx, engine.IssueCreateOptions{
		Type:              req.Type,
		Area:              req.Area,
		GameID:            req.UnitID,
		EquipmentName:     req.UnitName,
		EquipmentLocation: req.Location,
		Category:          req.Category,
		Priority:          req.Priority,
		Description:       req.Description,
		Notes:             req.Notes,
		Status:            req.Status,
		AllowDuplicate:    req.AllowDuplicate,
		ActorID:           l.actor,
	})
	return is.ID, err
}

type localUnits struct{ e engine.Engine }

func (l localUnits) SearchUnits(ctx context.Context, query string, limit int) ([]inspect.Unit, error) {
	games, err := l.e.SearchGames(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	units := make([]inspect.Unit, 0, len(games))
	for _, g := range games {
		units = append(units, inspect.Unit{ID: g.ID, Name: g.Name})
	}
	return units, nil
}

type localRuns struct {
	e     engine.Engine
	actor string
}

func (l localRuns) SaveRun(ctx context.Context, s checklist.Summary) error {
	_, err := l.e.SaveChecklistRun(ctx, engine.RunSaveOptions{ActorID: l.actor, Summary: s})
	return err
}

type remoteIssues struct{ c *arcadesdk.Client }

func (r remoteIssues) CreateIssue(ctx context.Context, req inspect.IssueRequest) (string, error) {
	is, err := r.c.CreateIssue(ctx, arcadesdk.IssueRequest{
		Type:              req.Type,
		Area:              req.Area,
		GameID:            req.UnitID,
		EquipmentName:     req.UnitName,
		EquipmentLocation: req.Location,
		Category:          req.Category,
		Priority:          req.Priority,
		Description:       req.Description,
		Notes:             req.Notes,
		Status:            req.Status,
		AllowDuplicate:    req.AllowDuplicate,
	})
	return is.ID, err
}

type remoteUnits struct{ c *arcadesdk.Client }

func (r remoteUnits) SearchUnits(ctx context.Context, query string, limit int) ([]inspect.Unit, error) {
	games, err := r.c.SearchGames(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	units := make([]inspect.Unit, 0, len(games))
	for _, g := range games {
		units = append(units, inspect.Unit{ID: g.ID, Name: g.Name})
	}
	return units, nil
}

type remoteRuns struct{ c *arcadesdk.Client }

func (r remoteRuns) SaveRun(ctx context.Context, s checklist.Summary) error {
	req := arcadesdk.ChecklistRunRequest{RunID: s.RunID, TotalSteps: s.TotalSteps, Completed: s.Completed, Entries: []arcadesdk.RunEntry{}}
	if !s.StartedAt.IsZero() {
		started := s.StartedAt.UTC()
		req.StartedAt = &started
	}
	if !s.FinishedAt.IsZero() {
		finished := s.FinishedAt.UTC()
		req.FinishedAt = &finished
	}
	for _, e := range s.Entries {
		entry := arcadesdk.RunEntry{
			StepID:   e.StepID,
			Title:    e.Title,
			Persist:  string(e.Persist),
			Response: e.Response.String(),
			Notes:    e.Notes,
			Figures:  e.Figures,
		}
		for _, it := range e.Items {
			entry.Items = append(entry.Items, arcadesdk.RunItem{Item: it.Item, Status: string(it.Status), Notes: it.Notes})
		}
		req.Entries = append(req.Entries, entry)
	}
	_, err := r.c.SaveChecklistRun(ctx, req)
	return err
}
