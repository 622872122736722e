package server

import (
	"encoding/json"
	"fmt"
	"time"

	"arcadeops/internal/checklist"
	"arcadeops/internal/domain"
	"arcadeops/internal/engine"
)

// Request payloads

type CreateGameRequest struct {
	Name       string `json:"name"`
	Status     string `json:"status,omitempty" enum:"Up,Down,up,down"`
	DownReason string `json:"down_reason,omitempty"`
}

type UpdateGameRequest struct {
	Name       *string `json:"name,omitempty"`
	Status     *string `json:"status,omitempty" enum:"Up,Down,up,down"`
	DownReason *string `json:"down_reason,omitempty"`
}

type CreateIssueRequest struct {
	Type              string `json:"type,omitempty" enum:"game,facility"`
	Area              string `json:"area,omitempty"`
	GameID            string `json:"game_id,omitempty"`
	EquipmentName     string `json:"equipment_name,omitempty"`
	EquipmentLocation string `json:"equipment_location,omitempty"`
	Category          string `json:"category,omitempty"`
	Priority          string `json:"priority,omitempty"`
	Description       string `json:"description"`
	Notes             string `json:"notes,omitempty"`
	Status            string `json:"status,omitempty"`
	TargetDate        string `json:"target_date,omitempty"`
	AssignedTo        string `json:"assigned_to,omitempty"`
	AllowDuplicate    bool   `json:"allow_duplicate,omitempty"`
}

type UpdateIssueRequest struct {
	Area              *string `json:"area,omitempty"`
	EquipmentLocation *string `json:"equipment_location,omitempty"`
	Category          *string `json:"category,omitempty"`
	Priority          *string `json:"priority,omitempty"`
	Description       *string `json:"description,omitempty"`
	Notes             *string `json:"notes,omitempty"`
	Status            *string `json:"status,omitempty"`
	TargetDate        *string `json:"target_date,omitempty"`
	AssignedTo        *string `json:"assigned_to,omitempty"`
}

type ChecklistEntryRequest struct {
	StepID   string                 `json:"step_id"`
	Title    string                 `json:"title,omitempty"`
	Persist  string                 `json:"persist,omitempty" enum:"always,on_issue"`
	Response string                 `json:"response" enum:"yes,no,action taken"`
	Notes    string                 `json:"notes,omitempty"`
	Items    []ChecklistItemRequest `json:"items,omitempty"`
	Figures  map[string]string      `json:"figures,omitempty"`
}

type ChecklistItemRequest struct {
	Item   string `json:"item"`
	Status string `json:"status" enum:"OK,Issue Found"`
	Notes  string `json:"notes,omitempty"`
}

type SaveChecklistRunRequest struct {
	RunID      string                  `json:"run_id,omitempty"`
	StartedAt  *time.Time              `json:"started_at,omitempty"`
	FinishedAt *time.Time              `json:"finished_at,omitempty"`
	TotalSteps int                     `json:"total_steps"`
	Completed  int                     `json:"completed,omitempty" doc:"Steps passed, the confirmation step included; defaults to the number of entries"`
	Entries    []ChecklistEntryRequest `json:"entries"`
}

type LogPMRequest struct {
	GameName    string `json:"game_name"`
	PMDate      string `json:"pm_date,omitempty"`
	Notes       string `json:"notes,omitempty"`
	CompletedBy string `json:"completed_by,omitempty"`
}

// Response payloads

// GameSummary is the compact row returned by search-as-you-type.
type GameSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	FacilityID string         `json:"facility_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func gameSummaries(items []domain.Game) []GameSummary {
	out := make([]GameSummary, 0, len(items))
	for _, g := range items {
		out = append(out, GameSummary{ID: g.ID, Name: g.Name, Status: g.Status})
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		FacilityID: e.FacilityID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func (r CreateIssueRequest) options(actorID string) engine.IssueCreateOptions {
	return engine.IssueCreateOptions{
		Type:              r.Type,
		Area:              r.Area,
		GameID:            r.GameID,
		EquipmentName:     r.EquipmentName,
		EquipmentLocation: r.EquipmentLocation,
		Category:          r.Category,
		Priority:          r.Priority,
		Description:       r.Description,
		Notes:             r.Notes,
		Status:            r.Status,
		TargetDate:        r.TargetDate,
		AssignedTo:        r.AssignedTo,
		AllowDuplicate:    r.AllowDuplicate,
		ActorID:           actorID,
	}
}

func (r SaveChecklistRunRequest) summary() (checklist.Summary, error) {
	s := checklist.Summary{RunID: r.RunID, TotalSteps: r.TotalSteps, Completed: r.Completed}
	if r.StartedAt != nil {
		s.StartedAt = *r.StartedAt
	}
	if r.FinishedAt != nil {
		s.FinishedAt = *r.FinishedAt
	}
	for _, e := range r.Entries {
		if e.StepID == "" {
			return s, fmt.Errorf("entry step_id is required")
		}
		resp, err := checklist.ParseResponse(e.Response)
		if err != nil {
			return s, fmt.Errorf("entry %s: %w", e.StepID, err)
		}
		persist := checklist.PersistPolicy(e.Persist)
		if persist == "" {
			persist = checklist.PersistAlways
		}
		kind := checklist.KindBoolean
		if resp.IsActionTaken() {
			kind = checklist.KindAction
		}
		entry := checklist.Entry{StepID: e.StepID, Title: e.Title, Kind: kind, Persist: persist, Response: resp, Notes: e.Notes, Figures: e.Figures}
		for _, it := range e.Items {
			status, err := checklist.ParseItemStatus(it.Status)
			if err != nil {
				return s, fmt.Errorf("entry %s item %q: %w", e.StepID, it.Item, err)
			}
			entry.Items = append(entry.Items, checklist.ItemResult{Item: it.Item, Status: status, Notes: it.Notes})
		}
		s.Entries = append(s.Entries, entry)
	}
	return s, nil
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
