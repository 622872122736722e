package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"arcadeops/internal/domain"
	"arcadeops/internal/events"
	"arcadeops/internal/repo"
)

// DuplicateIssueError reports that an equivalent open issue already exists.
type DuplicateIssueError struct {
	Existing domain.Issue
}

func (e *DuplicateIssueError) Error() string {
	return fmt.Sprintf("duplicate issue: %s is still %s", e.Existing.ID, e.Existing.Status)
}

func (e *DuplicateIssueError) ExistingIssueID() string { return e.Existing.ID }

type IssueCreateOptions struct {
	FacilityID        string
	Type              string
	Area              string
	GameID            string
	EquipmentName     string
	EquipmentLocation string
	Category          string
	Priority          string
	Description       string
	Notes             string
	Status            string
	TargetDate        string
	AssignedTo        string
	AllowDuplicate    bool
	ActorID           string
}

func (e Engine) issueDefaults() (priorities, statuses []string, defPriority, defStatus string) {
	priorities = []string{"Low", "Medium", "High"}
	defPriority, defStatus = "Medium", "Open"
	if e.Config == nil {
		return priorities, nil, defPriority, defStatus
	}
	if len(e.Config.Issues.Priorities) > 0 {
		priorities = e.Config.Issues.Priorities
	}
	if e.Config.Issues.DefaultPriority != "" {
		defPriority = e.Config.Issues.DefaultPriority
	}
	if e.Config.Issues.InitialStatus != "" {
		defStatus = e.Config.Issues.InitialStatus
	}
	return priorities, e.Config.Issues.Statuses, defPriority, defStatus
}

func (e Engine) priority(v string) (string, error) {
	priorities, _, def, _ := e.issueDefaults()
	if strings.TrimSpace(v) == "" {
		return def, nil
	}
	if strings.EqualFold(strings.TrimSpace(v), "immediate") {
		return "IMMEDIATE", nil
	}
	p, ok := matchOption(priorities, v)
	if !ok {
		return "", invalid("unknown priority %q (want one of %s)", v, strings.Join(priorities, ", "))
	}
	return p, nil
}

func (e Engine) status(v string) (string, error) {
	_, statuses, _, def := e.issueDefaults()
	if strings.TrimSpace(v) == "" {
		return def, nil
	}
	s := NormalizeStatus(v)
	if len(statuses) == 0 {
		return s, nil
	}
	if known, ok := matchOption(statuses, s); ok {
		return known, nil
	}
	return "", invalid("unknown status %q (want one of %s)", v, strings.Join(statuses, ", "))
}

// CreateIssue files an issue with the next IS-### id. Unless AllowDuplicate is
// set, an open issue for the same problem yields *DuplicateIssueError.
func (e Engine) CreateIssue(ctx context.Context, opts IssueCreateOptions) (domain.Issue, error) {
	facility, err := e.facility(opts.FacilityID)
	if err != nil {
		return domain.Issue{}, err
	}
	desc := cleanText(opts.Description)
	if desc == "" {
		return domain.Issue{}, invalid("description is required")
	}
	priority, err := e.priority(opts.Priority)
	if err != nil {
		return domain.Issue{}, err
	}
	status, err := e.status(opts.Status)
	if err != nil {
		return domain.Issue{}, err
	}
	kind := token(opts.Type)
	if kind == "" {
		kind = "facility"
	}
	now := e.stamp()
	is := domain.Issue{
		FacilityID:        facility,
		Type:              kind,
		Area:              cleanText(opts.Area),
		EquipmentName:     cleanText(opts.EquipmentName),
		EquipmentLocation: cleanText(opts.EquipmentLocation),
		Category:          cleanText(opts.Category),
		Priority:          priority,
		Description:       desc,
		Notes:             cleanText(opts.Notes),
		Status:            status,
		TargetDate:        optionalString(opts.TargetDate),
		AssignedTo:        optionalString(cleanText(opts.AssignedTo)),
		CreatedBy:         opts.ActorID,
		DateLogged:        now,
		LastUpdated:       now,
	}
	if is.CreatedBy == "" {
		is.CreatedBy = "local-user"
	}
	if opts.GameID != "" {
		is.GameID = optionalString(opts.GameID)
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if is.GameID != nil {
			g, err := e.Repo.GetGame(ctx, tx, *is.GameID)
			if err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return invalid("game %s not found", *is.GameID)
				}
				return err
			}
			if is.EquipmentName == "" {
				is.EquipmentName = g.Name
			}
			if is.EquipmentLocation == "" {
				is.EquipmentLocation = g.Name
			}
		}
		if !opts.AllowDuplicate {
			dup, err := e.Repo.FindOpenDuplicate(ctx, tx, is)
			if err == nil {
				return &DuplicateIssueError{Existing: dup}
			}
			if !errors.Is(err, repo.ErrNotFound) {
				return err
			}
		}
		id, err := e.Repo.NextIssueID(ctx, tx)
		if err != nil {
			return err
		}
		is.ID = id
		if err := e.Repo.InsertIssue(ctx, tx, is); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.IssueCreated, FacilityID: facility, EntityKind: "issue", EntityID: id, ActorID: is.CreatedBy,
			Payload: events.Payload{
				"area": is.Area, "game_id": opts.GameID, "category": is.Category,
				"priority": is.Priority, "status": is.Status, "duplicate_override": opts.AllowDuplicate,
			},
		})
	})
	if err != nil {
		return domain.Issue{}, err
	}
	return is, nil
}

type IssueUpdateOptions struct {
	ID                string
	Area              *string
	EquipmentLocation *string
	Category          *string
	Priority          *string
	Description       *string
	Notes             *string
	Status            *string
	TargetDate        *string
	AssignedTo        *string
	ActorID           string
}

func (e Engine) UpdateIssue(ctx context.Context, opts IssueUpdateOptions) (domain.Issue, error) {
	var is domain.Issue
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if is, err = e.Repo.GetIssue(ctx, tx, opts.ID); err != nil {
			return err
		}
		changes := events.Payload{}
		if opts.Area != nil {
			is.Area = cleanText(*opts.Area)
			changes["area"] = is.Area
		}
		if opts.EquipmentLocation != nil {
			is.EquipmentLocation = cleanText(*opts.EquipmentLocation)
			changes["equipment_location"] = is.EquipmentLocation
		}
		if opts.Category != nil {
			is.Category = cleanText(*opts.Category)
			changes["category"] = is.Category
		}
		if opts.Priority != nil {
			if is.Priority, err = e.priority(*opts.Priority); err != nil {
				return err
			}
			changes["priority"] = is.Priority
		}
		if opts.Description != nil {
			desc := cleanText(*opts.Description)
			if desc == "" {
				return invalid("description is required")
			}
			is.Description = desc
			changes["description"] = desc
		}
		if opts.Notes != nil {
			is.Notes = cleanText(*opts.Notes)
			changes["notes"] = is.Notes
		}
		if opts.Status != nil {
			if is.Status, err = e.status(*opts.Status); err != nil {
				return err
			}
			changes["status"] = is.Status
		}
		if opts.TargetDate != nil {
			is.TargetDate = optionalString(*opts.TargetDate)
			changes["target_date"] = *opts.TargetDate
		}
		if opts.AssignedTo != nil {
			is.AssignedTo = optionalString(cleanText(*opts.AssignedTo))
			changes["assigned_to"] = *opts.AssignedTo
		}
		is.LastUpdated = e.stamp()
		if err := e.Repo.UpdateIssue(ctx, tx, is); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.IssueUpdated, FacilityID: is.FacilityID, EntityKind: "issue", EntityID: is.ID, ActorID: opts.ActorID, Payload: changes,
		})
	})
	return is, err
}

func (e Engine) DeleteIssue(ctx context.Context, id, actorID string) error {
	return e.inTx(ctx, func(tx *sql.Tx) error {
		is, err := e.Repo.GetIssue(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := e.Repo.DeleteIssue(ctx, tx, id); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.IssueDeleted, FacilityID: is.FacilityID, EntityKind: "issue", EntityID: id, ActorID: actorID,
		})
	})
}

// ListIssues normalises the status filter token before querying.
func (e Engine) ListIssues(ctx context.Context, f repo.IssueFilters) ([]domain.Issue, error) {
	facility, err := e.facility(f.FacilityID)
	if err != nil {
		return nil, err
	}
	f.FacilityID = facility
	f.Status = NormalizeStatus(f.Status)
	return e.Repo.ListIssues(ctx, f)
}

func (e Engine) IssueCounts(ctx context.Context, facilityID string) (domain.IssueCounts, error) {
	facility, err := e.facility(facilityID)
	if err != nil {
		return domain.IssueCounts{}, err
	}
	return e.Repo.CountIssues(ctx, facility)
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
