package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written to the audit log and fanned out to webhooks.
const (
	GameCreated       = "game.created"
	GameUpdated       = "game.updated"
	GameDeleted       = "game.deleted"
	IssueCreated      = "issue.created"
	IssueUpdated      = "issue.updated"
	IssueDeleted      = "issue.deleted"
	ChecklistFinished = "checklist.finished"
	PMLogged          = "pm.logged"
	TPTUpdated        = "settings.tpt.updated"
	ConfigUpdated     = "config.updated"
	APIKeyCreated     = "apikey.created"
	APIKeyRevoked     = "apikey.revoked"
)

type Writer struct {
	Now func() time.Time
}

type Payload map[string]any

// Entry identifies what an event is about.
type Entry struct {
	Type       string
	FacilityID string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    Payload
}

// Append writes one event inside tx.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if e.Payload == nil {
		e.Payload = Payload{}
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	actor := e.ActorID
	if actor == "" {
		actor = "system"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,facility_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, e.Type, nullable(e.FacilityID), e.EntityKind, nullable(e.EntityID), actor, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
