package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"arcadeops/internal/domain"
	"arcadeops/internal/events"
	"arcadeops/internal/repo"
)

type PMLogOptions struct {
	FacilityID  string
	GameName    string
	PMDate      string
	Notes       string
	CompletedBy string
}

// LogPM records a preventative-maintenance visit. PMDate defaults to today.
func (e Engine) LogPM(ctx context.Context, opts PMLogOptions) (domain.PMLog, error) {
	facility, err := e.facility(opts.FacilityID)
	if err != nil {
		return domain.PMLog{}, err
	}
	name := cleanText(opts.GameName)
	if name == "" {
		return domain.PMLog{}, invalid("game_name is required")
	}
	by := cleanText(opts.CompletedBy)
	if by == "" {
		return domain.PMLog{}, invalid("completed_by is required")
	}
	date := opts.PMDate
	if date == "" {
		date = e.now().Format(time.DateOnly)
	} else if _, err := time.Parse(time.DateOnly, date); err != nil {
		return domain.PMLog{}, invalid("pm_date must be YYYY-MM-DD")
	}
	pm := domain.PMLog{FacilityID: facility, GameName: name, PMDate: date, Notes: cleanText(opts.Notes), CompletedBy: by, CreatedAt: e.stamp()}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if pm, err = e.Repo.InsertPMLog(ctx, tx, pm); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.PMLogged, FacilityID: facility, EntityKind: "pm", EntityID: pm.GameName, ActorID: by,
			Payload: events.Payload{"pm_date": pm.PMDate},
		})
	})
	return pm, err
}

func (e Engine) ListPMs(ctx context.Context, facilityID, gameName string, limit int) ([]domain.PMLog, error) {
	facility, err := e.facility(facilityID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListPMLogs(ctx, facility, gameName, limit)
}

// TPTSettings returns the facility's targets, falling back to the defaults.
func (e Engine) TPTSettings(ctx context.Context, facilityID string) (domain.TPTSettings, error) {
	facility, err := e.facility(facilityID)
	if err != nil {
		return domain.TPTSettings{}, err
	}
	s, err := e.Repo.GetTPTSettings(ctx, facility)
	if errors.Is(err, repo.ErrNotFound) {
		return s, nil
	}
	return s, err
}

func (e Engine) SetTPTSettings(ctx context.Context, facilityID string, s domain.TPTSettings, actorID string) (domain.TPTSettings, error) {
	facility, err := e.facility(facilityID)
	if err != nil {
		return domain.TPTSettings{}, err
	}
	if s.LowestDesired <= 0 || s.HighestDesired <= 0 || s.Target <= 0 {
		return domain.TPTSettings{}, invalid("tpt values must be positive")
	}
	if s.LowestDesired > s.Target || s.Target > s.HighestDesired {
		return domain.TPTSettings{}, invalid("tpt target must lie between lowest and highest")
	}
	s.UpdatedAt = e.stamp()
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpsertTPTSettings(ctx, tx, facility, s); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.TPTUpdated, FacilityID: facility, EntityKind: "settings", EntityID: "tpt", ActorID: actorID,
			Payload: events.Payload{"lowest": s.LowestDesired, "highest": s.HighestDesired, "target": s.Target},
		})
	})
	return s, err
}

// CreateAPIKey issues a new key for actorID and returns the raw secret once.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	if actorID == "" {
		return domain.APIKey{}, "", invalid("actor is required")
	}
	raw := "ak_" + uuid.NewString()
	key := domain.APIKey{ID: uuid.NewString(), ActorID: actorID, Name: name, KeyHash: repo.HashAPIKey(raw), CreatedAt: e.stamp()}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.APIKeyCreated, FacilityID: e.FacilityID(), EntityKind: "api_key", EntityID: key.ID, ActorID: actorID,
			Payload: events.Payload{"name": name},
		})
	})
	if err != nil {
		return domain.APIKey{}, "", err
	}
	return key, raw, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, actorID)
}

// RevokeAPIKey deletes a key so the server stops accepting it.
func (e Engine) RevokeAPIKey(ctx context.Context, id, actorID string) error {
	return e.inTx(ctx, func(tx *sql.Tx) error {
		key, err := e.Repo.GetAPIKey(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := e.Repo.DeleteAPIKey(ctx, tx, id); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.APIKeyRevoked, FacilityID: e.FacilityID(), EntityKind: "api_key", EntityID: id, ActorID: actorID,
			Payload: events.Payload{"key_actor": key.ActorID},
		})
	})
}
