package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"arcadeops/internal/config"
	"arcadeops/internal/domain"
	"arcadeops/internal/events"
	"arcadeops/internal/repo"
)

var (
	ErrConfigMissing = errors.New("config not loaded")
	ErrValidation    = errors.New("validation failed")
)

// Engine implements facility operations on top of the repo. Every mutation
// runs in one transaction together with its audit event.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) events() events.Writer {
	return events.Writer{Now: e.now}
}

// FacilityID is the facility the engine's config belongs to.
func (e Engine) FacilityID() string {
	if e.Config == nil {
		return ""
	}
	return e.Config.Facility.ID
}

func (e Engine) facility(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	if e.Config == nil {
		return "", ErrConfigMissing
	}
	return e.Config.Facility.ID, nil
}

// inTx runs fn in a transaction, committing when it returns nil.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// InitFacility creates a facility with its default config and TPT settings.
func (e Engine) InitFacility(ctx context.Context, id, name, actorID string) (domain.Facility, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Facility{}, invalid("facility id is required")
	}
	cfg := e.Config
	if cfg == nil || cfg.Facility.ID != id {
		cfg = config.Default(id)
	}
	if name == "" {
		name = cfg.Facility.Name
	}
	f := domain.Facility{ID: id, Name: name, CreatedAt: e.stamp()}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertFacility(ctx, tx, f); err != nil {
			return fmt.Errorf("insert facility: %w", err)
		}
		if err := e.Repo.UpsertFacilityConfig(ctx, tx, id, cfg); err != nil {
			return fmt.Errorf("insert facility config: %w", err)
		}
		tpt := repo.DefaultTPTSettings
		tpt.UpdatedAt = f.CreatedAt
		if err := e.Repo.UpsertTPTSettings(ctx, tx, id, tpt); err != nil {
			return fmt.Errorf("seed tpt settings: %w", err)
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: "facility.init", FacilityID: id, EntityKind: "facility", EntityID: id, ActorID: actorID,
			Payload: events.Payload{"name": name},
		})
	})
	return f, err
}

// ImportConfig validates and stores a facility config.
func (e Engine) ImportConfig(ctx context.Context, cfg *config.Config, actorID string) error {
	if cfg == nil {
		return ErrConfigMissing
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpsertFacilityConfig(ctx, tx, cfg.Facility.ID, cfg); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.ConfigUpdated, FacilityID: cfg.Facility.ID, EntityKind: "facility", EntityID: cfg.Facility.ID, ActorID: actorID,
		})
	})
}

// ListEvents returns the audit log newest first.
func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	facility, err := e.facility(f.FacilityID)
	if err != nil {
		return nil, err
	}
	f.FacilityID = facility
	return e.Repo.LatestEvents(ctx, f)
}
