package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"arcadeops/internal/config"
	"arcadeops/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// on returns tx when given, the pool otherwise.
func (r Repo) on(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (r Repo) InsertFacility(ctx context.Context, tx *sql.Tx, f domain.Facility) error {
	if f.CreatedAt == "" {
		f.CreatedAt = nowString()
	}
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO facilities(id,name,created_at) VALUES (?,?,?)`, f.ID, f.Name, f.CreatedAt)
	return err
}

func (r Repo) GetFacility(ctx context.Context, id string) (domain.Facility, error) {
	var f domain.Facility
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM facilities WHERE id=?`, id).Scan(&f.ID, &f.Name, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return f, ErrNotFound
	}
	return f, err
}

func (r Repo) ListFacilities(ctx context.Context) ([]domain.Facility, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at FROM facilities ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Facility
	for rows.Next() {
		var f domain.Facility
		if err := rows.Scan(&f.ID, &f.Name, &f.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

// SingleFacility returns the only facility, or an error when there are none or several.
func (r Repo) SingleFacility(ctx context.Context) (domain.Facility, error) {
	all, err := r.ListFacilities(ctx)
	if err != nil {
		return domain.Facility{}, err
	}
	switch len(all) {
	case 0:
		return domain.Facility{}, ErrNotFound
	case 1:
		return all[0], nil
	}
	return domain.Facility{}, fmt.Errorf("multiple facilities exist; specify --facility")
}

func (r Repo) UpsertFacilityConfig(ctx context.Context, tx *sql.Tx, facilityID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Facility.ID = facilityID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := nowString()
	_, err = r.on(tx).ExecContext(ctx, `INSERT INTO facility_configs(facility_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(facility_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, facilityID, string(payload), now, now)
	return err
}

func (r Repo) GetFacilityConfig(ctx context.Context, facilityID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM facility_configs WHERE facility_id=?`, facilityID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Facility.ID == "" {
		cfg.Facility.ID = facilityID
	}
	return &cfg, cfg.Validate()
}

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, actorID string) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO actors(id,created_at) VALUES (?,?) ON CONFLICT(id) DO NOTHING`, actorID, nowString())
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}

// where joins filter clauses, defaulting to a tautology.
func where(clauses []string) string {
	if len(clauses) == 0 {
		return "WHERE 1=1"
	}
	return "WHERE " + strings.Join(clauses, " AND ")
}
