package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"arcadeops/internal/config"
	"arcadeops/internal/engine"
	"arcadeops/internal/repo"
)

// ResolveFacilityAndConfig picks the active facility and ensures it and its
// config exist in the DB, seeding defaults if missing. It prefers the override,
// then the only facility in the DB.
func ResolveFacilityAndConfig(ctx context.Context, conn *sql.DB, facilityOverride, actorID string) (*config.Config, error) {
	r := repo.Repo{DB: conn}
	facilityID := facilityOverride
	if facilityID == "" {
		f, err := r.SingleFacility(ctx)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("no facility yet; run `arcade init` or pass --facility")
		}
		if err != nil {
			return nil, err
		}
		facilityID = f.ID
	}
	seedCfg := config.Default(facilityID)

	if _, err := r.GetFacility(ctx, facilityID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
		if _, err := engine.New(conn, seedCfg).InitFacility(ctx, facilityID, "", actorID); err != nil {
			return nil, fmt.Errorf("create facility: %w", err)
		}
	}
	cfg, err := r.GetFacilityConfig(ctx, facilityID)
	if errors.Is(err, repo.ErrNotFound) {
		if err := r.UpsertFacilityConfig(ctx, nil, facilityID, seedCfg); err != nil {
			return nil, fmt.Errorf("seed facility config: %w", err)
		}
		cfg = seedCfg
	} else if err != nil {
		return nil, err
	}
	cfg.Facility.ID = facilityID
	return cfg, nil
}
