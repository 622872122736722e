package repo

import (
	"context"
	"database/sql"
	"errors"

	"arcadeops/internal/domain"
)

func (r Repo) InsertPMLog(ctx context.Context, tx *sql.Tx, pm domain.PMLog) (domain.PMLog, error) {
	if pm.CreatedAt == "" {
		pm.CreatedAt = nowString()
	}
	res, err := r.on(tx).ExecContext(ctx, `INSERT INTO pm_logs(facility_id,game_name,pm_date,notes,completed_by,created_at) VALUES (?,?,?,?,?,?)`,
		pm.FacilityID, pm.GameName, pm.PMDate, nullable(pm.Notes), pm.CompletedBy, pm.CreatedAt)
	if err != nil {
		return pm, err
	}
	pm.ID, err = res.LastInsertId()
	return pm, err
}

// ListPMLogs returns PM logs newest first, optionally for one game.
func (r Repo) ListPMLogs(ctx context.Context, facilityID, gameName string, limit int) ([]domain.PMLog, error) {
	clauses := []string{"facility_id=?"}
	args := []any{facilityID}
	if gameName != "" {
		clauses = append(clauses, "LOWER(game_name)=LOWER(?)")
		args = append(args, gameName)
	}
	query := `SELECT id,facility_id,game_name,pm_date,COALESCE(notes,''),completed_by,created_at FROM pm_logs ` + where(clauses) + ` ORDER BY pm_date DESC, id DESC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PMLog
	for rows.Next() {
		var pm domain.PMLog
		if err := rows.Scan(&pm.ID, &pm.FacilityID, &pm.GameName, &pm.PMDate, &pm.Notes, &pm.CompletedBy, &pm.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, pm)
	}
	return res, rows.Err()
}

// DefaultTPTSettings are used until a facility saves its own.
var DefaultTPTSettings = domain.TPTSettings{
	LowestDesired:        2.00,
	HighestDesired:       4.00,
	Target:               3.00,
	IncludeBirthdayBlast: true,
}

func (r Repo) GetTPTSettings(ctx context.Context, facilityID string) (domain.TPTSettings, error) {
	var s domain.TPTSettings
	err := r.DB.QueryRowContext(ctx, `SELECT lowest_desired,highest_desired,target,include_birthday_blaster,updated_at FROM tpt_settings WHERE facility_id=?`, facilityID).
		Scan(&s.LowestDesired, &s.HighestDesired, &s.Target, &s.IncludeBirthdayBlast, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultTPTSettings, ErrNotFound
	}
	return s, err
}

func (r Repo) UpsertTPTSettings(ctx context.Context, tx *sql.Tx, facilityID string, s domain.TPTSettings) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO tpt_settings(facility_id,lowest_desired,highest_desired,target,include_birthday_blaster,updated_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(facility_id) DO UPDATE SET lowest_desired=excluded.lowest_desired, highest_desired=excluded.highest_desired,
  target=excluded.target, include_birthday_blaster=excluded.include_birthday_blaster, updated_at=excluded.updated_at`,
		facilityID, s.LowestDesired, s.HighestDesired, s.Target, s.IncludeBirthdayBlast, s.UpdatedAt)
	return err
}
