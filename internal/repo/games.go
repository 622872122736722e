package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"arcadeops/internal/domain"
)

type GameFilters struct {
	FacilityID string
	// Query matches names case-insensitively by substring.
	Query  string
	Status string
	Limit  int
}

const gameColumns = `id,facility_id,name,status,COALESCE(down_reason,''),updated_at`

func scanGame(s interface{ Scan(...any) error }) (domain.Game, error) {
	var g domain.Game
	var id int64
	err := s.Scan(&id, &g.FacilityID, &g.Name, &g.Status, &g.DownReason, &g.UpdatedAt)
	g.ID = strconv.FormatInt(id, 10)
	return g, err
}

// InsertGame stores g and returns it with its assigned id.
func (r Repo) InsertGame(ctx context.Context, tx *sql.Tx, g domain.Game) (domain.Game, error) {
	if g.UpdatedAt == "" {
		g.UpdatedAt = nowString()
	}
	res, err := r.on(tx).ExecContext(ctx, `INSERT INTO games(facility_id,name,status,down_reason,updated_at) VALUES (?,?,?,?,?)`,
		g.FacilityID, g.Name, g.Status, nullable(g.DownReason), g.UpdatedAt)
	if err != nil {
		return g, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return g, err
	}
	g.ID = strconv.FormatInt(id, 10)
	return g, nil
}

func (r Repo) GetGame(ctx context.Context, tx *sql.Tx, id string) (domain.Game, error) {
	g, err := scanGame(r.on(tx).QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return g, ErrNotFound
	}
	return g, err
}

func (r Repo) ListGames(ctx context.Context, f GameFilters) ([]domain.Game, error) {
	var clauses []string
	var args []any
	if f.FacilityID != "" {
		clauses = append(clauses, "facility_id=?")
		args = append(args, f.FacilityID)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		clauses = append(clauses, "LOWER(name) LIKE ?")
		args = append(args, "%"+strings.ToLower(q)+"%")
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := fmt.Sprintf(`SELECT %s FROM games %s ORDER BY name COLLATE NOCASE, id`, gameColumns, where(clauses))
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

func (r Repo) UpdateGame(ctx context.Context, tx *sql.Tx, g domain.Game) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE games SET name=?, status=?, down_reason=?, updated_at=? WHERE id=?`,
		g.Name, g.Status, nullable(g.DownReason), g.UpdatedAt, g.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteGame(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM games WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
