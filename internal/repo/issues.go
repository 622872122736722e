package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"arcadeops/internal/domain"
)

// ClosedStatuses never count as open for duplicates or counters.
var ClosedStatuses = []string{"Closed", "Archived"}

type IssueFilters struct {
	FacilityID string
	Status     string
	Area       string
	GameID     string
	Query      string
	Limit      int
}

const issueColumns = `id,facility_id,type,COALESCE(area,''),game_id,COALESCE(equipment_name,''),COALESCE(equipment_location,''),
COALESCE(category,''),priority,description,COALESCE(notes,''),status,target_date,assigned_to,created_by,date_logged,last_updated`

func scanIssue(s interface{ Scan(...any) error }) (domain.Issue, error) {
	var is domain.Issue
	var gameID, target, assigned sql.NullString
	err := s.Scan(&is.ID, &is.FacilityID, &is.Type, &is.Area, &gameID, &is.EquipmentName, &is.EquipmentLocation,
		&is.Category, &is.Priority, &is.Description, &is.Notes, &is.Status, &target, &assigned, &is.CreatedBy, &is.DateLogged, &is.LastUpdated)
	is.GameID = stringPtr(gameID)
	is.TargetDate = stringPtr(target)
	is.AssignedTo = stringPtr(assigned)
	return is, err
}

// NextIssueID bumps the issue sequence and returns the padded id (IS-001).
func (r Repo) NextIssueID(ctx context.Context, tx *sql.Tx) (string, error) {
	q := r.on(tx)
	if _, err := q.ExecContext(ctx, `INSERT INTO id_sequences(name,last_value) VALUES ('issues',0) ON CONFLICT(name) DO NOTHING`); err != nil {
		return "", err
	}
	var next int
	if err := q.QueryRowContext(ctx, `UPDATE id_sequences SET last_value=last_value+1 WHERE name='issues' RETURNING last_value`).Scan(&next); err != nil {
		return "", fmt.Errorf("next issue id: %w", err)
	}
	return fmt.Sprintf("IS-%03d", next), nil
}

func (r Repo) InsertIssue(ctx context.Context, tx *sql.Tx, is domain.Issue) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO issues(id,facility_id,type,area,game_id,equipment_name,equipment_location,category,priority,description,notes,status,target_date,assigned_to,created_by,date_logged,last_updated)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		is.ID, is.FacilityID, is.Type, nullable(is.Area), nullableStringPtr(is.GameID), nullable(is.EquipmentName), nullable(is.EquipmentLocation),
		nullable(is.Category), is.Priority, is.Description, nullable(is.Notes), is.Status, nullableStringPtr(is.TargetDate), nullableStringPtr(is.AssignedTo),
		is.CreatedBy, is.DateLogged, is.LastUpdated)
	return err
}

func (r Repo) GetIssue(ctx context.Context, tx *sql.Tx, id string) (domain.Issue, error) {
	is, err := scanIssue(r.on(tx).QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return is, ErrNotFound
	}
	return is, err
}

func (r Repo) ListIssues(ctx context.Context, f IssueFilters) ([]domain.Issue, error) {
	var clauses []string
	var args []any
	if f.FacilityID != "" {
		clauses = append(clauses, "facility_id=?")
		args = append(args, f.FacilityID)
	}
	if f.Status != "" {
		clauses = append(clauses, "LOWER(status)=LOWER(?)")
		args = append(args, f.Status)
	}
	if f.Area != "" {
		clauses = append(clauses, "LOWER(area)=LOWER(?)")
		args = append(args, f.Area)
	}
	if f.GameID != "" {
		clauses = append(clauses, "game_id=?")
		args = append(args, f.GameID)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		clauses = append(clauses, "(LOWER(description) LIKE ? OR LOWER(COALESCE(notes,'')) LIKE ? OR LOWER(COALESCE(equipment_location,'')) LIKE ?)")
		args = append(args, like, like, like)
	}
	query := fmt.Sprintf(`SELECT %s FROM issues %s ORDER BY date_logged DESC, id DESC`, issueColumns, where(clauses))
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Issue
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, is)
	}
	return res, rows.Err()
}

// FindOpenDuplicate returns an open issue describing the same problem: same game
// and category for game issues, same area, location and description otherwise.
func (r Repo) FindOpenDuplicate(ctx context.Context, tx *sql.Tx, is domain.Issue) (domain.Issue, error) {
	clauses := []string{"facility_id=?", "status NOT IN (?,?)"}
	args := []any{is.FacilityID, ClosedStatuses[0], ClosedStatuses[1]}
	if is.GameID != nil && *is.GameID != "" {
		clauses = append(clauses, "game_id=?", "LOWER(COALESCE(category,''))=LOWER(?)")
		args = append(args, *is.GameID, is.Category)
	} else {
		clauses = append(clauses,
			"LOWER(COALESCE(area,''))=LOWER(?)",
			"LOWER(COALESCE(equipment_location,''))=LOWER(?)",
			"LOWER(description)=LOWER(?)")
		args = append(args, is.Area, is.EquipmentLocation, is.Description)
	}
	query := fmt.Sprintf(`SELECT %s FROM issues %s ORDER BY date_logged DESC LIMIT 1`, issueColumns, where(clauses))
	dup, err := scanIssue(r.on(tx).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return dup, ErrNotFound
	}
	return dup, err
}

func (r Repo) UpdateIssue(ctx context.Context, tx *sql.Tx, is domain.Issue) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE issues SET area=?, equipment_location=?, category=?, priority=?, description=?, notes=?, status=?, target_date=?, assigned_to=?, last_updated=? WHERE id=?`,
		nullable(is.Area), nullable(is.EquipmentLocation), nullable(is.Category), is.Priority, is.Description, nullable(is.Notes), is.Status,
		nullableStringPtr(is.TargetDate), nullableStringPtr(is.AssignedTo), is.LastUpdated, is.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteIssue(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM issues WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountIssues returns open issues and the urgent subset (Open with High or IMMEDIATE priority).
func (r Repo) CountIssues(ctx context.Context, facilityID string) (domain.IssueCounts, error) {
	var c domain.IssueCounts
	err := r.DB.QueryRowContext(ctx, `SELECT
  COALESCE(SUM(CASE WHEN status='Open' THEN 1 ELSE 0 END),0),
  COALESCE(SUM(CASE WHEN status='Open' AND UPPER(priority) IN ('HIGH','IMMEDIATE') THEN 1 ELSE 0 END),0)
FROM issues WHERE facility_id=?`, facilityID).Scan(&c.Open, &c.Urgent)
	return c, err
}
