package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
)

const weekColumns = `id,code,iso_year,iso_week,start_date,end_date,project_id,hub_id,state,closed_by,closed_at,COALESCE(notes,''),version,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWeek(row rowScanner) (domain.OperationalWeek, error) {
	var w domain.OperationalWeek
	var projectID, hubID, closedBy, closedAt sql.NullString
	err := row.Scan(&w.ID, &w.Code, &w.ISOYear, &w.ISOWeek, &w.StartDate, &w.EndDate, &projectID, &hubID,
		&w.State, &closedBy, &closedAt, &w.Notes, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	w.ProjectID = stringPtr(projectID)
	w.HubID = stringPtr(hubID)
	w.ClosedBy = stringPtr(closedBy)
	w.ClosedAt = stringPtr(closedAt)
	return w, nil
}

func (r Repo) InsertWeek(ctx context.Context, w domain.OperationalWeek) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO operational_weeks(id,code,iso_year,iso_week,start_date,end_date,project_id,hub_id,state,closed_by,closed_at,notes,version,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.Code, w.ISOYear, w.ISOWeek, w.StartDate, w.EndDate, nullableStringPtr(w.ProjectID), nullableStringPtr(w.HubID),
		w.State, nullableStringPtr(w.ClosedBy), nullableStringPtr(w.ClosedAt), nullable(w.Notes), w.Version, w.CreatedAt, w.UpdatedAt)
	return err
}

func (r Repo) GetWeek(ctx context.Context, id string) (domain.OperationalWeek, error) {
	return scanWeek(r.DB.QueryRowContext(ctx, `SELECT `+weekColumns+` FROM operational_weeks WHERE id=?`, id))
}

func (r Repo) GetWeekByCode(ctx context.Context, code string) (domain.OperationalWeek, error) {
	return scanWeek(r.DB.QueryRowContext(ctx, `SELECT `+weekColumns+` FROM operational_weeks WHERE code=?`, code))
}

// WeekCovering returns the week whose [start_date, end_date] contains date.
func (r Repo) WeekCovering(ctx context.Context, date string) (domain.OperationalWeek, error) {
	return scanWeek(r.DB.QueryRowContext(ctx, `SELECT `+weekColumns+` FROM operational_weeks
WHERE start_date<=? AND end_date>=? ORDER BY start_date DESC LIMIT 1`, date, date))
}

// CountOverlapping counts weeks intersecting [start, end].
func (r Repo) CountOverlapping(ctx context.Context, start, end string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM operational_weeks WHERE start_date<=? AND end_date>=?`, end, start).Scan(&n)
	return n, err
}

// NeighbourBounds returns the latest end date before date and the earliest start date after it.
// Either is empty when no such week exists.
func (r Repo) NeighbourBounds(ctx context.Context, date string) (prevEnd, nextStart string, err error) {
	var prev, next sql.NullString
	err = r.DB.QueryRowContext(ctx, `SELECT
  (SELECT max(end_date) FROM operational_weeks WHERE end_date<?),
  (SELECT min(start_date) FROM operational_weeks WHERE start_date>?)`, date, date).Scan(&prev, &next)
	return prev.String, next.String, err
}

type WeekFilters struct {
	State string
	Limit int
}

func (r Repo) ListWeeks(ctx context.Context, f WeekFilters) ([]domain.OperationalWeek, error) {
	var clauses []string
	var args []any
	if f.State != "" {
		clauses = append(clauses, "state=?")
		args = append(args, f.State)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + weekColumns + ` FROM operational_weeks ` + where + ` ORDER BY start_date DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OperationalWeek
	for rows.Next() {
		w, err := scanWeek(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

// UpdateWeekState writes the lifecycle fields guarded by the expected version.
// It returns ErrNotFound when the row changed underneath the caller.
func (r Repo) UpdateWeekState(ctx context.Context, w domain.OperationalWeek, expectedVersion int) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE operational_weeks SET state=?, closed_by=?, closed_at=?, notes=?, version=version+1, updated_at=?
WHERE id=? AND version=?`,
		w.State, nullableStringPtr(w.ClosedBy), nullableStringPtr(w.ClosedAt), nullable(w.Notes), w.UpdatedAt, w.ID, expectedVersion)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
