package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
)

const alertColumns = `id,code,week_id,kind,severity,entity_kind,entity_id,observed,expected,message,state,resolved_by,resolved_at,resolution,created_at,updated_at`

func scanAlert(row rowScanner) (domain.Alert, error) {
	var a domain.Alert
	var resolvedBy, resolvedAt, resolution sql.NullString
	err := row.Scan(&a.ID, &a.Code, &a.WeekID, &a.Kind, &a.Severity, &a.Entity.Kind, &a.Entity.ID, &a.Observed, &a.Expected,
		&a.Message, &a.State, &resolvedBy, &resolvedAt, &resolution, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.ResolvedBy = stringPtr(resolvedBy)
	a.ResolvedAt = stringPtr(resolvedAt)
	a.Resolution = stringPtr(resolution)
	return a, nil
}

// InsertAlert stores an alert. A second open alert on the same key surfaces as a unique violation.
func (r Repo) InsertAlert(ctx context.Context, a domain.Alert) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO alerts(`+alertColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Code, a.WeekID, a.Kind, a.Severity, a.Entity.Kind, a.Entity.ID, a.Observed, a.Expected, a.Message, a.State,
		nullableStringPtr(a.ResolvedBy), nullableStringPtr(a.ResolvedAt), nullableStringPtr(a.Resolution), a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetAlert(ctx context.Context, id string) (domain.Alert, error) {
	return scanAlert(r.DB.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id=?`, id))
}

// FindOpenAlert looks up the PENDING or IN_REVIEW alert for the dedup key.
func (r Repo) FindOpenAlert(ctx context.Context, weekID string, kind domain.AlertKind, ref domain.EntityRef) (domain.Alert, error) {
	return scanAlert(r.DB.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts
WHERE week_id=? AND kind=? AND entity_kind=? AND entity_id=? AND state IN ('PENDING','IN_REVIEW')`, weekID, kind, ref.Kind, ref.ID))
}

func (r Repo) CountWeekAlerts(ctx context.Context, weekID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM alerts WHERE week_id=?`, weekID).Scan(&n)
	return n, err
}

// UpdateAlertState writes the lifecycle fields of an alert.
func (r Repo) UpdateAlertState(ctx context.Context, a domain.Alert) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE alerts SET state=?, resolved_by=?, resolved_at=?, resolution=?, updated_at=? WHERE id=?`,
		a.State, nullableStringPtr(a.ResolvedBy), nullableStringPtr(a.ResolvedAt), nullableStringPtr(a.Resolution), a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type AlertFilters struct {
	WeekID   string
	State    string
	Kind     string
	Severity string
	EntityID string
	Limit    int
}

func (r Repo) ListAlerts(ctx context.Context, f AlertFilters) ([]domain.Alert, error) {
	var clauses []string
	var args []any
	if f.WeekID != "" {
		clauses = append(clauses, "week_id=?")
		args = append(args, f.WeekID)
	}
	if f.State != "" {
		clauses = append(clauses, "state=?")
		args = append(args, f.State)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.Severity != "" {
		clauses = append(clauses, "severity=?")
		args = append(args, f.Severity)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + alertColumns + ` FROM alerts ` + where + ` ORDER BY created_at ASC, code ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// AlertCounts returns the total and CRITICAL alert counts for the week, optionally narrowed to entity ids.
func (r Repo) AlertCounts(ctx context.Context, weekID string, entityIDs []string) (total int, critical int, err error) {
	query := `SELECT count(*), COALESCE(SUM(CASE WHEN severity='CRITICAL' THEN 1 ELSE 0 END),0) FROM alerts WHERE week_id=?`
	args := []any{weekID}
	if entityIDs != nil {
		if len(entityIDs) == 0 {
			return 0, 0, nil
		}
		query += " AND entity_id IN (" + placeholders(len(entityIDs)) + ")"
		args = append(args, stringArgs(entityIDs)...)
	}
	err = r.DB.QueryRowContext(ctx, query, args...).Scan(&total, &critical)
	return total, critical, err
}
