package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
)

func (r Repo) InsertActivity(ctx context.Context, a domain.Activity) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO activities(id,code,name,unit_of_measure,daily_rate,created_at) VALUES (?,?,?,?,?,?)`,
		a.ID, a.Code, a.Name, a.UnitOfMeasure, a.DailyRate, a.CreatedAt)
	return err
}

func (r Repo) GetActivity(ctx context.Context, id string) (domain.Activity, error) {
	var a domain.Activity
	err := r.DB.QueryRowContext(ctx, `SELECT id,code,name,unit_of_measure,daily_rate,created_at FROM activities WHERE id=?`, id).
		Scan(&a.ID, &a.Code, &a.Name, &a.UnitOfMeasure, &a.DailyRate, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) ListActivities(ctx context.Context) ([]domain.Activity, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,code,name,unit_of_measure,daily_rate,created_at FROM activities ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		var a domain.Activity
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.UnitOfMeasure, &a.DailyRate, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

const unitColumns = `id,code,project_id,activity_id,plot_id,supervisor_id,priority,min_target,executed,state,replaced_by,started_at,completed_at,COALESCE(notes,''),created_at,updated_at`

func scanUnit(row rowScanner) (domain.WorkUnit, error) {
	var u domain.WorkUnit
	var supervisorID, replacedBy, startedAt, completedAt sql.NullString
	err := row.Scan(&u.ID, &u.Code, &u.ProjectID, &u.ActivityID, &u.PlotID, &supervisorID, &u.Priority, &u.MinTarget,
		&u.Executed, &u.State, &replacedBy, &startedAt, &completedAt, &u.Notes, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.SupervisorID = stringPtr(supervisorID)
	u.ReplacedBy = stringPtr(replacedBy)
	u.StartedAt = stringPtr(startedAt)
	u.CompletedAt = stringPtr(completedAt)
	return u, nil
}

func (r Repo) InsertWorkUnit(ctx context.Context, u domain.WorkUnit) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO work_units(id,code,project_id,activity_id,plot_id,supervisor_id,priority,min_target,executed,state,replaced_by,started_at,completed_at,notes,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		u.ID, u.Code, u.ProjectID, u.ActivityID, u.PlotID, nullableStringPtr(u.SupervisorID), u.Priority, u.MinTarget,
		u.Executed, u.State, nullableStringPtr(u.ReplacedBy), nullableStringPtr(u.StartedAt), nullableStringPtr(u.CompletedAt),
		nullable(u.Notes), u.CreatedAt, u.UpdatedAt)
	return err
}

func (r Repo) GetWorkUnit(ctx context.Context, id string) (domain.WorkUnit, error) {
	return scanUnit(r.DB.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM work_units WHERE id=?`, id))
}

// UpdateWorkUnit persists the mutable fields of a unit.
func (r Repo) UpdateWorkUnit(ctx context.Context, u domain.WorkUnit) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE work_units SET supervisor_id=?, priority=?, min_target=?, executed=?, state=?, replaced_by=?, started_at=?, completed_at=?, notes=?, updated_at=? WHERE id=?`,
		nullableStringPtr(u.SupervisorID), u.Priority, u.MinTarget, u.Executed, u.State, nullableStringPtr(u.ReplacedBy),
		nullableStringPtr(u.StartedAt), nullableStringPtr(u.CompletedAt), nullable(u.Notes), u.UpdatedAt, u.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RaiseTarget sets min_target only when newTarget is strictly greater than the stored value.
// It reports whether a row changed.
func (r Repo) RaiseTarget(ctx context.Context, id string, newTarget float64, now string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE work_units SET min_target=?, updated_at=? WHERE id=? AND min_target<?`, newTarget, now, id, newTarget)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

type UnitFilters struct {
	ProjectID string
	State     string
	PlotID    string
	Limit     int
}

func (r Repo) ListWorkUnits(ctx context.Context, f UnitFilters) ([]domain.WorkUnit, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.State != "" {
		clauses = append(clauses, "state=?")
		args = append(args, f.State)
	}
	if f.PlotID != "" {
		clauses = append(clauses, "plot_id=?")
		args = append(args, f.PlotID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + unitColumns + ` FROM work_units ` + where + ` ORDER BY priority DESC, code ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectUnits(rows)
}

// WorkUnitsByIDs loads the given units, ordered by code.
func (r Repo) WorkUnitsByIDs(ctx context.Context, ids []string) ([]domain.WorkUnit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+unitColumns+` FROM work_units WHERE id IN (`+placeholders(len(ids))+`) ORDER BY code`, stringArgs(ids)...)
	if err != nil {
		return nil, err
	}
	return collectUnits(rows)
}

// UnitsTouchedBetween returns every unit referenced by a daily entry dated within [start, end], any state.
func (r Repo) UnitsTouchedBetween(ctx context.Context, start, end string) ([]domain.WorkUnit, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+unitColumns+` FROM work_units WHERE id IN (
	SELECT DISTINCT unit_id FROM daily_entries WHERE entry_date BETWEEN ? AND ?
) ORDER BY code`, start, end)
	if err != nil {
		return nil, err
	}
	return collectUnits(rows)
}

func collectUnits(rows *sql.Rows) ([]domain.WorkUnit, error) {
	defer rows.Close()
	var res []domain.WorkUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
