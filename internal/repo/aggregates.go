package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
)

const consolidationColumns = `id,week_id,worker_id,unit_id,days_worked,total_hours,total_executed,expected_daily_rate,average_per_day,percent_vs_expected,novelty_days,state,consolidated_by,created_at,updated_at`

func scanConsolidation(row rowScanner) (domain.WeeklyConsolidation, error) {
	var c domain.WeeklyConsolidation
	var by sql.NullString
	err := row.Scan(&c.ID, &c.WeekID, &c.WorkerID, &c.UnitID, &c.DaysWorked, &c.TotalHours, &c.TotalExecuted,
		&c.ExpectedDailyRate, &c.AveragePerDay, &c.PercentVsExpected, &c.NoveltyDays, &c.State, &by, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.ConsolidatedBy = stringPtr(by)
	return c, nil
}

// UpsertConsolidation writes the (week, worker, unit) record, keeping the original id and created_at.
func (r Repo) UpsertConsolidation(ctx context.Context, c domain.WeeklyConsolidation) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO weekly_consolidations(`+consolidationColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(week_id, worker_id, unit_id) DO UPDATE SET
  days_worked=excluded.days_worked,
  total_hours=excluded.total_hours,
  total_executed=excluded.total_executed,
  expected_daily_rate=excluded.expected_daily_rate,
  average_per_day=excluded.average_per_day,
  percent_vs_expected=excluded.percent_vs_expected,
  novelty_days=excluded.novelty_days,
  state=excluded.state,
  consolidated_by=excluded.consolidated_by,
  updated_at=excluded.updated_at`,
		c.ID, c.WeekID, c.WorkerID, c.UnitID, c.DaysWorked, c.TotalHours, c.TotalExecuted, c.ExpectedDailyRate,
		c.AveragePerDay, c.PercentVsExpected, c.NoveltyDays, c.State, nullableStringPtr(c.ConsolidatedBy), c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetConsolidation(ctx context.Context, weekID, workerID, unitID string) (domain.WeeklyConsolidation, error) {
	return scanConsolidation(r.DB.QueryRowContext(ctx, `SELECT `+consolidationColumns+` FROM weekly_consolidations
WHERE week_id=? AND worker_id=? AND unit_id=?`, weekID, workerID, unitID))
}

type ConsolidationFilters struct {
	WeekID   string
	WorkerID string
	UnitIDs  []string
}

func (r Repo) ListConsolidations(ctx context.Context, f ConsolidationFilters) ([]domain.WeeklyConsolidation, error) {
	var clauses []string
	var args []any
	if f.WeekID != "" {
		clauses = append(clauses, "week_id=?")
		args = append(args, f.WeekID)
	}
	if f.WorkerID != "" {
		clauses = append(clauses, "worker_id=?")
		args = append(args, f.WorkerID)
	}
	if len(f.UnitIDs) > 0 {
		clauses = append(clauses, "unit_id IN ("+placeholders(len(f.UnitIDs))+")")
		args = append(args, stringArgs(f.UnitIDs)...)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+consolidationColumns+` FROM weekly_consolidations `+where+` ORDER BY worker_id, unit_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WeeklyConsolidation
	for rows.Next() {
		c, err := scanConsolidation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

const indicatorColumns = `id,week_id,scope_kind,scope_ref,workers,total_days,total_hours,total_executed,average_per_day,units_assigned,units_met,target_compliance_pct,excellent,good,regular,low,alerts,critical_alerts,computed_at`

func scanIndicator(row rowScanner) (domain.PerformanceIndicator, error) {
	var p domain.PerformanceIndicator
	err := row.Scan(&p.ID, &p.WeekID, &p.ScopeKind, &p.ScopeRef, &p.Workers, &p.TotalDays, &p.TotalHours, &p.TotalExecuted,
		&p.AveragePerDay, &p.UnitsAssigned, &p.UnitsMet, &p.TargetCompliancePct, &p.Excellent, &p.Good, &p.Regular, &p.Low,
		&p.Alerts, &p.CriticalAlerts, &p.ComputedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

// UpsertIndicator replaces the snapshot for (week, scope_kind, scope_ref).
func (r Repo) UpsertIndicator(ctx context.Context, p domain.PerformanceIndicator) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO performance_indicators(`+indicatorColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(week_id, scope_kind, scope_ref) DO UPDATE SET
  workers=excluded.workers,
  total_days=excluded.total_days,
  total_hours=excluded.total_hours,
  total_executed=excluded.total_executed,
  average_per_day=excluded.average_per_day,
  units_assigned=excluded.units_assigned,
  units_met=excluded.units_met,
  target_compliance_pct=excluded.target_compliance_pct,
  excellent=excluded.excellent,
  good=excluded.good,
  regular=excluded.regular,
  low=excluded.low,
  alerts=excluded.alerts,
  critical_alerts=excluded.critical_alerts,
  computed_at=excluded.computed_at`,
		p.ID, p.WeekID, p.ScopeKind, p.ScopeRef, p.Workers, p.TotalDays, p.TotalHours, p.TotalExecuted, p.AveragePerDay,
		p.UnitsAssigned, p.UnitsMet, p.TargetCompliancePct, p.Excellent, p.Good, p.Regular, p.Low, p.Alerts, p.CriticalAlerts, p.ComputedAt)
	return err
}

func (r Repo) GetIndicator(ctx context.Context, weekID string, kind domain.ScopeKind, ref string) (domain.PerformanceIndicator, error) {
	return scanIndicator(r.DB.QueryRowContext(ctx, `SELECT `+indicatorColumns+` FROM performance_indicators
WHERE week_id=? AND scope_kind=? AND scope_ref=?`, weekID, kind, ref))
}

func (r Repo) ListIndicators(ctx context.Context, weekID string, kind domain.ScopeKind) ([]domain.PerformanceIndicator, error) {
	query := `SELECT ` + indicatorColumns + ` FROM performance_indicators WHERE week_id=?`
	args := []any{weekID}
	if kind != "" {
		query += " AND scope_kind=?"
		args = append(args, kind)
	}
	rows, err := r.DB.QueryContext(ctx, query+" ORDER BY scope_kind, scope_ref", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PerformanceIndicator
	for rows.Next() {
		p, err := scanIndicator(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// SetConsolidationsState moves every consolidation of the week from one state to another.
func (r Repo) SetConsolidationsState(ctx context.Context, weekID string, from, to domain.ConsolidationState, now string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE weekly_consolidations SET state=?, updated_at=? WHERE week_id=? AND state=?`, to, now, weekID, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
