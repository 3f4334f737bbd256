package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
)

const entryColumns = `id,entry_date,worker_id,unit_id,quantity,hours,recorded_by,state,edited_by,edit_reason,edited_at,COALESCE(notes,''),created_at,updated_at`

func scanEntry(row rowScanner) (domain.DailyEntry, error) {
	var e domain.DailyEntry
	var editedBy, editReason, editedAt sql.NullString
	err := row.Scan(&e.ID, &e.Date, &e.WorkerID, &e.UnitID, &e.Quantity, &e.Hours, &e.RecordedBy, &e.State,
		&editedBy, &editReason, &editedAt, &e.Notes, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	e.EditedBy = stringPtr(editedBy)
	e.EditReason = stringPtr(editReason)
	e.EditedAt = stringPtr(editedAt)
	return e, nil
}

// InsertEntry stores a daily entry. A duplicate (date, worker, unit) surfaces as a unique violation.
func (r Repo) InsertEntry(ctx context.Context, e domain.DailyEntry) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO daily_entries(id,entry_date,worker_id,unit_id,quantity,hours,recorded_by,state,edited_by,edit_reason,edited_at,notes,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Date, e.WorkerID, e.UnitID, e.Quantity, e.Hours, e.RecordedBy, e.State,
		nullableStringPtr(e.EditedBy), nullableStringPtr(e.EditReason), nullableStringPtr(e.EditedAt), nullable(e.Notes), e.CreatedAt, e.UpdatedAt)
	return err
}

func (r Repo) GetEntry(ctx context.Context, id string) (domain.DailyEntry, error) {
	return scanEntry(r.DB.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM daily_entries WHERE id=?`, id))
}

func (r Repo) FindEntry(ctx context.Context, date, workerID, unitID string) (domain.DailyEntry, error) {
	return scanEntry(r.DB.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM daily_entries WHERE entry_date=? AND worker_id=? AND unit_id=?`, date, workerID, unitID))
}

func (r Repo) UpdateEntry(ctx context.Context, e domain.DailyEntry) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE daily_entries SET quantity=?, hours=?, state=?, edited_by=?, edit_reason=?, edited_at=?, notes=?, updated_at=? WHERE id=?`,
		e.Quantity, e.Hours, e.State, nullableStringPtr(e.EditedBy), nullableStringPtr(e.EditReason), nullableStringPtr(e.EditedAt),
		nullable(e.Notes), e.UpdatedAt, e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteEntry(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM daily_entries WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SumCounted sums quantity across APPROVED and CORRECTED entries of a unit.
func (r Repo) SumCounted(ctx context.Context, unitID string) (float64, error) {
	var sum float64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(SUM(quantity),0) FROM daily_entries WHERE unit_id=? AND state IN ('APPROVED','CORRECTED')`, unitID).Scan(&sum)
	return sum, err
}

type EntryFilters struct {
	From     string
	To       string
	WorkerID string
	UnitID   string
	States   []domain.EntryState
}

func (r Repo) ListEntries(ctx context.Context, f EntryFilters) ([]domain.DailyEntry, error) {
	var clauses []string
	var args []any
	if f.From != "" {
		clauses = append(clauses, "entry_date>=?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "entry_date<=?")
		args = append(args, f.To)
	}
	if f.WorkerID != "" {
		clauses = append(clauses, "worker_id=?")
		args = append(args, f.WorkerID)
	}
	if f.UnitID != "" {
		clauses = append(clauses, "unit_id=?")
		args = append(args, f.UnitID)
	}
	if len(f.States) > 0 {
		clauses = append(clauses, "state IN ("+placeholders(len(f.States))+")")
		for _, s := range f.States {
			args = append(args, s)
		}
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+entryColumns+` FROM daily_entries `+where+` ORDER BY entry_date ASC, worker_id ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DailyEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// WorkerUnitPair identifies one consolidation target.
type WorkerUnitPair struct {
	WorkerID string
	UnitID   string
}

// CountedPairsBetween lists distinct (worker, unit) pairs with counted entries in [start, end].
func (r Repo) CountedPairsBetween(ctx context.Context, start, end string) ([]WorkerUnitPair, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT DISTINCT worker_id, unit_id FROM daily_entries
WHERE entry_date BETWEEN ? AND ? AND state IN ('APPROVED','CORRECTED') ORDER BY worker_id, unit_id`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []WorkerUnitPair
	for rows.Next() {
		var p WorkerUnitPair
		if err := rows.Scan(&p.WorkerID, &p.UnitID); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

const noveltyColumns = `id,worker_id,kind,start_date,end_date,state,COALESCE(notes,''),created_by,created_at,updated_at`

func scanNovelty(row rowScanner) (domain.Novelty, error) {
	var n domain.Novelty
	err := row.Scan(&n.ID, &n.WorkerID, &n.Kind, &n.StartDate, &n.EndDate, &n.State, &n.Notes, &n.CreatedBy, &n.CreatedAt, &n.UpdatedAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	return n, err
}

func (r Repo) InsertNovelty(ctx context.Context, n domain.Novelty) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO novelties(id,worker_id,kind,start_date,end_date,state,notes,created_by,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		n.ID, n.WorkerID, n.Kind, n.StartDate, n.EndDate, n.State, nullable(n.Notes), n.CreatedBy, n.CreatedAt, n.UpdatedAt)
	return err
}

func (r Repo) GetNovelty(ctx context.Context, id string) (domain.Novelty, error) {
	return scanNovelty(r.DB.QueryRowContext(ctx, `SELECT `+noveltyColumns+` FROM novelties WHERE id=?`, id))
}

func (r Repo) UpdateNoveltyState(ctx context.Context, id string, state domain.NoveltyState, now string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE novelties SET state=?, updated_at=? WHERE id=?`, state, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// NoveltiesOverlapping returns the worker's PENDING/APPROVED novelties intersecting [start, end].
func (r Repo) NoveltiesOverlapping(ctx context.Context, workerID, start, end string) ([]domain.Novelty, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+noveltyColumns+` FROM novelties
WHERE worker_id=? AND state IN ('PENDING','APPROVED') AND start_date<=? AND end_date>=? ORDER BY start_date`, workerID, end, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Novelty
	for rows.Next() {
		n, err := scanNovelty(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
