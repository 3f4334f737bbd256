package repo

import (
	"context"
	"database/sql"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
)

func (r Repo) UpsertPlot(ctx context.Context, p domain.Plot) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO plots(id,name,farm_id,hub_id,zone_id) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, farm_id=excluded.farm_id, hub_id=excluded.hub_id, zone_id=excluded.zone_id`,
		p.ID, p.Name, p.FarmID, p.HubID, p.ZoneID)
	return err
}

func (r Repo) GetPlot(ctx context.Context, id string) (domain.Plot, error) {
	var p domain.Plot
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,farm_id,hub_id,zone_id FROM plots WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.FarmID, &p.HubID, &p.ZoneID)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) ListPlots(ctx context.Context) ([]domain.Plot, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,farm_id,hub_id,zone_id FROM plots ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Plot
	for rows.Next() {
		var p domain.Plot
		if err := rows.Scan(&p.ID, &p.Name, &p.FarmID, &p.HubID, &p.ZoneID); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpsertAssignment(ctx context.Context, a domain.SupervisorAssignment) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO supervisor_assignments(supervisor_id,scope_kind,scope_id,active,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(supervisor_id,scope_kind,scope_id) DO UPDATE SET active=excluded.active`,
		a.SupervisorID, a.Level, a.ScopeID, boolInt(a.Active), a.CreatedAt)
	return err
}

// ActiveAssignments lists the active scopes held by a supervisor.
func (r Repo) ActiveAssignments(ctx context.Context, supervisorID string) ([]domain.SupervisorAssignment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT supervisor_id,scope_kind,scope_id,active,created_at FROM supervisor_assignments
WHERE supervisor_id=? AND active=1 ORDER BY scope_kind, scope_id`, supervisorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SupervisorAssignment
	for rows.Next() {
		var a domain.SupervisorAssignment
		var active int
		if err := rows.Scan(&a.SupervisorID, &a.Level, &a.ScopeID, &active, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Active = active == 1
		res = append(res, a)
	}
	return res, rows.Err()
}
