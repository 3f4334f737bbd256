package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/config"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/db"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/engine"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/migrate"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

const (
	coordinator = "coord-1"
	supervisor  = "sup-1"
)

type testEnv struct {
	Engine   engine.Engine
	Ctx      context.Context
	Activity domain.Activity
}

// newTestEnv opens a migrated database with two plots: plot-1 on farm-1 (covered by sup-1)
// and plot-2 on farm-2. Today is Wednesday 2024-03-06, inside week 2024-W10.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Cycle.Timezone = "UTC"
	eng := engine.New(conn, cfg, nil)
	eng.Now = func() time.Time { return time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	for _, p := range []domain.Plot{
		{ID: "plot-1", Name: "North", FarmID: "farm-1", HubID: "hub-1", ZoneID: "zone-1"},
		{ID: "plot-2", Name: "South", FarmID: "farm-2", HubID: "hub-2", ZoneID: "zone-1"},
	} {
		if _, err := eng.SetPlot(ctx, p, "seed"); err != nil {
			t.Fatalf("seed plot: %v", err)
		}
	}
	if _, err := eng.AssignSupervisor(ctx, domain.SupervisorAssignment{SupervisorID: supervisor, Level: domain.LevelFarm, ScopeID: "farm-1", Active: true}, "seed"); err != nil {
		t.Fatalf("seed assignment: %v", err)
	}
	if err := eng.GrantRole(ctx, supervisor, "supervisor", "seed"); err != nil {
		t.Fatalf("seed role: %v", err)
	}
	if err := eng.GrantRole(ctx, coordinator, "coordinator", "seed"); err != nil {
		t.Fatalf("seed role: %v", err)
	}
	act, err := eng.CreateActivity(ctx, engine.ActivityOptions{Code: "PLANT", Name: "Planting", UnitOfMeasure: "trees", DailyRate: 5, ActorID: "seed"})
	if err != nil {
		t.Fatalf("seed activity: %v", err)
	}
	return &testEnv{Engine: eng, Ctx: ctx, Activity: act}
}

func (env *testEnv) setToday(date string) {
	day, _ := time.Parse(domain.DateLayout, date)
	env.Engine.Now = func() time.Time { return day.Add(12 * time.Hour) }
}

func (env *testEnv) unit(t *testing.T, project, plot string, target float64) domain.WorkUnit {
	t.Helper()
	u, err := env.Engine.CreateWorkUnit(env.Ctx, engine.WorkUnitOptions{
		ProjectID:  project,
		ActivityID: env.Activity.ID,
		PlotID:     plot,
		MinTarget:  target,
		ActorID:    coordinator,
	})
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}
	return u
}

// approved records an entry through the coordinator so it counts immediately.
func (env *testEnv) approved(t *testing.T, date, worker, unitID string, qty float64) domain.DailyEntry {
	t.Helper()
	en, err := env.Engine.CreateEntry(env.Ctx, engine.EntryCreateOptions{
		Date:        date,
		WorkerID:    worker,
		UnitID:      unitID,
		Quantity:    qty,
		Hours:       8,
		RecordedBy:  coordinator,
		AutoApprove: true,
	})
	if err != nil {
		t.Fatalf("create entry %s/%s: %v", date, worker, err)
	}
	return en
}

func (env *testEnv) week(t *testing.T) domain.OperationalWeek {
	t.Helper()
	w, err := env.Engine.ResolveOrCreateWeek(env.Ctx, "2024-03-06")
	if err != nil {
		t.Fatalf("resolve week: %v", err)
	}
	return w
}

func TestResolveOrCreateWeekAnchored(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.ResolveOrCreateWeek(env.Ctx, "2024-03-06")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if w.StartDate != "2024-03-04" || w.EndDate != "2024-03-10" || w.Code != "2024-W10" || w.State != domain.WeekOpen {
		t.Fatalf("unexpected week %+v", w)
	}
	again, err := env.Engine.ResolveOrCreateWeek(env.Ctx, "2024-03-10")
	if err != nil || again.ID != w.ID {
		t.Fatalf("expected same week, got %+v err=%v", again, err)
	}
	cur, err := env.Engine.CurrentWeek(env.Ctx)
	if err != nil || cur.ID != w.ID {
		t.Fatalf("current week mismatch: %+v err=%v", cur, err)
	}
	byCode, err := env.Engine.GetWeek(env.Ctx, "2024-W10")
	if err != nil || byCode.ID != w.ID {
		t.Fatalf("get by code: %+v err=%v", byCode, err)
	}
	if _, err := env.Engine.ResolveOrCreateWeek(env.Ctx, "06/03/2024"); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error for bad date, got %v", err)
	}
}

func TestCreateWeekValidatesRange(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateWeek(env.Ctx, engine.WeekCreateOptions{StartDate: "2024-04-01", EndDate: "2024-04-05"}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected span validation, got %v", err)
	}
	if _, err := env.Engine.CreateWeek(env.Ctx, engine.WeekCreateOptions{StartDate: "2024-04-08", EndDate: "2024-04-01"}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected order validation, got %v", err)
	}
	w, err := env.Engine.CreateWeek(env.Ctx, engine.WeekCreateOptions{StartDate: "2024-04-03", EndDate: "2024-04-10", ProjectID: "proj-a"})
	if err != nil {
		t.Fatalf("create custom week: %v", err)
	}
	if w.ProjectID == nil || *w.ProjectID != "proj-a" {
		t.Fatalf("expected project scope, got %+v", w)
	}
	if _, err := env.Engine.CreateWeek(env.Ctx, engine.WeekCreateOptions{StartDate: "2024-04-09", EndDate: "2024-04-15"}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected overlap rejection, got %v", err)
	}
	got, err := env.Engine.ResolveOrCreateWeek(env.Ctx, "2024-04-05")
	if err != nil || got.ID != w.ID {
		t.Fatalf("custom week should cover 2024-04-05: %+v err=%v", got, err)
	}
}

func TestResolveWeekFitsBesideExplicitWeek(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateWeek(env.Ctx, engine.WeekCreateOptions{StartDate: "2024-02-26", EndDate: "2024-03-05", ActorID: coordinator}); err != nil {
		t.Fatalf("create long week: %v", err)
	}
	w, err := env.Engine.ResolveOrCreateWeek(env.Ctx, "2024-03-06")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if w.StartDate != "2024-03-06" || w.EndDate != "2024-03-12" || w.State != domain.WeekOpen {
		t.Fatalf("expected 2024-03-06..2024-03-12, got %s..%s", w.StartDate, w.EndDate)
	}
	u := env.unit(t, "proj-a", "plot-1", 0)
	if _, err := env.Engine.CreateEntry(env.Ctx, engine.EntryCreateOptions{
		Date: "2024-03-06", WorkerID: "w1", UnitID: u.ID, Quantity: 2, Hours: 8, RecordedBy: supervisor,
	}); err != nil {
		t.Fatalf("entry after the explicit week: %v", err)
	}
	again, err := env.Engine.ResolveOrCreateWeek(env.Ctx, "2024-03-12")
	if err != nil || again.ID != w.ID {
		t.Fatalf("2024-03-12 should resolve to the fitted week: %+v err=%v", again, err)
	}
}

func TestIncreaseTargetIsMonotonic(t *testing.T) {
	env := newTestEnv(t)
	u := env.unit(t, "proj-a", "plot-1", 10)
	steps := []struct {
		target float64
		ok     bool
	}{
		{20, true},
		{20, false},
		{15, false},
		{35.5, true},
		{0, false},
	}
	want := 10.0
	for _, s := range steps {
		got, err := env.Engine.IncreaseTarget(env.Ctx, u.ID, s.target, "renegotiated", coordinator)
		if s.ok {
			if err != nil {
				t.Fatalf("raise to %g: %v", s.target, err)
			}
			want = s.target
		} else if !errors.Is(err, engine.ErrInvalidTarget) {
			t.Fatalf("raise to %g: expected invalid target, got %v", s.target, err)
		}
		stored, err := env.Engine.GetWorkUnit(env.Ctx, u.ID)
		if err != nil {
			t.Fatal(err)
		}
		if stored.MinTarget != want {
			t.Fatalf("after %g stored target %g, want %g (returned %g)", s.target, stored.MinTarget, want, got.MinTarget)
		}
	}
	if _, err := env.Engine.IncreaseTarget(env.Ctx, u.ID, 50, "", coordinator); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected reason validation, got %v", err)
	}
	evs, err := env.Engine.ListEvents(env.Ctx, repo.EventFilters{EntityID: u.ID})
	if err != nil {
		t.Fatal(err)
	}
	raised := 0
	for _, ev := range evs {
		if ev.Type == "unit.target_raised" {
			raised++
		}
	}
	if raised != 2 {
		t.Fatalf("expected 2 target events, got %d", raised)
	}
}

func TestWorkUnitTransitions(t *testing.T) {
	env := newTestEnv(t)
	u := env.unit(t, "proj-a", "plot-1", 10)
	if _, err := env.Engine.MarkMet(env.Ctx, u.ID, coordinator); !errors.Is(err, engine.ErrTargetNotReached) {
		t.Fatalf("expected target not reached, got %v", err)
	}
	zero := env.unit(t, "proj-a", "plot-2", 0)
	if _, err := env.Engine.MarkMet(env.Ctx, zero.ID, coordinator); !errors.Is(err, engine.ErrTargetNotReached) {
		t.Fatalf("zero target must not be met, got %v", err)
	}
	cancelled, err := env.Engine.CancelWorkUnit(env.Ctx, u.ID, "plot flooded", coordinator)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.State != domain.UnitCancelled || cancelled.Notes == "" {
		t.Fatalf("unexpected cancelled unit %+v", cancelled)
	}
	if _, err := env.Engine.CancelWorkUnit(env.Ctx, u.ID, "again", coordinator); !errors.Is(err, engine.ErrAlreadyCancelled) {
		t.Fatalf("expected already cancelled, got %v", err)
	}
	if _, err := env.Engine.CreateEntry(env.Ctx, engine.EntryCreateOptions{
		Date: "2024-03-05", WorkerID: "w1", UnitID: u.ID, Quantity: 1, RecordedBy: coordinator,
	}); !errors.Is(err, engine.ErrAlreadyCancelled) {
		t.Fatalf("expected entries on cancelled unit to fail, got %v", err)
	}
	replaced, err := env.Engine.ReplaceWorkUnit(env.Ctx, zero.ID, u.ID, "merged", coordinator)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if replaced.State != domain.UnitReplaced || replaced.ReplacedBy == nil || *replaced.ReplacedBy != u.ID {
		t.Fatalf("unexpected replaced unit %+v", replaced)
	}
	if _, err := env.Engine.RescheduleWorkUnit(env.Ctx, zero.ID, "later", coordinator); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected replaced unit to refuse reschedule, got %v", err)
	}
}

func TestScenarioA_RecomputeReachesMet(t *testing.T) {
	env := newTestEnv(t)
	u := env.unit(t, "proj-a", "plot-1", 100)
	env.approved(t, "2024-03-04", "w1", u.ID, 60)
	mid, err := env.Engine.GetWorkUnit(env.Ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if mid.State != domain.UnitInProgress || mid.StartedAt == nil || mid.Executed != 60 {
		t.Fatalf("expected IN_PROGRESS at 60, got %+v", mid)
	}
	env.approved(t, "2024-03-05", "w2", u.ID, 40)
	got, err := env.Engine.RecomputeExecuted(env.Ctx, u.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if got.State != domain.UnitMet || got.CompletedAt == nil || got.Executed != 100 {
		t.Fatalf("expected MET with completion, got %+v", got)
	}
	check, err := env.Engine.CanClose(env.Ctx, env.week(t).ID)
	if err != nil {
		t.Fatalf("can close: %v", err)
	}
	if !check.Allowed || len(check.Blocking) != 0 {
		t.Fatalf("expected no blocking units, got %+v", check)
	}
}
