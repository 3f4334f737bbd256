package engine_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/engine"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

// threeDays records the same quantity for worker on Mon, Tue and Wed of 2024-W10.
func (env *testEnv) threeDays(t *testing.T, worker, unitID string, qty float64) {
	t.Helper()
	for _, d := range []string{"2024-03-04", "2024-03-05", "2024-03-06"} {
		env.approved(t, d, worker, unitID, qty)
	}
}

func TestScenarioC_RegularBandRaisesNoAlert(t *testing.T) {
	env := newTestEnv(t)
	u := env.unit(t, "proj-a", "plot-1", 0)
	env.threeDays(t, "w1", u.ID, 3)
	w := env.week(t)

	c, err := env.Engine.Consolidate(env.Ctx, engine.ConsolidateOptions{WeekID: w.ID, WorkerID: "w1", UnitID: u.ID, ActorID: coordinator})
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	if c.DaysWorked != 3 || c.TotalExecuted != 9 || c.TotalHours != 24 || c.ExpectedDailyRate != 5 {
		t.Fatalf("unexpected totals %+v", c)
	}
	if c.AveragePerDay != 3 || c.PercentVsExpected != 60 || c.Classification() != domain.ClassRegular {
		t.Fatalf("expected avg 3, 60%% REGULAR, got %+v (%s)", c, c.Classification())
	}
	if c.State != domain.ConsolidationConsolidated || c.ConsolidatedBy == nil || *c.ConsolidatedBy != coordinator {
		t.Fatalf("unexpected state %+v", c)
	}
	batch, err := env.Engine.GenerateAlerts(env.Ctx, w.ID)
	if err != nil {
		t.Fatalf("generate alerts: %v", err)
	}
	for _, a := range batch.Alerts {
		if a.Kind == domain.AlertLowPerformance {
			t.Fatalf("60%% is not below threshold, got alert %+v", a)
		}
	}
}

func TestScenarioD_LowPerformanceCritical(t *testing.T) {
	env := newTestEnv(t)
	u := env.unit(t, "proj-a", "plot-1", 0)
	env.threeDays(t, "w1", u.ID, 2)
	w := env.week(t)
	if _, err := env.Engine.ConsolidateWeek(env.Ctx, w.ID, coordinator); err != nil {
		t.Fatalf("consolidate week: %v", err)
	}
	batch, err := env.Engine.GenerateAlerts(env.Ctx, w.ID)
	if err != nil {
		t.Fatalf("generate alerts: %v", err)
	}
	if len(batch.Alerts) != 1 || batch.Created != 1 {
		t.Fatalf("expected one new alert, got %+v", batch)
	}
	a := batch.Alerts[0]
	if a.Kind != domain.AlertLowPerformance || a.Severity != domain.SeverityCritical || a.Entity != domain.WorkerRef("w1") {
		t.Fatalf("unexpected alert %+v", a)
	}
	if a.Observed != 40 || a.Code != "ALR-2024-W10-0001" || a.State != domain.AlertPending {
		t.Fatalf("unexpected alert details %+v", a)
	}
}

func TestLowPerformanceNeedsThreeDays(t *testing.T) {
	env := newTestEnv(t)
	u := env.unit(t, "proj-a", "plot-1", 0)
	env.approved(t, "2024-03-04", "w1", u.ID, 1)
	env.approved(t, "2024-03-05", "w1", u.ID, 1)
	w := env.week(t)
	if _, err := env.Engine.ConsolidateWeek(env.Ctx, w.ID, coordinator); err != nil {
		t.Fatal(err)
	}
	batch, err := env.Engine.GenerateAlerts(env.Ctx, w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Alerts) != 0 {
		t.Fatalf("two days must not raise alerts, got %+v", batch.Alerts)
	}
}

func TestTargetNotMetSeverityCutoff(t *testing.T) {
	env := newTestEnv(t)
	atCutoff := env.unit(t, "proj-a", "plot-1", 100)
	below := env.unit(t, "proj-b", "plot-1", 100)
	env.approved(t, "2024-03-04", "w1", atCutoff.ID, 25)
	env.approved(t, "2024-03-04", "w2", below.ID, 24)
	w := env.week(t)

	batch, err := env.Engine.GenerateAlerts(env.Ctx, w.ID)
	if err != nil {
		t.Fatalf("generate alerts: %v", err)
	}
	severity := map[string]domain.Severity{}
	for _, a := range batch.Alerts {
		if a.Kind == domain.AlertTargetNotMet {
			severity[a.Entity.ID] = a.Severity
		}
	}
	if severity[atCutoff.ID] != domain.SeverityHigh {
		t.Fatalf("25%% of target should be HIGH, got %q", severity[atCutoff.ID])
	}
	if severity[below.ID] != domain.SeverityCritical {
		t.Fatalf("24%% of target should be CRITICAL, got %q", severity[below.ID])
	}
}

func TestConsolidateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	u := env.unit(t, "proj-a", "plot-1", 0)
	env.threeDays(t, "w1", u.ID, 4)
	w := env.week(t)
	opts := engine.ConsolidateOptions{WeekID: w.ID, WorkerID: "w1", UnitID: u.ID, ActorID: coordinator}

	first, err := env.Engine.Consolidate(env.Ctx, opts)
	if err != nil {
		t.Fatal(err)
	}
	env.setToday("2024-03-07")
	second, err := env.Engine.Consolidate(env.Ctx, opts)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("consolidation changed without new entries:\n%s\n%s", a, b)
	}
	rows, err := env.Engine.ListConsolidations(env.Ctx, repo.ConsolidationFilters{WeekID: w.ID})
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected one row, got %d (%v)", len(rows), err)
	}

	env.approved(t, "2024-03-07", "w1", u.ID, 8)
	third, err := env.Engine.Consolidate(env.Ctx, opts)
	if err != nil {
		t.Fatal(err)
	}
	if third.ID != first.ID || third.DaysWorked != 4 || third.TotalExecuted != 20 || third.CreatedAt != first.CreatedAt {
		t.Fatalf("expected overwrite of the same row, got %+v", third)
	}
	rows, err = env.Engine.ListConsolidations(env.Ctx, repo.ConsolidationFilters{WeekID: w.ID})
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected one row after recompute, got %d (%v)", len(rows), err)
	}

	draft, err := env.Engine.Consolidate(env.Ctx, engine.ConsolidateOptions{WeekID: w.ID, WorkerID: "w1", UnitID: u.ID, ForcedState: domain.ConsolidationDraft})
	if err != nil || draft.State != domain.ConsolidationDraft {
		t.Fatalf("forced state: %+v %v", draft, err)
	}
	if _, err := env.Engine.Consolidate(env.Ctx, engine.ConsolidateOptions{WeekID: w.ID, WorkerID: "w1", UnitID: u.ID, ForcedState: "DONE"}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected unknown state to fail, got %v", err)
	}
}

func TestConsolidateWeekCoversCountedPairs(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.unit(t, "proj-a", "plot-1", 0)
	u2 := env.unit(t, "proj-b", "plot-2", 0)
	env.approved(t, "2024-03-04", "w1", u1.ID, 5)
	env.approved(t, "2024-03-05", "w1", u2.ID, 5)
	env.approved(t, "2024-03-05", "w2", u1.ID, 5)
	env.approved(t, "2024-03-12", "w3", u1.ID, 5) // next week
	if _, err := env.Engine.CreateEntry(env.Ctx, engine.EntryCreateOptions{
		Date: "2024-03-06", WorkerID: "w4", UnitID: u1.ID, Quantity: 5, Hours: 8, RecordedBy: supervisor,
	}); err != nil {
		t.Fatal(err)
	}
	batch, err := env.Engine.ConsolidateWeek(env.Ctx, env.week(t).ID, coordinator)
	if err != nil {
		t.Fatalf("consolidate week: %v", err)
	}
	if batch.Succeeded != 3 || len(batch.Consolidations) != 3 || len(batch.Failures) != 0 {
		t.Fatalf("expected three consolidations, got %+v", batch)
	}
	for _, c := range batch.Consolidations {
		if c.WorkerID == "w3" || c.WorkerID == "w4" {
			t.Fatalf("unexpected pair %s/%s", c.WorkerID, c.UnitID)
		}
	}
}

func TestConsolidateWeekZeroesPairsWithoutCountedEntries(t *testing.T) {
	env := newTestEnv(t)
	u := env.unit(t, "proj-a", "plot-1", 0)
	var entries []domain.DailyEntry
	for _, d := range []string{"2024-03-04", "2024-03-05", "2024-03-06"} {
		entries = append(entries, env.approved(t, d, "w1", u.ID, 1))
	}
	w := env.week(t)
	first, err := env.Engine.ProcessWeek(env.Ctx, w.ID, coordinator)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if first.Indicators.Workers != 1 || first.Indicators.Low != 1 {
		t.Fatalf("unexpected first indicators %+v", first.Indicators)
	}

	for _, en := range entries {
		if _, err := env.Engine.RejectEntry(env.Ctx, en.ID, "wrong crew", coordinator); err != nil {
			t.Fatalf("reject: %v", err)
		}
	}
	second, err := env.Engine.ProcessWeek(env.Ctx, w.ID, coordinator)
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	cs, err := env.Engine.ListConsolidations(env.Ctx, repo.ConsolidationFilters{WeekID: w.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(cs) != 1 || cs[0].DaysWorked != 0 || cs[0].TotalExecuted != 0 || cs[0].TotalHours != 0 {
		t.Fatalf("expected the stale row recomputed to zero, got %+v", cs)
	}
	g := second.Indicators
	if g.Workers != 0 || g.TotalDays != 0 || g.TotalExecuted != 0 || g.Low != 0 {
		t.Fatalf("rejected entries must not feed indicators, got %+v", g)
	}
}

func TestIndicators(t *testing.T) {
	env := newTestEnv(t)
	regular := env.unit(t, "proj-a", "plot-1", 0)
	excellent := env.unit(t, "proj-b", "plot-2", 18)
	env.threeDays(t, "w1", regular.ID, 3)
	env.threeDays(t, "w2", excellent.ID, 6)
	w := env.week(t)
	if _, err := env.Engine.ConsolidateWeek(env.Ctx, w.ID, coordinator); err != nil {
		t.Fatal(err)
	}

	g, err := env.Engine.GlobalIndicators(env.Ctx, w.ID)
	if err != nil {
		t.Fatalf("global: %v", err)
	}
	if g.ScopeKind != domain.ScopeGlobal || g.Workers != 2 || g.TotalDays != 6 || g.TotalExecuted != 27 || g.AveragePerDay != 4.5 {
		t.Fatalf("unexpected global totals %+v", g)
	}
	if g.UnitsAssigned != 2 || g.UnitsMet != 1 || g.TargetCompliancePct != 50 {
		t.Fatalf("unexpected compliance %+v", g)
	}
	if g.Excellent != 1 || g.Regular != 1 || g.Good != 0 || g.Low != 0 {
		t.Fatalf("unexpected bands %+v", g)
	}
	if _, err := env.Engine.GlobalIndicators(env.Ctx, w.ID); err != nil {
		t.Fatal(err)
	}
	globals, err := env.Engine.ListIndicators(env.Ctx, w.ID, domain.ScopeGlobal)
	if err != nil || len(globals) != 1 {
		t.Fatalf("expected one global row, got %d (%v)", len(globals), err)
	}

	p, err := env.Engine.ProjectIndicators(env.Ctx, w.ID, "proj-b")
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if p.ScopeRef != "proj-b" || p.Workers != 1 || p.UnitsMet != 1 || p.TargetCompliancePct != 100 || p.Excellent != 1 {
		t.Fatalf("unexpected project indicator %+v", p)
	}
	all, err := env.Engine.ProjectIndicatorsAll(env.Ctx, w.ID)
	if err != nil {
		t.Fatalf("all projects: %v", err)
	}
	if all.Succeeded != 2 || len(all.Indicators) != 2 {
		t.Fatalf("expected two project indicators, got %+v", all)
	}
	projects, err := env.Engine.ListIndicators(env.Ctx, w.ID, domain.ScopeProject)
	if err != nil || len(projects) != 2 {
		t.Fatalf("expected two project rows, got %d (%v)", len(projects), err)
	}
}

func TestAlertDedupAndLifecycle(t *testing.T) {
	env := newTestEnv(t)
	low := env.unit(t, "proj-a", "plot-1", 0)
	behind := env.unit(t, "proj-b", "plot-1", 100)
	env.threeDays(t, "w1", low.ID, 2)
	env.approved(t, "2024-03-04", "w2", behind.ID, 30)
	w := env.week(t)

	first, err := env.Engine.ProcessWeek(env.Ctx, w.ID, coordinator)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if first.Alerts.Created != 2 {
		t.Fatalf("expected two alerts, got %+v", first.Alerts)
	}
	before, err := env.Engine.ListAlerts(env.Ctx, repo.AlertFilters{WeekID: w.ID})
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.Engine.ProcessWeek(env.Ctx, w.ID, coordinator)
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	after, err := env.Engine.ListAlerts(env.Ctx, repo.AlertFilters{WeekID: w.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(before) != 2 || len(after) != len(before) || second.Alerts.Created != 0 {
		t.Fatalf("dedup failed: before=%d after=%d created=%d", len(before), len(after), second.Alerts.Created)
	}
	if second.Indicators.Alerts != 2 || second.Indicators.CriticalAlerts != 1 {
		t.Fatalf("indicators should count the first run's alerts, got %+v", second.Indicators)
	}

	var target domain.Alert
	for _, a := range after {
		if a.Kind == domain.AlertTargetNotMet {
			target = a
		}
	}
	if target.Entity != domain.WorkUnitRef(behind.ID) || target.Severity != domain.SeverityHigh || target.Observed != 30 || target.Expected != 100 {
		t.Fatalf("unexpected target alert %+v", target)
	}
	reviewed, err := env.Engine.ReviewAlert(env.Ctx, target.ID, coordinator)
	if err != nil || reviewed.State != domain.AlertInReview {
		t.Fatalf("review: %+v %v", reviewed, err)
	}
	resolved, err := env.Engine.ResolveAlert(env.Ctx, target.ID, coordinator, "crew reinforced")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.State != domain.AlertResolved || resolved.ResolvedBy == nil || resolved.ResolvedAt == nil || resolved.Resolution == nil {
		t.Fatalf("unexpected resolved alert %+v", resolved)
	}
	if _, err := env.Engine.ResolveAlert(env.Ctx, target.ID, coordinator, "again"); !errors.Is(err, engine.ErrAlreadyResolved) {
		t.Fatalf("expected already resolved, got %v", err)
	}
	if _, err := env.Engine.IgnoreAlert(env.Ctx, target.ID, coordinator, ""); !errors.Is(err, engine.ErrAlreadyResolved) {
		t.Fatalf("expected ignore of resolved alert to fail, got %v", err)
	}
	if _, err := env.Engine.ResolveAlert(env.Ctx, "missing", coordinator, ""); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestScenarioB_CloseBlockedByUnmetTarget(t *testing.T) {
	env := newTestEnv(t)
	u := env.unit(t, "proj-a", "plot-1", 100)
	env.approved(t, "2024-03-05", "w1", u.ID, 40)
	w := env.week(t)

	check, err := env.Engine.CanClose(env.Ctx, w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if check.Allowed || len(check.Blocking) != 1 || len(check.Reasons) != 1 {
		t.Fatalf("expected one blocking unit, got %+v", check)
	}
	_, err = env.Engine.CloseWeek(env.Ctx, w.ID, coordinator)
	var unmet *engine.TargetsUnmetError
	if !errors.As(err, &unmet) || !errors.Is(err, engine.ErrTargetsUnmet) {
		t.Fatalf("expected targets unmet, got %v", err)
	}
	if len(unmet.Blocking) != 1 || unmet.Blocking[0].UnitID != u.ID || unmet.Blocking[0].Shortfall != 60 {
		t.Fatalf("unexpected blocking list %+v", unmet.Blocking)
	}
	still, err := env.Engine.GetWeek(env.Ctx, w.ID)
	if err != nil || still.State != domain.WeekOpen || still.ClosedBy != nil {
		t.Fatalf("week must stay open: %+v %v", still, err)
	}
}

func TestCloseWeekLifecycle(t *testing.T) {
	env := newTestEnv(t)
	blocked := env.unit(t, "proj-a", "plot-1", 100)
	met := env.unit(t, "proj-b", "plot-1", 10)
	cancelled := env.unit(t, "proj-a", "plot-2", 100)
	untargeted := env.unit(t, "proj-b", "plot-2", 0)
	env.approved(t, "2024-03-04", "w1", blocked.ID, 40)
	env.approved(t, "2024-03-04", "w2", met.ID, 10)
	env.approved(t, "2024-03-04", "w3", cancelled.ID, 5)
	env.approved(t, "2024-03-04", "w4", untargeted.ID, 0)
	if _, err := env.Engine.CancelWorkUnit(env.Ctx, cancelled.ID, "dropped", coordinator); err != nil {
		t.Fatal(err)
	}
	w := env.week(t)

	check, err := env.Engine.CanClose(env.Ctx, w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(check.Blocking) != 1 || check.Blocking[0].UnitID != blocked.ID {
		t.Fatalf("only the unmet tracked unit should block, got %+v", check.Blocking)
	}

	env.approved(t, "2024-03-05", "w1", blocked.ID, 60)
	if _, err := env.Engine.ConsolidateWeek(env.Ctx, w.ID, coordinator); err != nil {
		t.Fatal(err)
	}
	closed, err := env.Engine.CloseWeek(env.Ctx, w.ID, coordinator)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.State != domain.WeekClosed || closed.ClosedBy == nil || *closed.ClosedBy != coordinator || closed.ClosedAt == nil {
		t.Fatalf("unexpected closed week %+v", closed)
	}
	cs, err := env.Engine.ListConsolidations(env.Ctx, repo.ConsolidationFilters{WeekID: w.ID})
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range cs {
		if c.State != domain.ConsolidationClosed {
			t.Fatalf("consolidation %s not closed: %s", c.ID, c.State)
		}
	}

	if _, err := env.Engine.CloseWeek(env.Ctx, w.ID, coordinator); !errors.Is(err, engine.ErrAlreadyClosed) {
		t.Fatalf("expected already closed, got %v", err)
	}
	if _, err := env.Engine.ProcessWeek(env.Ctx, w.ID, coordinator); !errors.Is(err, engine.ErrAlreadyClosed) {
		t.Fatalf("closed weeks cannot be reprocessed, got %v", err)
	}
	if _, err := env.Engine.Consolidate(env.Ctx, engine.ConsolidateOptions{WeekID: w.ID, WorkerID: "w1", UnitID: blocked.ID}); !errors.Is(err, engine.ErrAlreadyClosed) {
		t.Fatalf("closed weeks cannot be reconsolidated, got %v", err)
	}
	cs, err = env.Engine.ListConsolidations(env.Ctx, repo.ConsolidationFilters{WeekID: w.ID})
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range cs {
		if c.State != domain.ConsolidationClosed {
			t.Fatalf("consolidation %s left CLOSED after a rejected rerun: %s", c.ID, c.State)
		}
	}
	if _, err := env.Engine.CanClose(env.Ctx, w.ID); !errors.Is(err, engine.ErrAlreadyClosed) {
		t.Fatalf("can close on closed week, got %v", err)
	}
	if _, err := env.Engine.CreateEntry(env.Ctx, engine.EntryCreateOptions{
		Date: "2024-03-06", WorkerID: "w9", UnitID: blocked.ID, Quantity: 1, Hours: 1, RecordedBy: coordinator,
	}); !errors.Is(err, engine.ErrAlreadyClosed) {
		t.Fatalf("entries into a closed week must fail, got %v", err)
	}

	if _, err := env.Engine.ReopenWeek(env.Ctx, w.ID, supervisor); !errors.Is(err, engine.ErrAccessDenied) {
		t.Fatalf("supervisor reopen must be denied, got %v", err)
	}
	reopened, err := env.Engine.ReopenWeek(env.Ctx, w.ID, coordinator)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.State != domain.WeekOpen || reopened.ClosedBy != nil || reopened.ClosedAt != nil {
		t.Fatalf("unexpected reopened week %+v", reopened)
	}
	cs, _ = env.Engine.ListConsolidations(env.Ctx, repo.ConsolidationFilters{WeekID: w.ID})
	for _, c := range cs {
		if c.State != domain.ConsolidationConsolidated {
			t.Fatalf("consolidation %s should be reopened: %s", c.ID, c.State)
		}
	}

	locked, err := env.Engine.LockWeek(env.Ctx, w.ID, coordinator)
	if err != nil || locked.State != domain.WeekLocked {
		t.Fatalf("lock: %+v %v", locked, err)
	}
	if _, err := env.Engine.ReopenWeek(env.Ctx, w.ID, coordinator); !errors.Is(err, engine.ErrAlreadyClosed) {
		t.Fatalf("locked weeks cannot reopen, got %v", err)
	}
	if _, err := env.Engine.ProcessWeek(env.Ctx, w.ID, coordinator); !errors.Is(err, engine.ErrAlreadyClosed) {
		t.Fatalf("locked weeks cannot be processed, got %v", err)
	}
}
