package engine_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/engine"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

func floatPtr(v float64) *float64 { return &v }

func TestCreateEntryRejectsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	u := env.unit(t, "proj-a", "plot-1", 50)
	env.approved(t, "2024-03-05", "w1", u.ID, 10)
	_, err := env.Engine.CreateEntry(env.Ctx, engine.EntryCreateOptions{
		Date: "2024-03-05", WorkerID: "w1", UnitID: u.ID, Quantity: 3, Hours: 2, RecordedBy: supervisor,
	})
	if !errors.Is(err, engine.ErrDuplicateEntry) {
		t.Fatalf("expected duplicate entry, got %v", err)
	}
	if engine.Code(err) != "duplicate_entry" {
		t.Fatalf("unexpected code %q", engine.Code(err))
	}
}

func TestCreateEntryConcurrentDuplicates(t *testing.T) {
	env := newTestEnv(t)
	u := env.unit(t, "proj-a", "plot-1", 50)
	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.CreateEntry(env.Ctx, engine.EntryCreateOptions{
				Date: "2024-03-07", WorkerID: "w1", UnitID: u.ID, Quantity: 4, Hours: 8, RecordedBy: coordinator, AutoApprove: true,
			})
		}(i)
	}
	wg.Wait()
	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, engine.ErrDuplicateEntry):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one entry, got %d", ok)
	}
	got, err := env.Engine.GetWorkUnit(env.Ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Executed != 4 {
		t.Fatalf("executed %g, want 4", got.Executed)
	}
	weeks, err := env.Engine.ListWeeks(env.Ctx, repo.WeekFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(weeks) != 1 {
		t.Fatalf("expected one week, got %d", len(weeks))
	}
}

func TestCreateEntryTerritorialScope(t *testing.T) {
	env := newTestEnv(t)
	inScope := env.unit(t, "proj-a", "plot-1", 50)
	outOfScope := env.unit(t, "proj-a", "plot-2", 50)

	en, err := env.Engine.CreateEntry(env.Ctx, engine.EntryCreateOptions{
		Date: "2024-03-05", WorkerID: "w1", UnitID: inScope.ID, Quantity: 5, Hours: 8, RecordedBy: supervisor,
	})
	if err != nil {
		t.Fatalf("supervisor in scope: %v", err)
	}
	if en.State != domain.EntryPending {
		t.Fatalf("supervisor entries start PENDING, got %s", en.State)
	}
	_, err = env.Engine.CreateEntry(env.Ctx, engine.EntryCreateOptions{
		Date: "2024-03-05", WorkerID: "w1", UnitID: outOfScope.ID, Quantity: 5, Hours: 8, RecordedBy: supervisor,
	})
	if !errors.Is(err, engine.ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
	_, err = env.Engine.CreateEntry(env.Ctx, engine.EntryCreateOptions{
		Date: "2024-03-06", WorkerID: "w1", UnitID: inScope.ID, Quantity: 5, Hours: 8, RecordedBy: supervisor, AutoApprove: true,
	})
	if !errors.Is(err, engine.ErrAccessDenied) {
		t.Fatalf("auto approval by supervisor must be denied, got %v", err)
	}
	if _, err := env.Engine.CreateEntry(env.Ctx, engine.EntryCreateOptions{
		Date: "2024-03-05", WorkerID: "w2", UnitID: outOfScope.ID, Quantity: 5, Hours: 8, RecordedBy: coordinator,
	}); err != nil {
		t.Fatalf("coordinator bypasses territory: %v", err)
	}
}

func TestCreateEntryValidatesAmounts(t *testing.T) {
	env := newTestEnv(t)
	u := env.unit(t, "proj-a", "plot-1", 50)
	cases := []engine.EntryCreateOptions{
		{Date: "2024-03-05", WorkerID: "w1", UnitID: u.ID, Quantity: -1, Hours: 8, RecordedBy: coordinator},
		{Date: "2024-03-05", WorkerID: "w1", UnitID: u.ID, Quantity: 1, Hours: 25, RecordedBy: coordinator},
		{Date: "2024-3-5", WorkerID: "w1", UnitID: u.ID, Quantity: 1, Hours: 8, RecordedBy: coordinator},
		{Date: "2024-03-05", UnitID: u.ID, Quantity: 1, Hours: 8, RecordedBy: coordinator},
	}
	for i, c := range cases {
		if _, err := env.Engine.CreateEntry(env.Ctx, c); !errors.Is(err, engine.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if _, err := env.Engine.CreateEntry(env.Ctx, engine.EntryCreateOptions{
		Date: "2024-03-05", WorkerID: "w1", UnitID: "missing", Quantity: 1, RecordedBy: coordinator,
	}); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected not found unit, got %v", err)
	}
}

func TestEntryApprovalFlowDrivesExecuted(t *testing.T) {
	env := newTestEnv(t)
	u := env.unit(t, "proj-a", "plot-1", 50)
	en, err := env.Engine.CreateEntry(env.Ctx, engine.EntryCreateOptions{
		Date: "2024-03-05", WorkerID: "w1", UnitID: u.ID, Quantity: 12, Hours: 8, RecordedBy: supervisor,
	})
	if err != nil {
		t.Fatal(err)
	}
	executed := func() float64 {
		t.Helper()
		got, err := env.Engine.GetWorkUnit(env.Ctx, u.ID)
		if err != nil {
			t.Fatal(err)
		}
		return got.Executed
	}
	if executed() != 0 {
		t.Fatalf("pending entries must not count")
	}
	if _, err := env.Engine.ApproveEntry(env.Ctx, en.ID, supervisor); !errors.Is(err, engine.ErrAccessDenied) {
		t.Fatalf("supervisor approval must be denied, got %v", err)
	}
	en, err = env.Engine.ApproveEntry(env.Ctx, en.ID, coordinator)
	if err != nil || en.State != domain.EntryApproved {
		t.Fatalf("approve: %+v %v", en, err)
	}
	if executed() != 12 {
		t.Fatalf("approved entry should count, executed=%g", executed())
	}

	if _, err := env.Engine.UpdateEntry(env.Ctx, engine.EntryUpdateOptions{ID: en.ID, Quantity: floatPtr(15), ActorID: supervisor}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("quantity change without reason must fail, got %v", err)
	}
	en, err = env.Engine.UpdateEntry(env.Ctx, engine.EntryUpdateOptions{ID: en.ID, Quantity: floatPtr(15), Reason: "recount", ActorID: supervisor})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if en.State != domain.EntryCorrected || en.EditedBy == nil || *en.EditedBy != supervisor || en.EditReason == nil || en.EditedAt == nil {
		t.Fatalf("expected corrected entry with audit, got %+v", en)
	}
	if executed() != 15 {
		t.Fatalf("corrected entry should count, executed=%g", executed())
	}

	if _, err := env.Engine.RejectEntry(env.Ctx, en.ID, "duplicate sheet", coordinator); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if executed() != 0 {
		t.Fatalf("rejected entry must leave the sum, executed=%g", executed())
	}

	other := env.approved(t, "2024-03-06", "w2", u.ID, 7)
	if executed() != 7 {
		t.Fatalf("executed=%g, want 7", executed())
	}
	if err := env.Engine.DeleteEntry(env.Ctx, other.ID, supervisor); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if executed() != 0 {
		t.Fatalf("deleted entry must leave the sum, executed=%g", executed())
	}
	if _, err := env.Engine.GetEntry(env.Ctx, other.ID); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected deleted entry to be gone, got %v", err)
	}
}

func TestEditWindowBoundary(t *testing.T) {
	env := newTestEnv(t)
	u := env.unit(t, "proj-a", "plot-1", 50)
	en, err := env.Engine.CreateEntry(env.Ctx, engine.EntryCreateOptions{
		Date: "2024-03-05", WorkerID: "w1", UnitID: u.ID, Quantity: 4, Hours: 8, RecordedBy: supervisor,
	})
	if err != nil {
		t.Fatal(err)
	}

	// The boundary after Tuesday 2024-03-05 is Monday 2024-03-11; that day is still editable.
	env.setToday("2024-03-11")
	if _, err := env.Engine.UpdateEntry(env.Ctx, engine.EntryUpdateOptions{ID: en.ID, Hours: floatPtr(7), ActorID: supervisor}); err != nil {
		t.Fatalf("edit on boundary day: %v", err)
	}

	env.setToday("2024-03-12")
	_, err = env.Engine.UpdateEntry(env.Ctx, engine.EntryUpdateOptions{ID: en.ID, Hours: floatPtr(6), ActorID: supervisor})
	if !errors.Is(err, engine.ErrEditWindowClosed) {
		t.Fatalf("expected edit window closed, got %v", err)
	}
	if err := env.Engine.DeleteEntry(env.Ctx, en.ID, supervisor); !errors.Is(err, engine.ErrEditWindowClosed) {
		t.Fatalf("expected delete to respect the window, got %v", err)
	}
	got, err := env.Engine.UpdateEntry(env.Ctx, engine.EntryUpdateOptions{ID: en.ID, Quantity: floatPtr(5), Reason: "late fix", ActorID: coordinator})
	if err != nil {
		t.Fatalf("escalated edit after boundary: %v", err)
	}
	if got.Quantity != 5 || got.EditedBy == nil || *got.EditedBy != coordinator {
		t.Fatalf("unexpected entry %+v", got)
	}
}

func TestNoveltyDaysInConsolidation(t *testing.T) {
	env := newTestEnv(t)
	u := env.unit(t, "proj-a", "plot-1", 0)
	env.approved(t, "2024-03-04", "w1", u.ID, 5)
	n, err := env.Engine.RegisterNovelty(env.Ctx, engine.NoveltyOptions{
		WorkerID: "w1", Kind: "sick_leave", StartDate: "2024-03-08", EndDate: "2024-03-12", ActorID: supervisor,
	})
	if err != nil {
		t.Fatalf("register novelty: %v", err)
	}
	rejected, err := env.Engine.RegisterNovelty(env.Ctx, engine.NoveltyOptions{
		WorkerID: "w1", Kind: "permit", StartDate: "2024-03-05", EndDate: "2024-03-05", ActorID: supervisor,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetNoveltyState(env.Ctx, rejected.ID, domain.NoveltyRejected, supervisor); !errors.Is(err, engine.ErrAccessDenied) {
		t.Fatalf("supervisor cannot review novelties, got %v", err)
	}
	if _, err := env.Engine.SetNoveltyState(env.Ctx, rejected.ID, domain.NoveltyRejected, coordinator); err != nil {
		t.Fatalf("reject novelty: %v", err)
	}
	if _, err := env.Engine.RegisterNovelty(env.Ctx, engine.NoveltyOptions{
		WorkerID: "w1", Kind: "leave", StartDate: "2024-03-09", EndDate: "2024-03-08",
	}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected reversed range to fail, got %v", err)
	}

	c, err := env.Engine.Consolidate(env.Ctx, engine.ConsolidateOptions{WeekID: env.week(t).ID, WorkerID: "w1", UnitID: u.ID})
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	// 2024-03-08..2024-03-10 overlaps the week; the rejected permit does not count.
	if c.NoveltyDays != 3 {
		t.Fatalf("novelty days %d, want 3 (novelty %s)", c.NoveltyDays, n.ID)
	}
}

func TestEntryReviewRollsBackWhenExecutedSyncFails(t *testing.T) {
	env := newTestEnv(t)
	u := env.unit(t, "proj-a", "plot-1", 50)
	en, err := env.Engine.CreateEntry(env.Ctx, engine.EntryCreateOptions{
		Date: "2024-03-05", WorkerID: "w1", UnitID: u.ID, Quantity: 12, Hours: 8, RecordedBy: supervisor,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.DB.ExecContext(env.Ctx, `CREATE TRIGGER freeze_executed BEFORE UPDATE ON work_units
WHEN NEW.executed <> OLD.executed BEGIN SELECT RAISE(ABORT, 'executed is frozen'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	if _, err := env.Engine.ApproveEntry(env.Ctx, en.ID, coordinator); err == nil {
		t.Fatalf("expected approval to fail when executed cannot be synced")
	}
	got, err := env.Engine.GetEntry(env.Ctx, en.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != domain.EntryPending {
		t.Fatalf("entry state must roll back with the failed sync, got %s", got.State)
	}
	if _, err := env.Engine.CreateEntry(env.Ctx, engine.EntryCreateOptions{
		Date: "2024-03-06", WorkerID: "w2", UnitID: u.ID, Quantity: 3, Hours: 8, RecordedBy: coordinator, AutoApprove: true,
	}); err == nil {
		t.Fatalf("expected approved entry creation to fail when executed cannot be synced")
	}
	if _, err := env.Engine.Repo.FindEntry(env.Ctx, "2024-03-06", "w2", u.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("entry must not persist without its unit sync, got %v", err)
	}
}
