package engine

import (
	"context"
	"errors"
	"math"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/events"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

var countedStates = []domain.EntryState{domain.EntryApproved, domain.EntryCorrected}

type ConsolidateOptions struct {
	WeekID      string
	WorkerID    string
	UnitID      string
	ActorID     string
	ForcedState domain.ConsolidationState
}

// ConsolidationBatch is the outcome of consolidating every (worker, unit) pair of a week.
type ConsolidationBatch struct {
	Consolidations []domain.WeeklyConsolidation `json:"consolidations"`
	BatchResult
}

// Consolidate derives and upserts the weekly summary of one worker on one unit.
func (e Engine) Consolidate(ctx context.Context, opts ConsolidateOptions) (domain.WeeklyConsolidation, error) {
	if opts.ForcedState != "" && !opts.ForcedState.Valid() {
		return domain.WeeklyConsolidation{}, &DomainError{Kind: ErrValidation, Entity: "consolidation", Value: opts.ForcedState, Message: "unknown consolidation state"}
	}
	w, err := e.mutableWeek(ctx, opts.WeekID)
	if err != nil {
		return domain.WeeklyConsolidation{}, err
	}
	unlock := e.lockKey("week:" + w.ID)
	defer unlock()
	return e.consolidate(ctx, w, opts)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (e Engine) consolidate(ctx context.Context, w domain.OperationalWeek, opts ConsolidateOptions) (domain.WeeklyConsolidation, error) {
	if opts.WorkerID == "" || opts.UnitID == "" {
		return domain.WeeklyConsolidation{}, validation("worker and work unit are required")
	}
	unit, err := e.GetWorkUnit(ctx, opts.UnitID)
	if err != nil {
		return domain.WeeklyConsolidation{}, err
	}
	activity, err := e.Repo.GetActivity(ctx, unit.ActivityID)
	if err != nil {
		return domain.WeeklyConsolidation{}, lookup("activity", unit.ActivityID, err)
	}
	entries, err := e.Repo.ListEntries(ctx, repo.EntryFilters{
		From:     w.StartDate,
		To:       w.EndDate,
		WorkerID: opts.WorkerID,
		UnitID:   opts.UnitID,
		States:   countedStates,
	})
	if err != nil {
		return domain.WeeklyConsolidation{}, storage("list entries", err)
	}
	novelties, err := e.Repo.NoveltiesOverlapping(ctx, opts.WorkerID, w.StartDate, w.EndDate)
	if err != nil {
		return domain.WeeklyConsolidation{}, storage("list novelties", err)
	}

	c := domain.WeeklyConsolidation{
		ID:                keyedID(w.ID, opts.WorkerID, opts.UnitID),
		WeekID:            w.ID,
		WorkerID:          opts.WorkerID,
		UnitID:            opts.UnitID,
		DaysWorked:        len(entries),
		ExpectedDailyRate: activity.DailyRate,
		State:             domain.ConsolidationConsolidated,
		ConsolidatedBy:    optionalString(opts.ActorID),
	}
	if opts.ForcedState != "" {
		c.State = opts.ForcedState
	}
	for _, en := range entries {
		c.TotalHours += en.Hours
		c.TotalExecuted += en.Quantity
	}
	c.TotalHours = round2(c.TotalHours)
	c.TotalExecuted = round2(c.TotalExecuted)
	if c.DaysWorked > 0 {
		c.AveragePerDay = round2(c.TotalExecuted / float64(c.DaysWorked))
		if c.ExpectedDailyRate > 0 {
			c.PercentVsExpected = round2(c.TotalExecuted * 100 / (float64(c.DaysWorked) * c.ExpectedDailyRate))
		}
	}
	for _, n := range novelties {
		c.NoveltyDays += overlapDays(n.StartDate, n.EndDate, w.StartDate, w.EndDate)
	}

	existing, err := e.Repo.GetConsolidation(ctx, w.ID, opts.WorkerID, opts.UnitID)
	switch {
	case err == nil:
		if sameFigures(existing, c) {
			return existing, nil
		}
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	case errors.Is(err, repo.ErrNotFound):
		c.CreatedAt = e.stamp()
	default:
		return c, storage("get consolidation", err)
	}
	c.UpdatedAt = e.stamp()
	if err := e.Repo.UpsertConsolidation(ctx, c); err != nil {
		return c, storage("upsert consolidation", err)
	}
	stored, err := e.Repo.GetConsolidation(ctx, w.ID, opts.WorkerID, opts.UnitID)
	return stored, storage("get consolidation", err)
}

func sameFigures(a, b domain.WeeklyConsolidation) bool {
	by := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	return a.DaysWorked == b.DaysWorked &&
		a.TotalHours == b.TotalHours &&
		a.TotalExecuted == b.TotalExecuted &&
		a.ExpectedDailyRate == b.ExpectedDailyRate &&
		a.AveragePerDay == b.AveragePerDay &&
		a.PercentVsExpected == b.PercentVsExpected &&
		a.NoveltyDays == b.NoveltyDays &&
		a.State == b.State &&
		by(a.ConsolidatedBy) == by(b.ConsolidatedBy)
}

// ConsolidateWeek consolidates every (worker, unit) pair with counted entries in the week,
// plus every pair already consolidated for it.
// Failed pairs are logged and skipped; a BatchError is returned only when every pair failed.
func (e Engine) ConsolidateWeek(ctx context.Context, weekID, actorID string) (ConsolidationBatch, error) {
	w, err := e.mutableWeek(ctx, weekID)
	if err != nil {
		return ConsolidationBatch{}, err
	}
	unlock := e.lockKey("week:" + w.ID)
	defer unlock()
	return e.consolidateWeek(ctx, w, actorID)
}

func (e Engine) consolidateWeek(ctx context.Context, w domain.OperationalWeek, actorID string) (ConsolidationBatch, error) {
	pairs, err := e.Repo.CountedPairsBetween(ctx, w.StartDate, w.EndDate)
	if err != nil {
		return ConsolidationBatch{}, storage("list worker unit pairs", err)
	}
	// Pairs whose entries were all rejected or deleted still have a row to bring back to zero.
	existing, err := e.Repo.ListConsolidations(ctx, repo.ConsolidationFilters{WeekID: w.ID})
	if err != nil {
		return ConsolidationBatch{}, storage("list consolidations", err)
	}
	seen := make(map[repo.WorkerUnitPair]bool, len(pairs))
	for _, p := range pairs {
		seen[p] = true
	}
	for _, c := range existing {
		p := repo.WorkerUnitPair{WorkerID: c.WorkerID, UnitID: c.UnitID}
		if !seen[p] {
			seen[p] = true
			pairs = append(pairs, p)
		}
	}
	var batch ConsolidationBatch
	for _, p := range pairs {
		c, err := e.consolidate(ctx, w, ConsolidateOptions{WeekID: w.ID, WorkerID: p.WorkerID, UnitID: p.UnitID, ActorID: actorID})
		if err != nil {
			e.log().Warn("consolidation failed", "week", w.Code, "worker", p.WorkerID, "unit", p.UnitID, "err", err)
			batch.Failures = append(batch.Failures, ItemFailure{Key: p.WorkerID + "/" + p.UnitID, Err: err.Error()})
			continue
		}
		batch.Consolidations = append(batch.Consolidations, c)
	}
	batch.Succeeded = len(batch.Consolidations)
	if len(pairs) > 0 && batch.Succeeded == 0 {
		return batch, &BatchError{Op: "consolidate week " + w.Code, Failures: batch.Failures}
	}
	if err := e.recordBatch(ctx, events.WeekConsolidated, w, actorID, events.EventPayload{
		"pairs":    len(pairs),
		"failures": len(batch.Failures),
	}); err != nil {
		return batch, err
	}
	e.log().Info("week consolidated", "week", w.Code, "consolidations", batch.Succeeded, "failures", len(batch.Failures))
	return batch, nil
}

func (e Engine) ListConsolidations(ctx context.Context, f repo.ConsolidationFilters) ([]domain.WeeklyConsolidation, error) {
	cs, err := e.Repo.ListConsolidations(ctx, f)
	return cs, storage("list consolidations", err)
}

// recordBatch appends a single audit event for a derived-data run.
func (e Engine) recordBatch(ctx context.Context, evtType string, w domain.OperationalWeek, actorID string, payload events.EventPayload) error {
	if actorID == "" {
		actorID = systemActor
	}
	tx, _, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.append(ctx, tx, evtType, "week", w.ID, actorID, payload); err != nil {
		return err
	}
	return commit(tx)
}
