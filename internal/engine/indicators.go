package engine

import (
	"context"
	"sort"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/events"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

// ProjectIndicatorBatch is the outcome of computing indicators for every project of a week.
type ProjectIndicatorBatch struct {
	Indicators []domain.PerformanceIndicator `json:"indicators"`
	BatchResult
}

// GlobalIndicators recomputes the GLOBAL snapshot of the week.
func (e Engine) GlobalIndicators(ctx context.Context, weekID string) (domain.PerformanceIndicator, error) {
	w, err := e.mutableWeek(ctx, weekID)
	if err != nil {
		return domain.PerformanceIndicator{}, err
	}
	unlock := e.lockKey("week:" + w.ID)
	defer unlock()
	p, err := e.globalIndicators(ctx, w)
	if err != nil {
		return p, err
	}
	return p, e.recordIndicators(ctx, w, "", p)
}

// ProjectIndicators recomputes the PROJECT snapshot restricted to the project's work units.
func (e Engine) ProjectIndicators(ctx context.Context, weekID, projectID string) (domain.PerformanceIndicator, error) {
	if projectID == "" {
		return domain.PerformanceIndicator{}, validation("project is required")
	}
	w, err := e.mutableWeek(ctx, weekID)
	if err != nil {
		return domain.PerformanceIndicator{}, err
	}
	unlock := e.lockKey("week:" + w.ID)
	defer unlock()
	p, err := e.projectIndicators(ctx, w, projectID)
	if err != nil {
		return p, err
	}
	return p, e.recordIndicators(ctx, w, "", p)
}

// ProjectIndicatorsAll computes PROJECT indicators for each project touched by the week's consolidations.
func (e Engine) ProjectIndicatorsAll(ctx context.Context, weekID string) (ProjectIndicatorBatch, error) {
	w, err := e.mutableWeek(ctx, weekID)
	if err != nil {
		return ProjectIndicatorBatch{}, err
	}
	unlock := e.lockKey("week:" + w.ID)
	defer unlock()

	cs, err := e.Repo.ListConsolidations(ctx, repo.ConsolidationFilters{WeekID: w.ID})
	if err != nil {
		return ProjectIndicatorBatch{}, storage("list consolidations", err)
	}
	units, err := e.Repo.WorkUnitsByIDs(ctx, unitIDs(reportable(cs)))
	if err != nil {
		return ProjectIndicatorBatch{}, storage("load work units", err)
	}
	seen := map[string]bool{}
	var projects []string
	for _, u := range units {
		if !seen[u.ProjectID] {
			seen[u.ProjectID] = true
			projects = append(projects, u.ProjectID)
		}
	}
	sort.Strings(projects)

	var batch ProjectIndicatorBatch
	for _, p := range projects {
		ind, err := e.projectIndicators(ctx, w, p)
		if err != nil {
			e.log().Warn("project indicators failed", "week", w.Code, "project", p, "err", err)
			batch.Failures = append(batch.Failures, ItemFailure{Key: p, Err: err.Error()})
			continue
		}
		batch.Indicators = append(batch.Indicators, ind)
	}
	batch.Succeeded = len(batch.Indicators)
	if len(projects) > 0 && batch.Succeeded == 0 {
		return batch, &BatchError{Op: "project indicators " + w.Code, Failures: batch.Failures}
	}
	return batch, nil
}

func (e Engine) ListIndicators(ctx context.Context, weekID string, kind domain.ScopeKind) ([]domain.PerformanceIndicator, error) {
	w, err := e.GetWeek(ctx, weekID)
	if err != nil {
		return nil, err
	}
	ps, err := e.Repo.ListIndicators(ctx, w.ID, kind)
	return ps, storage("list indicators", err)
}

func (e Engine) globalIndicators(ctx context.Context, w domain.OperationalWeek) (domain.PerformanceIndicator, error) {
	cs, err := e.Repo.ListConsolidations(ctx, repo.ConsolidationFilters{WeekID: w.ID})
	if err != nil {
		return domain.PerformanceIndicator{}, storage("list consolidations", err)
	}
	cs = reportable(cs)
	units, err := e.Repo.WorkUnitsByIDs(ctx, unitIDs(cs))
	if err != nil {
		return domain.PerformanceIndicator{}, storage("load work units", err)
	}
	total, critical, err := e.Repo.AlertCounts(ctx, w.ID, nil)
	if err != nil {
		return domain.PerformanceIndicator{}, storage("count alerts", err)
	}
	p := aggregate(cs, units)
	p.ScopeKind = domain.ScopeGlobal
	p.Alerts, p.CriticalAlerts = total, critical
	return e.storeIndicator(ctx, w, p)
}

func (e Engine) projectIndicators(ctx context.Context, w domain.OperationalWeek, projectID string) (domain.PerformanceIndicator, error) {
	units, err := e.Repo.ListWorkUnits(ctx, repo.UnitFilters{ProjectID: projectID})
	if err != nil {
		return domain.PerformanceIndicator{}, storage("list work units", err)
	}
	var cs []domain.WeeklyConsolidation
	if len(units) > 0 {
		ids := make([]string, 0, len(units))
		for _, u := range units {
			ids = append(ids, u.ID)
		}
		cs, err = e.Repo.ListConsolidations(ctx, repo.ConsolidationFilters{WeekID: w.ID, UnitIDs: ids})
		if err != nil {
			return domain.PerformanceIndicator{}, storage("list consolidations", err)
		}
	}
	cs = reportable(cs)
	touched := map[string]bool{}
	for _, c := range cs {
		touched[c.UnitID] = true
	}
	var referenced []domain.WorkUnit
	for _, u := range units {
		if touched[u.ID] {
			referenced = append(referenced, u)
		}
	}
	p := aggregate(cs, referenced)
	p.ScopeKind = domain.ScopeProject
	p.ScopeRef = projectID

	entityIDs := []string{}
	seen := map[string]bool{}
	for _, c := range cs {
		for _, id := range []string{c.WorkerID, c.UnitID} {
			if !seen[id] {
				seen[id] = true
				entityIDs = append(entityIDs, id)
			}
		}
	}
	p.Alerts, p.CriticalAlerts, err = e.Repo.AlertCounts(ctx, w.ID, entityIDs)
	if err != nil {
		return p, storage("count alerts", err)
	}
	return e.storeIndicator(ctx, w, p)
}

func (e Engine) storeIndicator(ctx context.Context, w domain.OperationalWeek, p domain.PerformanceIndicator) (domain.PerformanceIndicator, error) {
	p.WeekID = w.ID
	p.ID = keyedID(w.ID, string(p.ScopeKind), p.ScopeRef)
	p.ComputedAt = e.stamp()
	if err := e.Repo.UpsertIndicator(ctx, p); err != nil {
		return p, storage("upsert indicator", err)
	}
	stored, err := e.Repo.GetIndicator(ctx, w.ID, p.ScopeKind, p.ScopeRef)
	return stored, storage("get indicator", err)
}

// reportable keeps the consolidations that feed indicators: settled states with at least one worked day.
func reportable(cs []domain.WeeklyConsolidation) []domain.WeeklyConsolidation {
	out := cs[:0:0]
	for _, c := range cs {
		if c.DaysWorked == 0 {
			continue
		}
		switch c.State {
		case domain.ConsolidationConsolidated, domain.ConsolidationApproved, domain.ConsolidationClosed:
			out = append(out, c)
		}
	}
	return out
}

func unitIDs(cs []domain.WeeklyConsolidation) []string {
	seen := map[string]bool{}
	var ids []string
	for _, c := range cs {
		if !seen[c.UnitID] {
			seen[c.UnitID] = true
			ids = append(ids, c.UnitID)
		}
	}
	return ids
}

// aggregate folds consolidations into indicator figures. Workers are banded by their
// mean percentage across the units they worked.
func aggregate(cs []domain.WeeklyConsolidation, units []domain.WorkUnit) domain.PerformanceIndicator {
	var p domain.PerformanceIndicator
	type acc struct {
		pct float64
		n   int
	}
	workers := map[string]*acc{}
	var order []string
	for _, c := range cs {
		p.TotalDays += c.DaysWorked
		p.TotalHours += c.TotalHours
		p.TotalExecuted += c.TotalExecuted
		a, ok := workers[c.WorkerID]
		if !ok {
			a = &acc{}
			workers[c.WorkerID] = a
			order = append(order, c.WorkerID)
		}
		a.pct += c.PercentVsExpected
		a.n++
	}
	p.Workers = len(workers)
	p.TotalHours = round2(p.TotalHours)
	p.TotalExecuted = round2(p.TotalExecuted)
	if p.TotalDays > 0 {
		p.AveragePerDay = round2(p.TotalExecuted / float64(p.TotalDays))
	}
	for _, id := range order {
		a := workers[id]
		switch domain.Classify(a.pct / float64(a.n)) {
		case domain.ClassExcellent:
			p.Excellent++
		case domain.ClassGood:
			p.Good++
		case domain.ClassRegular:
			p.Regular++
		default:
			p.Low++
		}
	}
	p.UnitsAssigned = len(units)
	for _, u := range units {
		if u.State == domain.UnitMet || (u.MinTarget > 0 && u.Executed >= u.MinTarget) {
			p.UnitsMet++
		}
	}
	if p.UnitsAssigned > 0 {
		p.TargetCompliancePct = round2(float64(p.UnitsMet) * 100 / float64(p.UnitsAssigned))
	}
	return p
}

// recordIndicators appends the audit event for an indicator run.
func (e Engine) recordIndicators(ctx context.Context, w domain.OperationalWeek, actorID string, p domain.PerformanceIndicator) error {
	return e.recordBatch(ctx, events.IndicatorsComputed, w, actorID, events.EventPayload{
		"scope":   p.ScopeKind,
		"ref":     p.ScopeRef,
		"workers": p.Workers,
		"alerts":  p.Alerts,
	})
}
