package engine

import (
	"context"
	"fmt"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/events"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

// CloseCheck is the advisory answer to whether a week may close.
type CloseCheck struct {
	WeekID   string         `json:"week_id"`
	Allowed  bool           `json:"allowed"`
	Reasons  []string       `json:"reasons"`
	Blocking []BlockingUnit `json:"blocking_units"`
}

// WeekReport bundles the results of the processing stages.
type WeekReport struct {
	Week           domain.OperationalWeek      `json:"week"`
	Consolidations ConsolidationBatch          `json:"consolidations"`
	Indicators     domain.PerformanceIndicator `json:"indicators"`
	Alerts         AlertBatch                  `json:"alerts"`
}

// CanClose lists the tracked work units touched in the week that are still below target.
func (e Engine) CanClose(ctx context.Context, ref string) (CloseCheck, error) {
	w, err := e.GetWeek(ctx, ref)
	if err != nil {
		return CloseCheck{}, err
	}
	if w.State != domain.WeekOpen {
		return CloseCheck{WeekID: w.ID}, &DomainError{Kind: ErrAlreadyClosed, Entity: "week", ID: w.Code, Value: w.State}
	}
	blocking, err := blockingUnits(ctx, e.Repo, w)
	if err != nil {
		return CloseCheck{WeekID: w.ID}, err
	}
	return closeCheck(w, blocking), nil
}

func closeCheck(w domain.OperationalWeek, blocking []BlockingUnit) CloseCheck {
	c := CloseCheck{WeekID: w.ID, Allowed: len(blocking) == 0, Reasons: []string{}, Blocking: blocking}
	if c.Blocking == nil {
		c.Blocking = []BlockingUnit{}
	}
	for _, b := range blocking {
		c.Reasons = append(c.Reasons, fmt.Sprintf("work unit %s executed %g of target %g, missing %g", b.Code, b.Executed, b.Target, b.Shortfall))
	}
	return c
}

func blockingUnits(ctx context.Context, r repo.Repo, w domain.OperationalWeek) ([]BlockingUnit, error) {
	units, err := r.UnitsTouchedBetween(ctx, w.StartDate, w.EndDate)
	if err != nil {
		return nil, storage("list touched units", err)
	}
	var out []BlockingUnit
	for _, u := range units {
		if !u.State.Tracked() || u.Executed >= u.MinTarget {
			continue
		}
		out = append(out, BlockingUnit{
			UnitID:    u.ID,
			Code:      u.Code,
			ProjectID: u.ProjectID,
			State:     string(u.State),
			Target:    u.MinTarget,
			Executed:  u.Executed,
			Shortfall: u.Shortfall(),
		})
	}
	return out, nil
}

// CloseWeek transitions OPEN to CLOSED. Compliance is re-validated inside the transaction
// that writes the new state.
func (e Engine) CloseWeek(ctx context.Context, ref, actorID string) (domain.OperationalWeek, error) {
	if actorID == "" {
		return domain.OperationalWeek{}, validation("actor is required")
	}
	w, err := e.GetWeek(ctx, ref)
	if err != nil {
		return w, err
	}
	unlock := e.lockKey("week:" + w.ID)
	defer unlock()

	tx, r, err := e.begin(ctx)
	if err != nil {
		return w, err
	}
	defer tx.Rollback()
	w, err = r.GetWeek(ctx, w.ID)
	if err != nil {
		return w, lookup("week", ref, err)
	}
	if w.State != domain.WeekOpen {
		return w, &DomainError{Kind: ErrAlreadyClosed, Entity: "week", ID: w.Code, Value: w.State}
	}
	blocking, err := blockingUnits(ctx, r, w)
	if err != nil {
		return w, err
	}
	if len(blocking) > 0 {
		return w, &TargetsUnmetError{WeekID: w.ID, Blocking: blocking}
	}

	version := w.Version
	now := e.stamp()
	w.State = domain.WeekClosed
	w.ClosedBy = &actorID
	w.ClosedAt = &now
	w.UpdatedAt = now
	if err := r.UpdateWeekState(ctx, w, version); err != nil {
		return w, storage("close week", err)
	}
	w.Version++
	var closed int64
	for _, from := range []domain.ConsolidationState{domain.ConsolidationConsolidated, domain.ConsolidationApproved} {
		n, err := r.SetConsolidationsState(ctx, w.ID, from, domain.ConsolidationClosed, now)
		if err != nil {
			return w, storage("close consolidations", err)
		}
		closed += n
	}
	if err := e.append(ctx, tx, events.WeekClosed, "week", w.ID, actorID, events.EventPayload{
		"code":           w.Code,
		"consolidations": closed,
	}); err != nil {
		return w, err
	}
	if err := commit(tx); err != nil {
		return w, err
	}
	e.log().Info("week closed", "week", w.Code, "actor", actorID, "consolidations", closed)
	return w, nil
}

// ProcessWeek runs consolidation, global indicators and alert generation in order.
// A failing stage stops the run; completed stages stay applied and are safe to re-run.
func (e Engine) ProcessWeek(ctx context.Context, ref, actorID string) (WeekReport, error) {
	w, err := e.mutableWeek(ctx, ref)
	if err != nil {
		return WeekReport{}, err
	}
	unlock := e.lockKey("week:" + w.ID)
	defer unlock()

	report := WeekReport{Week: w}
	report.Consolidations, err = e.consolidateWeek(ctx, w, actorID)
	if err != nil {
		return report, &StageError{Stage: "consolidate", Err: err}
	}
	report.Indicators, err = e.globalIndicators(ctx, w)
	if err == nil {
		err = e.recordIndicators(ctx, w, actorID, report.Indicators)
	}
	if err != nil {
		return report, &StageError{Stage: "indicators", Err: err}
	}
	report.Alerts, err = e.generateAlerts(ctx, w)
	if err != nil {
		return report, &StageError{Stage: "alerts", Err: err}
	}
	e.log().Info("week processed", "week", w.Code, "consolidations", report.Consolidations.Succeeded,
		"alerts", len(report.Alerts.Alerts))
	return report, nil
}
