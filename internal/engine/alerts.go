package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/events"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

// Alert rule thresholds. Low-performance and target rules fire strictly below their
// threshold; the critical cutoffs are inclusive.
const (
	lowPerformancePct      = 60.0
	criticalPerformancePct = 40.0
	minDaysForPerformance  = 3
	targetNotMetPct        = 50.0
	criticalTargetPct      = 25.0
)

// AlertBatch lists the open alerts matching the week's rules, reused or new.
type AlertBatch struct {
	Alerts  []domain.Alert `json:"alerts"`
	Created int            `json:"created"`
}

// GenerateAlerts evaluates the low-performance and target-not-met rules for the week.
func (e Engine) GenerateAlerts(ctx context.Context, weekID string) (AlertBatch, error) {
	w, err := e.mutableWeek(ctx, weekID)
	if err != nil {
		return AlertBatch{}, err
	}
	unlock := e.lockKey("week:" + w.ID)
	defer unlock()
	return e.generateAlerts(ctx, w)
}

type alertCandidate struct {
	kind     domain.AlertKind
	severity domain.Severity
	entity   domain.EntityRef
	observed float64
	expected float64
	message  string
}

func (e Engine) generateAlerts(ctx context.Context, w domain.OperationalWeek) (AlertBatch, error) {
	var candidates []alertCandidate

	cs, err := e.Repo.ListConsolidations(ctx, repo.ConsolidationFilters{WeekID: w.ID})
	if err != nil {
		return AlertBatch{}, storage("list consolidations", err)
	}
	for _, c := range cs {
		if c.DaysWorked < minDaysForPerformance || c.PercentVsExpected >= lowPerformancePct {
			continue
		}
		sev := domain.SeverityMedium
		if c.PercentVsExpected <= criticalPerformancePct {
			sev = domain.SeverityCritical
		}
		candidates = append(candidates, alertCandidate{
			kind:     domain.AlertLowPerformance,
			severity: sev,
			entity:   domain.WorkerRef(c.WorkerID),
			observed: c.PercentVsExpected,
			expected: 100,
			message: fmt.Sprintf("worker %s reached %.2f%% of the expected daily rate on unit %s over %d days",
				c.WorkerID, c.PercentVsExpected, c.UnitID, c.DaysWorked),
		})
	}

	units, err := e.Repo.UnitsTouchedBetween(ctx, w.StartDate, w.EndDate)
	if err != nil {
		return AlertBatch{}, storage("list touched units", err)
	}
	for _, u := range units {
		if !u.State.Tracked() || u.MinTarget <= 0 {
			continue
		}
		pct := u.PercentOfTarget()
		if pct >= targetNotMetPct {
			continue
		}
		sev := domain.SeverityHigh
		if pct < criticalTargetPct {
			sev = domain.SeverityCritical
		}
		candidates = append(candidates, alertCandidate{
			kind:     domain.AlertTargetNotMet,
			severity: sev,
			entity:   domain.WorkUnitRef(u.ID),
			observed: u.Executed,
			expected: u.MinTarget,
			message:  fmt.Sprintf("work unit %s executed %g of target %g (%.2f%%)", u.Code, u.Executed, u.MinTarget, round2(pct)),
		})
	}

	var batch AlertBatch
	seen := map[string]bool{}
	for _, c := range candidates {
		key := string(c.kind) + "|" + string(c.entity.Kind) + "|" + c.entity.ID
		if seen[key] {
			continue
		}
		seen[key] = true
		a, created, err := e.ensureAlert(ctx, w, c)
		if err != nil {
			return batch, err
		}
		if created {
			batch.Created++
		}
		batch.Alerts = append(batch.Alerts, a)
	}
	e.log().Info("alerts generated", "week", w.Code, "open", len(batch.Alerts), "created", batch.Created)
	return batch, nil
}

// ensureAlert returns the open alert for the candidate's key, inserting it when none exists.
func (e Engine) ensureAlert(ctx context.Context, w domain.OperationalWeek, c alertCandidate) (domain.Alert, bool, error) {
	tx, r, err := e.begin(ctx)
	if err != nil {
		return domain.Alert{}, false, err
	}
	defer tx.Rollback()

	existing, err := r.FindOpenAlert(ctx, w.ID, c.kind, c.entity)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return existing, false, storage("find alert", err)
	}
	n, err := r.CountWeekAlerts(ctx, w.ID)
	if err != nil {
		return domain.Alert{}, false, storage("count alerts", err)
	}
	now := e.stamp()
	a := domain.Alert{
		ID:        newID(),
		Code:      fmt.Sprintf("%s-%s-%04d", e.cfg().Alerts.CodePrefix, w.Code, n+1),
		WeekID:    w.ID,
		Kind:      c.kind,
		Severity:  c.severity,
		Entity:    c.entity,
		Observed:  round2(c.observed),
		Expected:  round2(c.expected),
		Message:   c.message,
		State:     domain.AlertPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.InsertAlert(ctx, a); err != nil {
		if repo.IsUniqueViolation(err) {
			if existing, ferr := r.FindOpenAlert(ctx, w.ID, c.kind, c.entity); ferr == nil {
				return existing, false, nil
			}
		}
		return a, false, storage("insert alert", err)
	}
	if err := e.append(ctx, tx, events.AlertRaised, "alert", a.ID, systemActor, events.EventPayload{
		"code":     a.Code,
		"kind":     a.Kind,
		"severity": a.Severity,
		"entity":   a.Entity,
	}); err != nil {
		return a, false, err
	}
	if err := commit(tx); err != nil {
		return a, false, err
	}
	return a, true, nil
}

func (e Engine) GetAlert(ctx context.Context, id string) (domain.Alert, error) {
	a, err := e.Repo.GetAlert(ctx, id)
	return a, lookup("alert", id, err)
}

func (e Engine) ListAlerts(ctx context.Context, f repo.AlertFilters) ([]domain.Alert, error) {
	as, err := e.Repo.ListAlerts(ctx, f)
	return as, storage("list alerts", err)
}

// ResolveAlert closes an open alert, stamping resolver, time and comment.
func (e Engine) ResolveAlert(ctx context.Context, id, resolverID, comment string) (domain.Alert, error) {
	if resolverID == "" {
		return domain.Alert{}, validation("resolver is required")
	}
	return e.transitionAlert(ctx, id, resolverID, func(a *domain.Alert, now string) error {
		if !a.State.Open() {
			return &DomainError{Kind: ErrAlreadyResolved, Entity: "alert", ID: a.Code, Value: a.State}
		}
		a.State = domain.AlertResolved
		a.ResolvedBy = &resolverID
		a.ResolvedAt = &now
		a.Resolution = optionalString(strings.TrimSpace(comment))
		return nil
	})
}

// ReviewAlert moves a PENDING alert to IN_REVIEW.
func (e Engine) ReviewAlert(ctx context.Context, id, actorID string) (domain.Alert, error) {
	return e.transitionAlert(ctx, id, actorID, func(a *domain.Alert, now string) error {
		switch a.State {
		case domain.AlertInReview:
			return errUnchanged
		case domain.AlertPending:
			a.State = domain.AlertInReview
			return nil
		}
		return &DomainError{Kind: ErrAlreadyResolved, Entity: "alert", ID: a.Code, Value: a.State}
	})
}

// IgnoreAlert dismisses an open alert. The dedup key is released so a later run may raise it again.
func (e Engine) IgnoreAlert(ctx context.Context, id, actorID, comment string) (domain.Alert, error) {
	return e.transitionAlert(ctx, id, actorID, func(a *domain.Alert, now string) error {
		if !a.State.Open() {
			return &DomainError{Kind: ErrAlreadyResolved, Entity: "alert", ID: a.Code, Value: a.State}
		}
		a.State = domain.AlertIgnored
		a.ResolvedBy = optionalString(actorID)
		a.ResolvedAt = &now
		a.Resolution = optionalString(strings.TrimSpace(comment))
		return nil
	})
}

func (e Engine) transitionAlert(ctx context.Context, id, actorID string, apply func(a *domain.Alert, now string) error) (domain.Alert, error) {
	tx, r, err := e.begin(ctx)
	if err != nil {
		return domain.Alert{}, err
	}
	defer tx.Rollback()
	a, err := r.GetAlert(ctx, id)
	if err != nil {
		return a, lookup("alert", id, err)
	}
	from := a.State
	now := e.stamp()
	if err := apply(&a, now); err != nil {
		if errors.Is(err, errUnchanged) {
			return a, nil
		}
		return a, err
	}
	a.UpdatedAt = now
	if err := r.UpdateAlertState(ctx, a); err != nil {
		return a, storage("update alert", err)
	}
	if err := e.append(ctx, tx, events.AlertStateChanged, "alert", a.ID, actorID, events.EventPayload{"from": from, "to": a.State}); err != nil {
		return a, err
	}
	if err := commit(tx); err != nil {
		return a, err
	}
	e.log().Info("alert transition", "alert", a.Code, "from", from, "to", a.State, "actor", actorID)
	return a, nil
}
