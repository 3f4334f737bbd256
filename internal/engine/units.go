package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/events"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

type ActivityOptions struct {
	Code          string
	Name          string
	UnitOfMeasure string
	DailyRate     float64
	ActorID       string
}

func (e Engine) CreateActivity(ctx context.Context, opts ActivityOptions) (domain.Activity, error) {
	opts.Code = strings.TrimSpace(opts.Code)
	if opts.Code == "" || strings.TrimSpace(opts.Name) == "" {
		return domain.Activity{}, validation("activity code and name are required")
	}
	if opts.DailyRate < 0 || math.IsNaN(opts.DailyRate) {
		return domain.Activity{}, &DomainError{Kind: ErrValidation, Entity: "activity", ID: opts.Code, Value: opts.DailyRate, Message: "daily rate must be >= 0"}
	}
	if opts.UnitOfMeasure == "" {
		opts.UnitOfMeasure = "unit"
	}
	a := domain.Activity{
		ID:            newID(),
		Code:          opts.Code,
		Name:          opts.Name,
		UnitOfMeasure: opts.UnitOfMeasure,
		DailyRate:     opts.DailyRate,
		CreatedAt:     e.stamp(),
	}
	tx, r, err := e.begin(ctx)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := r.InsertActivity(ctx, a); err != nil {
		if repo.IsUniqueViolation(err) {
			return a, &DomainError{Kind: ErrValidation, Entity: "activity", ID: a.Code, Message: "activity code already exists"}
		}
		return a, storage("insert activity", err)
	}
	if err := e.append(ctx, tx, events.ActivityCreated, "activity", a.ID, opts.ActorID, events.EventPayload{"code": a.Code, "daily_rate": a.DailyRate}); err != nil {
		return a, err
	}
	return a, commit(tx)
}

func (e Engine) ListActivities(ctx context.Context) ([]domain.Activity, error) {
	as, err := e.Repo.ListActivities(ctx)
	return as, storage("list activities", err)
}

type WorkUnitOptions struct {
	Code         string
	ProjectID    string
	ActivityID   string
	PlotID       string
	SupervisorID string
	Priority     int
	MinTarget    float64
	Notes        string
	ActorID      string
}

func (e Engine) CreateWorkUnit(ctx context.Context, opts WorkUnitOptions) (domain.WorkUnit, error) {
	if opts.ProjectID == "" || opts.ActivityID == "" || opts.PlotID == "" {
		return domain.WorkUnit{}, validation("project, activity and plot are required")
	}
	if opts.MinTarget < 0 || math.IsNaN(opts.MinTarget) {
		return domain.WorkUnit{}, &DomainError{Kind: ErrValidation, Entity: "work_unit", Value: opts.MinTarget, Message: "initial target must be >= 0"}
	}
	if _, err := e.Repo.GetActivity(ctx, opts.ActivityID); err != nil {
		return domain.WorkUnit{}, lookup("activity", opts.ActivityID, err)
	}
	now := e.stamp()
	u := domain.WorkUnit{
		ID:           newID(),
		Code:         strings.TrimSpace(opts.Code),
		ProjectID:    opts.ProjectID,
		ActivityID:   opts.ActivityID,
		PlotID:       opts.PlotID,
		SupervisorID: optionalString(opts.SupervisorID),
		Priority:     opts.Priority,
		MinTarget:    opts.MinTarget,
		State:        domain.UnitPending,
		Notes:        opts.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if u.Code == "" {
		u.Code = "WU-" + strings.ToUpper(u.ID[:8])
	}
	tx, r, err := e.begin(ctx)
	if err != nil {
		return u, err
	}
	defer tx.Rollback()
	if err := r.InsertWorkUnit(ctx, u); err != nil {
		if repo.IsUniqueViolation(err) {
			return u, &DomainError{Kind: ErrValidation, Entity: "work_unit", ID: u.Code,
				Message: "a work unit already exists for this code or project, activity and plot"}
		}
		return u, storage("insert work unit", err)
	}
	if err := e.append(ctx, tx, events.UnitCreated, "work_unit", u.ID, opts.ActorID, events.EventPayload{
		"code":       u.Code,
		"project_id": u.ProjectID,
		"min_target": u.MinTarget,
	}); err != nil {
		return u, err
	}
	return u, commit(tx)
}

func (e Engine) GetWorkUnit(ctx context.Context, id string) (domain.WorkUnit, error) {
	u, err := e.Repo.GetWorkUnit(ctx, id)
	return u, lookup("work_unit", id, err)
}

func (e Engine) ListWorkUnits(ctx context.Context, f repo.UnitFilters) ([]domain.WorkUnit, error) {
	us, err := e.Repo.ListWorkUnits(ctx, f)
	return us, storage("list work units", err)
}

// IncreaseTarget raises the minimum target. The stored target never decreases.
func (e Engine) IncreaseTarget(ctx context.Context, unitID string, newTarget float64, reason, actorID string) (domain.WorkUnit, error) {
	if strings.TrimSpace(reason) == "" {
		return domain.WorkUnit{}, validation("a reason is required to change a target")
	}
	if math.IsNaN(newTarget) || math.IsInf(newTarget, 0) {
		return domain.WorkUnit{}, &DomainError{Kind: ErrInvalidTarget, Entity: "work_unit", ID: unitID, Value: newTarget, Message: "target must be a finite number"}
	}
	unlock := e.lockKey("unit:" + unitID)
	defer unlock()

	tx, r, err := e.begin(ctx)
	if err != nil {
		return domain.WorkUnit{}, err
	}
	defer tx.Rollback()
	u, err := r.GetWorkUnit(ctx, unitID)
	if err != nil {
		return u, lookup("work_unit", unitID, err)
	}
	if newTarget <= u.MinTarget {
		return u, &DomainError{Kind: ErrInvalidTarget, Entity: "work_unit", ID: u.ID, Value: newTarget,
			Message: fmt.Sprintf("new target %g must exceed current target %g", newTarget, u.MinTarget)}
	}
	now := e.stamp()
	changed, err := r.RaiseTarget(ctx, u.ID, newTarget, now)
	if err != nil {
		return u, storage("raise target", err)
	}
	if !changed {
		return u, &DomainError{Kind: ErrInvalidTarget, Entity: "work_unit", ID: u.ID, Value: newTarget, Message: "target changed concurrently"}
	}
	previous := u.MinTarget
	u.MinTarget = newTarget
	u.UpdatedAt = now
	if err := e.append(ctx, tx, events.UnitTargetRaised, "work_unit", u.ID, actorID, events.EventPayload{
		"from":   previous,
		"to":     newTarget,
		"reason": reason,
	}); err != nil {
		return u, err
	}
	if err := commit(tx); err != nil {
		return u, err
	}
	e.log().Info("target raised", "unit", u.Code, "from", previous, "to", newTarget, "actor", actorID)
	return u, nil
}

// RecomputeExecuted rewrites the executed quantity from counted entries and advances the state.
// A MET unit is never moved back.
func (e Engine) RecomputeExecuted(ctx context.Context, unitID string) (domain.WorkUnit, error) {
	tx, r, err := e.begin(ctx)
	if err != nil {
		return domain.WorkUnit{}, err
	}
	defer tx.Rollback()
	u, err := e.syncExecuted(ctx, tx, r, unitID)
	if err != nil {
		return u, err
	}
	return u, commit(tx)
}

// syncExecuted is RecomputeExecuted inside the caller's transaction.
func (e Engine) syncExecuted(ctx context.Context, tx *sql.Tx, r repo.Repo, unitID string) (domain.WorkUnit, error) {
	u, err := r.GetWorkUnit(ctx, unitID)
	if err != nil {
		return u, lookup("work_unit", unitID, err)
	}
	sum, err := r.SumCounted(ctx, unitID)
	if err != nil {
		return u, storage("sum executed", err)
	}
	before := u
	now := e.stamp()
	u.Executed = sum
	if sum > 0 && u.State == domain.UnitPending {
		u.State = domain.UnitInProgress
		u.StartedAt = &now
	}
	met := false
	if u.State != domain.UnitMet && u.State != domain.UnitCancelled && u.MinTarget > 0 && sum >= u.MinTarget {
		u.State = domain.UnitMet
		u.CompletedAt = &now
		met = true
	}
	if u.Executed == before.Executed && u.State == before.State {
		return u, nil
	}
	u.UpdatedAt = now
	if err := r.UpdateWorkUnit(ctx, u); err != nil {
		return u, storage("update work unit", err)
	}
	if err := e.append(ctx, tx, events.UnitExecutedSynced, "work_unit", u.ID, systemActor, events.EventPayload{
		"from":  before.Executed,
		"to":    u.Executed,
		"state": u.State,
	}); err != nil {
		return u, err
	}
	if met {
		if err := e.append(ctx, tx, events.UnitMet, "work_unit", u.ID, systemActor, events.EventPayload{"executed": u.Executed, "target": u.MinTarget}); err != nil {
			return u, err
		}
	}
	return u, nil
}

// MarkMet manually moves a unit to MET once its target is reached.
func (e Engine) MarkMet(ctx context.Context, unitID, actorID string) (domain.WorkUnit, error) {
	return e.transitionUnit(ctx, unitID, actorID, events.UnitMet, func(u *domain.WorkUnit, now string) error {
		switch u.State {
		case domain.UnitCancelled:
			return &DomainError{Kind: ErrAlreadyCancelled, Entity: "work_unit", ID: u.ID}
		case domain.UnitMet:
			return errUnchanged
		}
		if u.MinTarget <= 0 || u.Executed < u.MinTarget {
			return &DomainError{Kind: ErrTargetNotReached, Entity: "work_unit", ID: u.ID, Value: u.Executed,
				Message: fmt.Sprintf("executed %g of target %g", u.Executed, u.MinTarget)}
		}
		u.State = domain.UnitMet
		u.CompletedAt = &now
		return nil
	})
}

// CancelWorkUnit sets CANCELLED and records the reason in the notes.
func (e Engine) CancelWorkUnit(ctx context.Context, unitID, reason, actorID string) (domain.WorkUnit, error) {
	return e.transitionUnit(ctx, unitID, actorID, events.UnitCancelled, func(u *domain.WorkUnit, now string) error {
		if u.State == domain.UnitCancelled {
			return &DomainError{Kind: ErrAlreadyCancelled, Entity: "work_unit", ID: u.ID}
		}
		u.State = domain.UnitCancelled
		u.Notes = appendNote(u.Notes, "cancelled: "+reason)
		return nil
	})
}

func (e Engine) RescheduleWorkUnit(ctx context.Context, unitID, reason, actorID string) (domain.WorkUnit, error) {
	return e.transitionUnit(ctx, unitID, actorID, events.UnitRescheduled, func(u *domain.WorkUnit, now string) error {
		if err := ensureReassignable(*u); err != nil {
			return err
		}
		u.State = domain.UnitRescheduled
		u.Notes = appendNote(u.Notes, "rescheduled: "+reason)
		return nil
	})
}

func (e Engine) ReplaceWorkUnit(ctx context.Context, unitID, replacementID, reason, actorID string) (domain.WorkUnit, error) {
	if replacementID == "" || replacementID == unitID {
		return domain.WorkUnit{}, validation("replacement must be a different work unit")
	}
	if _, err := e.GetWorkUnit(ctx, replacementID); err != nil {
		return domain.WorkUnit{}, err
	}
	return e.transitionUnit(ctx, unitID, actorID, events.UnitReplaced, func(u *domain.WorkUnit, now string) error {
		if err := ensureReassignable(*u); err != nil {
			return err
		}
		u.State = domain.UnitReplaced
		u.ReplacedBy = &replacementID
		u.Notes = appendNote(u.Notes, "replaced by "+replacementID+": "+reason)
		return nil
	})
}

func ensureReassignable(u domain.WorkUnit) error {
	switch u.State {
	case domain.UnitCancelled:
		return &DomainError{Kind: ErrAlreadyCancelled, Entity: "work_unit", ID: u.ID}
	case domain.UnitMet, domain.UnitReplaced:
		return &DomainError{Kind: ErrValidation, Entity: "work_unit", ID: u.ID, Value: u.State, Message: "unit can no longer be reassigned"}
	}
	return nil
}

var errUnchanged = errors.New("unchanged")

func (e Engine) transitionUnit(ctx context.Context, unitID, actorID, evtType string, apply func(u *domain.WorkUnit, now string) error) (domain.WorkUnit, error) {
	unlock := e.lockKey("unit:" + unitID)
	defer unlock()

	tx, r, err := e.begin(ctx)
	if err != nil {
		return domain.WorkUnit{}, err
	}
	defer tx.Rollback()
	u, err := r.GetWorkUnit(ctx, unitID)
	if err != nil {
		return u, lookup("work_unit", unitID, err)
	}
	from := u.State
	now := e.stamp()
	if err := apply(&u, now); err != nil {
		if errors.Is(err, errUnchanged) {
			return u, nil
		}
		return u, err
	}
	u.UpdatedAt = now
	if err := r.UpdateWorkUnit(ctx, u); err != nil {
		return u, storage("update work unit", err)
	}
	if err := e.append(ctx, tx, evtType, "work_unit", u.ID, actorID, events.EventPayload{"from": from, "to": u.State}); err != nil {
		return u, err
	}
	if err := commit(tx); err != nil {
		return u, err
	}
	e.log().Info("work unit transition", "unit", u.Code, "from", from, "to", u.State, "actor", actorID)
	return u, nil
}
