package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/events"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

const systemActor = "system"

// WeekCreateOptions describes an explicitly created week.
type WeekCreateOptions struct {
	StartDate string
	EndDate   string
	ProjectID string
	HubID     string
	Notes     string
	ActorID   string
}

// ResolveOrCreateWeek returns the week covering date, creating the anchored 7-day week when none does.
// Next to an explicit week of another length the new week is shifted to fit beside it.
func (e Engine) ResolveOrCreateWeek(ctx context.Context, date string) (domain.OperationalWeek, error) {
	day, err := parseDate(date)
	if err != nil {
		return domain.OperationalWeek{}, err
	}
	w, err := e.Repo.WeekCovering(ctx, date)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return w, storage("find week", err)
	}
	anchor := e.cfg().Anchor()
	start, end := cycleBounds(day, anchor)
	prevEnd, nextStart, err := e.Repo.NeighbourBounds(ctx, date)
	if err != nil {
		return w, storage("find neighbouring weeks", err)
	}
	start, end, err = fitCycle(start, end, anchor, prevEnd, nextStart)
	if err != nil {
		return w, err
	}
	return e.insertWeek(ctx, start, end, WeekCreateOptions{ActorID: systemActor}, date)
}

// CreateWeek persists an OPEN week with explicit bounds spanning 6 to 8 days.
func (e Engine) CreateWeek(ctx context.Context, opts WeekCreateOptions) (domain.OperationalWeek, error) {
	start, err := parseDate(opts.StartDate)
	if err != nil {
		return domain.OperationalWeek{}, err
	}
	end, err := parseDate(opts.EndDate)
	if err != nil {
		return domain.OperationalWeek{}, err
	}
	if !start.Before(end) {
		return domain.OperationalWeek{}, validation("start %s must be before end %s", opts.StartDate, opts.EndDate)
	}
	if d := spanDays(start, end); d < 6 || d > 8 {
		return domain.OperationalWeek{}, validation("week must span 6 to 8 days, got %d", d)
	}
	if opts.ActorID == "" {
		opts.ActorID = systemActor
	}
	return e.insertWeek(ctx, start, end, opts, "")
}

// insertWeek creates the week unless a concurrent caller already covered coverDate.
func (e Engine) insertWeek(ctx context.Context, start, end time.Time, opts WeekCreateOptions, coverDate string) (domain.OperationalWeek, error) {
	unlock := e.lockKey("weeks")
	defer unlock()

	code, isoYear, isoWeek := weekCode(start)
	now := e.stamp()
	w := domain.OperationalWeek{
		ID:        newID(),
		Code:      code,
		ISOYear:   isoYear,
		ISOWeek:   isoWeek,
		StartDate: formatDate(start),
		EndDate:   formatDate(end),
		ProjectID: optionalString(opts.ProjectID),
		HubID:     optionalString(opts.HubID),
		State:     domain.WeekOpen,
		Notes:     opts.Notes,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, r, err := e.begin(ctx)
	if err != nil {
		return w, err
	}
	defer tx.Rollback()

	if coverDate != "" {
		existing, err := r.WeekCovering(ctx, coverDate)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return w, storage("find week", err)
		}
	}
	n, err := r.CountOverlapping(ctx, w.StartDate, w.EndDate)
	if err != nil {
		return w, storage("count overlapping weeks", err)
	}
	if n > 0 {
		return w, &DomainError{Kind: ErrValidation, Entity: "week", Value: w.StartDate + ".." + w.EndDate,
			Message: "range overlaps an existing week"}
	}
	if err := r.InsertWeek(ctx, w); err != nil {
		if repo.IsUniqueViolation(err) {
			return w, &DomainError{Kind: ErrValidation, Entity: "week", ID: code, Message: "a week with this code already exists"}
		}
		return w, storage("insert week", err)
	}
	if err := e.append(ctx, tx, events.WeekCreated, "week", w.ID, opts.ActorID, events.EventPayload{
		"code":  w.Code,
		"start": w.StartDate,
		"end":   w.EndDate,
	}); err != nil {
		return w, err
	}
	if err := commit(tx); err != nil {
		return w, err
	}
	e.log().Info("week created", "week", w.Code, "start", w.StartDate, "end", w.EndDate)
	return w, nil
}

// GetWeek loads a week by id or code.
func (e Engine) GetWeek(ctx context.Context, ref string) (domain.OperationalWeek, error) {
	w, err := e.Repo.GetWeek(ctx, ref)
	if errors.Is(err, repo.ErrNotFound) {
		w, err = e.Repo.GetWeekByCode(ctx, ref)
	}
	return w, lookup("week", ref, err)
}

func (e Engine) ListWeeks(ctx context.Context, f repo.WeekFilters) ([]domain.OperationalWeek, error) {
	ws, err := e.Repo.ListWeeks(ctx, f)
	return ws, storage("list weeks", err)
}

// CurrentWeek returns the week covering today, creating it if needed.
func (e Engine) CurrentWeek(ctx context.Context) (domain.OperationalWeek, error) {
	return e.ResolveOrCreateWeek(ctx, formatDate(e.today()))
}

// ReopenWeek moves a CLOSED week back to OPEN. Only escalated roles may reopen.
func (e Engine) ReopenWeek(ctx context.Context, ref, actorID string) (domain.OperationalWeek, error) {
	if err := e.requireEscalated(ctx, actorID, "reopening a week"); err != nil {
		return domain.OperationalWeek{}, err
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
	switch w.State {
	case domain.WeekLocked:
		return w, &DomainError{Kind: ErrAlreadyClosed, Entity: "week", ID: w.Code, Value: w.State, Message: "locked weeks cannot be reopened"}
	case domain.WeekOpen:
		return w, &DomainError{Kind: ErrValidation, Entity: "week", ID: w.Code, Value: w.State, Message: "week is not closed"}
	}
	version := w.Version
	w.State = domain.WeekOpen
	w.ClosedBy = nil
	w.ClosedAt = nil
	w.UpdatedAt = e.stamp()
	if err := r.UpdateWeekState(ctx, w, version); err != nil {
		return w, storage("reopen week", err)
	}
	w.Version++
	if _, err := r.SetConsolidationsState(ctx, w.ID, domain.ConsolidationClosed, domain.ConsolidationConsolidated, w.UpdatedAt); err != nil {
		return w, storage("reopen consolidations", err)
	}
	if err := e.append(ctx, tx, events.WeekReopened, "week", w.ID, actorID, events.EventPayload{"code": w.Code}); err != nil {
		return w, err
	}
	if err := commit(tx); err != nil {
		return w, err
	}
	e.log().Info("week reopened", "week", w.Code, "actor", actorID)
	return w, nil
}

// LockWeek freezes an OPEN or CLOSED week permanently.
func (e Engine) LockWeek(ctx context.Context, ref, actorID string) (domain.OperationalWeek, error) {
	if err := e.requireEscalated(ctx, actorID, "locking a week"); err != nil {
		return domain.OperationalWeek{}, err
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
	if w.State == domain.WeekLocked {
		return w, &DomainError{Kind: ErrAlreadyClosed, Entity: "week", ID: w.Code, Value: w.State, Message: "week is already locked"}
	}
	from := w.State
	version := w.Version
	w.State = domain.WeekLocked
	w.UpdatedAt = e.stamp()
	if err := r.UpdateWeekState(ctx, w, version); err != nil {
		return w, storage("lock week", err)
	}
	w.Version++
	if err := e.append(ctx, tx, events.WeekLocked, "week", w.ID, actorID, events.EventPayload{"code": w.Code, "from": from}); err != nil {
		return w, err
	}
	if err := commit(tx); err != nil {
		return w, err
	}
	e.log().Info("week locked", "week", w.Code, "actor", actorID)
	return w, nil
}

// openWeekFor resolves the week of date and fails unless it is OPEN.
func (e Engine) openWeekFor(ctx context.Context, date string) (domain.OperationalWeek, error) {
	w, err := e.ResolveOrCreateWeek(ctx, date)
	if err != nil {
		return w, err
	}
	if w.State != domain.WeekOpen {
		return w, &DomainError{Kind: ErrAlreadyClosed, Entity: "week", ID: w.Code, Value: w.State,
			Message: "entries dated " + date + " belong to a week that is no longer open"}
	}
	return w, nil
}

// mutableWeek loads a week for aggregate writes. Only OPEN weeks accept them; reopen a CLOSED week first.
func (e Engine) mutableWeek(ctx context.Context, ref string) (domain.OperationalWeek, error) {
	w, err := e.GetWeek(ctx, ref)
	if err != nil {
		return w, err
	}
	if w.State != domain.WeekOpen {
		return w, &DomainError{Kind: ErrAlreadyClosed, Entity: "week", ID: w.Code, Value: w.State, Message: "week is " + strings.ToLower(string(w.State))}
	}
	return w, nil
}
