package engine

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/engine/auth"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/events"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

// EntryCreateOptions are parameters for recording a daily entry.
type EntryCreateOptions struct {
	Date        string
	WorkerID    string
	UnitID      string
	Quantity    float64
	Hours       float64
	RecordedBy  string
	Notes       string
	AutoApprove bool
}

// EntryUpdateOptions carries the fields to change; nil means unchanged.
type EntryUpdateOptions struct {
	ID       string
	Quantity *float64
	Hours    *float64
	Notes    *string
	Reason   string
	ActorID  string
}

func validateAmounts(quantity, hours float64) error {
	if quantity < 0 || math.IsNaN(quantity) || math.IsInf(quantity, 0) {
		return &DomainError{Kind: ErrValidation, Entity: "entry", Value: quantity, Message: "quantity must be >= 0"}
	}
	if hours < 0 || hours > 24 || math.IsNaN(hours) {
		return &DomainError{Kind: ErrValidation, Entity: "entry", Value: hours, Message: "hours must be within [0,24]"}
	}
	return nil
}

// CreateEntry records one worker's output on one unit for one day.
func (e Engine) CreateEntry(ctx context.Context, opts EntryCreateOptions) (domain.DailyEntry, error) {
	if _, err := parseDate(opts.Date); err != nil {
		return domain.DailyEntry{}, err
	}
	if opts.WorkerID == "" || opts.UnitID == "" || opts.RecordedBy == "" {
		return domain.DailyEntry{}, validation("worker, work unit and recorder are required")
	}
	if err := validateAmounts(opts.Quantity, opts.Hours); err != nil {
		return domain.DailyEntry{}, err
	}
	unit, err := e.GetWorkUnit(ctx, opts.UnitID)
	if err != nil {
		return domain.DailyEntry{}, err
	}
	if unit.State == domain.UnitCancelled {
		return domain.DailyEntry{}, &DomainError{Kind: ErrAlreadyCancelled, Entity: "work_unit", ID: unit.ID, Message: "cannot record on a cancelled unit"}
	}
	escalated, err := e.isEscalated(ctx, opts.RecordedBy)
	if err != nil {
		return domain.DailyEntry{}, err
	}
	if !escalated {
		covers, err := e.Territory.CoversPlot(ctx, opts.RecordedBy, unit.PlotID)
		if err != nil {
			return domain.DailyEntry{}, storage("resolve territory", err)
		}
		if !covers {
			return domain.DailyEntry{}, &DomainError{Kind: ErrAccessDenied, Entity: "work_unit", ID: unit.ID, Value: unit.PlotID,
				Message: auth.OutOfScopeError{SupervisorID: opts.RecordedBy, PlotID: unit.PlotID}.Error()}
		}
		if opts.AutoApprove {
			return domain.DailyEntry{}, &DomainError{Kind: ErrAccessDenied, Entity: "actor", ID: opts.RecordedBy, Message: "auto approval requires an escalated role"}
		}
	}
	if _, err := e.openWeekFor(ctx, opts.Date); err != nil {
		return domain.DailyEntry{}, err
	}
	if _, err := e.Repo.FindEntry(ctx, opts.Date, opts.WorkerID, opts.UnitID); err == nil {
		return domain.DailyEntry{}, duplicateEntry(opts.Date, opts.WorkerID, opts.UnitID)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.DailyEntry{}, storage("find entry", err)
	}

	now := e.stamp()
	entry := domain.DailyEntry{
		ID:         newID(),
		Date:       opts.Date,
		WorkerID:   opts.WorkerID,
		UnitID:     opts.UnitID,
		Quantity:   opts.Quantity,
		Hours:      opts.Hours,
		RecordedBy: opts.RecordedBy,
		State:      domain.EntryPending,
		Notes:      opts.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if opts.AutoApprove {
		entry.State = domain.EntryApproved
	}
	tx, r, err := e.begin(ctx)
	if err != nil {
		return entry, err
	}
	defer tx.Rollback()
	if err := r.InsertEntry(ctx, entry); err != nil {
		if repo.IsUniqueViolation(err) {
			return entry, duplicateEntry(opts.Date, opts.WorkerID, opts.UnitID)
		}
		return entry, storage("insert entry", err)
	}
	if err := e.append(ctx, tx, events.EntryCreated, "entry", entry.ID, opts.RecordedBy, events.EventPayload{
		"date":     entry.Date,
		"worker":   entry.WorkerID,
		"unit":     entry.UnitID,
		"quantity": entry.Quantity,
		"state":    entry.State,
	}); err != nil {
		return entry, err
	}
	if _, err := e.syncExecuted(ctx, tx, r, entry.UnitID); err != nil {
		return entry, err
	}
	return entry, commit(tx)
}

func duplicateEntry(date, workerID, unitID string) error {
	return &DomainError{Kind: ErrDuplicateEntry, Entity: "entry", Value: date + "/" + workerID + "/" + unitID,
		Message: "an entry already exists for this date, worker and work unit"}
}

func (e Engine) GetEntry(ctx context.Context, id string) (domain.DailyEntry, error) {
	en, err := e.Repo.GetEntry(ctx, id)
	return en, lookup("entry", id, err)
}

func (e Engine) ListEntries(ctx context.Context, f repo.EntryFilters) ([]domain.DailyEntry, error) {
	es, err := e.Repo.ListEntries(ctx, f)
	return es, storage("list entries", err)
}

// checkEditable enforces the closing boundary: front-line roles may change an entry until the
// first anchor day after its date, escalated roles at any time. The entry's week must be OPEN.
func (e Engine) checkEditable(ctx context.Context, entry domain.DailyEntry, actorID string) error {
	if actorID == "" {
		return validation("actor is required")
	}
	w, err := e.Repo.WeekCovering(ctx, entry.Date)
	if err == nil && w.State != domain.WeekOpen {
		return &DomainError{Kind: ErrAlreadyClosed, Entity: "week", ID: w.Code, Value: w.State, Message: "entry belongs to a week that is no longer open"}
	}
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return storage("find week", err)
	}
	day, err := parseDate(entry.Date)
	if err != nil {
		return err
	}
	boundary := editBoundary(day, e.cfg().Anchor())
	if !e.today().After(boundary) {
		return nil
	}
	escalated, err := e.isEscalated(ctx, actorID)
	if err != nil {
		return err
	}
	if escalated {
		return nil
	}
	return &DomainError{Kind: ErrEditWindowClosed, Entity: "entry", ID: entry.ID, Value: formatDate(boundary),
		Message: "entries may be edited until " + formatDate(boundary)}
}

// UpdateEntry applies changes within the edit window. A quantity change stamps the edit audit.
func (e Engine) UpdateEntry(ctx context.Context, opts EntryUpdateOptions) (domain.DailyEntry, error) {
	entry, err := e.GetEntry(ctx, opts.ID)
	if err != nil {
		return entry, err
	}
	if entry.State == domain.EntryRejected {
		return entry, &DomainError{Kind: ErrValidation, Entity: "entry", ID: entry.ID, Value: entry.State, Message: "rejected entries cannot be edited"}
	}
	quantity, hours := entry.Quantity, entry.Hours
	if opts.Quantity != nil {
		quantity = *opts.Quantity
	}
	if opts.Hours != nil {
		hours = *opts.Hours
	}
	if err := validateAmounts(quantity, hours); err != nil {
		return entry, err
	}
	if err := e.checkEditable(ctx, entry, opts.ActorID); err != nil {
		return entry, err
	}
	quantityChanged := quantity != entry.Quantity
	if quantityChanged && strings.TrimSpace(opts.Reason) == "" {
		return entry, validation("a reason is required to change the quantity")
	}

	before := entry
	now := e.stamp()
	entry.Quantity = quantity
	entry.Hours = hours
	if opts.Notes != nil {
		entry.Notes = *opts.Notes
	}
	if quantityChanged {
		entry.EditedBy = &opts.ActorID
		reason := opts.Reason
		entry.EditReason = &reason
		entry.EditedAt = &now
		if entry.State == domain.EntryApproved {
			entry.State = domain.EntryCorrected
		}
	}
	entry.UpdatedAt = now

	tx, r, err := e.begin(ctx)
	if err != nil {
		return entry, err
	}
	defer tx.Rollback()
	if err := r.UpdateEntry(ctx, entry); err != nil {
		return entry, lookup("entry", entry.ID, err)
	}
	if err := e.append(ctx, tx, events.EntryUpdated, "entry", entry.ID, opts.ActorID, events.EventPayload{
		"from_quantity": before.Quantity,
		"to_quantity":   entry.Quantity,
		"from_hours":    before.Hours,
		"to_hours":      entry.Hours,
		"reason":        opts.Reason,
		"state":         entry.State,
	}); err != nil {
		return entry, err
	}
	if quantityChanged {
		if _, err := e.syncExecuted(ctx, tx, r, entry.UnitID); err != nil {
			return entry, err
		}
	}
	return entry, commit(tx)
}

// DeleteEntry removes an entry within the edit window and recomputes its unit.
func (e Engine) DeleteEntry(ctx context.Context, id, actorID string) error {
	entry, err := e.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if err := e.checkEditable(ctx, entry, actorID); err != nil {
		return err
	}
	tx, r, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.DeleteEntry(ctx, id); err != nil {
		return lookup("entry", id, err)
	}
	if err := e.append(ctx, tx, events.EntryDeleted, "entry", id, actorID, events.EventPayload{
		"date":     entry.Date,
		"worker":   entry.WorkerID,
		"unit":     entry.UnitID,
		"quantity": entry.Quantity,
	}); err != nil {
		return err
	}
	if _, err := e.syncExecuted(ctx, tx, r, entry.UnitID); err != nil {
		return err
	}
	return commit(tx)
}

// ApproveEntry moves a PENDING entry to APPROVED so it counts toward executed quantities.
func (e Engine) ApproveEntry(ctx context.Context, id, actorID string) (domain.DailyEntry, error) {
	return e.reviewEntry(ctx, id, actorID, "", domain.EntryApproved, events.EntryApproved)
}

// RejectEntry excludes an entry from executed quantities.
func (e Engine) RejectEntry(ctx context.Context, id, reason, actorID string) (domain.DailyEntry, error) {
	return e.reviewEntry(ctx, id, actorID, reason, domain.EntryRejected, events.EntryRejected)
}

func (e Engine) reviewEntry(ctx context.Context, id, actorID, reason string, to domain.EntryState, evtType string) (domain.DailyEntry, error) {
	if err := e.requireEscalated(ctx, actorID, "reviewing entries"); err != nil {
		return domain.DailyEntry{}, err
	}
	entry, err := e.GetEntry(ctx, id)
	if err != nil {
		return entry, err
	}
	allowed := entry.State == domain.EntryPending
	if to == domain.EntryRejected {
		allowed = entry.State != domain.EntryRejected
	}
	if !allowed {
		return entry, &DomainError{Kind: ErrValidation, Entity: "entry", ID: entry.ID, Value: entry.State,
			Message: "entry cannot move from " + string(entry.State) + " to " + string(to)}
	}
	if err := e.checkEditable(ctx, entry, actorID); err != nil {
		return entry, err
	}
	from := entry.State
	entry.State = to
	entry.Notes = appendNote(entry.Notes, reason)
	entry.UpdatedAt = e.stamp()

	tx, r, err := e.begin(ctx)
	if err != nil {
		return entry, err
	}
	defer tx.Rollback()
	if err := r.UpdateEntry(ctx, entry); err != nil {
		return entry, lookup("entry", entry.ID, err)
	}
	if err := e.append(ctx, tx, evtType, "entry", entry.ID, actorID, events.EventPayload{"from": from, "to": to, "reason": reason}); err != nil {
		return entry, err
	}
	if _, err := e.syncExecuted(ctx, tx, r, entry.UnitID); err != nil {
		return entry, err
	}
	return entry, commit(tx)
}

// NoveltyOptions registers a worker absence.
type NoveltyOptions struct {
	WorkerID  string
	Kind      string
	StartDate string
	EndDate   string
	Notes     string
	ActorID   string
}

func (e Engine) RegisterNovelty(ctx context.Context, opts NoveltyOptions) (domain.Novelty, error) {
	if opts.WorkerID == "" || strings.TrimSpace(opts.Kind) == "" {
		return domain.Novelty{}, validation("worker and kind are required")
	}
	start, err := parseDate(opts.StartDate)
	if err != nil {
		return domain.Novelty{}, err
	}
	end, err := parseDate(opts.EndDate)
	if err != nil {
		return domain.Novelty{}, err
	}
	if end.Before(start) {
		return domain.Novelty{}, validation("novelty end %s precedes start %s", opts.EndDate, opts.StartDate)
	}
	now := e.stamp()
	n := domain.Novelty{
		ID:        newID(),
		WorkerID:  opts.WorkerID,
		Kind:      strings.ToUpper(strings.TrimSpace(opts.Kind)),
		StartDate: opts.StartDate,
		EndDate:   opts.EndDate,
		State:     domain.NoveltyPending,
		Notes:     opts.Notes,
		CreatedBy: opts.ActorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, r, err := e.begin(ctx)
	if err != nil {
		return n, err
	}
	defer tx.Rollback()
	if err := r.InsertNovelty(ctx, n); err != nil {
		return n, storage("insert novelty", err)
	}
	if err := e.append(ctx, tx, events.NoveltyRegistered, "novelty", n.ID, opts.ActorID, events.EventPayload{
		"worker": n.WorkerID,
		"kind":   n.Kind,
		"start":  n.StartDate,
		"end":    n.EndDate,
	}); err != nil {
		return n, err
	}
	return n, commit(tx)
}

// SetNoveltyState approves or rejects a PENDING novelty.
func (e Engine) SetNoveltyState(ctx context.Context, id string, state domain.NoveltyState, actorID string) (domain.Novelty, error) {
	if state != domain.NoveltyApproved && state != domain.NoveltyRejected {
		return domain.Novelty{}, &DomainError{Kind: ErrValidation, Entity: "novelty", ID: id, Value: state, Message: "state must be APPROVED or REJECTED"}
	}
	if err := e.requireEscalated(ctx, actorID, "reviewing novelties"); err != nil {
		return domain.Novelty{}, err
	}
	tx, r, err := e.begin(ctx)
	if err != nil {
		return domain.Novelty{}, err
	}
	defer tx.Rollback()
	n, err := r.GetNovelty(ctx, id)
	if err != nil {
		return n, lookup("novelty", id, err)
	}
	if n.State != domain.NoveltyPending {
		return n, &DomainError{Kind: ErrValidation, Entity: "novelty", ID: id, Value: n.State, Message: "novelty was already reviewed"}
	}
	n.State = state
	n.UpdatedAt = e.stamp()
	if err := r.UpdateNoveltyState(ctx, id, state, n.UpdatedAt); err != nil {
		return n, lookup("novelty", id, err)
	}
	if err := e.append(ctx, tx, events.NoveltyStateChanged, "novelty", id, actorID, events.EventPayload{"to": state}); err != nil {
		return n, err
	}
	return n, commit(tx)
}

// ActiveNovelties lists the worker's PENDING and APPROVED novelties overlapping [start, end].
func (e Engine) ActiveNovelties(ctx context.Context, workerID, start, end string) ([]domain.Novelty, error) {
	if _, err := parseDate(start); err != nil {
		return nil, err
	}
	if _, err := parseDate(end); err != nil {
		return nil, err
	}
	ns, err := e.Repo.NoveltiesOverlapping(ctx, workerID, start, end)
	return ns, storage("list novelties", err)
}
