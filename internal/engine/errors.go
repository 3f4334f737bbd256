package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

// Error kinds. Match them with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidTarget    = errors.New("invalid target")
	ErrDuplicateEntry   = errors.New("duplicate entry")
	ErrAccessDenied     = errors.New("access denied")
	ErrEditWindowClosed = errors.New("edit window closed")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrAlreadyCancelled = errors.New("already cancelled")
	ErrAlreadyResolved  = errors.New("already resolved")
	ErrTargetNotReached = errors.New("target not reached")
	ErrTargetsUnmet     = errors.New("targets unmet")
	ErrValidation       = errors.New("validation error")
	ErrStorage          = errors.New("storage error")
)

// DomainError carries the entity and offending value behind a kind.
type DomainError struct {
	Kind    error
	Entity  string
	ID      string
	Value   any
	Message string
}

func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Entity != "" {
		b.WriteString(": ")
		b.WriteString(e.Entity)
		if e.ID != "" {
			b.WriteString(" ")
			b.WriteString(e.ID)
		}
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *DomainError) Unwrap() error { return e.Kind }

// BlockingUnit is a work unit preventing a week from closing.
type BlockingUnit struct {
	UnitID    string  `json:"unit_id"`
	Code      string  `json:"code"`
	ProjectID string  `json:"project_id"`
	State     string  `json:"state"`
	Target    float64 `json:"target"`
	Executed  float64 `json:"executed"`
	Shortfall float64 `json:"shortfall"`
}

// TargetsUnmetError lists every unit below target when a close is attempted.
type TargetsUnmetError struct {
	WeekID   string
	Blocking []BlockingUnit
}

func (e *TargetsUnmetError) Error() string {
	codes := make([]string, 0, len(e.Blocking))
	for _, b := range e.Blocking {
		codes = append(codes, fmt.Sprintf("%s (missing %g)", b.Code, b.Shortfall))
	}
	return fmt.Sprintf("targets unmet: week %s blocked by %s", e.WeekID, strings.Join(codes, ", "))
}

func (e *TargetsUnmetError) Unwrap() error { return ErrTargetsUnmet }

// StorageError wraps an infrastructure failure so callers can retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// StageError names the ProcessWeek stage that failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// ItemFailure records one failed item of a batch.
type ItemFailure struct {
	Key string `json:"key"`
	Err string `json:"error"`
}

// BatchError is returned when a batch produced no successful item.
type BatchError struct {
	Op       string
	Failures []ItemFailure
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s: all %d items failed", e.Op, len(e.Failures))
}

// BatchResult reports the failures of a batch that still produced results.
type BatchResult struct {
	Succeeded int           `json:"succeeded"`
	Failures  []ItemFailure `json:"failures,omitempty"`
}

func notFound(entity, id string) error {
	return &DomainError{Kind: ErrNotFound, Entity: entity, ID: id}
}

func validation(msg string, args ...any) error {
	return &DomainError{Kind: ErrValidation, Message: fmt.Sprintf(msg, args...)}
}

func storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	var de *DomainError
	if errors.As(err, &de) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// lookup translates repo.ErrNotFound into a typed not-found and everything else into a storage error.
func lookup(entity, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return notFound(entity, id)
	}
	return storage("get "+entity, err)
}

// Code returns the stable identifier used by the HTTP and CLI layers.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTarget):
		return "invalid_target"
	case errors.Is(err, ErrDuplicateEntry):
		return "duplicate_entry"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrEditWindowClosed):
		return "edit_window_closed"
	case errors.Is(err, ErrAlreadyClosed):
		return "already_closed"
	case errors.Is(err, ErrAlreadyCancelled):
		return "already_cancelled"
	case errors.Is(err, ErrAlreadyResolved):
		return "already_resolved"
	case errors.Is(err, ErrTargetNotReached):
		return "target_not_reached"
	case errors.Is(err, ErrTargetsUnmet):
		return "targets_unmet"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrStorage):
		return "storage_error"
	default:
		return "internal"
	}
}
