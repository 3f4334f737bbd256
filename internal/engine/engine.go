package engine

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/config"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/engine/auth"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/events"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/logger"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

// Engine holds the weekly consolidation and closure operations.
// Statements issued while a transaction is open must go through Repo.WithTx(tx).
type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Territory auth.Service
	Log       *log.Logger
	Now       func() time.Time

	locks *keyedLocks
}

func New(db *sql.DB, cfg *config.Config, l *log.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if l == nil {
		l = logger.Discard()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:        db,
		Repo:      r,
		Events:    events.Writer{},
		Config:    cfg,
		Territory: auth.Service{Repo: r},
		Log:       l,
		Now:       time.Now,
		locks:     newKeyedLocks(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) cfg() *config.Config {
	if e.Config == nil {
		return config.Default()
	}
	return e.Config
}

// today is the current calendar day in the configured time zone.
func (e Engine) today() time.Time {
	n := e.now().In(e.cfg().Location())
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

func (e Engine) log() *log.Logger {
	if e.Log == nil {
		return logger.Discard()
	}
	return e.Log
}

func (e Engine) lockKey(key string) func() {
	if e.locks == nil {
		return sharedLocks.Lock(key)
	}
	return e.locks.Lock(key)
}

func (e Engine) begin(ctx context.Context) (*sql.Tx, repo.Repo, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, repo.Repo{}, storage("begin", err)
	}
	return tx, e.Repo.WithTx(tx), nil
}

func (e Engine) append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	if err := w.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload); err != nil {
		return storage("append event", err)
	}
	return nil
}

func commit(tx *sql.Tx) error {
	return storage("commit", tx.Commit())
}

func newID() string {
	return uuid.New().String()
}

// keyedID is a stable id for an upserted aggregate.
func keyedID(parts ...string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(parts, "|"))).String()
}

// requireEscalated fails with ErrAccessDenied unless actorID holds an escalated role.
func (e Engine) requireEscalated(ctx context.Context, actorID, action string) error {
	if actorID == "" {
		return validation("actor is required")
	}
	err := e.Territory.Require(ctx, actorID, e.cfg().Ledger.EscalatedRoles)
	if err == nil {
		return nil
	}
	if fe, ok := err.(auth.ForbiddenError); ok {
		return &DomainError{Kind: ErrAccessDenied, Entity: "actor", ID: actorID, Value: fe.Roles, Message: action + " requires an escalated role"}
	}
	return storage("load roles", err)
}

func (e Engine) isEscalated(ctx context.Context, actorID string) (bool, error) {
	roles, err := e.Territory.ActorRoles(ctx, actorID)
	if err != nil {
		return false, storage("load roles", err)
	}
	return e.cfg().Escalated(roles), nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func appendNote(notes, line string) string {
	if line == "" {
		return notes
	}
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}
