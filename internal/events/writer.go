package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written by the engine.
const (
	WeekCreated         = "week.created"
	WeekClosed          = "week.closed"
	WeekReopened        = "week.reopened"
	WeekLocked          = "week.locked"
	ActivityCreated     = "activity.created"
	UnitCreated         = "unit.created"
	UnitTargetRaised    = "unit.target_raised"
	UnitExecutedSynced  = "unit.executed_synced"
	UnitMet             = "unit.met"
	UnitCancelled       = "unit.cancelled"
	UnitRescheduled     = "unit.rescheduled"
	UnitReplaced        = "unit.replaced"
	EntryCreated        = "entry.created"
	EntryUpdated        = "entry.updated"
	EntryDeleted        = "entry.deleted"
	EntryApproved       = "entry.approved"
	EntryRejected       = "entry.rejected"
	NoveltyRegistered   = "novelty.registered"
	NoveltyStateChanged = "novelty.state_changed"
	PriceNegotiated     = "price.negotiated"
	WeekConsolidated    = "week.consolidated"
	IndicatorsComputed  = "indicators.computed"
	AlertRaised         = "alert.raised"
	AlertStateChanged   = "alert.state_changed"
	TerritoryPlotSet    = "territory.plot_set"
	TerritoryAssignment = "territory.assignment_set"
	RoleGranted         = "role.granted"
	RoleRevoked         = "role.revoked"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one audit row inside tx.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
