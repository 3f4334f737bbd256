package domain

import (
	"github.com/shopspring/decimal"
)

// Dates are calendar days formatted as 2006-01-02; timestamps are RFC3339 UTC.
const DateLayout = "2006-01-02"

type WeekState string

const (
	WeekOpen   WeekState = "OPEN"
	WeekClosed WeekState = "CLOSED"
	WeekLocked WeekState = "LOCKED"
)

type OperationalWeek struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	ISOYear   int       `json:"iso_year"`
	ISOWeek   int       `json:"iso_week"`
	StartDate string    `json:"start_date" format:"date"`
	EndDate   string    `json:"end_date" format:"date"`
	ProjectID *string   `json:"project_id,omitempty"`
	HubID     *string   `json:"hub_id,omitempty"`
	State     WeekState `json:"state" enum:"OPEN,CLOSED,LOCKED"`
	ClosedBy  *string   `json:"closed_by,omitempty"`
	ClosedAt  *string   `json:"closed_at,omitempty" format:"date-time"`
	Notes     string    `json:"notes,omitempty"`
	Version   int       `json:"version"`
	CreatedAt string    `json:"created_at" format:"date-time"`
	UpdatedAt string    `json:"updated_at" format:"date-time"`
}

// Contains reports whether the calendar day falls inside [StartDate, EndDate].
func (w OperationalWeek) Contains(date string) bool {
	return date >= w.StartDate && date <= w.EndDate
}

type Activity struct {
	ID            string  `json:"id"`
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	UnitOfMeasure string  `json:"unit_of_measure"`
	DailyRate     float64 `json:"daily_rate"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

type UnitState string

const (
	UnitPending     UnitState = "PENDING"
	UnitInProgress  UnitState = "IN_PROGRESS"
	UnitMet         UnitState = "MET"
	UnitRescheduled UnitState = "RESCHEDULED"
	UnitReplaced    UnitState = "REPLACED"
	UnitCancelled   UnitState = "CANCELLED"
)

// Tracked reports whether the unit still takes part in closure compliance.
func (s UnitState) Tracked() bool {
	return s != UnitMet && s != UnitCancelled
}

type WorkUnit struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	ProjectID    string    `json:"project_id"`
	ActivityID   string    `json:"activity_id"`
	PlotID       string    `json:"plot_id"`
	SupervisorID *string   `json:"supervisor_id,omitempty"`
	Priority     int       `json:"priority"`
	MinTarget    float64   `json:"min_target"`
	Executed     float64   `json:"executed"`
	State        UnitState `json:"state" enum:"PENDING,IN_PROGRESS,MET,RESCHEDULED,REPLACED,CANCELLED"`
	ReplacedBy   *string   `json:"replaced_by,omitempty"`
	StartedAt    *string   `json:"started_at,omitempty" format:"date-time"`
	CompletedAt  *string   `json:"completed_at,omitempty" format:"date-time"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    string    `json:"created_at" format:"date-time"`
	UpdatedAt    string    `json:"updated_at" format:"date-time"`
}

// PercentOfTarget is executed/target*100, or 0 when no target is set.
func (u WorkUnit) PercentOfTarget() float64 {
	if u.MinTarget <= 0 {
		return 0
	}
	return u.Executed / u.MinTarget * 100
}

// Shortfall is how much is still missing to reach the target.
func (u WorkUnit) Shortfall() float64 {
	if u.Executed >= u.MinTarget {
		return 0
	}
	return u.MinTarget - u.Executed
}

type EntryState string

const (
	EntryPending   EntryState = "PENDING"
	EntryApproved  EntryState = "APPROVED"
	EntryRejected  EntryState = "REJECTED"
	EntryCorrected EntryState = "CORRECTED"
)

// Counted reports whether the entry contributes to executed quantities.
func (s EntryState) Counted() bool {
	return s == EntryApproved || s == EntryCorrected
}

type DailyEntry struct {
	ID         string     `json:"id"`
	Date       string     `json:"date" format:"date"`
	WorkerID   string     `json:"worker_id"`
	UnitID     string     `json:"unit_id"`
	Quantity   float64    `json:"quantity"`
	Hours      float64    `json:"hours"`
	RecordedBy string     `json:"recorded_by"`
	State      EntryState `json:"state" enum:"PENDING,APPROVED,REJECTED,CORRECTED"`
	EditedBy   *string    `json:"edited_by,omitempty"`
	EditReason *string    `json:"edit_reason,omitempty"`
	EditedAt   *string    `json:"edited_at,omitempty" format:"date-time"`
	Notes      string     `json:"notes,omitempty"`
	CreatedAt  string     `json:"created_at" format:"date-time"`
	UpdatedAt  string     `json:"updated_at" format:"date-time"`
}

type NoveltyState string

const (
	NoveltyPending  NoveltyState = "PENDING"
	NoveltyApproved NoveltyState = "APPROVED"
	NoveltyRejected NoveltyState = "REJECTED"
)

// Novelty is a worker absence (leave, sickness, permit) spanning whole days.
type Novelty struct {
	ID        string       `json:"id"`
	WorkerID  string       `json:"worker_id"`
	Kind      string       `json:"kind"`
	StartDate string       `json:"start_date" format:"date"`
	EndDate   string       `json:"end_date" format:"date"`
	State     NoveltyState `json:"state" enum:"PENDING,APPROVED,REJECTED"`
	Notes     string       `json:"notes,omitempty"`
	CreatedBy string       `json:"created_by"`
	CreatedAt string       `json:"created_at" format:"date-time"`
	UpdatedAt string       `json:"updated_at" format:"date-time"`
}

type NegotiatedPrice struct {
	ID           string          `json:"id"`
	UnitID       string          `json:"unit_id"`
	Version      int             `json:"version"`
	Price        decimal.Decimal `json:"price"`
	ValidFrom    string          `json:"valid_from" format:"date-time"`
	ValidTo      *string         `json:"valid_to,omitempty" format:"date-time"`
	Active       bool            `json:"active"`
	NegotiatedBy string          `json:"negotiated_by"`
	AuthorizedBy string          `json:"authorized_by"`
	Motive       string          `json:"motive,omitempty"`
	CreatedAt    string          `json:"created_at" format:"date-time"`
}

type ConsolidationState string

const (
	ConsolidationDraft        ConsolidationState = "DRAFT"
	ConsolidationConsolidated ConsolidationState = "CONSOLIDATED"
	ConsolidationApproved     ConsolidationState = "APPROVED"
	ConsolidationClosed       ConsolidationState = "CLOSED"
)

func (s ConsolidationState) Valid() bool {
	switch s {
	case ConsolidationDraft, ConsolidationConsolidated, ConsolidationApproved, ConsolidationClosed:
		return true
	}
	return false
}

type WeeklyConsolidation struct {
	ID                string             `json:"id"`
	WeekID            string             `json:"week_id"`
	WorkerID          string             `json:"worker_id"`
	UnitID            string             `json:"unit_id"`
	DaysWorked        int                `json:"days_worked"`
	TotalHours        float64            `json:"total_hours"`
	TotalExecuted     float64            `json:"total_executed"`
	ExpectedDailyRate float64            `json:"expected_daily_rate"`
	AveragePerDay     float64            `json:"average_per_day"`
	PercentVsExpected float64            `json:"percent_vs_expected"`
	NoveltyDays       int                `json:"novelty_days"`
	State             ConsolidationState `json:"state" enum:"DRAFT,CONSOLIDATED,APPROVED,CLOSED"`
	ConsolidatedBy    *string            `json:"consolidated_by,omitempty"`
	CreatedAt         string             `json:"created_at" format:"date-time"`
	UpdatedAt         string             `json:"updated_at" format:"date-time"`
}

// Classification derives the performance band from PercentVsExpected.
func (c WeeklyConsolidation) Classification() Classification {
	return Classify(c.PercentVsExpected)
}

type Classification string

const (
	ClassExcellent Classification = "EXCELLENT"
	ClassGood      Classification = "GOOD"
	ClassRegular   Classification = "REGULAR"
	ClassLow       Classification = "LOW"
)

func Classify(pct float64) Classification {
	switch {
	case pct >= 100:
		return ClassExcellent
	case pct >= 80:
		return ClassGood
	case pct >= 60:
		return ClassRegular
	default:
		return ClassLow
	}
}

type ScopeKind string

const (
	ScopeGlobal     ScopeKind = "GLOBAL"
	ScopeProject    ScopeKind = "PROJECT"
	ScopeCrew       ScopeKind = "CREW"
	ScopeSupervisor ScopeKind = "SUPERVISOR"
	ScopeWorker     ScopeKind = "WORKER"
)

type PerformanceIndicator struct {
	ID                  string    `json:"id"`
	WeekID              string    `json:"week_id"`
	ScopeKind           ScopeKind `json:"scope_kind" enum:"GLOBAL,PROJECT,CREW,SUPERVISOR,WORKER"`
	ScopeRef            string    `json:"scope_ref,omitempty"`
	Workers             int       `json:"workers"`
	TotalDays           int       `json:"total_days"`
	TotalHours          float64   `json:"total_hours"`
	TotalExecuted       float64   `json:"total_executed"`
	AveragePerDay       float64   `json:"average_per_day"`
	UnitsAssigned       int       `json:"units_assigned"`
	UnitsMet            int       `json:"units_met"`
	TargetCompliancePct float64   `json:"target_compliance_pct"`
	Excellent           int       `json:"excellent"`
	Good                int       `json:"good"`
	Regular             int       `json:"regular"`
	Low                 int       `json:"low"`
	Alerts              int       `json:"alerts"`
	CriticalAlerts      int       `json:"critical_alerts"`
	ComputedAt          string    `json:"computed_at" format:"date-time"`
}

type AlertKind string

const (
	AlertLowPerformance AlertKind = "LOW_PERFORMANCE"
	AlertTargetNotMet   AlertKind = "TARGET_NOT_MET"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

type AlertState string

const (
	AlertPending  AlertState = "PENDING"
	AlertInReview AlertState = "IN_REVIEW"
	AlertResolved AlertState = "RESOLVED"
	AlertIgnored  AlertState = "IGNORED"
)

// Open reports whether the alert still participates in deduplication.
func (s AlertState) Open() bool {
	return s == AlertPending || s == AlertInReview
}

type EntityKind string

const (
	EntityWorker     EntityKind = "WORKER"
	EntityWorkUnit   EntityKind = "WORK_UNIT"
	EntitySupervisor EntityKind = "SUPERVISOR"
	EntityProject    EntityKind = "PROJECT"
)

// EntityRef is a typed reference to the entity an alert or indicator points at.
type EntityRef struct {
	Kind EntityKind `json:"kind" enum:"WORKER,WORK_UNIT,SUPERVISOR,PROJECT"`
	ID   string     `json:"id"`
}

func WorkerRef(id string) EntityRef   { return EntityRef{Kind: EntityWorker, ID: id} }
func WorkUnitRef(id string) EntityRef { return EntityRef{Kind: EntityWorkUnit, ID: id} }

type Alert struct {
	ID         string     `json:"id"`
	Code       string     `json:"code"`
	WeekID     string     `json:"week_id"`
	Kind       AlertKind  `json:"kind" enum:"LOW_PERFORMANCE,TARGET_NOT_MET"`
	Severity   Severity   `json:"severity" enum:"LOW,MEDIUM,HIGH,CRITICAL"`
	Entity     EntityRef  `json:"entity"`
	Observed   float64    `json:"observed"`
	Expected   float64    `json:"expected"`
	Message    string     `json:"message"`
	State      AlertState `json:"state" enum:"PENDING,IN_REVIEW,RESOLVED,IGNORED"`
	ResolvedBy *string    `json:"resolved_by,omitempty"`
	ResolvedAt *string    `json:"resolved_at,omitempty" format:"date-time"`
	Resolution *string    `json:"resolution,omitempty"`
	CreatedAt  string     `json:"created_at" format:"date-time"`
	UpdatedAt  string     `json:"updated_at" format:"date-time"`
}

type Plot struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	FarmID string `json:"farm_id"`
	HubID  string `json:"hub_id"`
	ZoneID string `json:"zone_id"`
}

type ScopeLevel string

const (
	LevelPlot ScopeLevel = "PLOT"
	LevelFarm ScopeLevel = "FARM"
	LevelHub  ScopeLevel = "HUB"
	LevelZone ScopeLevel = "ZONE"
)

type SupervisorAssignment struct {
	SupervisorID string     `json:"supervisor_id"`
	Level        ScopeLevel `json:"level" enum:"PLOT,FARM,HUB,ZONE"`
	ScopeID      string     `json:"scope_id"`
	Active       bool       `json:"active"`
	CreatedAt    string     `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
