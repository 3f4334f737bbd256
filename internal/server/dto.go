package server

import (
	"encoding/json"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/engine"
)

// Request payloads

type ResolveWeekRequest struct {
	Date string `json:"date" format:"date" doc:"Any calendar day; the covering week is created when missing"`
}

type CreateWeekRequest struct {
	StartDate string `json:"start_date" format:"date"`
	EndDate   string `json:"end_date" format:"date"`
	ProjectID string `json:"project_id,omitempty"`
	HubID     string `json:"hub_id,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

type CreateActivityRequest struct {
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	UnitOfMeasure string  `json:"unit_of_measure,omitempty"`
	DailyRate     float64 `json:"daily_rate" minimum:"0"`
}

type CreateWorkUnitRequest struct {
	Code         string  `json:"code,omitempty"`
	ProjectID    string  `json:"project_id"`
	ActivityID   string  `json:"activity_id"`
	PlotID       string  `json:"plot_id"`
	SupervisorID string  `json:"supervisor_id,omitempty"`
	Priority     int     `json:"priority,omitempty"`
	MinTarget    float64 `json:"min_target" minimum:"0"`
	Notes        string  `json:"notes,omitempty"`
}

type IncreaseTargetRequest struct {
	MinTarget float64 `json:"min_target"`
	Reason    string  `json:"reason"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type ReplaceWorkUnitRequest struct {
	ReplacementID string `json:"replacement_id"`
	Reason        string `json:"reason"`
}

type CreateEntryRequest struct {
	Date        string  `json:"date" format:"date"`
	WorkerID    string  `json:"worker_id"`
	UnitID      string  `json:"unit_id"`
	Quantity    float64 `json:"quantity"`
	Hours       float64 `json:"hours"`
	Notes       string  `json:"notes,omitempty"`
	AutoApprove bool    `json:"auto_approve,omitempty" doc:"Escalated roles only"`
}

type UpdateEntryRequest struct {
	Quantity *float64 `json:"quantity,omitempty"`
	Hours    *float64 `json:"hours,omitempty"`
	Notes    *string  `json:"notes,omitempty"`
	Reason   string   `json:"reason,omitempty" doc:"Required when quantity changes"`
}

type CreateNoveltyRequest struct {
	WorkerID  string `json:"worker_id"`
	Kind      string `json:"kind"`
	StartDate string `json:"start_date" format:"date"`
	EndDate   string `json:"end_date" format:"date"`
	Notes     string `json:"notes,omitempty"`
}

type SetNoveltyStateRequest struct {
	State string `json:"state" enum:"PENDING,APPROVED,REJECTED"`
}

type NegotiatePriceRequest struct {
	Price        string `json:"price" pattern:"^[0-9]+(\\.[0-9]+)?$" doc:"Decimal amount, sent as a string to keep precision"`
	AuthorizedBy string `json:"authorized_by,omitempty" doc:"Defaults to the caller"`
	Motive       string `json:"motive,omitempty"`
}

type ConsolidateRequest struct {
	WorkerID    string `json:"worker_id"`
	UnitID      string `json:"unit_id"`
	ForcedState string `json:"forced_state,omitempty" enum:"DRAFT,CONSOLIDATED,APPROVED,CLOSED"`
}

type CommentRequest struct {
	Comment string `json:"comment,omitempty"`
}

type SetPlotRequest struct {
	Name   string `json:"name,omitempty"`
	FarmID string `json:"farm_id,omitempty"`
	HubID  string `json:"hub_id,omitempty"`
	ZoneID string `json:"zone_id,omitempty"`
}

type AssignSupervisorRequest struct {
	SupervisorID string `json:"supervisor_id"`
	Level        string `json:"level" enum:"PLOT,FARM,HUB,ZONE"`
	ScopeID      string `json:"scope_id"`
	Active       *bool  `json:"active,omitempty"`
}

type RoleRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles,omitempty"`
}

// Responses

type listResponse[T any] struct {
	Items []T `json:"items"`
}

type PriceResponse struct {
	ID           string  `json:"id"`
	UnitID       string  `json:"unit_id"`
	Version      int     `json:"version"`
	Price        string  `json:"price"`
	ValidFrom    string  `json:"valid_from" format:"date-time"`
	ValidTo      *string `json:"valid_to,omitempty" format:"date-time"`
	Active       bool    `json:"active"`
	NegotiatedBy string  `json:"negotiated_by"`
	AuthorizedBy string  `json:"authorized_by"`
	Motive       string  `json:"motive,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Key is only present on creation.
	Key string `json:"key,omitempty"`
}

type RolesResponse struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles"`
}

type WhoAmIResponse struct {
	ActorID   string   `json:"actor_id"`
	Source    string   `json:"source"`
	Roles     []string `json:"roles"`
	Escalated bool     `json:"escalated"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type CloseCheckResponse struct {
	WeekID   string                `json:"week_id"`
	Allowed  bool                  `json:"allowed"`
	Reasons  []string              `json:"reasons"`
	Blocking []engine.BlockingUnit `json:"blocking_units"`
}

// Conversion helpers

func priceResponse(p domain.NegotiatedPrice) PriceResponse {
	return PriceResponse{
		ID:           p.ID,
		UnitID:       p.UnitID,
		Version:      p.Version,
		Price:        p.Price.String(),
		ValidFrom:    p.ValidFrom,
		ValidTo:      p.ValidTo,
		Active:       p.Active,
		NegotiatedBy: p.NegotiatedBy,
		AuthorizedBy: p.AuthorizedBy,
		Motive:       p.Motive,
		CreatedAt:    p.CreatedAt,
	}
}

func mapPrices(items []domain.NegotiatedPrice) []PriceResponse {
	out := make([]PriceResponse, 0, len(items))
	for _, p := range items {
		out = append(out, priceResponse(p))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func apiKeyResponse(k domain.APIKey, plain string) APIKeyResponse {
	return APIKeyResponse{
		ID:        k.ID,
		ActorID:   k.ActorID,
		Name:      k.Name,
		CreatedAt: k.CreatedAt,
		Key:       plain,
	}
}

func closeCheckResponse(c engine.CloseCheck) CloseCheckResponse {
	return CloseCheckResponse{
		WeekID:   c.WeekID,
		Allowed:  c.Allowed,
		Reasons:  nonNilSlice(c.Reasons),
		Blocking: nonNilSlice(c.Blocking),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

func items[T any](in []T) listResponse[T] {
	return listResponse[T]{Items: nonNilSlice(in)}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
