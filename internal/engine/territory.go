package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/events"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

// SetPlot registers or updates a plot and its farm, hub and zone.
func (e Engine) SetPlot(ctx context.Context, p domain.Plot, actorID string) (domain.Plot, error) {
	if strings.TrimSpace(p.ID) == "" {
		return p, validation("plot id is required")
	}
	tx, r, err := e.begin(ctx)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := r.UpsertPlot(ctx, p); err != nil {
		return p, storage("upsert plot", err)
	}
	if err := e.append(ctx, tx, events.TerritoryPlotSet, "plot", p.ID, actorID, events.EventPayload{
		"farm_id": p.FarmID,
		"hub_id":  p.HubID,
		"zone_id": p.ZoneID,
	}); err != nil {
		return p, err
	}
	return p, commit(tx)
}

func (e Engine) ListPlots(ctx context.Context) ([]domain.Plot, error) {
	ps, err := e.Repo.ListPlots(ctx)
	return ps, storage("list plots", err)
}

// AssignSupervisor activates or deactivates a supervisor scope.
func (e Engine) AssignSupervisor(ctx context.Context, a domain.SupervisorAssignment, actorID string) (domain.SupervisorAssignment, error) {
	if a.SupervisorID == "" || a.ScopeID == "" {
		return a, validation("supervisor and scope are required")
	}
	switch a.Level {
	case domain.LevelPlot, domain.LevelFarm, domain.LevelHub, domain.LevelZone:
	default:
		return a, &DomainError{Kind: ErrValidation, Entity: "assignment", Value: a.Level, Message: "level must be PLOT, FARM, HUB or ZONE"}
	}
	a.CreatedAt = e.stamp()
	tx, r, err := e.begin(ctx)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := r.UpsertAssignment(ctx, a); err != nil {
		return a, storage("upsert assignment", err)
	}
	if err := e.append(ctx, tx, events.TerritoryAssignment, "supervisor", a.SupervisorID, actorID, events.EventPayload{
		"level":  a.Level,
		"scope":  a.ScopeID,
		"active": a.Active,
	}); err != nil {
		return a, err
	}
	return a, commit(tx)
}

func (e Engine) Assignments(ctx context.Context, supervisorID string) ([]domain.SupervisorAssignment, error) {
	as, err := e.Repo.ActiveAssignments(ctx, supervisorID)
	return as, storage("list assignments", err)
}

func (e Engine) GrantRole(ctx context.Context, subjectID, role, actorID string) error {
	return e.changeRole(ctx, subjectID, role, actorID, true)
}

func (e Engine) RevokeRole(ctx context.Context, subjectID, role, actorID string) error {
	return e.changeRole(ctx, subjectID, role, actorID, false)
}

func (e Engine) changeRole(ctx context.Context, subjectID, role, actorID string, grant bool) error {
	subjectID, role = strings.TrimSpace(subjectID), strings.TrimSpace(role)
	if subjectID == "" || role == "" {
		return validation("actor and role are required")
	}
	tx, r, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	evtType := events.RoleGranted
	if grant {
		err = r.AssignRole(ctx, subjectID, role, e.stamp())
	} else {
		evtType = events.RoleRevoked
		err = r.RevokeRole(ctx, subjectID, role)
	}
	if err != nil {
		return storage("change role", err)
	}
	if err := e.append(ctx, tx, evtType, "actor", subjectID, actorID, events.EventPayload{"role": role}); err != nil {
		return err
	}
	return commit(tx)
}

// RequireEscalated fails with ErrAccessDenied unless actorID holds an escalated role.
func (e Engine) RequireEscalated(ctx context.Context, actorID, action string) error {
	return e.requireEscalated(ctx, actorID, action)
}

func (e Engine) ActorRoles(ctx context.Context, actorID string) ([]string, error) {
	roles, err := e.Territory.ActorRoles(ctx, actorID)
	return roles, storage("load roles", err)
}

// CreateAPIKey issues a new key for actorID. The plain key is only returned here.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	if strings.TrimSpace(actorID) == "" {
		return domain.APIKey{}, "", validation("actor is required")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := "nk_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        newID(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.stamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
		return key, "", storage("insert api key", err)
	}
	return key, plain, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	keys, err := e.Repo.ListAPIKeys(ctx, actorID)
	return keys, storage("list api keys", err)
}

func (e Engine) RevokeAPIKey(ctx context.Context, id string) error {
	return lookup("api_key", id, e.Repo.DeleteAPIKey(ctx, id))
}

// ActorForAPIKey resolves the owner of a plain API key.
func (e Engine) ActorForAPIKey(ctx context.Context, plain string) (string, error) {
	key, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(plain))
	if err != nil {
		return "", lookup("api_key", "", err)
	}
	return key.ActorID, nil
}

func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	evs, err := e.Repo.ListEvents(ctx, f)
	return evs, storage("list events", err)
}
