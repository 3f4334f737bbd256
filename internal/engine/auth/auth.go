package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

// ForbiddenError indicates the actor holds none of the required roles.
type ForbiddenError struct {
	ActorID string
	Roles   []string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("actor %s requires one of roles [%s]", e.ActorID, strings.Join(e.Roles, ", "))
}

// OutOfScopeError indicates a supervisor has no active assignment covering a plot.
type OutOfScopeError struct {
	SupervisorID string
	PlotID       string
}

func (e OutOfScopeError) Error() string {
	return fmt.Sprintf("supervisor %s has no assignment covering plot %s", e.SupervisorID, e.PlotID)
}

// Service resolves roles and territorial scope backed by SQL.
type Service struct {
	Repo repo.Repo
}

func (s Service) ActorRoles(ctx context.Context, actorID string) ([]string, error) {
	if actorID == "" {
		return nil, errors.New("actor_id required")
	}
	return s.Repo.ActorRoles(ctx, actorID)
}

// HasAny reports whether held intersects wanted.
func HasAny(held, wanted []string) bool {
	for _, h := range held {
		for _, w := range wanted {
			if h == w {
				return true
			}
		}
	}
	return false
}

// Require returns ForbiddenError unless actorID holds one of roles.
func (s Service) Require(ctx context.Context, actorID string, roles []string) error {
	held, err := s.ActorRoles(ctx, actorID)
	if err != nil {
		return err
	}
	if !HasAny(held, roles) {
		return ForbiddenError{ActorID: actorID, Roles: roles}
	}
	return nil
}

// Ancestry resolves the plot's farm, hub and zone. Unknown plots resolve to themselves only.
func (s Service) Ancestry(ctx context.Context, plotID string) (domain.Plot, error) {
	p, err := s.Repo.GetPlot(ctx, plotID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Plot{ID: plotID}, nil
	}
	return p, err
}

// CoversPlot reports whether any active assignment of the supervisor covers the plot
// directly or through its farm, hub or zone.
func (s Service) CoversPlot(ctx context.Context, supervisorID, plotID string) (bool, error) {
	plot, err := s.Ancestry(ctx, plotID)
	if err != nil {
		return false, err
	}
	assignments, err := s.Repo.ActiveAssignments(ctx, supervisorID)
	if err != nil {
		return false, err
	}
	for _, a := range assignments {
		var scope string
		switch a.Level {
		case domain.LevelPlot:
			scope = plot.ID
		case domain.LevelFarm:
			scope = plot.FarmID
		case domain.LevelHub:
			scope = plot.HubID
		case domain.LevelZone:
			scope = plot.ZoneID
		}
		if scope != "" && scope == a.ScopeID {
			return true, nil
		}
	}
	return false, nil
}
