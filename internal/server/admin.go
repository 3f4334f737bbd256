package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/engine"
)

func registerTerritory(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "set-plot",
		Method:      http.MethodPut,
		Path:        "/plots/{plot_id}",
		Summary:     "Create or update a plot and its farm, hub and zone",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		PlotID string         `path:"plot_id"`
		Body   SetPlotRequest `json:"body"`
	}) (*output[domain.Plot], error) {
		actorID, err := requireEscalated(ctx, e, "managing territory")
		if err != nil {
			return nil, err
		}
		p, err := e.SetPlot(ctx, domain.Plot{
			ID:     input.PlotID,
			Name:   input.Body.Name,
			FarmID: input.Body.FarmID,
			HubID:  input.Body.HubID,
			ZoneID: input.Body.ZoneID,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-plots",
		Method:      http.MethodGet,
		Path:        "/plots",
		Summary:     "List plots",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*output[listResponse[domain.Plot]], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		ps, err := e.ListPlots(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items(ps)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-supervisor",
		Method:      http.MethodPost,
		Path:        "/assignments",
		Summary:     "Assign a supervisor to a plot, farm, hub or zone",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Body AssignSupervisorRequest `json:"body"`
	}) (*output[domain.SupervisorAssignment], error) {
		actorID, err := requireEscalated(ctx, e, "managing territory")
		if err != nil {
			return nil, err
		}
		active := true
		if input.Body.Active != nil {
			active = *input.Body.Active
		}
		a, err := e.AssignSupervisor(ctx, domain.SupervisorAssignment{
			SupervisorID: input.Body.SupervisorID,
			Level:        domain.ScopeLevel(input.Body.Level),
			ScopeID:      input.Body.ScopeID,
			Active:       active,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "supervisor-assignments",
		Method:      http.MethodGet,
		Path:        "/supervisors/{supervisor_id}/assignments",
		Summary:     "Active scopes of a supervisor",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		SupervisorID string `path:"supervisor_id"`
	}) (*output[listResponse[domain.SupervisorAssignment]], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		as, err := e.Assignments(ctx, input.SupervisorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items(as)), nil
	})
}

func registerRoles(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "grant-role",
		Method:      http.MethodPost,
		Path:        "/roles/grant",
		Summary:     "Grant a role to an actor",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Body RoleRequest `json:"body"`
	}) (*output[RolesResponse], error) {
		actorID, err := requireEscalated(ctx, e, "granting roles")
		if err != nil {
			return nil, err
		}
		if err := e.GrantRole(ctx, input.Body.ActorID, input.Body.Role, actorID); err != nil {
			return nil, handleError(err)
		}
		return rolesOf(ctx, e, input.Body.ActorID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-role",
		Method:      http.MethodPost,
		Path:        "/roles/revoke",
		Summary:     "Revoke a role from an actor",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Body RoleRequest `json:"body"`
	}) (*output[RolesResponse], error) {
		actorID, err := requireEscalated(ctx, e, "revoking roles")
		if err != nil {
			return nil, err
		}
		if err := e.RevokeRole(ctx, input.Body.ActorID, input.Body.Role, actorID); err != nil {
			return nil, handleError(err)
		}
		return rolesOf(ctx, e, input.Body.ActorID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "actor-roles",
		Method:      http.MethodGet,
		Path:        "/actors/{actor_id}/roles",
		Summary:     "Roles held by an actor",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ActorID string `path:"actor_id"`
	}) (*output[RolesResponse], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		return rolesOf(ctx, e, input.ActorID)
	})
}

func rolesOf(ctx context.Context, e engine.Engine, actorID string) (*output[RolesResponse], error) {
	roles, err := e.ActorRoles(ctx, actorID)
	if err != nil {
		return nil, handleError(err)
	}
	return reply(RolesResponse{ActorID: actorID, Roles: nonNilSlice(roles)}), nil
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Issue an API key for the caller",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body" required:"false"`
	}) (*output[APIKeyResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, plain, err := e.CreateAPIKey(ctx, actorID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(apiKeyResponse(key, plain)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List the caller's API keys",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*output[listResponse[APIKeyResponse]], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.ListAPIKeys(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			out = append(out, apiKeyResponse(k, ""))
		}
		return reply(items(out)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{key_id}",
		Summary:       "Revoke one of the caller's API keys",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.ListAPIKeys(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		owned := false
		for _, k := range keys {
			owned = owned || k.ID == input.KeyID
		}
		if !owned {
			if _, err := requireEscalated(ctx, e, "revoking keys of other actors"); err != nil {
				return nil, err
			}
		}
		if err := e.RevokeAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
