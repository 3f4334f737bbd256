package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/engine"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

func registerConsolidations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "consolidate-week",
		Method:      http.MethodPost,
		Path:        "/weeks/{week}/consolidate",
		Summary:     "Consolidate every worker and unit with counted entries in the week",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *weekPath) (*output[engine.ConsolidationBatch], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		batch, err := e.ConsolidateWeek(ctx, input.Week, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(batch), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "consolidate",
		Method:      http.MethodPost,
		Path:        "/weeks/{week}/consolidations",
		Summary:     "Consolidate one worker on one work unit",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Week string             `path:"week"`
		Body ConsolidateRequest `json:"body"`
	}) (*output[domain.WeeklyConsolidation], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.Consolidate(ctx, engine.ConsolidateOptions{
			WeekID:      input.Week,
			WorkerID:    input.Body.WorkerID,
			UnitID:      input.Body.UnitID,
			ActorID:     actorID,
			ForcedState: domain.ConsolidationState(input.Body.ForcedState),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-consolidations",
		Method:      http.MethodGet,
		Path:        "/weeks/{week}/consolidations",
		Summary:     "List the consolidations of a week",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Week     string `path:"week"`
		WorkerID string `query:"worker_id"`
		UnitID   string `query:"unit_id"`
	}) (*output[listResponse[domain.WeeklyConsolidation]], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		w, err := e.GetWeek(ctx, input.Week)
		if err != nil {
			return nil, handleError(err)
		}
		f := repo.ConsolidationFilters{WeekID: w.ID, WorkerID: input.WorkerID}
		if input.UnitID != "" {
			f.UnitIDs = []string{input.UnitID}
		}
		cs, err := e.ListConsolidations(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items(cs)), nil
	})
}

func registerIndicators(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "global-indicators",
		Method:      http.MethodPost,
		Path:        "/weeks/{week}/indicators/global",
		Summary:     "Recompute the GLOBAL indicator snapshot of the week",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *weekPath) (*output[domain.PerformanceIndicator], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.GlobalIndicators(ctx, input.Week)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-indicators-all",
		Method:      http.MethodPost,
		Path:        "/weeks/{week}/indicators/projects",
		Summary:     "Recompute PROJECT snapshots for every project touched in the week",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *weekPath) (*output[engine.ProjectIndicatorBatch], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		batch, err := e.ProjectIndicatorsAll(ctx, input.Week)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(batch), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-indicators",
		Method:      http.MethodPost,
		Path:        "/weeks/{week}/indicators/projects/{project_id}",
		Summary:     "Recompute the PROJECT snapshot of one project",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Week      string `path:"week"`
		ProjectID string `path:"project_id"`
	}) (*output[domain.PerformanceIndicator], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.ProjectIndicators(ctx, input.Week, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-indicators",
		Method:      http.MethodGet,
		Path:        "/weeks/{week}/indicators",
		Summary:     "Stored indicator snapshots of the week",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Week  string `path:"week"`
		Scope string `query:"scope" enum:"GLOBAL,PROJECT,CREW,SUPERVISOR,WORKER"`
	}) (*output[listResponse[domain.PerformanceIndicator]], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		ps, err := e.ListIndicators(ctx, input.Week, domain.ScopeKind(input.Scope))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items(ps)), nil
	})
}

type alertPath struct {
	AlertID string `path:"alert_id"`
}

func registerAlerts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "generate-alerts",
		Method:      http.MethodPost,
		Path:        "/weeks/{week}/alerts/generate",
		Summary:     "Evaluate the alert rules for the week",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *weekPath) (*output[engine.AlertBatch], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		batch, err := e.GenerateAlerts(ctx, input.Week)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(batch), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-alerts",
		Method:      http.MethodGet,
		Path:        "/alerts",
		Summary:     "List alerts",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Week     string `query:"week" doc:"Week id or code"`
		State    string `query:"state" enum:"PENDING,IN_REVIEW,RESOLVED,IGNORED"`
		Kind     string `query:"kind" enum:"LOW_PERFORMANCE,TARGET_NOT_MET"`
		Severity string `query:"severity" enum:"LOW,MEDIUM,HIGH,CRITICAL"`
		EntityID string `query:"entity_id"`
		Limit    int    `query:"limit" default:"50"`
	}) (*output[listResponse[domain.Alert]], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		f := repo.AlertFilters{
			State:    input.State,
			Kind:     input.Kind,
			Severity: input.Severity,
			EntityID: input.EntityID,
			Limit:    normalizeLimit(input.Limit),
		}
		if input.Week != "" {
			w, err := e.GetWeek(ctx, input.Week)
			if err != nil {
				return nil, handleError(err)
			}
			f.WeekID = w.ID
		}
		as, err := e.ListAlerts(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items(as)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-alert",
		Method:      http.MethodGet,
		Path:        "/alerts/{alert_id}",
		Summary:     "Get alert",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *alertPath) (*output[domain.Alert], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		a, err := e.GetAlert(ctx, input.AlertID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-alert",
		Method:      http.MethodPost,
		Path:        "/alerts/{alert_id}/review",
		Summary:     "Move a pending alert to review",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *alertPath) (*output[domain.Alert], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.ReviewAlert(ctx, input.AlertID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})

	type commentInput struct {
		AlertID string         `path:"alert_id"`
		Body    CommentRequest `json:"body" required:"false"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "resolve-alert",
		Method:      http.MethodPost,
		Path:        "/alerts/{alert_id}/resolve",
		Summary:     "Resolve an open alert",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *commentInput) (*output[domain.Alert], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.ResolveAlert(ctx, input.AlertID, actorID, input.Body.Comment)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ignore-alert",
		Method:      http.MethodPost,
		Path:        "/alerts/{alert_id}/ignore",
		Summary:     "Dismiss an open alert",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *commentInput) (*output[domain.Alert], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.IgnoreAlert(ctx, input.AlertID, actorID, input.Body.Comment)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})
}
