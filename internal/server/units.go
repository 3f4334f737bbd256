package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/engine"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

type unitPath struct {
	UnitID string `path:"unit_id"`
}

func registerActivities(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-activity",
		Method:        http.MethodPost,
		Path:          "/activities",
		Summary:       "Create activity",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateActivityRequest `json:"body"`
	}) (*output[domain.Activity], error) {
		actorID, err := requireEscalated(ctx, e, "creating activities")
		if err != nil {
			return nil, err
		}
		a, err := e.CreateActivity(ctx, engine.ActivityOptions{
			Code:          input.Body.Code,
			Name:          input.Body.Name,
			UnitOfMeasure: input.Body.UnitOfMeasure,
			DailyRate:     input.Body.DailyRate,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-activities",
		Method:      http.MethodGet,
		Path:        "/activities",
		Summary:     "List activities",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*output[listResponse[domain.Activity]], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		as, err := e.ListActivities(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items(as)), nil
	})
}

func registerUnits(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-work-unit",
		Method:        http.MethodPost,
		Path:          "/units",
		Summary:       "Create work unit",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateWorkUnitRequest `json:"body"`
	}) (*output[domain.WorkUnit], error) {
		actorID, err := requireEscalated(ctx, e, "creating work units")
		if err != nil {
			return nil, err
		}
		u, err := e.CreateWorkUnit(ctx, engine.WorkUnitOptions{
			Code:         input.Body.Code,
			ProjectID:    input.Body.ProjectID,
			ActivityID:   input.Body.ActivityID,
			PlotID:       input.Body.PlotID,
			SupervisorID: input.Body.SupervisorID,
			Priority:     input.Body.Priority,
			MinTarget:    input.Body.MinTarget,
			Notes:        input.Body.Notes,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-work-units",
		Method:      http.MethodGet,
		Path:        "/units",
		Summary:     "List work units",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
		State     string `query:"state" enum:"PENDING,IN_PROGRESS,MET,RESCHEDULED,REPLACED,CANCELLED"`
		PlotID    string `query:"plot_id"`
		Limit     int    `query:"limit" default:"50"`
	}) (*output[listResponse[domain.WorkUnit]], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		us, err := e.ListWorkUnits(ctx, repo.UnitFilters{
			ProjectID: input.ProjectID,
			State:     input.State,
			PlotID:    input.PlotID,
			Limit:     normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items(us)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-work-unit",
		Method:      http.MethodGet,
		Path:        "/units/{unit_id}",
		Summary:     "Get work unit",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *unitPath) (*output[domain.WorkUnit], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		u, err := e.GetWorkUnit(ctx, input.UnitID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "increase-target",
		Method:      http.MethodPost,
		Path:        "/units/{unit_id}/target",
		Summary:     "Raise the minimum target of a work unit",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		UnitID string                `path:"unit_id"`
		Body   IncreaseTargetRequest `json:"body"`
	}) (*output[domain.WorkUnit], error) {
		actorID, err := requireEscalated(ctx, e, "changing targets")
		if err != nil {
			return nil, err
		}
		u, err := e.IncreaseTarget(ctx, input.UnitID, input.Body.MinTarget, input.Body.Reason, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recompute-executed",
		Method:      http.MethodPost,
		Path:        "/units/{unit_id}/recompute",
		Summary:     "Recompute executed quantity from approved entries",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *unitPath) (*output[domain.WorkUnit], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		u, err := e.RecomputeExecuted(ctx, input.UnitID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-met",
		Method:      http.MethodPost,
		Path:        "/units/{unit_id}/met",
		Summary:     "Mark a work unit as having met its target",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *unitPath) (*output[domain.WorkUnit], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.MarkMet(ctx, input.UnitID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(u), nil
	})

	type reasonInput struct {
		UnitID string        `path:"unit_id"`
		Body   ReasonRequest `json:"body"`
	}
	for _, t := range []struct {
		id, path, summary, action string
		apply                     func(ctx context.Context, unitID, reason, actorID string) (domain.WorkUnit, error)
	}{
		{"cancel-work-unit", "/units/{unit_id}/cancel", "Cancel a work unit", "cancelling work units", e.CancelWorkUnit},
		{"reschedule-work-unit", "/units/{unit_id}/reschedule", "Reschedule a work unit", "rescheduling work units", e.RescheduleWorkUnit},
	} {
		huma.Register(api, huma.Operation{
			OperationID: t.id,
			Method:      http.MethodPost,
			Path:        t.path,
			Summary:     t.summary,
			Errors:      writeErrors,
		}, func(ctx context.Context, input *reasonInput) (*output[domain.WorkUnit], error) {
			actorID, err := requireEscalated(ctx, e, t.action)
			if err != nil {
				return nil, err
			}
			u, err := t.apply(ctx, input.UnitID, input.Body.Reason, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			return reply(u), nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "replace-work-unit",
		Method:      http.MethodPost,
		Path:        "/units/{unit_id}/replace",
		Summary:     "Replace a work unit by another one",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		UnitID string                 `path:"unit_id"`
		Body   ReplaceWorkUnitRequest `json:"body"`
	}) (*output[domain.WorkUnit], error) {
		actorID, err := requireEscalated(ctx, e, "replacing work units")
		if err != nil {
			return nil, err
		}
		u, err := e.ReplaceWorkUnit(ctx, input.UnitID, input.Body.ReplacementID, input.Body.Reason, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(u), nil
	})
}

func registerPrices(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "negotiate-price",
		Method:        http.MethodPost,
		Path:          "/units/{unit_id}/prices",
		Summary:       "Append a new negotiated price version",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		UnitID string                `path:"unit_id"`
		Body   NegotiatePriceRequest `json:"body"`
	}) (*output[PriceResponse], error) {
		actorID, err := requireEscalated(ctx, e, "negotiating prices")
		if err != nil {
			return nil, err
		}
		price, perr := decimal.NewFromString(strings.TrimSpace(input.Body.Price))
		if perr != nil {
			return nil, newAPIError(http.StatusBadRequest, "validation_error", "price must be a decimal amount", map[string]any{"price": input.Body.Price})
		}
		authorizer := input.Body.AuthorizedBy
		if authorizer == "" {
			authorizer = actorID
		}
		p, err := e.NegotiatePrice(ctx, engine.PriceOptions{
			UnitID:       input.UnitID,
			Price:        price,
			NegotiatedBy: actorID,
			AuthorizedBy: authorizer,
			Motive:       input.Body.Motive,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(priceResponse(p)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "current-price",
		Method:      http.MethodGet,
		Path:        "/units/{unit_id}/prices/current",
		Summary:     "Active negotiated price of a work unit",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *unitPath) (*output[PriceResponse], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.CurrentPrice(ctx, input.UnitID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(priceResponse(p)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "price-history",
		Method:      http.MethodGet,
		Path:        "/units/{unit_id}/prices",
		Summary:     "Every price version of a work unit, newest first",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *unitPath) (*output[listResponse[PriceResponse]], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		ps, err := e.PriceHistory(ctx, input.UnitID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items(mapPrices(ps))), nil
	})
}
