package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/engine"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

type weekPath struct {
	Week string `path:"week" doc:"Week id or code, e.g. 2024-W10"`
}

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusServiceUnavailable,
}

func registerWeeks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "resolve-week",
		Method:      http.MethodPost,
		Path:        "/weeks/resolve",
		Summary:     "Return the week covering a date, creating it when missing",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Body ResolveWeekRequest `json:"body"`
	}) (*output[domain.OperationalWeek], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		w, err := e.ResolveOrCreateWeek(ctx, input.Body.Date)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(w), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-week",
		Method:        http.MethodPost,
		Path:          "/weeks",
		Summary:       "Create a week with explicit bounds",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateWeekRequest `json:"body"`
	}) (*output[domain.OperationalWeek], error) {
		actorID, err := requireEscalated(ctx, e, "create week")
		if err != nil {
			return nil, err
		}
		w, err := e.CreateWeek(ctx, engine.WeekCreateOptions{
			StartDate: input.Body.StartDate,
			EndDate:   input.Body.EndDate,
			ProjectID: input.Body.ProjectID,
			HubID:     input.Body.HubID,
			Notes:     input.Body.Notes,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(w), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-weeks",
		Method:      http.MethodGet,
		Path:        "/weeks",
		Summary:     "List weeks, newest first",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		State string `query:"state" enum:"OPEN,CLOSED,LOCKED"`
		Limit int    `query:"limit" default:"50"`
	}) (*output[listResponse[domain.OperationalWeek]], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		ws, err := e.ListWeeks(ctx, repo.WeekFilters{State: input.State, Limit: normalizeLimit(input.Limit)})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items(ws)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "current-week",
		Method:      http.MethodGet,
		Path:        "/weeks/current",
		Summary:     "Week covering today, created when missing",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*output[domain.OperationalWeek], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		w, err := e.CurrentWeek(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(w), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-week",
		Method:      http.MethodGet,
		Path:        "/weeks/{week}",
		Summary:     "Get week",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *weekPath) (*output[domain.OperationalWeek], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		w, err := e.GetWeek(ctx, input.Week)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(w), nil
	})
}

func registerClosure(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "week-close-check",
		Method:      http.MethodGet,
		Path:        "/weeks/{week}/close-check",
		Summary:     "List the work units preventing the week from closing",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *weekPath) (*output[CloseCheckResponse], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		check, err := e.CanClose(ctx, input.Week)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(closeCheckResponse(check)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-week",
		Method:      http.MethodPost,
		Path:        "/weeks/{week}/close",
		Summary:     "Close the week when every tracked unit reached its target",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *weekPath) (*output[domain.OperationalWeek], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.CloseWeek(ctx, input.Week, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(w), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reopen-week",
		Method:      http.MethodPost,
		Path:        "/weeks/{week}/reopen",
		Summary:     "Reopen a closed week",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *weekPath) (*output[domain.OperationalWeek], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.ReopenWeek(ctx, input.Week, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(w), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "lock-week",
		Method:      http.MethodPost,
		Path:        "/weeks/{week}/lock",
		Summary:     "Lock a week permanently",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *weekPath) (*output[domain.OperationalWeek], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.LockWeek(ctx, input.Week, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(w), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "process-week",
		Method:      http.MethodPost,
		Path:        "/weeks/{week}/process",
		Summary:     "Consolidate, compute global indicators and generate alerts",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *weekPath) (*output[engine.WeekReport], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		report, err := e.ProcessWeek(ctx, input.Week, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(report), nil
	})
}
