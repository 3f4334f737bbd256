package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/engine"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

type entryPath struct {
	EntryID string `path:"entry_id"`
}

func registerEntries(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-entry",
		Method:        http.MethodPost,
		Path:          "/entries",
		Summary:       "Record a daily entry",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateEntryRequest `json:"body"`
	}) (*output[domain.DailyEntry], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := e.CreateEntry(ctx, engine.EntryCreateOptions{
			Date:        input.Body.Date,
			WorkerID:    input.Body.WorkerID,
			UnitID:      input.Body.UnitID,
			Quantity:    input.Body.Quantity,
			Hours:       input.Body.Hours,
			RecordedBy:  actorID,
			Notes:       input.Body.Notes,
			AutoApprove: input.Body.AutoApprove,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(entry), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-entries",
		Method:      http.MethodGet,
		Path:        "/entries",
		Summary:     "List daily entries",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		From     string   `query:"from" format:"date"`
		To       string   `query:"to" format:"date"`
		WorkerID string   `query:"worker_id"`
		UnitID   string   `query:"unit_id"`
		State    []string `query:"state,explode" enum:"PENDING,APPROVED,REJECTED,CORRECTED"`
	}) (*output[listResponse[domain.DailyEntry]], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		f := repo.EntryFilters{From: input.From, To: input.To, WorkerID: input.WorkerID, UnitID: input.UnitID}
		for _, s := range input.State {
			f.States = append(f.States, domain.EntryState(s))
		}
		es, err := e.ListEntries(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items(es)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-entry",
		Method:      http.MethodGet,
		Path:        "/entries/{entry_id}",
		Summary:     "Get daily entry",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *entryPath) (*output[domain.DailyEntry], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		entry, err := e.GetEntry(ctx, input.EntryID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(entry), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-entry",
		Method:      http.MethodPatch,
		Path:        "/entries/{entry_id}",
		Summary:     "Edit a daily entry within its edit window",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		EntryID string             `path:"entry_id"`
		Body    UpdateEntryRequest `json:"body"`
	}) (*output[domain.DailyEntry], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := e.UpdateEntry(ctx, engine.EntryUpdateOptions{
			ID:       input.EntryID,
			Quantity: input.Body.Quantity,
			Hours:    input.Body.Hours,
			Notes:    input.Body.Notes,
			Reason:   input.Body.Reason,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(entry), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-entry",
		Method:        http.MethodDelete,
		Path:          "/entries/{entry_id}",
		Summary:       "Delete a daily entry within its edit window",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *entryPath) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteEntry(ctx, input.EntryID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-entry",
		Method:      http.MethodPost,
		Path:        "/entries/{entry_id}/approve",
		Summary:     "Approve a pending entry",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *entryPath) (*output[domain.DailyEntry], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := e.ApproveEntry(ctx, input.EntryID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(entry), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-entry",
		Method:      http.MethodPost,
		Path:        "/entries/{entry_id}/reject",
		Summary:     "Reject an entry",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		EntryID string        `path:"entry_id"`
		Body    ReasonRequest `json:"body"`
	}) (*output[domain.DailyEntry], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := e.RejectEntry(ctx, input.EntryID, input.Body.Reason, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(entry), nil
	})
}

func registerNovelties(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-novelty",
		Method:        http.MethodPost,
		Path:          "/novelties",
		Summary:       "Register a worker absence",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateNoveltyRequest `json:"body"`
	}) (*output[domain.Novelty], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.RegisterNovelty(ctx, engine.NoveltyOptions{
			WorkerID:  input.Body.WorkerID,
			Kind:      input.Body.Kind,
			StartDate: input.Body.StartDate,
			EndDate:   input.Body.EndDate,
			Notes:     input.Body.Notes,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(n), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-novelty-state",
		Method:      http.MethodPost,
		Path:        "/novelties/{novelty_id}/state",
		Summary:     "Approve or reject a novelty",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		NoveltyID string                 `path:"novelty_id"`
		Body      SetNoveltyStateRequest `json:"body"`
	}) (*output[domain.Novelty], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.SetNoveltyState(ctx, input.NoveltyID, domain.NoveltyState(input.Body.State), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(n), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "worker-novelties",
		Method:      http.MethodGet,
		Path:        "/workers/{worker_id}/novelties",
		Summary:     "Active novelties of a worker overlapping a date range",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		WorkerID string `path:"worker_id"`
		From     string `query:"from" format:"date" required:"true"`
		To       string `query:"to" format:"date" required:"true"`
	}) (*output[listResponse[domain.Novelty]], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		ns, err := e.ActiveNovelties(ctx, input.WorkerID, input.From, input.To)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items(ns)), nil
	})
}
