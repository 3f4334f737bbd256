package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/events"
)

type PriceOptions struct {
	UnitID       string
	Price        decimal.Decimal
	NegotiatedBy string
	AuthorizedBy string
	Motive       string
}

// NegotiatePrice appends the next price version for a unit and deactivates the previous one
// in the same transaction.
func (e Engine) NegotiatePrice(ctx context.Context, opts PriceOptions) (domain.NegotiatedPrice, error) {
	if !opts.Price.IsPositive() {
		return domain.NegotiatedPrice{}, &DomainError{Kind: ErrValidation, Entity: "price", ID: opts.UnitID, Value: opts.Price.String(), Message: "price must be positive"}
	}
	if opts.NegotiatedBy == "" || opts.AuthorizedBy == "" {
		return domain.NegotiatedPrice{}, validation("negotiator and authorizer are required")
	}
	if _, err := e.GetWorkUnit(ctx, opts.UnitID); err != nil {
		return domain.NegotiatedPrice{}, err
	}
	unlock := e.lockKey("price:" + opts.UnitID)
	defer unlock()

	tx, r, err := e.begin(ctx)
	if err != nil {
		return domain.NegotiatedPrice{}, err
	}
	defer tx.Rollback()
	maxVersion, err := r.MaxPriceVersion(ctx, opts.UnitID)
	if err != nil {
		return domain.NegotiatedPrice{}, storage("max price version", err)
	}
	now := e.stamp()
	if maxVersion > 0 {
		if _, err := r.DeactivatePrices(ctx, opts.UnitID, now); err != nil {
			return domain.NegotiatedPrice{}, storage("deactivate price", err)
		}
	}
	p := domain.NegotiatedPrice{
		ID:           newID(),
		UnitID:       opts.UnitID,
		Version:      maxVersion + 1,
		Price:        opts.Price,
		ValidFrom:    now,
		Active:       true,
		NegotiatedBy: opts.NegotiatedBy,
		AuthorizedBy: opts.AuthorizedBy,
		Motive:       opts.Motive,
		CreatedAt:    now,
	}
	if err := r.InsertPrice(ctx, p); err != nil {
		return p, storage("insert price", err)
	}
	if err := e.append(ctx, tx, events.PriceNegotiated, "work_unit", opts.UnitID, opts.NegotiatedBy, events.EventPayload{
		"version":       p.Version,
		"price":         p.Price.String(),
		"authorized_by": p.AuthorizedBy,
		"motive":        p.Motive,
	}); err != nil {
		return p, err
	}
	if err := commit(tx); err != nil {
		return p, err
	}
	e.log().Info("price negotiated", "unit", opts.UnitID, "version", p.Version, "price", p.Price.String())
	return p, nil
}

// CurrentPrice returns the single active price of the unit.
func (e Engine) CurrentPrice(ctx context.Context, unitID string) (domain.NegotiatedPrice, error) {
	p, err := e.Repo.ActivePrice(ctx, unitID)
	return p, lookup("price", unitID, err)
}

func (e Engine) PriceHistory(ctx context.Context, unitID string) ([]domain.NegotiatedPrice, error) {
	if _, err := e.GetWorkUnit(ctx, unitID); err != nil {
		return nil, err
	}
	ps, err := e.Repo.PriceHistory(ctx, unitID)
	return ps, storage("price history", err)
}

