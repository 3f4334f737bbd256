package engine_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/engine"
)

func TestScenarioE_PriceSupersession(t *testing.T) {
	env := newTestEnv(t)
	u := env.unit(t, "proj-a", "plot-1", 10)
	v1, err := env.Engine.NegotiatePrice(env.Ctx, engine.PriceOptions{
		UnitID: u.ID, Price: decimal.NewFromInt(100), NegotiatedBy: supervisor, AuthorizedBy: coordinator, Motive: "season start",
	})
	if err != nil || v1.Version != 1 || !v1.Active {
		t.Fatalf("v1: %+v %v", v1, err)
	}
	v2, err := env.Engine.NegotiatePrice(env.Ctx, engine.PriceOptions{
		UnitID: u.ID, Price: decimal.NewFromInt(120), NegotiatedBy: supervisor, AuthorizedBy: coordinator, Motive: "harder terrain",
	})
	if err != nil || v2.Version != 2 {
		t.Fatalf("v2: %+v %v", v2, err)
	}
	cur, err := env.Engine.CurrentPrice(env.Ctx, u.ID)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if cur.ID != v2.ID || !cur.Price.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("current price %+v, want v2", cur)
	}
	history, err := env.Engine.PriceHistory(env.Ctx, u.ID)
	if err != nil || len(history) != 2 {
		t.Fatalf("history: %d %v", len(history), err)
	}
	old := history[1]
	if old.Version != 1 || old.Active || old.ValidTo == nil {
		t.Fatalf("v1 should be inactive with validity end, got %+v", old)
	}
	if !old.Price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("historical price changed: %s", old.Price)
	}
}

func TestNegotiatePriceKeepsOneActiveVersion(t *testing.T) {
	env := newTestEnv(t)
	u := env.unit(t, "proj-a", "plot-1", 10)
	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.NegotiatePrice(env.Ctx, engine.PriceOptions{
				UnitID: u.ID, Price: decimal.NewFromFloat(1500.25).Add(decimal.NewFromInt(int64(i))), NegotiatedBy: supervisor, AuthorizedBy: coordinator,
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatalf("negotiate: %v", err)
		}
	}
	active, err := env.Engine.Repo.CountActivePrices(env.Ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if active != 1 {
		t.Fatalf("expected one active price, got %d", active)
	}
	cur, err := env.Engine.CurrentPrice(env.Ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cur.Version != n {
		t.Fatalf("active version %d, want %d", cur.Version, n)
	}
	history, err := env.Engine.PriceHistory(env.Ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range history {
		if p.Version != n-i {
			t.Fatalf("history out of order at %d: version %d", i, p.Version)
		}
	}
}

func TestNegotiatePriceValidation(t *testing.T) {
	env := newTestEnv(t)
	u := env.unit(t, "proj-a", "plot-1", 10)
	if _, err := env.Engine.NegotiatePrice(env.Ctx, engine.PriceOptions{UnitID: u.ID, Price: decimal.Zero, NegotiatedBy: "a", AuthorizedBy: "b"}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected zero price to fail, got %v", err)
	}
	if _, err := env.Engine.NegotiatePrice(env.Ctx, engine.PriceOptions{UnitID: "missing", Price: decimal.NewFromInt(1), NegotiatedBy: "a", AuthorizedBy: "b"}); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected missing unit, got %v", err)
	}
	if _, err := env.Engine.CurrentPrice(env.Ctx, u.ID); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected no current price, got %v", err)
	}
}
