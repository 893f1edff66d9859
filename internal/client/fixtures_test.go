package client

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

func TestFixturesSearch(t *testing.T) {
	f := NewFixtures()
	ctx := context.Background()

	events, err := f.Search(ctx, "FRED", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(events) != 1 || events[0].Name != "Fred Again" {
		t.Fatalf("unexpected events: %+v", events)
	}

	events, _ = f.Search(ctx, "no such band", 10)
	if len(events) != 3 {
		t.Fatalf("expected all fixtures as fallback, got %d", len(events))
	}
	events, _ = f.Search(ctx, "", 2)
	if len(events) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(events))
	}
}

func TestFixturesMutation(t *testing.T) {
	f := NewFixtures()
	ctx := context.Background()

	if err := f.SetStatus("Z123xZaZeEe22", "onsale"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	seventy := decimal.NewNullDecimal(decimal.NewFromInt(70))
	if err := f.SetPrices("Z123xZaZeEe22", seventy, seventy); err != nil {
		t.Fatalf("set prices: %v", err)
	}
	e, err := f.Get(ctx, "Z123xZaZeEe22")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !e.OnSale() || !e.PriceMin.Decimal.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("mutation not visible: %+v", e)
	}

	if err = f.SetStatus("nope", "onsale"); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
	if _, err = f.Get(ctx, "nope"); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}
