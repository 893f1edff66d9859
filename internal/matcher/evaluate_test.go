package matcher

import (
	"testing"

	"github.com/shopspring/decimal"

	"ticketwatch/internal/model"
)

func euros(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

func TestEvaluate(t *testing.T) {
	onsale := model.Event{ID: "E", Status: "onsale", PriceMin: euros(65), PriceMax: euros(145)}
	tests := []struct {
		name      string
		event     model.Event
		maxPrice  decimal.NullDecimal
		available bool
		status    string
		price     int64
	}{
		{"under target", onsale, euros(80), true, "onsale", 65},
		{"exactly at target", onsale, euros(65), true, "onsale", 65},
		{"above target", onsale, euros(50), false, model.MatchAboveTarget, 65},
		{"no target", onsale, decimal.NullDecimal{}, true, "onsale", 65},
		{"offsale", model.Event{Status: "offsale", PriceMin: euros(10)}, decimal.NullDecimal{}, false, "offsale", 0},
		{"no pricing", model.Event{Status: "onsale"}, euros(80), false, model.MatchNoPricing, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(tt.event, tt.maxPrice)
			if res.Available != tt.available || res.Status != tt.status {
				t.Fatalf("got available=%v status=%q, want %v %q (%s)", res.Available, res.Status, tt.available, tt.status, res.Details)
			}
			if tt.price != 0 && (!res.Price.Valid || !res.Price.Decimal.Equal(decimal.NewFromInt(tt.price))) {
				t.Fatalf("price = %+v, want %d", res.Price, tt.price)
			}
			if res.Details == "" {
				t.Fatal("details are empty")
			}
		})
	}
}

func TestEvaluateAboveTargetDetails(t *testing.T) {
	res := Evaluate(model.Event{Status: "onsale", PriceMin: euros(65)}, euros(50))
	if res.Details != "Cheapest ticket €65 (your target: €50)" {
		t.Fatalf("unexpected details: %q", res.Details)
	}
}
