// Package matcher decides whether a watch's criteria are met and drives the alert.
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ticketwatch/internal/client"
	"ticketwatch/internal/model"
)

// Evaluate applies the match predicate to the current catalog state of an event.
func Evaluate(e model.Event, maxPrice decimal.NullDecimal) model.MatchResult {
	if !e.OnSale() {
		return model.MatchResult{
			Status:  e.Status,
			Details: fmt.Sprintf("Event status: %s", e.Status),
		}
	}
	if !e.HasPricing() {
		return model.MatchResult{
			Status:  model.MatchNoPricing,
			Details: "No pricing information available",
		}
	}

	cheapest := e.PriceMin.Decimal
	if maxPrice.Valid && cheapest.GreaterThan(maxPrice.Decimal) {
		return model.MatchResult{
			Price:  e.PriceMin,
			Status: model.MatchAboveTarget,
			Details: fmt.Sprintf("Cheapest ticket %s (your target: %s)",
				client.FormatPrice(cheapest), client.FormatPrice(maxPrice.Decimal)),
		}
	}
	return model.MatchResult{
		Available: true,
		Price:     e.PriceMin,
		PriceMax:  e.PriceMax,
		Status:    model.EventStatusOnSale,
		Details:   fmt.Sprintf("Tickets available from %s", client.FormatPrice(cheapest)),
	}
}

func notFound() model.MatchResult {
	return model.MatchResult{Status: model.MatchNotFound, Details: "Event not found"}
}
