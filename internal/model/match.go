package model

import "github.com/shopspring/decimal"

// Match status codes that are not catalog event status codes.
const (
	MatchNotFound    = "not_found"
	MatchNoPricing   = "no_pricing"
	MatchAboveTarget = "above_target"
)

// MatchResult is the outcome of one catalog check for one watch. It is never persisted.
type MatchResult struct {
	Available bool                `json:"available"`
	Price     decimal.NullDecimal `json:"price"`
	PriceMax  decimal.NullDecimal `json:"price_max"`
	Status    string              `json:"status"`
	Details   string              `json:"details"`
}
