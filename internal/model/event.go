package model

import "github.com/shopspring/decimal"

const EventStatusOnSale = "onsale"

type Event struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Venue    string              `json:"venue"`
	City     string              `json:"city"`
	Date     string              `json:"date"`
	Time     string              `json:"time"`
	PriceMin decimal.NullDecimal `json:"price_min"`
	PriceMax decimal.NullDecimal `json:"price_max"`
	Status   string              `json:"status"`
	URL      string              `json:"url"`
}

func (e Event) OnSale() bool {
	return e.Status == EventStatusOnSale
}

func (e Event) HasPricing() bool {
	return e.PriceMin.Valid
}
