package client

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"ticketwatch/internal/model"
)

// Fixtures is an in-process catalog of a few Irish events. Its status and prices can be
// changed while running.
type Fixtures struct {
	mu     sync.RWMutex
	events []model.Event
}

func NewFixtures() *Fixtures {
	return &Fixtures{events: []model.Event{
		fixture("Z698xZaZeEe11", "Fred Again", "3Arena Dublin", "Dublin", "2026-03-15", "20:00", 65, 145, "onsale",
			"https://www.ticketmaster.ie/fred-again-dublin-03-15-2026/event/12345"),
		fixture("Z123xZaZeEe22", "The 1975", "O2 Dublin", "Dublin", "2026-04-20", "19:30", 75, 125, "offsale",
			"https://www.ticketmaster.ie/the-1975-dublin-04-20-2026/event/67890"),
		fixture("Z456xZaZeEe33", "Electric Picnic", "Laois Picnic", "Laois", "2026-09-05", "11:00", 125, 185, "offsale",
			"https://www.ticketmaster.ie/electric-picnic-laois-09-05-2026/event/11111"),
	}}
}

func fixture(id, name, venue, city, date, tm string, min, max int64, status, url string) model.Event {
	return model.Event{
		ID:       id,
		Name:     name,
		Venue:    venue,
		City:     city,
		Date:     date,
		Time:     tm,
		PriceMin: decimal.NewNullDecimal(decimal.NewFromInt(min)),
		PriceMax: decimal.NewNullDecimal(decimal.NewFromInt(max)),
		Status:   status,
		URL:      url,
	}
}

// Search matches query as a case-insensitive substring of the event name. When nothing
// matches every fixture is returned, up to limit.
func (f *Fixtures) Search(_ context.Context, query string, limit int) ([]model.Event, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	var out []model.Event
	for _, e := range f.events {
		if q != "" && strings.Contains(strings.ToLower(e.Name), q) {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		out = append(out, f.events...)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Fixtures) Get(_ context.Context, eventID string) (model.Event, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, e := range f.events {
		if e.ID == eventID {
			return e, nil
		}
	}
	return model.Event{}, errors.Wrapf(ErrEventNotFound, "event ID: %s", eventID)
}

func (f *Fixtures) SetStatus(eventID string, status string) error {
	return f.update(eventID, func(e *model.Event) { e.Status = status })
}

// SetPrices replaces the price range. Pass invalid NullDecimals to drop pricing.
func (f *Fixtures) SetPrices(eventID string, min, max decimal.NullDecimal) error {
	return f.update(eventID, func(e *model.Event) {
		e.PriceMin = min
		e.PriceMax = max
	})
}

// Add inserts or replaces an event.
func (f *Fixtures) Add(e model.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.events {
		if f.events[i].ID == e.ID {
			f.events[i] = e
			return
		}
	}
	f.events = append(f.events, e)
}

func (f *Fixtures) update(eventID string, fn func(e *model.Event)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.events {
		if f.events[i].ID == eventID {
			fn(&f.events[i])
			return nil
		}
	}
	return errors.Wrapf(ErrEventNotFound, "event ID: %s", eventID)
}
