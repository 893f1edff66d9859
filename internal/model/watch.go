package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type WatchStatus string

const (
	WatchActive    WatchStatus = "active"
	WatchAlerted   WatchStatus = "alerted"
	WatchCancelled WatchStatus = "cancelled"
)

func (s WatchStatus) Valid() bool {
	switch s {
	case WatchActive, WatchAlerted, WatchCancelled:
		return true
	}
	return false
}

func (s WatchStatus) Terminal() bool {
	return s == WatchAlerted || s == WatchCancelled
}

// CanTransition reports whether a watch in status s may be written with status to.
// Rewriting the current status is always allowed, so status writes stay idempotent.
func (s WatchStatus) CanTransition(to WatchStatus) bool {
	if s == to {
		return true
	}
	return s == WatchActive && to.Terminal()
}

type Watch struct {
	ID          string              `json:"id"`
	UserID      string              `json:"user_id"`
	EventID     string              `json:"event_id"`
	EventName   string              `json:"event_name"`
	Venue       string              `json:"venue"`
	DateStart   string              `json:"date_start"`
	MaxPrice    decimal.NullDecimal `json:"max_price"`
	Quantity    int                 `json:"quantity"`
	Status      WatchStatus         `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	LastChecked *time.Time          `json:"last_checked,omitempty"`
	AlertedAt   *time.Time          `json:"alerted_at,omitempty"`
	BuyURL      string              `json:"buy_url"`
}

// NewWatch is the caller supplied part of a Watch. The store assigns the rest.
type NewWatch struct {
	UserID    string
	EventID   string
	EventName string
	Venue     string
	DateStart string
	MaxPrice  decimal.NullDecimal
	Quantity  int
	BuyURL    string
	// MaxActive caps the user's active watches, checked atomically with the insert.
	// Zero means no cap.
	MaxActive int
}

// CheckedBefore orders watches for a scan: never-checked first, then oldest check first,
// ties broken by creation time.
func CheckedBefore(a, b Watch) bool {
	switch {
	case a.LastChecked == nil && b.LastChecked == nil:
		return a.CreatedAt.Before(b.CreatedAt)
	case a.LastChecked == nil:
		return true
	case b.LastChecked == nil:
		return false
	case a.LastChecked.Equal(*b.LastChecked):
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.LastChecked.Before(*b.LastChecked)
}
