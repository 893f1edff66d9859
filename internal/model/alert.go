package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Alert is the append-only audit entry written when a notification went out.
type Alert struct {
	ID        string          `json:"id"`
	WatchID   string          `json:"watch_id"`
	UserID    string          `json:"user_id"`
	EventName string          `json:"event_name"`
	Price     decimal.Decimal `json:"price"`
	SentAt    time.Time       `json:"sent_at"`
}
