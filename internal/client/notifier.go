package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Notification is everything an alert about one matched watch says.
type Notification struct {
	WatchID   string
	UserID    string
	Contact   string
	EventName string
	Venue     string
	Date      string
	Price     decimal.Decimal
	MaxPrice  decimal.NullDecimal
	Quantity  int
	BuyURL    string
}

// Notifier delivers an alert. Send may be called more than once for the same alert; a
// failure is reported as an error wrapping ErrNotifyFailed.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// FormatPrice renders whole euro amounts without decimals and everything else with cents.
func FormatPrice(d decimal.Decimal) string {
	if d.Equal(d.Truncate(0)) {
		return "€" + d.Truncate(0).String()
	}
	return "€" + d.StringFixed(2)
}

func FormatAlertMessage(n Notification) string {
	var b strings.Builder
	b.WriteString("🚨 TICKETS AVAILABLE!\n\n")
	fmt.Fprintf(&b, "🎵 %s\n", n.EventName)
	fmt.Fprintf(&b, "📍 %s\n", n.Venue)
	fmt.Fprintf(&b, "📅 %s\n", n.Date)
	if n.MaxPrice.Valid {
		fmt.Fprintf(&b, "💰 %s (you wanted under %s)\n", FormatPrice(n.Price), FormatPrice(n.MaxPrice.Decimal))
	} else {
		fmt.Fprintf(&b, "💰 %s\n", FormatPrice(n.Price))
	}
	fmt.Fprintf(&b, "🎟️ %dx tickets\n\n", n.Quantity)
	b.WriteString("⚡ Act fast, these won't last!")
	if n.BuyURL != "" {
		fmt.Fprintf(&b, "\n\nBuy now: %s", n.BuyURL)
	}
	return b.String()
}

func alertTitle(n Notification) string {
	return "Tickets available: " + n.EventName
}
