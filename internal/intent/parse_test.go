package intent

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseClassifies(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Watch for 2 Fred Again tickets under €80", "watch"},
		{"What concerts are on in Dublin?", "search"},
		{"My watches", "list"},
		{"what am I watching", "list"},
		{"Cancel Fred Again", "cancel"},
		{"stop watching The 1975", "cancel"},
		{"cancel", "clarify"},
		{"Any updates?", "status"},
		{"check for news", "status"},
		{"watch for Metallica", "watch"},
		{"Help", "help"},
		{"how does this work?", "help"},
		{"?", "help"},
		{"", "help"},
		{"yes", "confirm"},
		{"OK", "confirm"},
		{"Fred Again?", "search"},
		{"watch for", "clarify"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := Parse(tt.text).Name(); got != tt.want {
				t.Fatalf("Parse(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseWatchFields(t *testing.T) {
	tests := []struct {
		text     string
		event    string
		maxPrice string
		quantity int
	}{
		{"Watch for 2 Fred Again tickets under €80", "Fred Again", "80", 2},
		{"Alert me when Electric Picnic tickets are available under 150 euro", "Electric Picnic", "150", 1},
		{"watch 3x The 1975 max €100", "The 1975", "100", 3},
		{"Tell me when Fred Again goes on sale", "Fred Again", "", 1},
		{"notify me about 4 tickets for Bicep below 75.50", "Bicep", "75.50", 4},
		{"watch 1975 tickets", "1975", "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			w, ok := Parse(tt.text).(Watch)
			if !ok {
				t.Fatalf("Parse(%q) is %T, want Watch", tt.text, Parse(tt.text))
			}
			if w.EventName != tt.event {
				t.Fatalf("event = %q, want %q", w.EventName, tt.event)
			}
			if w.Quantity != tt.quantity {
				t.Fatalf("quantity = %d, want %d", w.Quantity, tt.quantity)
			}
			if tt.maxPrice == "" {
				if w.MaxPrice.Valid {
					t.Fatalf("unexpected max price %s", w.MaxPrice.Decimal)
				}
				return
			}
			if !w.MaxPrice.Valid || !w.MaxPrice.Decimal.Equal(decimal.RequireFromString(tt.maxPrice)) {
				t.Fatalf("max price = %+v, want %s", w.MaxPrice, tt.maxPrice)
			}
		})
	}
}

func TestParseCancelName(t *testing.T) {
	for text, want := range map[string]string{
		"Cancel Fred Again":          "Fred Again",
		"stop watching The 1975!":    "The 1975",
		"remove my watch for Picnic": "Picnic",
	} {
		c, ok := Parse(text).(Cancel)
		if !ok || c.EventName != want {
			t.Fatalf("Parse(%q) = %#v, want Cancel{%q}", text, Parse(text), want)
		}
	}
}

func TestParseSearchQuery(t *testing.T) {
	s, ok := Parse("What concerts are on in Dublin?").(Search)
	if !ok || s.Query != "Dublin" {
		t.Fatalf("unexpected search: %#v", Parse("What concerts are on in Dublin?"))
	}
	s, ok = Parse("Fred Again?").(Search)
	if !ok || s.Query != "Fred Again" {
		t.Fatalf("unexpected search: %#v", s)
	}
}
