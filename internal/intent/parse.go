package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	DefaultQuantity = 1
	MaxQuantity     = 10
)

var (
	confirmWords = []string{"yes", "y", "yep", "yeah", "confirm", "ok", "okay", "sure"}
	cancelWords  = []string{"cancel", "stop", "remove", "unwatch", "delete"}
	watchWords   = []string{"watch", "alert", "notify", "tell me when", "let me know when"}
	listWords    = []string{"my watches", "list", "what am i", "active", "show my"}
	statusWords  = []string{"update", "updates", "check", "any", "news", "status", "tickets available"}
	searchWords  = []string{"gig", "gigs", "concert", "concerts", "event", "events", "on", "playing",
		"what's", "whats", "show", "shows", "tour", "search", "find"}

	searchFiller = map[string]bool{
		"what": true, "what's": true, "whats": true, "are": true, "is": true, "on": true, "any": true,
		"gig": true, "gigs": true, "concert": true, "concerts": true, "event": true, "events": true,
		"show": true, "shows": true, "tour": true, "playing": true, "there": true, "me": true,
		"find": true, "search": true, "for": true, "tickets": true, "upcoming": true,
		"in": true, "at": true, "near": true,
	}

	watchTriggerRe = regexp.MustCompile(`(?i)\b(?:watch|alert|notify|tell me|let me know)\b(?:\s+(?:me|for|when|about|if|out|on)\b)*`)
	euroPriceRe    = regexp.MustCompile(`(?i)(?:\b(?:under|below|max(?:imum)?|less than|up to|no more than)\s*)?(?:€\s*(\d+(?:\.\d{1,2})?)|\b(\d+(?:\.\d{1,2})?)\s*(?:€|euros?\b|eur\b))`)
	barePriceRe    = regexp.MustCompile(`(?i)\b(?:under|below|max(?:imum)?|less than|up to|no more than)\s+(\d+(?:\.\d{1,2})?)\b`)
	leadingQtyRe   = regexp.MustCompile(`(?i)^\s*(\d+)\s*(?:x\b)?\s*(?:tickets?\b)?\s*(?:for\b|to\b)?`)
	ticketQtyRe    = regexp.MustCompile(`(?i)\b(\d+)\s*(?:x\s*)?tickets?\b`)
	ticketWordRe   = regexp.MustCompile(`(?i)\b(?:tickets?|are available|is available|become available|go on sale|goes on sale|please)\b`)
	cancelRe       = regexp.MustCompile(`(?i)\b(?:cancel|stop|remove|unwatch|delete)\b(?:\s+(?:my|watching|watches|watch|for|alerts|alert|on)\b)*\s*(.*)`)
	spaceRe        = regexp.MustCompile(`\s+`)
)

// Parse classifies text. It never fails: unrecognised text becomes a search.
func Parse(text string) Intent {
	text = strings.TrimSpace(text)
	norm := normalize(text)
	switch {
	case norm == "" || norm == "?":
		return Help{}
	case oneOf(norm, confirmWords):
		return Confirm{}
	case hasAny(norm, cancelWords):
		return parseCancel(text)
	case hasAny(norm, listWords):
		return List{}
	case hasAny(norm, watchWords):
		return parseWatch(text)
	case hasAny(norm, statusWords):
		return Status{}
	case hasAny(norm, []string{"help"}):
		return Help{}
	case hasAny(norm, searchWords):
		return Search{Query: searchQuery(text)}
	case hasAny(norm, []string{"how"}):
		return Help{}
	}
	return Search{Query: cleanName(text)}
}

func parseWatch(text string) Intent {
	rest := text
	if loc := watchTriggerRe.FindStringIndex(rest); loc != nil {
		rest = rest[loc[1]:]
	}

	w := Watch{Quantity: DefaultQuantity}
	if m := euroPriceRe.FindStringSubmatchIndex(rest); m != nil {
		w.MaxPrice = priceAt(rest, m)
		rest = rest[:m[0]] + " " + rest[m[1]:]
	} else if m := barePriceRe.FindStringSubmatchIndex(rest); m != nil {
		w.MaxPrice = priceAt(rest, m)
		rest = rest[:m[0]] + " " + rest[m[1]:]
	}

	if m := leadingQtyRe.FindStringSubmatchIndex(rest); m != nil {
		if q, ok := quantity(rest[m[2]:m[3]]); ok {
			w.Quantity = q
			rest = rest[m[1]:]
		}
	} else if m := ticketQtyRe.FindStringSubmatchIndex(rest); m != nil {
		if q, ok := quantity(rest[m[2]:m[3]]); ok {
			w.Quantity = q
			rest = rest[:m[0]] + " " + rest[m[1]:]
		}
	}

	w.EventName = cleanName(ticketWordRe.ReplaceAllString(rest, " "))
	w.EventName = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(w.EventName, "for "), "to "))
	if w.EventName == "" {
		return Clarify{For: "watch", Message: "What event do you want to watch for?"}
	}
	return w
}

func parseCancel(text string) Intent {
	var name string
	if m := cancelRe.FindStringSubmatch(text); m != nil {
		name = cleanName(m[1])
	}
	if name == "" {
		return Clarify{For: "cancel", Message: "Which watch do you want to cancel? Reply with: 'cancel [event name]'"}
	}
	return Cancel{EventName: name}
}

func searchQuery(text string) string {
	var kept []string
	for _, f := range strings.Fields(cleanName(text)) {
		if !searchFiller[strings.ToLower(f)] {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		return cleanName(text)
	}
	return strings.Join(kept, " ")
}

// priceAt reads the first non-empty submatch of m as a price.
func priceAt(s string, m []int) decimal.NullDecimal {
	for i := 2; i+1 < len(m); i += 2 {
		if m[i] < 0 {
			continue
		}
		if d, err := decimal.NewFromString(s[m[i]:m[i+1]]); err == nil {
			return decimal.NewNullDecimal(d)
		}
	}
	return decimal.NullDecimal{}
}

func quantity(s string) (int, bool) {
	q, err := strconv.Atoi(s)
	if err != nil || q < 1 || q > MaxQuantity {
		return 0, false
	}
	return q, true
}

// cleanName trims punctuation and collapses whitespace.
func cleanName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '?', '!', ',', ';', '"':
			return ' '
		}
		return r
	}, s)
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
	return strings.TrimRight(s, ".")
}

// normalize lowercases s and turns everything except letters, digits, apostrophes and
// question marks into single spaces.
func normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'', r == '?':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return ' '
	}, s)
	s = strings.ReplaceAll(s, "?", " ? ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func oneOf(norm string, words []string) bool {
	for _, w := range words {
		if norm == w {
			return true
		}
	}
	return false
}

// hasAny reports whether norm contains any phrase on word boundaries.
func hasAny(norm string, phrases []string) bool {
	padded := " " + norm + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}
