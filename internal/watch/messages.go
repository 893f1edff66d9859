package watch

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"ticketwatch/internal/admission"
	"ticketwatch/internal/client"
	"ticketwatch/internal/database"
	"ticketwatch/internal/intent"
	"ticketwatch/internal/model"
)

// Reply is the conversational answer to one message.
type Reply struct {
	Intent  string        `json:"intent"`
	Message string        `json:"message"`
	Token   string        `json:"token,omitempty"`
	Events  []model.Event `json:"events,omitempty"`
	Watches []model.Watch `json:"watches,omitempty"`
	WatchID string        `json:"watch_id,omitempty"`
}

const helpMessage = `🎫 TicketWatch Help

I help you find and watch for sold-out concert tickets in Ireland!

Commands:
• "Watch for [artist] under €[price]" - Create a ticket watch
• "My watches" - See your active watches
• "Cancel [artist]" - Remove a watch
• "[Artist name]?" - Search for events
• "Any updates?" - Check your watches for new tickets

Pricing:
🆓 Free: 1 active watch
💳 Premium: Unlimited watches

Say 'watch for Bicep under €75' to start!`

// HandleMessage records the user's activity, classifies text and runs the command. token
// is the pending confirmation token from an earlier watch reply, if any. An empty contact
// keeps the one on record. Only failures of the store or catalog are returned as errors,
// anything the user can fix is a Reply.
func (s *Service) HandleMessage(ctx context.Context, userID string, contact string, text string, token string) (Reply, error) {
	if contact == "" {
		if u, err := s.Store.UserFindByID(ctx, userID); err == nil {
			contact = u.Contact
		}
	}
	if err := s.UpsertUser(ctx, userID, contact); err != nil {
		return Reply{}, err
	}
	s.Logger.Debugf("HandleMessage: user: %s, text: %q", userID, text)

	switch in := intent.Parse(text).(type) {
	case intent.Search:
		return s.replySearch(ctx, in)
	case intent.Watch:
		return s.replyWatch(ctx, userID, in)
	case intent.Confirm:
		return s.replyConfirm(ctx, userID, token)
	case intent.List:
		return s.replyList(ctx, userID)
	case intent.Cancel:
		return s.replyCancel(ctx, userID, in)
	case intent.Status:
		return s.replyStatus(ctx, userID)
	case intent.Clarify:
		return Reply{Intent: in.For, Message: in.Message}, nil
	default:
		return Reply{Intent: "help", Message: helpMessage}, nil
	}
}

func (s *Service) replySearch(ctx context.Context, in intent.Search) (Reply, error) {
	events, err := s.Search(ctx, in.Query, DefaultSearchLimit)
	if errors.Is(err, ErrInvalidRequest) {
		return Reply{Intent: "search", Message: "What events are you looking for?"}, nil
	}
	if err != nil {
		return Reply{}, err
	}
	if len(events) == 0 {
		return Reply{
			Intent:  "search",
			Message: fmt.Sprintf("No events found for '%s'. Try a different artist or venue name.", in.Query),
		}, nil
	}

	lines := []string{fmt.Sprintf("🎵 Found %d events:\n", len(events))}
	for i, e := range events {
		lines = append(lines, fmt.Sprintf("%d. %s\n   📍 %s, %s\n   📅 %s %s\n   💰 %s\n   %s %s",
			i+1, e.Name, e.Venue, e.City, e.Date, e.Time, priceRange(e.PriceMin, e.PriceMax), statusEmoji(e.Status), e.Status))
	}
	lines = append(lines, "\nWant to watch for any of these? Say 'watch for [event] under €[price]'")
	return Reply{Intent: "search", Message: strings.Join(lines, "\n"), Events: events}, nil
}

func (s *Service) replyWatch(ctx context.Context, userID string, in intent.Watch) (Reply, error) {
	pw, err := s.Propose(ctx, userID, ProposeRequest{EventName: in.EventName, MaxPrice: in.MaxPrice, Quantity: in.Quantity})
	var de *admission.DeniedError
	switch {
	case errors.As(err, &de):
		return Reply{Intent: "watch", Message: deniedMessage(de)}, nil
	case errors.Is(err, client.ErrEventNotFound):
		return Reply{
			Intent:  "watch",
			Message: fmt.Sprintf("Couldn't find '%s'. Check spelling or try searching first.", in.EventName),
		}, nil
	case errors.Is(err, ErrInvalidRequest):
		return Reply{Intent: "watch", Message: "That doesn't look like a watch I can set up. Try 'watch for [event] under €[price]'."}, nil
	case err != nil:
		return Reply{}, err
	}

	var currently, under string
	if pw.PriceMin.Valid {
		currently = " (currently " + priceRange(pw.PriceMin, pw.PriceMax) + ")"
	}
	if pw.MaxPrice.Valid {
		under = " under " + client.FormatPrice(pw.MaxPrice.Decimal)
	}
	msg := strings.Join([]string{
		"🎫 Confirm your watch:\n",
		pw.EventName + currently,
		fmt.Sprintf("📍 %s (%s)", pw.Venue, pw.City),
		"📅 " + pw.Date,
		fmt.Sprintf("🔔 Alert me for %dx tickets%s", pw.Quantity, under),
		fmt.Sprintf("%s Current status: %s\n", statusEmoji(pw.Status), pw.Status),
		"Reply with 'yes' to confirm.",
	}, "\n")
	return Reply{Intent: "watch", Message: msg, Token: pw.Token}, nil
}

func (s *Service) replyConfirm(ctx context.Context, userID string, token string) (Reply, error) {
	if token == "" {
		return Reply{Intent: "confirm", Message: "There's nothing to confirm. Say 'watch for [event]' first."}, nil
	}
	w, err := s.Confirm(ctx, userID, token)
	var (
		de *admission.DeniedError
		ce *database.ConflictError
	)
	switch {
	case errors.Is(err, ErrInvalidToken):
		return Reply{Intent: "confirm", Message: "That confirmation has expired. Ask me to watch the event again."}, nil
	case errors.As(err, &de):
		return Reply{Intent: "confirm", Message: deniedMessage(de)}, nil
	case errors.As(err, &ce):
		return Reply{
			Intent:  "confirm",
			Message: "You're already watching this event. Cancel it first if you want to change the price.",
			WatchID: ce.ExistingWatchID,
		}, nil
	case err != nil:
		return Reply{}, err
	}

	var under string
	if w.MaxPrice.Valid {
		under = " under " + client.FormatPrice(w.MaxPrice.Decimal)
	}
	return Reply{
		Intent: "confirm",
		Message: fmt.Sprintf("✅ Watch created for %s!\nI'll alert you when %dx ticket(s) are available%s.\n\n"+
			"Reply with 'my watches' to see your active watches.", w.EventName, w.Quantity, under),
		WatchID: w.ID,
	}, nil
}

func (s *Service) replyList(ctx context.Context, userID string) (Reply, error) {
	ws, err := s.List(ctx, userID, model.WatchActive)
	if err != nil {
		return Reply{}, err
	}
	if len(ws) == 0 {
		return Reply{Intent: "list", Message: "📭 You don't have any active watches.\nStart with: 'Watch for [event] under €[price]'"}, nil
	}
	lines := []string{"🎫 Your active watches:\n"}
	for _, w := range ws {
		var max string
		if w.MaxPrice.Valid {
			max = " (max " + client.FormatPrice(w.MaxPrice.Decimal) + ")"
		}
		lines = append(lines, fmt.Sprintf("• %s%s\n  %dx tickets • created %s",
			w.EventName, max, w.Quantity, w.CreatedAt.Format("02 Jan")))
	}
	lines = append(lines, "\nReply 'cancel [event]' to remove a watch.")
	return Reply{Intent: "list", Message: strings.Join(lines, "\n"), Watches: ws}, nil
}

func (s *Service) replyCancel(ctx context.Context, userID string, in intent.Cancel) (Reply, error) {
	w, err := s.CancelByName(ctx, userID, in.EventName)
	if errors.Is(err, ErrNoMatchingWatch) {
		return Reply{
			Intent:  "cancel",
			Message: fmt.Sprintf("Didn't find a watch for '%s'.\nReply 'my watches' to see your active ones.", in.EventName),
		}, nil
	}
	if err != nil {
		return Reply{}, err
	}
	return Reply{Intent: "cancel", Message: "✅ Cancelled watch for " + w.EventName + ".", WatchID: w.ID}, nil
}

func (s *Service) replyStatus(ctx context.Context, userID string) (Reply, error) {
	lines, err := s.Status(ctx, userID)
	if err != nil {
		return Reply{}, err
	}
	if len(lines) == 0 {
		return Reply{Intent: "status", Message: "You don't have any active watches yet."}, nil
	}
	out := []string{"🔍 Checking your watches...\n"}
	for _, l := range lines {
		switch {
		case l.Error != "":
			out = append(out, fmt.Sprintf("⚠️ %s: %s", l.Watch.EventName, l.Error))
		case l.Result.Available:
			out = append(out, fmt.Sprintf("🚨 %s - TICKETS AVAILABLE!\n   Price: %s\n   %s",
				l.Watch.EventName, client.FormatPrice(l.Result.Price.Decimal), l.Result.Details))
		default:
			out = append(out, fmt.Sprintf("❌ %s: %s", l.Watch.EventName, l.Result.Details))
		}
	}
	return Reply{Intent: "status", Message: strings.Join(out, "\n")}, nil
}

func deniedMessage(de *admission.DeniedError) string {
	return fmt.Sprintf("You're on the %s tier (max %d watch). You already have %d active watch(es). "+
		"Cancel one or upgrade to Premium for unlimited watches.", de.Tier, de.Limit, de.Active)
}

func priceRange(min, max decimal.NullDecimal) string {
	if !min.Valid {
		return "TBA"
	}
	if !max.Valid || max.Decimal.Equal(min.Decimal) {
		return client.FormatPrice(min.Decimal)
	}
	return client.FormatPrice(min.Decimal) + "-" + client.FormatPrice(max.Decimal)
}

func statusEmoji(status string) string {
	if status == model.EventStatusOnSale {
		return "✅"
	}
	return "❌"
}
