// Package watch is the user-facing side of watches: finding events, proposing and
// confirming watches, listing, cancelling and on-demand checks.
package watch

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"ticketwatch/internal/admission"
	"ticketwatch/internal/client"
	"ticketwatch/internal/database"
	"ticketwatch/internal/intent"
	"ticketwatch/internal/model"
)

const (
	DefaultSearchLimit = 5
	proposeSearchLimit = 3
)

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrNoMatchingWatch = errors.New("no matching watch")
)

type logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

type looker interface {
	Lookup(ctx context.Context, w model.Watch) (model.MatchResult, model.Event, error)
}

type Service struct {
	Store   database.Store
	Catalog client.Catalog
	Checker looker
	Policy  admission.Policy
	Tokens  *Tokens
	Logger  logger
}

// ProposeRequest names the event by id or by name. Quantity 0 means one ticket.
type ProposeRequest struct {
	EventID   string
	EventName string
	MaxPrice  decimal.NullDecimal
	Quantity  int
}

type PendingWatch struct {
	Proposal
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StatusLine is the on-demand check of one active watch.
type StatusLine struct {
	Watch  model.Watch       `json:"watch"`
	Result model.MatchResult `json:"result"`
	Error  string            `json:"error,omitempty"`
}

func (s *Service) Search(ctx context.Context, query string, limit int) ([]model.Event, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.Wrap(ErrInvalidRequest, "search query is empty")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	events, err := s.Catalog.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// Tier returns the user's tier. Users the store does not know are free.
func (s *Service) Tier(ctx context.Context, userID string) (model.Tier, error) {
	u, err := s.Store.UserFindByID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return model.TierFree, nil
	}
	if err != nil {
		return "", err
	}
	return u.Tier, nil
}

func (s *Service) admit(ctx context.Context, userID string) (model.Tier, error) {
	tier, err := s.Tier(ctx, userID)
	if err != nil {
		return "", err
	}
	active, err := s.Store.WatchesCountActive(ctx, userID)
	if err != nil {
		return "", err
	}
	return tier, s.Policy.Check(tier, active)
}

// Propose checks admission, resolves the event and returns a signed proposal. Nothing is
// written.
func (s *Service) Propose(ctx context.Context, userID string, req ProposeRequest) (PendingWatch, error) {
	if req.Quantity == 0 {
		req.Quantity = intent.DefaultQuantity
	}
	if req.Quantity < 1 || req.Quantity > intent.MaxQuantity {
		return PendingWatch{}, errors.Wrapf(ErrInvalidRequest, "quantity must be between 1 and %d, got: %d", intent.MaxQuantity, req.Quantity)
	}
	if req.MaxPrice.Valid && !req.MaxPrice.Decimal.IsPositive() {
		return PendingWatch{}, errors.Wrapf(ErrInvalidRequest, "max price must be positive, got: %s", req.MaxPrice.Decimal)
	}
	if _, err := s.admit(ctx, userID); err != nil {
		return PendingWatch{}, err
	}

	e, err := s.resolveEvent(ctx, req)
	if err != nil {
		return PendingWatch{}, err
	}

	p := Proposal{
		EventID:   e.ID,
		EventName: e.Name,
		Venue:     e.Venue,
		City:      e.City,
		Date:      e.Date,
		Status:    e.Status,
		PriceMin:  e.PriceMin,
		PriceMax:  e.PriceMax,
		MaxPrice:  req.MaxPrice,
		Quantity:  req.Quantity,
		BuyURL:    e.URL,
	}
	token, exp, err := s.Tokens.Issue(userID, p)
	if err != nil {
		return PendingWatch{}, err
	}
	s.Logger.Debugf("Propose: proposed watch for user: %s, event: %s", userID, e.ID)
	return PendingWatch{Proposal: p, Token: token, ExpiresAt: exp}, nil
}

func (s *Service) resolveEvent(ctx context.Context, req ProposeRequest) (model.Event, error) {
	if req.EventID != "" {
		return s.Catalog.Get(ctx, req.EventID)
	}
	name := strings.TrimSpace(req.EventName)
	if name == "" {
		return model.Event{}, errors.Wrap(ErrInvalidRequest, "event id or name is required")
	}
	events, err := s.Catalog.Search(ctx, name, proposeSearchLimit)
	if err != nil {
		return model.Event{}, err
	}
	if len(events) == 0 {
		return model.Event{}, errors.Wrapf(client.ErrEventNotFound, "no events for: %q", name)
	}
	return events[0], nil
}

// Confirm turns a proposal token into an active watch. Admission is checked again since
// the user may have opened another watch in between.
func (s *Service) Confirm(ctx context.Context, userID string, token string) (model.Watch, error) {
	p, err := s.Tokens.Verify(userID, token)
	if err != nil {
		return model.Watch{}, err
	}
	tier, err := s.admit(ctx, userID)
	if err != nil {
		return model.Watch{}, err
	}
	// The count above can be stale by the time of the insert, so the store
	// enforces the ceiling again inside its write.
	limit, _ := s.Policy.Limit(tier)
	id, err := s.Store.WatchInsert(ctx, model.NewWatch{
		UserID:    userID,
		EventID:   p.EventID,
		EventName: p.EventName,
		Venue:     p.Venue,
		DateStart: p.Date,
		MaxPrice:  p.MaxPrice,
		Quantity:  p.Quantity,
		BuyURL:    p.BuyURL,
		MaxActive: limit,
	})
	var le *database.ActiveLimitError
	if errors.As(err, &le) {
		if derr := s.Policy.Check(tier, le.Active); derr != nil {
			return model.Watch{}, derr
		}
	}
	if err != nil {
		return model.Watch{}, err
	}
	s.Logger.Infof("Confirm: created watch: %s for user: %s, event: %s", id, userID, p.EventID)
	return s.Store.WatchFindByID(ctx, id)
}

func (s *Service) List(ctx context.Context, userID string, status model.WatchStatus) ([]model.Watch, error) {
	if status == "" {
		status = model.WatchActive
	}
	if !status.Valid() {
		return nil, errors.Wrapf(ErrInvalidRequest, "unknown status: %q", status)
	}
	return s.Store.WatchesFindByUser(ctx, userID, status)
}

// Cancel cancels one of the user's watches. Watches of other users are reported as not
// found.
func (s *Service) Cancel(ctx context.Context, userID string, watchID string) (model.Watch, error) {
	w, err := s.Store.WatchFindByID(ctx, watchID)
	if err != nil {
		return model.Watch{}, err
	}
	if w.UserID != userID {
		return model.Watch{}, errors.Wrapf(database.ErrNotFound, "watch: %s does not belong to user: %s", watchID, userID)
	}
	if err = s.Store.WatchStatusUpdate(ctx, watchID, model.WatchCancelled, time.Time{}); err != nil {
		return model.Watch{}, err
	}
	s.Logger.Infof("Cancel: cancelled watch: %s for user: %s", watchID, userID)
	w.Status = model.WatchCancelled
	return w, nil
}

// CancelByName cancels the newest active watch whose event name contains name.
func (s *Service) CancelByName(ctx context.Context, userID string, name string) (model.Watch, error) {
	ws, err := s.Store.WatchesFindByUser(ctx, userID, model.WatchActive)
	if err != nil {
		return model.Watch{}, err
	}
	needle := strings.ToLower(strings.TrimSpace(name))
	for _, w := range ws {
		if needle != "" && strings.Contains(strings.ToLower(w.EventName), needle) {
			return s.Cancel(ctx, userID, w.ID)
		}
	}
	return model.Watch{}, errors.Wrapf(ErrNoMatchingWatch, "no active watch matching: %q", name)
}

// Status evaluates every active watch of the user now. It never notifies and never
// writes, so scan state is untouched.
func (s *Service) Status(ctx context.Context, userID string) ([]StatusLine, error) {
	ws, err := s.Store.WatchesFindByUser(ctx, userID, model.WatchActive)
	if err != nil {
		return nil, err
	}
	lines := make([]StatusLine, 0, len(ws))
	for _, w := range ws {
		res, _, err := s.Checker.Lookup(ctx, w)
		line := StatusLine{Watch: w, Result: res}
		if err != nil {
			s.Logger.Warnf("Status: error checking watch: %s, err: %v", w.ID, err)
			line.Error = "Couldn't reach the ticket catalog, try again shortly"
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *Service) UpsertUser(ctx context.Context, userID string, contact string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.Wrap(ErrInvalidRequest, "user id is empty")
	}
	return s.Store.UserUpsert(ctx, userID, contact)
}

func (s *Service) User(ctx context.Context, userID string) (model.User, error) {
	return s.Store.UserFindByID(ctx, userID)
}

func (s *Service) SetTier(ctx context.Context, userID string, tier model.Tier) error {
	if !tier.Valid() {
		return errors.Wrapf(ErrInvalidRequest, "unknown tier: %q", tier)
	}
	return s.Store.UserTierUpdate(ctx, userID, tier)
}

func (s *Service) RecentAlerts(ctx context.Context, limit int) ([]model.Alert, error) {
	return s.Store.AlertsFindRecent(ctx, limit)
}
