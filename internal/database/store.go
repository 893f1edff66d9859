package database

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"ticketwatch/internal/model"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid watch status transition")
	ErrAlreadyAlerted    = errors.New("watch already alerted")
	ErrInvalidWatch      = errors.New("invalid watch")
)

// ConflictError is returned by WatchInsert when the user already has a non-cancelled
// watch for the event.
type ConflictError struct {
	UserID          string
	EventID         string
	ExistingWatchID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("watch already exists for user: %s, event: %s, existing watch: %s",
		e.UserID, e.EventID, e.ExistingWatchID)
}

// ActiveLimitError is returned by WatchInsert when the user already holds
// NewWatch.MaxActive active watches.
type ActiveLimitError struct {
	UserID string
	Active int
	Limit  int
}

func (e *ActiveLimitError) Error() string {
	return fmt.Sprintf("user: %s has %d active watch(es), limit: %d", e.UserID, e.Active, e.Limit)
}

func checkActiveLimit(nw model.NewWatch, active int) error {
	if nw.MaxActive > 0 && active >= nw.MaxActive {
		return &ActiveLimitError{UserID: nw.UserID, Active: active, Limit: nw.MaxActive}
	}
	return nil
}

// Store is the durable record of users, watches and sent alerts. Every write is visible
// to the next call as soon as it returns.
type Store interface {
	// UserUpsert creates the user on first contact (tier free) and otherwise refreshes
	// contact and last activity.
	UserUpsert(ctx context.Context, userID string, contact string) error
	UserFindByID(ctx context.Context, userID string) (model.User, error)
	UserTierUpdate(ctx context.Context, userID string, tier model.Tier) error

	// WatchInsert stores an active watch and returns its id, or a *ConflictError when a
	// non-cancelled watch for the same user and event exists.
	WatchInsert(ctx context.Context, w model.NewWatch) (string, error)
	WatchFindByID(ctx context.Context, watchID string) (model.Watch, error)
	// WatchesFindByUser lists a user's watches in one status, newest first.
	WatchesFindByUser(ctx context.Context, userID string, status model.WatchStatus) ([]model.Watch, error)
	// WatchesFindActive lists every active watch, least recently checked first.
	WatchesFindActive(ctx context.Context) ([]model.Watch, error)
	WatchesCountActive(ctx context.Context, userID string) (int, error)
	// WatchStatusUpdate writes status and, unless checkedAt is zero, last_checked. Moving
	// to alerted is reserved to AlertRecord and leaving a terminal status fails with
	// ErrInvalidTransition.
	WatchStatusUpdate(ctx context.Context, watchID string, status model.WatchStatus, checkedAt time.Time) error

	// AlertRecord appends the audit entry and moves an active watch to alerted in one
	// atomic step. An alerted watch yields ErrAlreadyAlerted and nothing is written.
	// A watch cancelled while its check was in flight keeps its status but the entry is
	// still appended, since the notification already went out.
	AlertRecord(ctx context.Context, watchID string, userID string, eventName string, price decimal.Decimal) (model.Alert, error)
	AlertsFindRecent(ctx context.Context, limit int) ([]model.Alert, error)
}

func validateNewWatch(w model.NewWatch) error {
	switch {
	case w.UserID == "":
		return errors.Wrap(ErrInvalidWatch, "user id is empty")
	case w.EventID == "":
		return errors.Wrap(ErrInvalidWatch, "event id is empty")
	case w.MaxActive < 0:
		return errors.Wrapf(ErrInvalidWatch, "max active must not be negative, got: %d", w.MaxActive)
	case w.Quantity < 1:
		return errors.Wrapf(ErrInvalidWatch, "quantity must be at least 1, got: %d", w.Quantity)
	case w.MaxPrice.Valid && w.MaxPrice.Decimal.IsNegative():
		return errors.Wrapf(ErrInvalidWatch, "max price is negative: %s", w.MaxPrice.Decimal)
	}
	return nil
}

// checkStatusWrite validates a WatchStatusUpdate against the watch's current status.
func checkStatusWrite(watchID string, from, to model.WatchStatus) error {
	if !to.Valid() {
		return errors.Wrapf(ErrInvalidTransition, "unknown status: %s, watch: %s", to, watchID)
	}
	if to == model.WatchAlerted && from != model.WatchAlerted {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s must go through AlertRecord, watch: %s", from, to, watchID)
	}
	if !from.CanTransition(to) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s, watch: %s", from, to, watchID)
	}
	return nil
}

const (
	defaultRecentAlerts = 10
	maxRecentAlerts     = 100
)

func recentLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentAlerts
	}
	if limit > maxRecentAlerts {
		return maxRecentAlerts
	}
	return limit
}

var (
	_ Store = Database{}
	_ Store = (*SQLite)(nil)
	_ Store = (*Memory)(nil)
)
