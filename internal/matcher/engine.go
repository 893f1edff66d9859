package matcher

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"ticketwatch/internal/client"
	"ticketwatch/internal/database"
	"ticketwatch/internal/model"
)

// recordTimeout bounds the alert record write, which runs detached from the caller's
// context once the notification has gone out.
const recordTimeout = 10 * time.Second

type logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

// StoreError marks a Watch Store failure. A scan cycle cannot continue past one.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "store error on " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Outcome is what one Check did.
type Outcome struct {
	Result model.MatchResult
	// Alerted is set when the notification went out and was recorded.
	Alerted bool
	// Skipped is set when the watch left active while it was being checked.
	Skipped bool
	// NotifyErr holds a failed delivery. The watch stays active and is retried.
	NotifyErr error
}

type Engine struct {
	Store    database.Store
	Catalog  client.Catalog
	Notifier client.Notifier
	Logger   logger

	now func() time.Time
}

func NewEngine(s database.Store, c client.Catalog, n client.Notifier, l logger) *Engine {
	return &Engine{Store: s, Catalog: c, Notifier: n, Logger: l, now: time.Now}
}

// Lookup fetches the event and evaluates w against it without writing anything. A
// missing event is a result, any other catalog failure is an error.
func (en *Engine) Lookup(ctx context.Context, w model.Watch) (model.MatchResult, model.Event, error) {
	e, err := en.Catalog.Get(ctx, w.EventID)
	if errors.Is(err, client.ErrEventNotFound) {
		return notFound(), e, nil
	}
	if err != nil {
		return model.MatchResult{}, e, errors.Wrapf(err, "error checking event: %s for watch: %s", w.EventID, w.ID)
	}
	return Evaluate(e, w.MaxPrice), e, nil
}

// Check runs one watch through lookup, last_checked update, and on a match notify then
// record. Errors of type *StoreError are fatal to the caller's cycle; anything else
// concerns this watch only.
func (en *Engine) Check(ctx context.Context, w model.Watch) (Outcome, error) {
	res, _, err := en.Lookup(ctx, w)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Result: res}

	err = en.Store.WatchStatusUpdate(ctx, w.ID, model.WatchActive, en.now())
	switch {
	case errors.Is(err, database.ErrInvalidTransition), errors.Is(err, database.ErrNotFound):
		en.Logger.Infof("check: watch %s no longer active, skipping", w.ID)
		out.Skipped = true
		return out, nil
	case err != nil:
		return out, &StoreError{Op: "touch watch " + w.ID, Err: err}
	}

	if !res.Available {
		en.Logger.Debugf("check: no match for watch %s: %s", w.ID, res.Details)
		return out, nil
	}
	en.Logger.Infof("check: match for watch %s: %s, %s", w.ID, w.EventName, res.Details)

	u, err := en.Store.UserFindByID(ctx, w.UserID)
	if errors.Is(err, database.ErrNotFound) {
		en.Logger.Errorf("check: owner %s of watch %s not found, not alerting", w.UserID, w.ID)
		return out, nil
	}
	if err != nil {
		return out, &StoreError{Op: "find user " + w.UserID, Err: err}
	}

	n := client.Notification{
		WatchID:   w.ID,
		UserID:    w.UserID,
		Contact:   u.Contact,
		EventName: w.EventName,
		Venue:     w.Venue,
		Date:      w.DateStart,
		Price:     res.Price.Decimal,
		MaxPrice:  w.MaxPrice,
		Quantity:  w.Quantity,
		BuyURL:    w.BuyURL,
	}
	if err = en.Notifier.Send(ctx, n); err != nil {
		en.Logger.Errorf("check: failed to send alert for watch %s, will retry next cycle, err: %v", w.ID, err)
		out.NotifyErr = err
		return out, nil
	}

	// The alert is out, so cancelling ctx must not keep it from being recorded.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	_, err = en.Store.AlertRecord(recordCtx, w.ID, w.UserID, w.EventName, res.Price.Decimal)
	switch {
	case errors.Is(err, database.ErrAlreadyAlerted):
		en.Logger.Warnf("check: watch %s was already alerted", w.ID)
		return out, nil
	case err != nil:
		en.Logger.Errorf("check: alert for watch %s sent but not recorded, err: %v", w.ID, err)
		return out, &StoreError{Op: "record alert for watch " + w.ID, Err: err}
	}
	en.Logger.Infof("check: alert sent for watch %s", w.ID)
	out.Alerted = true
	return out, nil
}
