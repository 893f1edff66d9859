package database

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"ticketwatch/internal/model"
)

type storeFactory func(t *testing.T) Store

func storeFactories() map[string]storeFactory {
	f := map[string]storeFactory{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ticketwatch.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
	if uri := os.Getenv("TICKETWATCH_TEST_MONGO_URI"); uri != "" {
		f["mongo"] = func(t *testing.T) Store {
			ctx := context.Background()
			c, err := ConnectDB(ctx, uri)
			if err != nil {
				t.Fatalf("connect mongo: %v", err)
			}
			db := Database{Database: c.Database("ticketwatch_test_" + uuid.NewString()[:8])}
			if err := db.EnsureIndexes(ctx); err != nil {
				t.Fatalf("ensure indexes: %v", err)
			}
			t.Cleanup(func() {
				_ = db.Drop(ctx)
				_ = c.Disconnect(ctx)
			})
			return db
		}
	}
	return f
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, newStore := range storeFactories() {
		newStore := newStore
		t.Run(name, func(t *testing.T) {
			fn(t, newStore(t))
		})
	}
}

func newWatch(userID, eventID string) model.NewWatch {
	return model.NewWatch{
		UserID:    userID,
		EventID:   eventID,
		EventName: "Fred Again",
		Venue:     "3Arena Dublin",
		DateStart: "2026-03-15",
		Quantity:  2,
		BuyURL:    "https://www.ticketmaster.ie/event/" + eventID,
	}
}

func mustUser(t *testing.T, s Store, userID string) {
	t.Helper()
	if err := s.UserUpsert(context.Background(), userID, "+35380000000"); err != nil {
		t.Fatalf("upsert user %s: %v", userID, err)
	}
}

func mustInsert(t *testing.T, s Store, nw model.NewWatch) string {
	t.Helper()
	id, err := s.WatchInsert(context.Background(), nw)
	if err != nil {
		t.Fatalf("insert watch %s/%s: %v", nw.UserID, nw.EventID, err)
	}
	return id
}

func TestUserUpsertIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.UserUpsert(ctx, "u1", "first"); err != nil {
			t.Fatalf("first upsert: %v", err)
		}
		if err := s.UserTierUpdate(ctx, "u1", model.TierPremium); err != nil {
			t.Fatalf("tier update: %v", err)
		}
		if err := s.UserUpsert(ctx, "u1", "second"); err != nil {
			t.Fatalf("second upsert: %v", err)
		}

		u, err := s.UserFindByID(ctx, "u1")
		if err != nil {
			t.Fatalf("find user: %v", err)
		}
		if u.Contact != "second" {
			t.Fatalf("contact = %q, want second", u.Contact)
		}
		if u.Tier != model.TierPremium {
			t.Fatalf("tier reset by upsert: %s", u.Tier)
		}
		if u.LastActivity.Before(u.CreatedAt) {
			t.Fatalf("last activity %s before created %s", u.LastActivity, u.CreatedAt)
		}

		if _, err := s.UserFindByID(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := s.UserTierUpdate(ctx, "nobody", model.TierPremium); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound on tier update, got %v", err)
		}
	})
}

func TestWatchInsertRejectsDuplicateOpenWatch(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustUser(t, s, "u1")
		first := mustInsert(t, s, newWatch("u1", "E1"))

		_, err := s.WatchInsert(ctx, newWatch("u1", "E1"))
		var ce *ConflictError
		if !errors.As(err, &ce) {
			t.Fatalf("expected ConflictError, got %v", err)
		}
		if ce.ExistingWatchID != first {
			t.Fatalf("conflict points at %q, want %q", ce.ExistingWatchID, first)
		}

		active, err := s.WatchesFindByUser(ctx, "u1", model.WatchActive)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(active) != 1 {
			t.Fatalf("conflict changed state: %d active watches", len(active))
		}

		if err := s.WatchStatusUpdate(ctx, first, model.WatchCancelled, time.Time{}); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		second := mustInsert(t, s, newWatch("u1", "E1"))
		if second == first {
			t.Fatalf("re-created watch reused id %s", first)
		}

		// Another user may watch the same event.
		mustUser(t, s, "u2")
		mustInsert(t, s, newWatch("u2", "E1"))
	})
}

func TestWatchInsertAlertedWatchStillBlocks(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustUser(t, s, "u1")
		id := mustInsert(t, s, newWatch("u1", "E1"))
		if _, err := s.AlertRecord(ctx, id, "u1", "Fred Again", decimal.NewFromInt(65)); err != nil {
			t.Fatalf("record alert: %v", err)
		}
		var ce *ConflictError
		if _, err := s.WatchInsert(ctx, newWatch("u1", "E1")); !errors.As(err, &ce) {
			t.Fatalf("expected ConflictError for alerted watch, got %v", err)
		}
	})
}

func TestWatchInsertMaxActive(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustUser(t, s, "u1")
		capped := func(eventID string) model.NewWatch {
			nw := newWatch("u1", eventID)
			nw.MaxActive = 1
			return nw
		}
		first := mustInsert(t, s, capped("E1"))

		_, err := s.WatchInsert(ctx, capped("E2"))
		var le *ActiveLimitError
		if !errors.As(err, &le) {
			t.Fatalf("expected ActiveLimitError, got %v", err)
		}
		if le.Active != 1 || le.Limit != 1 {
			t.Fatalf("unexpected limit error: %+v", le)
		}

		// A duplicate is still reported as a conflict, not as the limit.
		var ce *ConflictError
		if _, err = s.WatchInsert(ctx, capped("E1")); !errors.As(err, &ce) {
			t.Fatalf("expected ConflictError, got %v", err)
		}

		// Uncapped inserts ignore the count.
		mustInsert(t, s, newWatch("u1", "E3"))

		if err = s.WatchStatusUpdate(ctx, first, model.WatchCancelled, time.Time{}); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		nw := capped("E2")
		nw.MaxActive = 2
		mustInsert(t, s, nw)
	})
}

func TestWatchInsertMaxActiveConcurrent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustUser(t, s, "u1")

		const n = 8
		errs := make(chan error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			nw := newWatch("u1", "E"+strconv.Itoa(i))
			nw.MaxActive = 1
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.WatchInsert(ctx, nw)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		inserted := 0
		for err := range errs {
			var le *ActiveLimitError
			switch {
			case err == nil:
				inserted++
			case errors.As(err, &le):
			default:
				t.Fatalf("insert: %v", err)
			}
		}
		if inserted != 1 {
			t.Fatalf("inserted %d watches, want 1", inserted)
		}
		active, err := s.WatchesCountActive(ctx, "u1")
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if active != 1 {
			t.Fatalf("active = %d, want 1", active)
		}
	})
}

func TestWatchInsertValidation(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if _, err := s.WatchInsert(ctx, newWatch("ghost", "E1")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
		}
		mustUser(t, s, "u1")
		nw := newWatch("u1", "E1")
		nw.Quantity = 0
		if _, err := s.WatchInsert(ctx, nw); !errors.Is(err, ErrInvalidWatch) {
			t.Fatalf("expected ErrInvalidWatch for zero quantity, got %v", err)
		}
	})
}

func TestWatchRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustUser(t, s, "u1")
		nw := newWatch("u1", "E1")
		nw.MaxPrice = decimal.NewNullDecimal(decimal.RequireFromString("79.50"))
		id := mustInsert(t, s, nw)

		w, err := s.WatchFindByID(ctx, id)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if w.Status != model.WatchActive || w.Quantity != 2 || w.EventName != "Fred Again" {
			t.Fatalf("unexpected watch: %+v", w)
		}
		if !w.MaxPrice.Valid || !w.MaxPrice.Decimal.Equal(decimal.RequireFromString("79.5")) {
			t.Fatalf("max price = %+v", w.MaxPrice)
		}
		if w.LastChecked != nil || w.AlertedAt != nil {
			t.Fatalf("new watch has timestamps: %+v", w)
		}

		noMax := mustInsert(t, s, newWatch("u1", "E2"))
		w, err = s.WatchFindByID(ctx, noMax)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if w.MaxPrice.Valid {
			t.Fatalf("expected no max price, got %s", w.MaxPrice.Decimal)
		}

		if _, err := s.WatchFindByID(ctx, "999999"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestWatchesFindByUserNewestFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustUser(t, s, "u1")
		a := mustInsert(t, s, newWatch("u1", "A"))
		b := mustInsert(t, s, newWatch("u1", "B"))
		c := mustInsert(t, s, newWatch("u1", "C"))
		if err := s.WatchStatusUpdate(ctx, b, model.WatchCancelled, time.Time{}); err != nil {
			t.Fatalf("cancel: %v", err)
		}

		ws, err := s.WatchesFindByUser(ctx, "u1", model.WatchActive)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(ws) != 2 || ws[0].ID != c || ws[1].ID != a {
			t.Fatalf("unexpected order: %v", watchIDs(ws))
		}

		cancelled, err := s.WatchesFindByUser(ctx, "u1", model.WatchCancelled)
		if err != nil {
			t.Fatalf("list cancelled: %v", err)
		}
		if len(cancelled) != 1 || cancelled[0].ID != b {
			t.Fatalf("unexpected cancelled: %v", watchIDs(cancelled))
		}

		n, err := s.WatchesCountActive(ctx, "u1")
		if err != nil || n != 2 {
			t.Fatalf("count active = %d, %v", n, err)
		}
	})
}

func TestWatchesFindActiveOldestCheckedFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustUser(t, s, "u1")
		mustUser(t, s, "u2")
		a := mustInsert(t, s, newWatch("u1", "A"))
		b := mustInsert(t, s, newWatch("u1", "B"))
		c := mustInsert(t, s, newWatch("u2", "C"))
		d := mustInsert(t, s, newWatch("u2", "D"))

		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		for id, at := range map[string]time.Time{
			a: base.Add(2 * time.Minute),
			b: base.Add(3 * time.Minute),
			c: base.Add(1 * time.Minute),
		} {
			if err := s.WatchStatusUpdate(ctx, id, model.WatchActive, at); err != nil {
				t.Fatalf("touch %s: %v", id, err)
			}
		}

		ws, err := s.WatchesFindActive(ctx)
		if err != nil {
			t.Fatalf("find active: %v", err)
		}
		got := watchIDs(ws)
		want := []string{d, c, a, b}
		if len(got) != len(want) {
			t.Fatalf("active = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("active = %v, want %v", got, want)
			}
		}
		if ws[1].LastChecked == nil || !ws[1].LastChecked.Equal(base.Add(time.Minute)) {
			t.Fatalf("last checked not stored: %+v", ws[1].LastChecked)
		}
	})
}

func TestWatchStatusUpdateRejectsLeavingTerminal(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustUser(t, s, "u1")
		id := mustInsert(t, s, newWatch("u1", "E1"))
		now := time.Now()

		if err := s.WatchStatusUpdate(ctx, id, model.WatchAlerted, now); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected alerted via status write to fail, got %v", err)
		}
		if err := s.WatchStatusUpdate(ctx, id, model.WatchCancelled, time.Time{}); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if err := s.WatchStatusUpdate(ctx, id, model.WatchCancelled, time.Time{}); err != nil {
			t.Fatalf("repeat cancel should be idempotent: %v", err)
		}
		if err := s.WatchStatusUpdate(ctx, id, model.WatchActive, now); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected reactivation to fail, got %v", err)
		}
		w, err := s.WatchFindByID(ctx, id)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if w.Status != model.WatchCancelled || w.LastChecked != nil {
			t.Fatalf("rejected write changed watch: %+v", w)
		}
		if err := s.WatchStatusUpdate(ctx, "424242", model.WatchCancelled, time.Time{}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestAlertRecordTransitionsOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustUser(t, s, "u1")
		id := mustInsert(t, s, newWatch("u1", "E1"))

		a, err := s.AlertRecord(ctx, id, "u1", "Fred Again", decimal.NewFromInt(65))
		if err != nil {
			t.Fatalf("record alert: %v", err)
		}
		if a.WatchID != id || !a.Price.Equal(decimal.NewFromInt(65)) || a.SentAt.IsZero() {
			t.Fatalf("unexpected alert: %+v", a)
		}

		w, err := s.WatchFindByID(ctx, id)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if w.Status != model.WatchAlerted || w.AlertedAt == nil {
			t.Fatalf("watch not alerted: %+v", w)
		}

		if _, err := s.AlertRecord(ctx, id, "u1", "Fred Again", decimal.NewFromInt(60)); !errors.Is(err, ErrAlreadyAlerted) {
			t.Fatalf("expected ErrAlreadyAlerted, got %v", err)
		}
		if err := s.WatchStatusUpdate(ctx, id, model.WatchActive, time.Now()); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected alerted watch to stay terminal, got %v", err)
		}

		as, err := s.AlertsFindRecent(ctx, 10)
		if err != nil {
			t.Fatalf("recent alerts: %v", err)
		}
		if len(as) != 1 {
			t.Fatalf("expected exactly one alert record, got %d", len(as))
		}

		active, err := s.WatchesFindActive(ctx)
		if err != nil {
			t.Fatalf("find active: %v", err)
		}
		if len(active) != 0 {
			t.Fatalf("alerted watch still active: %v", watchIDs(active))
		}
	})
}

func TestAlertRecordOnCancelledWatchKeepsStatus(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustUser(t, s, "u1")
		id := mustInsert(t, s, newWatch("u1", "E1"))
		if err := s.WatchStatusUpdate(ctx, id, model.WatchCancelled, time.Time{}); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if _, err := s.AlertRecord(ctx, id, "u1", "Fred Again", decimal.NewFromInt(65)); err != nil {
			t.Fatalf("record alert: %v", err)
		}
		w, err := s.WatchFindByID(ctx, id)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if w.Status != model.WatchCancelled || w.AlertedAt != nil {
			t.Fatalf("cancelled watch changed: %+v", w)
		}
		as, err := s.AlertsFindRecent(ctx, 0)
		if err != nil || len(as) != 1 {
			t.Fatalf("recent alerts = %d, %v", len(as), err)
		}
	})
}

func TestAlertsFindRecentNewestFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustUser(t, s, "u1")
		var ids []string
		for _, e := range []string{"A", "B", "C"} {
			id := mustInsert(t, s, newWatch("u1", e))
			if _, err := s.AlertRecord(ctx, id, "u1", e, decimal.NewFromInt(10)); err != nil {
				t.Fatalf("record alert %s: %v", e, err)
			}
			ids = append(ids, id)
		}
		as, err := s.AlertsFindRecent(ctx, 2)
		if err != nil {
			t.Fatalf("recent alerts: %v", err)
		}
		if len(as) != 2 || as[0].WatchID != ids[2] || as[1].WatchID != ids[1] {
			t.Fatalf("unexpected recent alerts: %+v", as)
		}
	})
}

func watchIDs(ws []model.Watch) []string {
	ids := make([]string, 0, len(ws))
	for _, w := range ws {
		ids = append(ids, w.ID)
	}
	return ids
}
