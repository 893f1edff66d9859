package database

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"ticketwatch/internal/model"
)

// Memory is a Store held in process memory. It backs demo mode and tests.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	users   map[string]model.User
	watches map[string]*memoryWatch
	alerts  []model.Alert
	seq     int
}

type memoryWatch struct {
	model.Watch
	seq int
}

func NewMemory() *Memory {
	return &Memory{
		now:     time.Now,
		users:   map[string]model.User{},
		watches: map[string]*memoryWatch{},
	}
}

func (m *Memory) nextID() string {
	m.seq++
	return strconv.Itoa(m.seq)
}

func (m *Memory) UserUpsert(_ context.Context, userID string, contact string) error {
	if userID == "" {
		return errors.New("error upserting User: empty user id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	u, ok := m.users[userID]
	if !ok {
		u = model.User{ID: userID, Tier: model.TierFree, CreatedAt: now}
	}
	u.Contact = contact
	u.LastActivity = now
	m.users[userID] = u
	return nil
}

func (m *Memory) UserFindByID(_ context.Context, userID string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return model.User{}, errors.Wrapf(ErrNotFound, "error finding User with ID: %s", userID)
	}
	return u, nil
}

func (m *Memory) UserTierUpdate(_ context.Context, userID string, tier model.Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "error updating tier of User with ID: %s", userID)
	}
	u.Tier = tier
	m.users[userID] = u
	return nil
}

func (m *Memory) WatchInsert(_ context.Context, nw model.NewWatch) (string, error) {
	if err := validateNewWatch(nw); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[nw.UserID]; !ok {
		return "", errors.Wrapf(ErrNotFound, "error inserting Watch, no User with ID: %s", nw.UserID)
	}
	active := 0
	for _, w := range m.watches {
		if w.UserID != nw.UserID {
			continue
		}
		if w.EventID == nw.EventID && w.Status != model.WatchCancelled {
			return "", &ConflictError{UserID: nw.UserID, EventID: nw.EventID, ExistingWatchID: w.ID}
		}
		if w.Status == model.WatchActive {
			active++
		}
	}
	if err := checkActiveLimit(nw, active); err != nil {
		return "", err
	}

	id := m.nextID()
	m.watches[id] = &memoryWatch{
		Watch: model.Watch{
			ID:        id,
			UserID:    nw.UserID,
			EventID:   nw.EventID,
			EventName: nw.EventName,
			Venue:     nw.Venue,
			DateStart: nw.DateStart,
			MaxPrice:  nw.MaxPrice,
			Quantity:  nw.Quantity,
			Status:    model.WatchActive,
			CreatedAt: m.now().UTC(),
			BuyURL:    nw.BuyURL,
		},
		seq: m.seq,
	}
	return id, nil
}

func (m *Memory) WatchFindByID(_ context.Context, watchID string) (model.Watch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.watches[watchID]
	if !ok {
		return model.Watch{}, errors.Wrapf(ErrNotFound, "error finding Watch with ID: %s", watchID)
	}
	return copyWatch(w.Watch), nil
}

func (m *Memory) WatchesFindByUser(_ context.Context, userID string, status model.WatchStatus) ([]model.Watch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ws []*memoryWatch
	for _, w := range m.watches {
		if w.UserID == userID && w.Status == status {
			ws = append(ws, w)
		}
	}
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].CreatedAt.Equal(ws[j].CreatedAt) {
			return ws[i].seq > ws[j].seq
		}
		return ws[i].CreatedAt.After(ws[j].CreatedAt)
	})
	return flatten(ws), nil
}

func (m *Memory) WatchesFindActive(_ context.Context) ([]model.Watch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ws []*memoryWatch
	for _, w := range m.watches {
		if w.Status == model.WatchActive {
			ws = append(ws, w)
		}
	}
	sort.Slice(ws, func(i, j int) bool {
		a, b := ws[i].Watch, ws[j].Watch
		if model.CheckedBefore(a, b) {
			return true
		}
		if model.CheckedBefore(b, a) {
			return false
		}
		return ws[i].seq < ws[j].seq
	})
	return flatten(ws), nil
}

func (m *Memory) WatchesCountActive(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for _, w := range m.watches {
		if w.UserID == userID && w.Status == model.WatchActive {
			n++
		}
	}
	return n, nil
}

func (m *Memory) WatchStatusUpdate(_ context.Context, watchID string, status model.WatchStatus, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.watches[watchID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "error updating status of Watch with ID: %s", watchID)
	}
	if err := checkStatusWrite(watchID, w.Status, status); err != nil {
		return err
	}
	w.Status = status
	if !checkedAt.IsZero() {
		t := checkedAt.UTC()
		w.LastChecked = &t
	}
	return nil
}

func (m *Memory) AlertRecord(_ context.Context, watchID string, userID string, eventName string, price decimal.Decimal) (model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.watches[watchID]
	if !ok {
		return model.Alert{}, errors.Wrapf(ErrNotFound, "error recording Alert for Watch with ID: %s", watchID)
	}
	if w.Status == model.WatchAlerted {
		return model.Alert{}, errors.Wrapf(ErrAlreadyAlerted, "error recording Alert for Watch with ID: %s", watchID)
	}

	now := m.now().UTC()
	a := model.Alert{
		ID:        m.nextID(),
		WatchID:   watchID,
		UserID:    userID,
		EventName: eventName,
		Price:     price,
		SentAt:    now,
	}
	m.alerts = append(m.alerts, a)
	if w.Status == model.WatchActive {
		w.Status = model.WatchAlerted
		w.AlertedAt = &now
	}
	return a, nil
}

func (m *Memory) AlertsFindRecent(_ context.Context, limit int) ([]model.Alert, error) {
	limit = recentLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Alert, 0, limit)
	for i := len(m.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.alerts[i])
	}
	return out, nil
}

func flatten(ws []*memoryWatch) []model.Watch {
	out := make([]model.Watch, 0, len(ws))
	for _, w := range ws {
		out = append(out, copyWatch(w.Watch))
	}
	return out
}

// copyWatch detaches the timestamp pointers from the stored row.
func copyWatch(w model.Watch) model.Watch {
	if w.LastChecked != nil {
		t := *w.LastChecked
		w.LastChecked = &t
	}
	if w.AlertedAt != nil {
		t := *w.AlertedAt
		w.AlertedAt = &t
	}
	return w
}
