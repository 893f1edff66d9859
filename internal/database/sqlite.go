package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	// Registers the pure Go "sqlite" driver.
	_ "modernc.org/sqlite"

	"ticketwatch/internal/model"
)

// SQLite is a Store in an embedded SQLite file. Timestamps are unix nanoseconds.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "error creating directory for sqlite path: %s", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening sqlite database: %s", path)
	}
	// Single writer; serializing on one connection also serializes every watch row write.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	} {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "error applying %s", p)
		}
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) UserUpsert(ctx context.Context, userID string, contact string) error {
	if userID == "" {
		return errors.New("error upserting User: empty user id")
	}
	now := s.now().UTC().UnixNano()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, contact, tier, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			contact       = excluded.contact,
			last_activity = excluded.last_activity`,
		userID, contact, string(model.TierFree), now, now,
	)
	return errors.Wrapf(err, "error upserting User with ID: %s", userID)
}

func (s *SQLite) UserFindByID(ctx context.Context, userID string) (model.User, error) {
	var (
		u            model.User
		tier         string
		createdAt    int64
		lastActivity int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, contact, tier, created_at, last_activity FROM users WHERE user_id = ?`, userID,
	).Scan(&u.ID, &u.Contact, &tier, &createdAt, &lastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return u, errors.Wrapf(ErrNotFound, "error finding User with ID: %s", userID)
	}
	if err != nil {
		return u, errors.Wrapf(err, "error finding User with ID: %s", userID)
	}
	u.Tier = model.Tier(tier)
	u.CreatedAt = fromNanos(createdAt)
	u.LastActivity = fromNanos(lastActivity)
	return u, nil
}

func (s *SQLite) UserTierUpdate(ctx context.Context, userID string, tier model.Tier) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET tier = ? WHERE user_id = ?`, string(tier), userID)
	if err != nil {
		return errors.Wrapf(err, "error updating tier of User with ID: %s", userID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "error updating tier of User with ID: %s", userID)
	}
	return nil
}

func (s *SQLite) WatchInsert(ctx context.Context, nw model.NewWatch) (string, error) {
	if err := validateNewWatch(nw); err != nil {
		return "", err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "error starting transaction to insert Watch")
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE user_id = ?`, nw.UserID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.Wrapf(ErrNotFound, "error inserting Watch, no User with ID: %s", nw.UserID)
	}
	if err != nil {
		return "", errors.Wrapf(err, "error finding User with ID: %s", nw.UserID)
	}

	var existing int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM watches
		WHERE user_id = ? AND event_id = ? AND status != ?
		LIMIT 1`,
		nw.UserID, nw.EventID, string(model.WatchCancelled),
	).Scan(&existing)
	if err == nil {
		return "", &ConflictError{UserID: nw.UserID, EventID: nw.EventID, ExistingWatchID: strconv.FormatInt(existing, 10)}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", errors.Wrapf(err, "error finding existing Watch for user: %s, event: %s", nw.UserID, nw.EventID)
	}

	if nw.MaxActive > 0 {
		var active int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM watches WHERE user_id = ? AND status = ?`,
			nw.UserID, string(model.WatchActive)).Scan(&active)
		if err != nil {
			return "", errors.Wrapf(err, "error counting active Watches for user: %s", nw.UserID)
		}
		if err = checkActiveLimit(nw, active); err != nil {
			return "", err
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO watches (user_id, event_id, event_name, venue, date_start, max_price, quantity, status, created_at, buy_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nw.UserID, nw.EventID, nw.EventName, nw.Venue, nw.DateStart, nw.MaxPrice, nw.Quantity,
		string(model.WatchActive), s.now().UTC().UnixNano(), nw.BuyURL,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return "", &ConflictError{UserID: nw.UserID, EventID: nw.EventID}
		}
		return "", errors.Wrapf(err, "error inserting Watch for user: %s, event: %s", nw.UserID, nw.EventID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", errors.Wrap(err, "error reading inserted Watch id")
	}
	if err = tx.Commit(); err != nil {
		return "", errors.Wrap(err, "error committing Watch insert")
	}
	return strconv.FormatInt(id, 10), nil
}

const watchColumns = `id, user_id, event_id, event_name, venue, date_start, max_price, quantity,
	status, created_at, last_checked, alerted_at, buy_url`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWatch(r rowScanner) (model.Watch, error) {
	var (
		w           model.Watch
		id          int64
		status      string
		createdAt   int64
		lastChecked sql.NullInt64
		alertedAt   sql.NullInt64
	)
	if err := r.Scan(
		&id, &w.UserID, &w.EventID, &w.EventName, &w.Venue, &w.DateStart, &w.MaxPrice, &w.Quantity,
		&status, &createdAt, &lastChecked, &alertedAt, &w.BuyURL,
	); err != nil {
		return w, err
	}
	w.ID = strconv.FormatInt(id, 10)
	w.Status = model.WatchStatus(status)
	w.CreatedAt = fromNanos(createdAt)
	w.LastChecked = fromNullNanos(lastChecked)
	w.AlertedAt = fromNullNanos(alertedAt)
	return w, nil
}

func (s *SQLite) queryWatches(ctx context.Context, query string, args ...any) ([]model.Watch, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	ws := []model.Watch{}
	for rows.Next() {
		w, err := scanWatch(rows)
		if err != nil {
			return nil, err
		}
		ws = append(ws, w)
	}
	return ws, rows.Err()
}

func (s *SQLite) WatchFindByID(ctx context.Context, watchID string) (model.Watch, error) {
	id, err := strconv.ParseInt(watchID, 10, 64)
	if err != nil {
		return model.Watch{}, errors.Wrapf(ErrNotFound, "invalid Watch ID: %s", watchID)
	}
	w, err := scanWatch(s.db.QueryRowContext(ctx, `SELECT `+watchColumns+` FROM watches WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return w, errors.Wrapf(ErrNotFound, "error finding Watch with ID: %s", watchID)
	}
	return w, errors.Wrapf(err, "error finding Watch with ID: %s", watchID)
}

func (s *SQLite) WatchesFindByUser(ctx context.Context, userID string, status model.WatchStatus) ([]model.Watch, error) {
	ws, err := s.queryWatches(ctx, `
		SELECT `+watchColumns+` FROM watches
		WHERE user_id = ? AND status = ?
		ORDER BY created_at DESC, id DESC`,
		userID, string(status),
	)
	return ws, errors.Wrapf(err, "error finding Watches for user: %s, status: %s", userID, status)
}

func (s *SQLite) WatchesFindActive(ctx context.Context) ([]model.Watch, error) {
	// NULL last_checked sorts first in ascending order.
	ws, err := s.queryWatches(ctx, `
		SELECT `+watchColumns+` FROM watches
		WHERE status = ?
		ORDER BY last_checked ASC, created_at ASC, id ASC`,
		string(model.WatchActive),
	)
	return ws, errors.Wrap(err, "error finding active Watches")
}

func (s *SQLite) WatchesCountActive(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM watches WHERE user_id = ? AND status = ?`, userID, string(model.WatchActive),
	).Scan(&n)
	return n, errors.Wrapf(err, "error counting active Watches for user: %s", userID)
}

func (s *SQLite) WatchStatusUpdate(ctx context.Context, watchID string, status model.WatchStatus, checkedAt time.Time) error {
	id, err := strconv.ParseInt(watchID, 10, 64)
	if err != nil {
		return errors.Wrapf(ErrNotFound, "invalid Watch ID: %s", watchID)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "error starting transaction to update Watch with ID: %s", watchID)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM watches WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(ErrNotFound, "error updating status of Watch with ID: %s", watchID)
	}
	if err != nil {
		return errors.Wrapf(err, "error reading status of Watch with ID: %s", watchID)
	}
	if err = checkStatusWrite(watchID, model.WatchStatus(current), status); err != nil {
		return err
	}

	var checked sql.NullInt64
	if !checkedAt.IsZero() {
		checked = sql.NullInt64{Int64: checkedAt.UTC().UnixNano(), Valid: true}
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE watches SET status = ?, last_checked = COALESCE(?, last_checked) WHERE id = ?`,
		string(status), checked, id,
	); err != nil {
		return errors.Wrapf(err, "error updating status of Watch with ID: %s, status: %s", watchID, status)
	}
	return errors.Wrapf(tx.Commit(), "error committing status of Watch with ID: %s", watchID)
}

func (s *SQLite) AlertRecord(ctx context.Context, watchID string, userID string, eventName string, price decimal.Decimal) (model.Alert, error) {
	id, err := strconv.ParseInt(watchID, 10, 64)
	if err != nil {
		return model.Alert{}, errors.Wrapf(ErrNotFound, "invalid Watch ID: %s", watchID)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Alert{}, errors.Wrapf(err, "error starting transaction to record Alert for Watch with ID: %s", watchID)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM watches WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Alert{}, errors.Wrapf(ErrNotFound, "error recording Alert for Watch with ID: %s", watchID)
	}
	if err != nil {
		return model.Alert{}, errors.Wrapf(err, "error reading status of Watch with ID: %s", watchID)
	}
	if model.WatchStatus(current) == model.WatchAlerted {
		return model.Alert{}, errors.Wrapf(ErrAlreadyAlerted, "error recording Alert for Watch with ID: %s", watchID)
	}

	now := s.now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO alerts_sent (watch_id, user_id, event_name, price, sent_at) VALUES (?, ?, ?, ?, ?)`,
		id, userID, eventName, price.String(), now.UnixNano(),
	)
	if err != nil {
		return model.Alert{}, errors.Wrapf(err, "error inserting Alert for Watch with ID: %s", watchID)
	}
	alertID, err := res.LastInsertId()
	if err != nil {
		return model.Alert{}, errors.Wrap(err, "error reading inserted Alert id")
	}
	if model.WatchStatus(current) == model.WatchActive {
		if _, err = tx.ExecContext(ctx,
			`UPDATE watches SET status = ?, alerted_at = ? WHERE id = ? AND status = ?`,
			string(model.WatchAlerted), now.UnixNano(), id, string(model.WatchActive),
		); err != nil {
			return model.Alert{}, errors.Wrapf(err, "error marking Watch with ID: %s as alerted", watchID)
		}
	}
	if err = tx.Commit(); err != nil {
		return model.Alert{}, errors.Wrapf(err, "error committing Alert for Watch with ID: %s", watchID)
	}
	return model.Alert{
		ID:        strconv.FormatInt(alertID, 10),
		WatchID:   watchID,
		UserID:    userID,
		EventName: eventName,
		Price:     price,
		SentAt:    now,
	}, nil
}

func (s *SQLite) AlertsFindRecent(ctx context.Context, limit int) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, watch_id, user_id, event_name, price, sent_at
		FROM alerts_sent
		ORDER BY sent_at DESC, id DESC
		LIMIT ?`, recentLimit(limit))
	if err != nil {
		return nil, errors.Wrap(err, "error finding recent Alerts")
	}
	defer func() { _ = rows.Close() }()

	as := []model.Alert{}
	for rows.Next() {
		var (
			a       model.Alert
			id      int64
			watchID int64
			sentAt  int64
		)
		if err := rows.Scan(&id, &watchID, &a.UserID, &a.EventName, &a.Price, &sentAt); err != nil {
			return nil, errors.Wrap(err, "error scanning recent Alert")
		}
		a.ID = strconv.FormatInt(id, 10)
		a.WatchID = strconv.FormatInt(watchID, 10)
		a.SentAt = fromNanos(sentAt)
		as = append(as, a)
	}
	return as, errors.Wrap(rows.Err(), "error iterating recent Alerts")
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}
