package client

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type queueEntry struct {
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id"`
	Contact   string `json:"contact"`
	WatchID   string `json:"watch_id"`
	Message   string `json:"message"`
}

// Queue appends each alert as one JSON line to a file that a separate delivery process
// drains.
type Queue struct {
	mu     sync.Mutex
	path   string
	now    func() time.Time
	Logger logger
}

func NewQueue(path string, l logger) *Queue {
	return &Queue{path: path, now: time.Now, Logger: l}
}

func (q *Queue) Send(_ context.Context, n Notification) error {
	line, err := json.Marshal(queueEntry{
		Timestamp: q.now().UTC().Format(time.RFC3339Nano),
		UserID:    n.UserID,
		Contact:   n.Contact,
		WatchID:   n.WatchID,
		Message:   FormatAlertMessage(n),
	})
	if err != nil {
		return errors.Wrapf(ErrNotifyFailed, "queue, watch: %s, marshal: %v", n.WatchID, err)
	}
	line = append(line, '\n')

	q.mu.Lock()
	defer q.mu.Unlock()

	if err = os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return errors.Wrapf(ErrNotifyFailed, "queue, watch: %s, mkdir: %v", n.WatchID, err)
	}
	f, err := os.OpenFile(q.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(ErrNotifyFailed, "queue, watch: %s, open: %v", n.WatchID, err)
	}
	if _, err = f.Write(line); err != nil {
		_ = f.Close()
		return errors.Wrapf(ErrNotifyFailed, "queue, watch: %s, write: %v", n.WatchID, err)
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(ErrNotifyFailed, "queue, watch: %s, close: %v", n.WatchID, err)
	}
	q.Logger.Infof("Send: queued alert for user: %s, watch: %s", n.UserID, n.WatchID)
	return nil
}
