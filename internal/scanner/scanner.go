// Package scanner runs scan cycles over every active watch.
package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"ticketwatch/internal/database"
	"ticketwatch/internal/matcher"
	"ticketwatch/internal/misc"
	"ticketwatch/internal/model"
)

const DefaultWorkers = 4

var ErrScanInFlight = errors.New("scan cycle already in flight")

type logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

type checker interface {
	Check(ctx context.Context, w model.Watch) (matcher.Outcome, error)
}

type locker interface {
	Acquire(ctx context.Context) (func(), bool, error)
}

// ScanResult is the aggregate of one complete cycle.
type ScanResult struct {
	Checked   int `json:"checked"`
	Evaluated int `json:"evaluated"`
	Alerted   int `json:"alerted"`
	Errors    int `json:"errors"`
}

type Scheduler struct {
	Store   database.Store
	Checker checker
	Workers int
	// Lock is optional and guards against other processes. Cycles in this process are
	// always serialized.
	Lock   locker
	Logger logger

	mu sync.Mutex
}

func New(s database.Store, c checker, workers int, l logger) *Scheduler {
	return &Scheduler{Store: s, Checker: c, Workers: misc.Max(workers, 1), Logger: l}
}

// Scan checks every active watch once, least recently checked first. One watch failing
// is counted and the cycle goes on; a store failure aborts the cycle and no result is
// returned.
func (s *Scheduler) Scan(ctx context.Context) (ScanResult, error) {
	if !s.mu.TryLock() {
		return ScanResult{}, ErrScanInFlight
	}
	defer s.mu.Unlock()

	if s.Lock != nil {
		release, ok, err := s.Lock.Acquire(ctx)
		if err != nil {
			return ScanResult{}, err
		}
		if !ok {
			return ScanResult{}, ErrScanInFlight
		}
		defer release()
	}

	start := time.Now()
	ws, err := s.Store.WatchesFindActive(ctx)
	if err != nil {
		return ScanResult{}, &matcher.StoreError{Op: "find active watches", Err: err}
	}
	s.Logger.Infof("scan: checking %d active watch(es)", len(ws))

	var (
		mu  sync.Mutex
		res = ScanResult{Checked: len(ws)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(misc.Max(s.Workers, 1))
	for _, w := range ws {
		if gctx.Err() != nil {
			break
		}
		w := w
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			out, err := s.Checker.Check(gctx, w)
			var se *matcher.StoreError
			if errors.As(err, &se) {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.Logger.Errorf("scan: error checking watch %s (%s), err: %v",
					w.ID, misc.StringLimit(w.EventName, 45), err)
				res.Errors++
				return nil
			}
			res.Evaluated++
			if out.Alerted {
				res.Alerted++
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		s.Logger.Errorf("scan: cycle aborted, err: %v", err)
		return ScanResult{}, err
	}
	if err = ctx.Err(); err != nil {
		return ScanResult{}, errors.Wrap(err, "scan cycle interrupted")
	}

	s.Logger.Infof("scan: complete in %s, checked: %d, evaluated: %d, alerted: %d, errors: %d",
		time.Since(start).Round(time.Millisecond), res.Checked, res.Evaluated, res.Alerted, res.Errors)
	return res, nil
}

// Run scans every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Logger.Infof("Run: scan loop stopping")
			return
		case <-ticker.C:
			_, err := s.Scan(ctx)
			if errors.Is(err, ErrScanInFlight) {
				s.Logger.Warnf("Run: previous scan still in flight, skipping tick")
			} else if err != nil {
				s.Logger.Errorf("Run: scan failed, err: %v", err)
			}
		}
	}
}
