package client

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"ticketwatch/internal/model"
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrNotifyFailed  = errors.New("notify failed")
)

const (
	DefaultTicketmasterURL = "https://app.ticketmaster.com/discovery/v2"
	DefaultCountryCode     = "IE"
	DefaultCatalogTimeout  = 10 * time.Second

	maxResponseBytes = 1 << 20
)

type logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

// Catalog is the external source of event status and pricing.
type Catalog interface {
	// Search returns events matching query, soonest first.
	Search(ctx context.Context, query string, limit int) ([]model.Event, error)
	// Get returns one event or an error wrapping ErrEventNotFound.
	Get(ctx context.Context, eventID string) (model.Event, error)
}

// CatalogConfig selects and configures the catalog. An empty APIKey means demo mode: the
// built-in fixture catalog is used and nothing leaves the process.
type CatalogConfig struct {
	APIKey      string `json:"-"`
	BaseURL     string
	CountryCode string
	Timeout     time.Duration
}

func (c CatalogConfig) DemoMode() bool {
	return c.APIKey == ""
}

// NewCatalog returns the Ticketmaster Discovery catalog, or the fixture catalog in demo mode.
func NewCatalog(cfg CatalogConfig, l logger) Catalog {
	if cfg.DemoMode() {
		l.Warnf("NewCatalog: no Ticketmaster API key configured, using demo fixtures")
		return NewFixtures()
	}
	return NewTicketmaster(cfg, l)
}

func newRequest(ctx context.Context, method string, url string, body io.Reader) (*http.Request, error) {
	r, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	setDefaultRequestHeader(r)
	return r, nil
}

func setDefaultRequestHeader(r *http.Request) {
	r.Header.Set("User-Agent", "ticketwatch/1.0")
	r.Header.Set("Accept", "application/json")
}
