package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"ticketwatch/internal/misc"
	"ticketwatch/internal/model"
)

// Ticketmaster queries the Ticketmaster Discovery API.
type Ticketmaster struct {
	*http.Client
	BaseURL     string
	APIKey      string
	CountryCode string
	Logger      logger
}

func NewTicketmaster(cfg CatalogConfig, l logger) *Ticketmaster {
	t := &Ticketmaster{
		Client:      &http.Client{Timeout: cfg.Timeout},
		BaseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:      cfg.APIKey,
		CountryCode: cfg.CountryCode,
		Logger:      l,
	}
	if t.Client.Timeout <= 0 {
		t.Client.Timeout = DefaultCatalogTimeout
	}
	if t.BaseURL == "" {
		t.BaseURL = DefaultTicketmasterURL
	}
	if t.CountryCode == "" {
		t.CountryCode = DefaultCountryCode
	}
	return t
}

type tmSearchResponse struct {
	Embedded struct {
		Events []tmEvent `json:"events"`
	} `json:"_embedded"`
}

type tmEvent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Dates struct {
		Start struct {
			LocalDate string `json:"localDate"`
			LocalTime string `json:"localTime"`
		} `json:"start"`
		Status struct {
			Code string `json:"code"`
		} `json:"status"`
	} `json:"dates"`
	PriceRanges []struct {
		Min decimal.NullDecimal `json:"min"`
		Max decimal.NullDecimal `json:"max"`
	} `json:"priceRanges"`
	Embedded struct {
		Venues []struct {
			Name string `json:"name"`
			City struct {
				Name string `json:"name"`
			} `json:"city"`
		} `json:"venues"`
	} `json:"_embedded"`
}

func (te tmEvent) toEvent() model.Event {
	e := model.Event{
		ID:     te.ID,
		Name:   te.Name,
		Venue:  "TBA",
		Date:   "TBA",
		Time:   te.Dates.Start.LocalTime,
		Status: "unknown",
		URL:    te.URL,
	}
	if len(te.Embedded.Venues) > 0 {
		v := te.Embedded.Venues[0]
		if v.Name != "" {
			e.Venue = v.Name
		}
		e.City = v.City.Name
	}
	if te.Dates.Start.LocalDate != "" {
		e.Date = te.Dates.Start.LocalDate
	}
	if te.Dates.Status.Code != "" {
		e.Status = te.Dates.Status.Code
	}
	if len(te.PriceRanges) > 0 {
		e.PriceMin = te.PriceRanges[0].Min
		e.PriceMax = te.PriceRanges[0].Max
	}
	return e
}

func (t *Ticketmaster) Search(ctx context.Context, query string, limit int) ([]model.Event, error) {
	params := url.Values{}
	params.Set("apikey", t.APIKey)
	params.Set("keyword", query)
	params.Set("countryCode", t.CountryCode)
	params.Set("size", strconv.Itoa(misc.Clamp(limit, 1, 200)))
	params.Set("sort", "date,asc")

	body, status, err := t.get(ctx, t.BaseURL+"/events.json?"+params.Encode())
	if err != nil {
		return nil, errors.Wrapf(err, "error searching events, query: %q", query)
	}
	if status != http.StatusOK {
		return nil, errors.Errorf("error searching events, query: %q, status: %d, body: %s",
			query, status, misc.BytesLimit(body, 2000))
	}

	var resp tmSearchResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(err, "error unmarshalling search response, query: %q, body: %s",
			query, misc.BytesLimit(body, 2000))
	}
	events := make([]model.Event, 0, len(resp.Embedded.Events))
	for _, te := range resp.Embedded.Events {
		events = append(events, te.toEvent())
	}
	t.Logger.Infof("Search: found %d events for query: %q", len(events), query)
	return events, nil
}

func (t *Ticketmaster) Get(ctx context.Context, eventID string) (model.Event, error) {
	params := url.Values{}
	params.Set("apikey", t.APIKey)
	apiURL := fmt.Sprintf("%s/events/%s.json?%s", t.BaseURL, url.PathEscape(eventID), params.Encode())

	body, status, err := t.get(ctx, apiURL)
	if err != nil {
		return model.Event{}, errors.Wrapf(err, "error getting event with ID: %s", eventID)
	}
	switch {
	case status == http.StatusNotFound:
		return model.Event{}, errors.Wrapf(ErrEventNotFound, "event ID: %s", eventID)
	case status != http.StatusOK:
		return model.Event{}, errors.Errorf("error getting event with ID: %s, status: %d, body: %s",
			eventID, status, misc.BytesLimit(body, 2000))
	}

	var te tmEvent
	if err = json.Unmarshal(body, &te); err != nil {
		return model.Event{}, errors.Wrapf(err, "error unmarshalling event with ID: %s, body: %s",
			eventID, misc.BytesLimit(body, 2000))
	}
	if te.ID == "" {
		return model.Event{}, errors.Errorf("malformed event with ID: %s, body: %s", eventID, misc.BytesLimit(body, 2000))
	}
	return te.toEvent(), nil
}

func (t *Ticketmaster) get(ctx context.Context, apiURL string) ([]byte, int, error) {
	req, err := newRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, 0, errors.Wrap(err, "error creating request")
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, 0, errors.Wrap(err, "error doing request")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Logger.Errorf("get: error closing response body, err: %v", err)
		}
	}()
	body, err := io.ReadAll(http.MaxBytesReader(nil, resp.Body, maxResponseBytes))
	if err != nil {
		return body, resp.StatusCode, errors.Wrapf(err, "error reading response body, status: %s", resp.Status)
	}
	return body, resp.StatusCode, nil
}
