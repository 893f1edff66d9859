package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	"ticketwatch/internal/admission"
	"ticketwatch/internal/client"
	"ticketwatch/internal/database"
	"ticketwatch/internal/scanner"
	"ticketwatch/internal/watch"
)

type errorResponse struct {
	Error           string `json:"error"`
	ExistingWatchID string `json:"existing_watch_id,omitempty"`
}

type deniedResponse struct {
	Error  string `json:"error"`
	Tier   string `json:"tier"`
	Active int    `json:"active"`
	Limit  int    `json:"limit"`
}

func (s Server) writeJsonResponse(w http.ResponseWriter, response any, statusCode int) {
	if resp, err := json.Marshal(response); err != nil {
		s.Logger.Errorf("Error encoding response: %+v, err: %v", response, err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	} else {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(statusCode)
		if _, err = w.Write(resp); err != nil {
			s.Logger.Errorf("Error writing JSON response: %s, err: %v", resp, err)
		}
	}
}

// writeError maps service errors to a status code and JSON body. Anything unexpected is
// logged and answered with 500.
func (s Server) writeError(w http.ResponseWriter, r *http.Request, fn string, err error) {
	tid := getTraceContext(r.Context()).traceID
	var (
		de *admission.DeniedError
		ce *database.ConflictError
	)
	switch {
	case errors.As(err, &de):
		s.writeJsonResponse(w, deniedResponse{
			Error:  "watch limit reached",
			Tier:   string(de.Tier),
			Active: de.Active,
			Limit:  de.Limit,
		}, http.StatusForbidden)
	case errors.As(err, &ce):
		s.writeJsonResponse(w, errorResponse{
			Error:           "watch already exists",
			ExistingWatchID: ce.ExistingWatchID,
		}, http.StatusConflict)
	case errors.Is(err, scanner.ErrScanInFlight):
		s.writeJsonResponse(w, errorResponse{Error: err.Error()}, http.StatusConflict)
	case errors.Is(err, watch.ErrInvalidToken),
		errors.Is(err, watch.ErrInvalidRequest),
		errors.Is(err, database.ErrInvalidWatch),
		errors.Is(err, database.ErrInvalidTransition):
		s.Logger.Debugf("%s: Bad request, err: %v, TraceID: %s", fn, err, tid)
		s.writeJsonResponse(w, errorResponse{Error: err.Error()}, http.StatusBadRequest)
	case errors.Is(err, database.ErrNotFound),
		errors.Is(err, client.ErrEventNotFound),
		errors.Is(err, watch.ErrNoMatchingWatch):
		s.writeJsonResponse(w, errorResponse{Error: errors.Cause(err).Error()}, http.StatusNotFound)
	default:
		s.Logger.Errorf("%s: Error handling request, err: %v, TraceID: %s", fn, err, tid)
		s.writeJsonResponse(w, errorResponse{Error: http.StatusText(http.StatusInternalServerError)}, http.StatusInternalServerError)
	}
}

func (s Server) decodeJson(w http.ResponseWriter, r *http.Request, fn string, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.Logger.Debugf("%s: Error decoding JSON, err: %v, TraceID: %s", fn, err, getTraceContext(r.Context()).traceID)
		s.writeJsonResponse(w, errorResponse{Error: "invalid JSON body"}, http.StatusBadRequest)
		return false
	}
	return true
}

// queryLimit reads the limit query parameter. Missing or malformed values give def.
func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (s Server) notFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Logger.Debugf("notFoundHandler: Requested resource not found: %s %s", r.Method, r.URL.Path)
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	}
}
