package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"ticketwatch/internal/model"
	"ticketwatch/internal/watch"
)

func (s Server) message() http.HandlerFunc {
	type request struct {
		Text    string `json:"text"`
		Token   string `json:"token"`
		Contact string `json:"contact"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		uc, err := getUserContext(r.Context())
		if err != nil {
			s.writeError(w, r, "message", err)
			return
		}
		req := request{}
		if !s.decodeJson(w, r, "message", &req) {
			return
		}
		reply, err := s.Watches.HandleMessage(r.Context(), uc.userID, req.Contact, req.Text, req.Token)
		if err != nil {
			s.writeError(w, r, "message", err)
			return
		}
		s.writeJsonResponse(w, reply, http.StatusOK)
	}
}

func (s Server) eventSearch() http.HandlerFunc {
	type response struct {
		Events []model.Event `json:"events"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := s.Watches.Search(r.Context(), r.URL.Query().Get("query"), queryLimit(r, watch.DefaultSearchLimit))
		if err != nil {
			s.writeError(w, r, "eventSearch", err)
			return
		}
		if events == nil {
			events = []model.Event{}
		}
		s.writeJsonResponse(w, response{Events: events}, http.StatusOK)
	}
}

func (s Server) watchPropose() http.HandlerFunc {
	type request struct {
		EventID   string              `json:"event_id"`
		EventName string              `json:"event_name"`
		MaxPrice  decimal.NullDecimal `json:"max_price"`
		Quantity  int                 `json:"quantity"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		uc, err := getUserContext(r.Context())
		if err != nil {
			s.writeError(w, r, "watchPropose", err)
			return
		}
		req := request{}
		if !s.decodeJson(w, r, "watchPropose", &req) {
			return
		}
		pw, err := s.Watches.Propose(r.Context(), uc.userID, watch.ProposeRequest{
			EventID:   req.EventID,
			EventName: req.EventName,
			MaxPrice:  req.MaxPrice,
			Quantity:  req.Quantity,
		})
		if err != nil {
			s.writeError(w, r, "watchPropose", err)
			return
		}
		s.writeJsonResponse(w, pw, http.StatusOK)
	}
}

func (s Server) watchConfirm() http.HandlerFunc {
	type request struct {
		Token string `json:"token"`
	}
	type response struct {
		WatchID string      `json:"watch_id"`
		Watch   model.Watch `json:"watch"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		uc, err := getUserContext(r.Context())
		if err != nil {
			s.writeError(w, r, "watchConfirm", err)
			return
		}
		req := request{}
		if !s.decodeJson(w, r, "watchConfirm", &req) {
			return
		}
		wa, err := s.Watches.Confirm(r.Context(), uc.userID, req.Token)
		if err != nil {
			s.writeError(w, r, "watchConfirm", err)
			return
		}
		s.writeJsonResponse(w, response{WatchID: wa.ID, Watch: wa}, http.StatusCreated)
	}
}

func (s Server) watchList() http.HandlerFunc {
	type response struct {
		Watches []model.Watch `json:"watches"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		uc, err := getUserContext(r.Context())
		if err != nil {
			s.writeError(w, r, "watchList", err)
			return
		}
		ws, err := s.Watches.List(r.Context(), uc.userID, model.WatchStatus(r.URL.Query().Get("status")))
		if err != nil {
			s.writeError(w, r, "watchList", err)
			return
		}
		if ws == nil {
			ws = []model.Watch{}
		}
		s.writeJsonResponse(w, response{Watches: ws}, http.StatusOK)
	}
}

func (s Server) watchCancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uc, err := getUserContext(r.Context())
		if err != nil {
			s.writeError(w, r, "watchCancel", err)
			return
		}
		wa, err := s.Watches.Cancel(r.Context(), uc.userID, mux.Vars(r)["watchID"])
		if err != nil {
			s.writeError(w, r, "watchCancel", err)
			return
		}
		s.writeJsonResponse(w, wa, http.StatusOK)
	}
}

func (s Server) watchStatus() http.HandlerFunc {
	type response struct {
		CheckedAt time.Time          `json:"checked_at"`
		Watches   []watch.StatusLine `json:"watches"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		uc, err := getUserContext(r.Context())
		if err != nil {
			s.writeError(w, r, "watchStatus", err)
			return
		}
		lines, err := s.Watches.Status(r.Context(), uc.userID)
		if err != nil {
			s.writeError(w, r, "watchStatus", err)
			return
		}
		s.writeJsonResponse(w, response{CheckedAt: time.Now().UTC(), Watches: lines}, http.StatusOK)
	}
}
