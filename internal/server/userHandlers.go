package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"ticketwatch/internal/model"
)

func (s Server) userMe() http.HandlerFunc {
	type request struct {
		Contact string `json:"contact"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		uc, err := getUserContext(r.Context())
		if err != nil {
			s.writeError(w, r, "userMe", err)
			return
		}
		req := request{}
		if !s.decodeJson(w, r, "userMe", &req) {
			return
		}
		if err = s.Watches.UpsertUser(r.Context(), uc.userID, req.Contact); err != nil {
			s.writeError(w, r, "userMe", err)
			return
		}
		u, err := s.Watches.User(r.Context(), uc.userID)
		if err != nil {
			s.writeError(w, r, "userMe", err)
			return
		}
		s.writeJsonResponse(w, u, http.StatusOK)
	}
}

func (s Server) adminUserTier() http.HandlerFunc {
	type request struct {
		Tier string `json:"tier"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		req := request{}
		if !s.decodeJson(w, r, "adminUserTier", &req) {
			return
		}
		tier, err := model.ParseTier(req.Tier)
		if err != nil {
			s.writeJsonResponse(w, errorResponse{Error: err.Error()}, http.StatusBadRequest)
			return
		}
		userID := mux.Vars(r)["userID"]
		if err = s.Watches.SetTier(r.Context(), userID, tier); err != nil {
			s.writeError(w, r, "adminUserTier", err)
			return
		}
		s.Logger.Infof("adminUserTier: Set tier of UserID: %s to %s", userID, tier)
		u, err := s.Watches.User(r.Context(), userID)
		if err != nil {
			s.writeError(w, r, "adminUserTier", err)
			return
		}
		s.writeJsonResponse(w, u, http.StatusOK)
	}
}

func (s Server) adminScan() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.Scanner.Scan(r.Context())
		if err != nil {
			s.writeError(w, r, "adminScan", err)
			return
		}
		s.writeJsonResponse(w, res, http.StatusOK)
	}
}

func (s Server) adminAlerts() http.HandlerFunc {
	type response struct {
		Alerts []model.Alert `json:"alerts"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		as, err := s.Watches.RecentAlerts(r.Context(), queryLimit(r, 0))
		if err != nil {
			s.writeError(w, r, "adminAlerts", err)
			return
		}
		if as == nil {
			as = []model.Alert{}
		}
		s.writeJsonResponse(w, response{Alerts: as}, http.StatusOK)
	}
}
