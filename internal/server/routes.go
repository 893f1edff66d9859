package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = s.notFoundHandler()
	r.Use(s.loggingMw, s.maxBytesMw)

	api := r.PathPrefix("/api").Subrouter()

	adminAPI := api.PathPrefix("/admin").Subrouter()
	adminAPI.Use(s.adminMw)
	adminAPI.HandleFunc("/users/{userID}/tier", s.adminUserTier()).Methods(http.MethodPost)
	adminAPI.HandleFunc("/scan", s.adminScan()).Methods(http.MethodPost)
	adminAPI.HandleFunc("/alerts", s.adminAlerts()).Methods(http.MethodGet)

	userAPI := api.NewRoute().Subrouter()
	userAPI.Use(s.authMw)
	userAPI.HandleFunc("/message", s.message()).Methods(http.MethodPost)
	userAPI.HandleFunc("/events", s.eventSearch()).Methods(http.MethodGet)
	userAPI.HandleFunc("/watches", s.watchList()).Methods(http.MethodGet)
	userAPI.HandleFunc("/watches/propose", s.watchPropose()).Methods(http.MethodPost)
	userAPI.HandleFunc("/watches/confirm", s.watchConfirm()).Methods(http.MethodPost)
	userAPI.HandleFunc("/watches/status", s.watchStatus()).Methods(http.MethodGet)
	userAPI.HandleFunc("/watches/{watchID}/cancel", s.watchCancel()).Methods(http.MethodPost)
	userAPI.HandleFunc("/users/me", s.userMe()).Methods(http.MethodPost)

	return r
}
