package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"ulift/internal/metrics"
	"ulift/internal/middleware"
)

// NewRouter maps the front-end routes onto s.
func NewRouter(s *Server) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.NewTracing(s.log).Handler)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if _, err := fmt.Fprintln(w, "OK"); err != nil {
			s.log.Debug("health write failed")
		}
	}).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/register", http.StatusFound)
	}).Methods(http.MethodGet)
	r.HandleFunc("/register", s.RegisterPageHandler).Methods(http.MethodGet)
	r.Handle("/register", s.limiter.Handler(http.HandlerFunc(s.RegisterHandler))).Methods(http.MethodPost)
	r.HandleFunc("/login", s.LoginPageHandler).Methods(http.MethodGet)

	r.HandleFunc("/chat", s.ChatPageHandler).Methods(http.MethodGet)
	r.Handle("/chat/login", s.limiter.Handler(http.HandlerFunc(s.ChatLoginHandler))).Methods(http.MethodPost)
	r.HandleFunc("/chat/roster", s.RosterHandler).Methods(http.MethodGet)

	r.PathPrefix("/static/").Handler(staticHandler()).Methods(http.MethodGet)
	return r
}
