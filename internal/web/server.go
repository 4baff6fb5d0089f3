// Package web serves the gateway status page and the wallet API over HTTP.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/orbtap/orb-gateway/internal/ledger"
	"github.com/orbtap/orb-gateway/internal/status"
)

// Server serves the status page, Prometheus metrics and the wallet API.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	engine     *ledger.Engine
}

// New creates a Server that reads live state from the tracker and settles
// wallet operations through the engine.
func New(addr string, tracker *status.Tracker, engine *ledger.Engine, metrics *status.Metrics) *Server {
	s := &Server{tracker: tracker, engine: engine}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods("GET")
	r.HandleFunc("/index.html", s.handleIndex).Methods("GET")
	r.HandleFunc("/index.json", s.handleJSON).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	r.HandleFunc("/api/settle", s.handleSettle).Methods("POST")
	r.HandleFunc("/api/wallets/{userID}", s.handleWallet).Methods("GET")
	r.HandleFunc("/api/wallets/{userID}/balance", s.handleBalance).Methods("GET")
	r.HandleFunc("/api/wallets/{userID}/eligibility/{interactionID}", s.handleEligibility).Methods("GET")
	r.HandleFunc("/api/wallets/{userID}/history", s.handleHistory).Methods("GET")
	r.HandleFunc("/api/wallets/{userID}/preference", s.handlePreference).Methods("PUT")
	r.HandleFunc("/api/totals", s.handleTotals).Methods("GET")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
