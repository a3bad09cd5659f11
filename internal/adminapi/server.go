// Package adminapi exposes the thin HTTP admin surface of spec section
// 6: a health check and the operator's re-authorization endpoint, plus
// an optional execution-status stream for dashboards. Adapted from
// pkg/api's router/CORS/hub wiring.
package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/st0x-bridge/equity-bridge/internal/clock"
	"github.com/st0x-bridge/equity-bridge/internal/domain"
)

// CodeExchanger trades a one-time operator authorization code for a
// token pair — broker.Client's role in this surface.
type CodeExchanger interface {
	ExchangeAuthCode(ctx context.Context, code, redirectURI string) (domain.TokenRecord, error)
}

// TokenSeeder durably records a newly obtained token pair — auth.Store's
// role in this surface.
type TokenSeeder interface {
	Seed(rec domain.TokenRecord) error
}

// Server is the admin HTTP surface.
type Server struct {
	exchanger   CodeExchanger
	seeder      TokenSeeder
	router      *mux.Router
	hub         *Hub
	clk         clock.Clock
	log         *zap.Logger
	redirectURI string
}

// New builds a Server. redirectURI is the OAuth redirect URI the
// operator's authorization code was issued against, echoed back to the
// brokerage during the code exchange.
func New(exchanger CodeExchanger, seeder TokenSeeder, redirectURI string, clk clock.Clock, log *zap.Logger) *Server {
	s := &Server{
		exchanger:   exchanger,
		seeder:      seeder,
		router:      mux.NewRouter(),
		hub:         NewHub(log),
		clk:         clk,
		log:         log,
		redirectURI: redirectURI,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/auth/refresh", s.handleAuthRefresh).Methods(http.MethodPost)
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Start runs the hub and serves the admin surface on addr until the
// process exits; it does not return on success.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})

	s.log.Info("admin api starting", zap.String("addr", addr))
	return http.ListenAndServe(addr, c.Handler(s.router))
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{Status: "healthy", Timestamp: s.clk.Now()})
}

type authRefreshRequest struct {
	RedirectURL string `json:"redirect_url"`
}

type authRefreshResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleAuthRefresh exchanges the authorization code embedded in the
// operator-supplied redirect URL for a fresh token pair, the recovery
// path from an expired refresh token (spec section 7's "Auth
// terminal").
func (s *Server) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	var req authRefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, authRefreshResponse{Success: false, Error: "invalid request body"})
		return
	}

	parsed, err := url.Parse(req.RedirectURL)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, authRefreshResponse{Success: false, Error: "invalid redirect_url"})
		return
	}

	code := parsed.Query().Get("code")
	if code == "" {
		respondJSON(w, http.StatusBadRequest, authRefreshResponse{Success: false, Error: "redirect_url missing code parameter"})
		return
	}

	rec, err := s.exchanger.ExchangeAuthCode(r.Context(), code, s.redirectURI)
	if err != nil {
		s.log.Error("auth refresh: exchange authorization code failed", zap.Error(err))
		respondJSON(w, http.StatusBadGateway, authRefreshResponse{Success: false, Error: err.Error()})
		return
	}

	if err := s.seeder.Seed(rec); err != nil {
		s.log.Error("auth refresh: persist token record failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, authRefreshResponse{Success: false, Error: err.Error()})
		return
	}

	s.log.Info("operator re-authorized brokerage access")
	respondJSON(w, http.StatusOK, authRefreshResponse{Success: true, Message: "tokens refreshed"})
}

// BroadcastExecutionStatus publishes an execution-state transition to
// every subscribed /ws client.
func (s *Server) BroadcastExecutionStatus(exec domain.BrokerExecution) {
	s.hub.Broadcast(executionStatusEvent{
		Type:      "execution_status",
		ID:        exec.ID,
		Symbol:    exec.Symbol,
		Status:    string(exec.Status),
		Timestamp: s.clk.Now().UnixMilli(),
	})
}

type executionStatusEvent struct {
	Type      string `json:"type"`
	ID        int64  `json:"id"`
	Symbol    string `json:"symbol"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
