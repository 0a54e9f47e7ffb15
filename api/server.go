package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/market"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Ledger is the engine surface the API serves.
type Ledger interface {
	OpenAccount(ctx context.Context, accountID, name string) (ledger.Account, error)
	ExecuteBuy(ctx context.Context, accountID, symbol string, amount decimal.Decimal, sizing ledger.Sizing) (ledger.TradeResult, error)
	ExecuteSell(ctx context.Context, accountID, symbol string, amount decimal.Decimal, sizing ledger.Sizing) (ledger.TradeResult, error)
	PreviewCopyTrade(ctx context.Context, actorID, sourceID string) (ledger.CopyPreview, error)
	ExecuteCopyTrade(ctx context.Context, actorID, sourceID string, mode ledger.CopyMode) (ledger.CopyResult, error)
	Reset(ctx context.Context, accountID string) (ledger.Account, error)
	Valuate(ctx context.Context, accountID string) (ledger.Valuation, error)
	Leaderboard(ctx context.Context, limit int) ([]ledger.Standing, error)
	History(ctx context.Context, accountID string, limit int) ([]ledger.Transaction, error)
}

const maxBodyBytes = 1 << 20

// Server handles REST API and WebSocket connections
type Server struct {
	ledger  Ledger
	auth    *Authenticator
	router  *mux.Router
	hub     *Hub
	log     *zap.Logger
	origins []string
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l.Named("api")
		}
	}
}

// WithAllowedOrigins sets the CORS origins. None means any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// NewServer creates a new API server. Register Hub as the engine listener
// to push executed transactions to websocket clients.
func NewServer(l Ledger, auth *Authenticator, opts ...Option) *Server {
	s := &Server{
		ledger: l,
		auth:   auth,
		router: mux.NewRouter(),
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.hub = NewHub(s.log)

	s.setupRoutes()
	return s
}

// Hub returns the websocket hub, a ledger.Listener.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.auth.Middleware)

	// Acting account
	api.HandleFunc("/account", s.handleOpenAccount).Methods("POST")
	api.HandleFunc("/portfolio", s.handlePortfolio).Methods("GET")
	api.HandleFunc("/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/reset", s.handleReset).Methods("POST")

	// Trading
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/copy/{source}", s.handleCopyPreview).Methods("GET")
	api.HandleFunc("/copy/{source}", s.handleCopyTrade).Methods("POST")

	// Public views
	api.HandleFunc("/leaderboard", s.handleLeaderboard).Methods("GET")
	api.HandleFunc("/accounts/{id}", s.handleProfile).Methods("GET")

	api.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		s.log.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("server stopping")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleOpenAccount(w http.ResponseWriter, r *http.Request) {
	acct, _ := AccountFrom(r.Context())

	var req OpenRequest
	if err := decodeBody(r, &req, true); err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	a, err := s.ledger.OpenAccount(r.Context(), acct, req.Name)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(a)
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	acct, _ := AccountFrom(r.Context())

	var req OrderRequest
	if err := decodeBody(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	amount, err := market.ParseAmount(req.Amount.String())
	if err != nil {
		respondError(w, http.StatusBadRequest, ledger.KindName(ledger.ErrInvalidAmount), err.Error())
		return
	}
	sizing, err := ledger.ParseSizing(req.Mode)
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	var res ledger.TradeResult
	switch strings.ToLower(strings.TrimSpace(req.Side)) {
	case "buy":
		res, err = s.ledger.ExecuteBuy(r.Context(), acct, req.Symbol, amount, sizing)
	case "sell":
		res, err = s.ledger.ExecuteSell(r.Context(), acct, req.Symbol, amount, sizing)
	default:
		respondError(w, http.StatusBadRequest, "InvalidRequest", fmt.Sprintf("side must be buy or sell, got %q", req.Side))
		return
	}
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, res)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	acct, _ := AccountFrom(r.Context())
	v, err := s.ledger.Valuate(r.Context(), acct)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, v)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	acct, _ := AccountFrom(r.Context())
	limit, err := queryLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	txs, err := s.ledger.History(r.Context(), acct, limit)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	if txs == nil {
		txs = []ledger.Transaction{}
	}
	respondJSON(w, txs)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	acct, _ := AccountFrom(r.Context())
	a, err := s.ledger.Reset(r.Context(), acct)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, a)
}

func (s *Server) handleCopyPreview(w http.ResponseWriter, r *http.Request) {
	acct, _ := AccountFrom(r.Context())
	p, err := s.ledger.PreviewCopyTrade(r.Context(), acct, mux.Vars(r)["source"])
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, p)
}

func (s *Server) handleCopyTrade(w http.ResponseWriter, r *http.Request) {
	acct, _ := AccountFrom(r.Context())

	var req CopyRequest
	if err := decodeBody(r, &req, true); err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	mode, err := ledger.ParseCopyMode(req.Mode)
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	res, err := s.ledger.ExecuteCopyTrade(r.Context(), acct, mux.Vars(r)["source"], mode)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, res)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	board, err := s.ledger.Leaderboard(r.Context(), limit)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	if board == nil {
		board = []ledger.Standing{}
	}
	respondJSON(w, board)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	v, err := s.ledger.Valuate(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

// statusOf maps a ledger error kind to its HTTP status.
func statusOf(err error) int {
	switch ledger.KindOf(err) {
	case ledger.ErrInvalidAmount, ledger.ErrInvalidCopySource, ledger.ErrInvalidAccount:
		return http.StatusBadRequest
	case ledger.ErrInsufficientFunds, ledger.ErrInsufficientHoldings:
		return http.StatusUnprocessableEntity
	case ledger.ErrPriceUnavailable:
		return http.StatusServiceUnavailable
	case ledger.ErrAccountNotFound:
		return http.StatusNotFound
	case ledger.ErrAccountExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondLedgerError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	kind := ledger.KindName(err)
	if kind == "" {
		kind = ledger.KindName(ledger.ErrPersistence)
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	respondError(w, status, kind, msg)
}

// decodeBody decodes a JSON body into v. An empty body is an error unless
// optional is set.
func decodeBody(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && optional {
			return nil
		}
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func queryLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer")
	}
	return n, nil
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   kind,
		Message: message,
	})
}
