// Package server exposes the sale engine over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"launchpad/native/ido"
	"launchpad/state"
)

// Config carries the server's wiring parameters.
type Config struct {
	ListenAddress string
	Owner         [20]byte
	AdminToken    string
}

// Server hosts the sale API. Mutating calls hold the write lock so the engine
// sees purchases as non-interleaved units of work; read handlers hold the read
// lock so they never observe a purchase that is still in flight or being
// rolled back.
type Server struct {
	cfg    Config
	engine *ido.Engine
	sale   *state.SaleState
	bank   *state.Bank
	logger *slog.Logger

	mu sync.RWMutex
}

// New constructs a server around the supplied engine and its backing state.
func New(cfg Config, engine *ido.Engine, sale *state.SaleState, bank *state.Bank, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("server: engine required")
	}
	if strings.TrimSpace(cfg.AdminToken) == "" {
		return nil, fmt.Errorf("server: admin token required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, engine: engine, sale: sale, bank: bank, logger: logger}, nil
}

// commitLocked truncates the state journal after a completed mutating call so
// the undo log stays bounded to the call in flight. Callers hold the write
// lock.
func (s *Server) commitLocked() {
	if s.sale != nil {
		s.sale.CommitJournal()
	}
}

// Handler builds the chi router for the API surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1/ido", func(r chi.Router) {
		r.Get("/projects", s.handleListProjects)
		r.Post("/projects", s.requireAdmin(s.handleAddProject))
		r.Get("/oracle/native", s.handleNativePrice)
		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Post("/buy/stable", s.handleBuyStable)
			r.Post("/buy/native", s.handleBuyNative)
			r.Get("/allocated", s.handleAllocated)
			r.Get("/raised", s.handleRaised)
			r.Get("/accounts", s.handleAccounts)
			r.Get("/accounts/{address}", s.handleUserAllocated)
			r.Get("/accounts/{address}/committed", s.handleUserCommitted)
		})
	})
	if s.bank != nil {
		r.Post("/v1/bank/mint", s.requireAdmin(s.handleMint))
	}
	return r
}

// Run serves the API until the context is cancelled, then drains in-flight
// requests before returning.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.ListenAddress, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("idod listening", "addr", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, errors.New("invalid bearer token"))
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// writeEngineError maps the engine's failure taxonomy onto stable HTTP
// status codes, surfacing the taxonomy message verbatim.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ido.ErrProjectNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, ido.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, ido.ErrInvalidProjectParams),
		errors.Is(err, ido.ErrZeroAmount),
		errors.Is(err, ido.ErrUnsupportedCurrency):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, ido.ErrNotStarted),
		errors.Is(err, ido.ErrEnded),
		errors.Is(err, ido.ErrSoldOut),
		errors.Is(err, ido.ErrTransferFailed):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, ido.ErrInsufficientPayment):
		writeError(w, http.StatusPaymentRequired, err)
	case errors.Is(err, ido.ErrInvalidPriceFeed):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func parseProjectID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "projectID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed project id %q", raw)
	}
	return id, nil
}

func parseAddress(raw string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return out, fmt.Errorf("malformed address %q", raw)
	}
	return [20]byte(common.HexToAddress(trimmed)), nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("malformed amount %q", raw)
	}
	return value, nil
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAddress(addr [20]byte) string {
	return common.BytesToAddress(addr[:]).Hex()
}
