package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"escrowscan/config"
	"escrowscan/escrow"
	"escrowscan/gateway/middleware"
	"escrowscan/rpc"
)

const (
	fetchTimeout    = 15 * time.Second
	historyTimeout  = 10 * time.Second
	defaultPageSize = 10
	maxPageSize     = 50
)

// Server is the read-only HTTP front-end of the escrow viewer.
type Server struct {
	cfg     *config.Config
	loader  *escrow.Loader
	logger  *slog.Logger
	obs     *middleware.Observability
	limiter *middleware.RateLimiter
}

// NewServer wires the viewer routes over a loader.
func NewServer(cfg *config.Config, loader *escrow.Loader, logger *slog.Logger, obs *middleware.Observability, limiter *middleware.RateLimiter) *Server {
	if cfg == nil {
		panic("config required")
	}
	if loader == nil {
		panic("loader required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, loader: loader, logger: logger, obs: obs, limiter: limiter}
}

// Router assembles the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(middleware.CORSConfig{}))
	r.Use(middleware.RequestID)
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mount := func(route string, handler http.HandlerFunc) http.HandlerFunc {
		if s.obs == nil {
			return handler
		}
		wrapped := s.obs.Middleware(route)(handler)
		return func(w http.ResponseWriter, r *http.Request) { wrapped.ServeHTTP(w, r) }
	}

	r.Route("/escrow/{id}", func(sr chi.Router) {
		sr.Get("/", mount("escrow", s.handleEscrowGet))
		sr.Get("/balance", mount("balance", s.handleBalance))
		sr.Get("/transactions", mount("transactions", s.handleTransactions))
		sr.Get("/events", mount("events", s.handleEvents))
		sr.Get("/pdf", mount("pdf", s.handlePDF))
	})

	if s.obs != nil {
		r.Handle("/metrics", s.obs.MetricsHandler())
	}
	return r
}

// resolveNetwork maps the optional ?network= parameter onto a configured
// network, falling back to the configured default. The resolved value is
// threaded explicitly through every fetch.
func (s *Server) resolveNetwork(r *http.Request) (config.Network, string, bool) {
	name := r.URL.Query().Get("network")
	network, ok := s.cfg.Network(name)
	if !ok {
		return config.Network{}, "", false
	}
	return network, strings.ToLower(strings.TrimSpace(network.Name)), true
}

func (s *Server) handleEscrowGet(w http.ResponseWriter, r *http.Request) {
	network, key, ok := s.resolveNetwork(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown network %q", r.URL.Query().Get("network")))
		return
	}
	id := chi.URLParam(r, "id")
	mobile := isMobile(r)

	ctx, cancel := context.WithTimeout(r.Context(), fetchTimeout)
	defer cancel()
	snap, err := s.loader.Load(ctx, key, id, mobile)
	if err != nil {
		s.writeLoadError(w, r, network.Name, err)
		return
	}
	if snap == nil {
		s.writeNotFound(w, network.Name)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	network, key, ok := s.resolveNetwork(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown network %q", r.URL.Query().Get("network")))
		return
	}
	id := chi.URLParam(r, "id")
	if err := escrow.ValidateContractID(id); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	client, okClient := s.loader.Client(key)
	if !okClient {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown network %q", network.Name))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), fetchTimeout)
	defer cancel()
	data, err := escrow.FetchEscrowStorage(ctx, client, id)
	if err != nil {
		s.writeLoadError(w, r, network.Name, err)
		return
	}
	if data == nil {
		s.writeNotFound(w, network.Name)
		return
	}
	live := escrow.ResolveLiveBalance(ctx, client, id, data)
	s.writeJSON(w, http.StatusOK, live)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	s.handleHistory(w, r, func(ctx context.Context, client historyClient, id string, cursor string, start uint32, limit int) (interface{}, error) {
		return escrow.FetchTransactions(ctx, client, id, cursor, start, limit)
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.handleHistory(w, r, func(ctx context.Context, client historyClient, id string, cursor string, start uint32, limit int) (interface{}, error) {
		return escrow.FetchEvents(ctx, client, id, cursor, start, limit)
	})
}

type historyClient = *rpc.Client

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, fetch func(context.Context, historyClient, string, string, uint32, int) (interface{}, error)) {
	network, key, ok := s.resolveNetwork(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown network %q", r.URL.Query().Get("network")))
		return
	}
	client, okClient := s.loader.Client(key)
	if !okClient {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown network %q", network.Name))
		return
	}

	id := chi.URLParam(r, "id")
	cursor := r.URL.Query().Get("cursor")
	start := parseUint32(r.URL.Query().Get("startLedger"))
	limit := parseLimit(r.URL.Query().Get("limit"))

	ctx, cancel := context.WithTimeout(r.Context(), historyTimeout)
	defer cancel()
	page, err := fetch(ctx, client, id, cursor, start, limit)
	if err != nil {
		if errors.Is(err, escrow.ErrInvalidContractID) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeLoadError(w, r, network.Name, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) handlePDF(w http.ResponseWriter, r *http.Request) {
	network, key, ok := s.resolveNetwork(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown network %q", r.URL.Query().Get("network")))
		return
	}
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), fetchTimeout)
	defer cancel()
	snap, err := s.loader.Load(ctx, key, id, false)
	if err != nil {
		s.writeLoadError(w, r, network.Name, err)
		return
	}
	if snap == nil {
		s.writeNotFound(w, network.Name)
		return
	}

	var buf bytes.Buffer
	if err := escrow.WritePDF(&buf, snap); err != nil {
		s.logger.Error("pdf rendering failed", "error", err, "contract", id)
		s.writeError(w, http.StatusInternalServerError, "failed to render PDF")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "escrow-"+id+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) writeLoadError(w http.ResponseWriter, r *http.Request, networkName string, err error) {
	switch {
	case errors.Is(err, escrow.ErrInvalidContractID):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, escrow.ErrUnknownNetwork):
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown network %q", networkName))
	case errors.Is(err, escrow.ErrSuperseded):
		s.writeError(w, http.StatusConflict, "a newer refresh superseded this request; retry")
	default:
		s.logger.Error("node fetch failed",
			"error", err,
			"network", networkName,
			"request_id", middleware.RequestIDFromContext(r.Context()),
		)
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("unable to load contract data from the %s network", networkName))
	}
}

func (s *Server) writeNotFound(w http.ResponseWriter, networkName string) {
	s.writeError(w, http.StatusNotFound, fmt.Sprintf("contract not found on %s; try the other network", networkName))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func isMobile(r *http.Request) bool {
	switch strings.ToLower(r.URL.Query().Get("mobile")) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func parseUint32(raw string) uint32 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

func parseLimit(raw string) int {
	if raw == "" {
		return defaultPageSize
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return defaultPageSize
	}
	if v > maxPageSize {
		return maxPageSize
	}
	return v
}
