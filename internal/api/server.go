package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"heartwatch/internal/alerts"
	"heartwatch/internal/config"
	"heartwatch/internal/engine"
	"heartwatch/internal/model"
	"heartwatch/internal/storage"
)

type EngineControl interface {
	Reset()
	Len() int
	Snapshot() []engine.StateView
	Tiers() []engine.Tier
}

type Server struct {
	cfg      *config.Config
	alerts   *alerts.Store
	audit    storage.Store
	engine   EngineControl
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	version  string
	started  time.Time
}

type statusResponse struct {
	Status   string        `json:"status"`
	Time     string        `json:"time"`
	Uptime   string        `json:"uptime"`
	Version  string        `json:"version"`
	Sources  sourcesStatus `json:"sources"`
	Engine   engineStatus  `json:"engine"`
	Notify   notifyStatus  `json:"notify"`
	Alerts   alertsStatus  `json:"alerts"`
	Channels []string      `json:"channels"`
}

type sourcesStatus struct {
	Gateway bool `json:"gateway"`
	Poll    bool `json:"poll"`
	REST    bool `json:"rest"`
	Kafka   bool `json:"kafka"`
}

type engineStatus struct {
	Entries      int      `json:"entries"`
	Capacity     int      `json:"capacity"`
	ExpiryWindow string   `json:"expiry_window"`
	Tiers        []string `json:"tiers"`
}

type notifyStatus struct {
	Provider string `json:"provider"`
	MinGap   string `json:"min_gap"`
}

type alertsStatus struct {
	Total uint64 `json:"total"`
}

// NewServer builds the status API. audit may be nil when the audit log is
// disabled.
func NewServer(cfg *config.Config, alertsStore *alerts.Store, audit storage.Store, eng EngineControl, gatherer prometheus.Gatherer, logger *slog.Logger, version string) *Server {
	return &Server{
		cfg:      cfg,
		alerts:   alertsStore,
		audit:    audit,
		engine:   eng,
		gatherer: gatherer,
		logger:   logger,
		version:  version,
		started:  time.Now().UTC(),
	}
}

func Start(ctx context.Context, s *Server) *http.Server {
	if s == nil || s.cfg == nil {
		return nil
	}
	current := s.cfg.API
	if !current.Enabled {
		if s.logger != nil {
			s.logger.Info("api disabled")
		}
		return nil
	}
	if s.logger != nil {
		s.logger.Info("api enabled", "addr", current.Addr)
	}
	httpServer := &http.Server{Addr: current.Addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/alerts", s.handleAlerts)
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/admin/reset", s.handleReset)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg
	now := time.Now().UTC()
	resp := statusResponse{
		Status:  "ok",
		Time:    now.Format(time.RFC3339Nano),
		Uptime:  now.Sub(s.started).Round(time.Second).String(),
		Version: s.version,
		Sources: sourcesStatus{
			Gateway: cfg.Discord.Gateway.Enabled,
			Poll:    cfg.Poll.Enabled,
			REST:    cfg.Ingest.REST.Enabled,
			Kafka:   cfg.Ingest.Kafka.Enabled,
		},
		Engine: engineStatus{
			Capacity:     cfg.Engine.Capacity,
			ExpiryWindow: cfg.Engine.ExpiryWindow.String(),
		},
		Notify:   notifyStatus{Provider: cfg.Notify.Provider, MinGap: cfg.Notify.MinGap.String()},
		Channels: cfg.Discord.Channels,
	}
	if s.engine != nil {
		resp.Engine.Entries = s.engine.Len()
		for _, t := range s.engine.Tiers() {
			resp.Engine.Tiers = append(resp.Engine.Tiers, t.String())
		}
	}
	if s.alerts != nil {
		resp.Alerts.Total = s.alerts.Total()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if q.Get("source") == "audit" {
		s.handleAuditAlerts(w, r, limit)
		return
	}
	if s.alerts == nil {
		writeJSON(w, http.StatusOK, map[string]any{"alerts": []model.Alert{}, "count": 0})
		return
	}
	var list []model.Alert
	switch {
	case q.Get("message_id") != "":
		list = s.alerts.ForMessage(q.Get("message_id"))
	case q.Get("since") != "":
		ts, err := time.Parse(time.RFC3339, q.Get("since"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.alerts.Since(ts)
	default:
		list = s.alerts.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

// handleAuditAlerts reads the persisted audit log, newest first.
func (s *Server) handleAuditAlerts(w http.ResponseWriter, r *http.Request, limit int) {
	if s.audit == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "audit log disabled"})
		return
	}
	list, err := s.audit.ListAlerts(r.Context(), limit)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("audit log read failed", "err", err)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "audit log unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var entries []engine.StateView
	if s.engine != nil {
		entries = s.engine.Snapshot()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engine != nil {
		s.engine.Reset()
	}
	if s.logger != nil {
		s.logger.Warn("engine state reset via api")
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
