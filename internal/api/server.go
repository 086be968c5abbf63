package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sensorlog/internal/alerts"
	"sensorlog/internal/config"
	"sensorlog/internal/engine"
	"sensorlog/internal/metrics"
	"sensorlog/internal/model"
	"sensorlog/internal/storage"
)

type EngineControl interface {
	Reset()
	UpdateConfig(cfg *config.Config)
	Status() engine.Status
}

type Server struct {
	cfg     *config.Manager
	devices *metrics.Store
	alerts  *alerts.Store
	store   storage.Store
	engine  EngineControl
	prom    http.Handler
	logger  *slog.Logger
	version string
}

type Options struct {
	Devices   *metrics.Store
	Alerts    *alerts.Store
	Store     storage.Store
	Engine    EngineControl
	Collector *metrics.Collector
	Version   string
}

type statusResponse struct {
	Status     string              `json:"status"`
	Time       string              `json:"time"`
	Version    string              `json:"version"`
	ConfigPath string              `json:"config_path"`
	Ingest     ingestStatus        `json:"ingest"`
	Filter     config.FilterConfig `json:"filter"`
	Engine     *engine.Status      `json:"engine,omitempty"`
	Devices    int                 `json:"devices"`
	Events     int                 `json:"events"`
}

type ingestStatus struct {
	Telegram  bool `json:"telegram"`
	REST      bool `json:"rest"`
	FileTail  bool `json:"file_tail"`
	TCPStream bool `json:"tcp_stream"`
	Kafka     bool `json:"kafka"`
}

func NewServer(cfg *config.Manager, opts Options, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		devices: opts.Devices,
		alerts:  opts.Alerts,
		store:   opts.Store,
		engine:  opts.Engine,
		logger:  logger,
		version: opts.Version,
	}
	if opts.Collector != nil {
		s.prom = opts.Collector.Handler()
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/devices", s.handleDevices)
	mux.HandleFunc("/devices/", s.handleDevices)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/config/filter", s.handleFilter)
	mux.HandleFunc("/admin/clear", s.handleClear)
	mux.HandleFunc("/admin/restart", s.handleRestart)
	if s.prom != nil {
		mux.Handle("/metrics", s.prom)
	}
	return mux
}

func Start(ctx context.Context, cfg *config.Manager, opts Options, logger *slog.Logger) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := NewServer(cfg, opts, logger)
	httpServer := &http.Server{Addr: current.Addr, Handler: server.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Ingest: ingestStatus{
			Telegram:  cfg.Ingest.Telegram.Enabled,
			REST:      cfg.Ingest.REST.Enabled,
			FileTail:  cfg.Ingest.FileTail.Enabled,
			TCPStream: cfg.Ingest.TCPStream.Enabled,
			Kafka:     cfg.Ingest.Kafka.Enabled,
		},
		Filter: cfg.Filter,
	}
	if s.engine != nil {
		st := s.engine.Status()
		resp.Engine = &st
	}
	if s.devices != nil {
		resp.Devices = len(s.devices.Devices())
	}
	if s.alerts != nil {
		resp.Events = s.alerts.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.devices == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/devices")
	name = strings.TrimPrefix(name, "/")
	if name != "" {
		values, updated, ok := s.devices.Get(name)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"device":     name,
			"updated_at": updated.Format(time.RFC3339Nano),
			"values":     values,
		})
		return
	}
	all := s.devices.GetAll()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": all,
		"count":   len(all),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
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
	var list []model.Event
	switch {
	case q.Get("source") == "db":
		if s.store == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		events, err := s.store.RecentEvents(r.Context(), limit)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("events query failed", "err", err)
			}
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		list = events
	case s.alerts == nil:
	case q.Get("since") != "":
		ts, err := time.Parse(time.RFC3339, q.Get("since"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.alerts.Since(ts, limit)
	default:
		list = s.alerts.List(limit)
	}
	if list == nil {
		list = []model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": list,
		"count":  len(list),
	})
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"filter": s.cfg.Get().Filter,
		})
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var filter config.FilterConfig
		if err := json.Unmarshal(body, &filter); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		filter.BlockedSigners = sanitizeList(filter.BlockedSigners)
		next := *s.cfg.Get()
		next.Filter = filter
		if err := s.cfg.Update(&next); err != nil {
			if s.logger != nil {
				s.logger.Error("filter update failed", "err", err)
			}
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if s.engine != nil {
			s.engine.UpdateConfig(&next)
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		s.clearDevices()
		s.clearEvents()
	case "events":
		s.clearEvents()
	case "devices":
		s.clearDevices()
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "target": target})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engine != nil {
		s.engine.Reset()
	}
	s.clearDevices()
	s.clearEvents()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) clearDevices() {
	if s.devices != nil {
		s.devices.Clear()
	}
}

func (s *Server) clearEvents() {
	if s.alerts != nil {
		s.alerts.Clear()
	}
}

func sanitizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
