// Package egress serves the aggregated tick snapshot to downstream clients:
// a pull endpoint, a realtime websocket push channel, and the deploy-time
// config passthrough.
package egress

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deepuanant/tickrelay/internal/config"
	"github.com/deepuanant/tickrelay/internal/store"
)

// PushEvent is the name of the realtime push topic.
const PushEvent = "FromAPI"

// frame is the envelope pushed to websocket clients on every upstream batch.
type frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Server is the downstream HTTP surface.
type Server struct {
	cfg        config.ServerConfig
	store      *store.Store
	hub        *Hub
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates the egress server.
func NewServer(cfg config.ServerConfig, st *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		store:  st,
		hub:    NewHub(logger),
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/ticks", s.handleTicks)
	mux.HandleFunc("/config.json", s.handleConfig)
	mux.HandleFunc("/ws", s.hub.ServeWS)
	mux.Handle("/metrics", promhttp.Handler())

	handler := http.Handler(mux)
	if cfg.Env == "development" {
		handler = cors(handler)
	}

	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: handler,
	}
	return s
}

// Run starts the hub and serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("egress server listening", "addr", s.cfg.Addr, "env", s.cfg.Env)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// PublishSnapshot pushes the current snapshot to all realtime clients.
// Wired as the tick store's batch listener; coalescing in the hub means slow
// consumers see the latest snapshot, not every intermediate one.
func (s *Server) PublishSnapshot() {
	payload, err := json.Marshal(frame{
		Event: PushEvent,
		Data:  s.store.Snapshot(),
	})
	if err != nil {
		s.logger.Error("marshal snapshot", "error", err)
		return
	}
	s.hub.Publish(payload)
}

// handleTicks serves the full snapshot. Always 200; empty object before the
// first tick.
func (s *Server) handleTicks(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.store.Snapshot()); err != nil {
		s.logger.Warn("write snapshot response", "error", err)
	}
}

// handleConfig passes through the deploy directory's config file.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(s.cfg.ConfigFile)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "File not found"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// cors allows any origin during development, matching the browser dev server.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
