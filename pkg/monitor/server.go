// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/nategreco/uBike/pkg/ergolink"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// ServerConfig configures the status server
type ServerConfig struct {
	Addr       string
	Version    string
	Metrics    *Metrics
	Statistics *ergolink.Statistics
	State      func() interface{} // snapshot served on /state
	Logger     logrus.FieldLogger
}

// Server serves /health, /version, /state, /stats and /metrics
type Server struct {
	cfg    ServerConfig
	router *mux.Router
	log    logrus.FieldLogger
}

// NewServer builds the router
func NewServer(cfg ServerConfig) *Server {
	s := &Server{cfg: cfg, router: mux.NewRouter(), log: cfg.Logger}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}

	s.router.HandleFunc("/health", s.health).Methods("GET")
	s.router.HandleFunc("/version", s.version).Methods("GET")
	s.router.HandleFunc("/state", s.state).Methods("GET")
	s.router.HandleFunc("/stats", s.stats).Methods("GET")
	if cfg.Metrics != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{})).Methods("GET")
	}
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.cfg.Addr).Info("Status server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) version(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, struct {
		Version string `json:"version"`
	}{s.cfg.Version})
}

func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	if s.cfg.State == nil {
		http.Error(w, "no state source", http.StatusNotFound)
		return
	}
	s.writeJSON(w, s.cfg.State())
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.cfg.Statistics.Snapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnf("Failed to encode response: %v", err)
	}
}
