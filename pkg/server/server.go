// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the router over HTTP: turn routing and direct plan
// runs stream back as Server-Sent Events, plus plan listing, cancellation and
// the operational endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kadirpekel/switchboard/pkg/config"
	"github.com/kadirpekel/switchboard/pkg/plan"
	"github.com/kadirpekel/switchboard/pkg/router"
)

// Server is the HTTP front of the router.
type Server struct {
	cfg        config.ServerConfig
	router     *router.Router
	plans      *plan.Registry
	httpServer *http.Server
}

// New creates the HTTP server.
func New(cfg config.ServerConfig, rt *router.Router, plans *plan.Registry) *Server {
	s := &Server{
		cfg:    cfg,
		router: rt,
		plans:  plans,
	}
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: s.routes(),
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(loggingMiddleware)
	r.Use(metricsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Get("/v1/plans", s.handleListPlans)
	r.Post("/v1/turns", s.handleTurn)
	r.Post("/v1/runs", s.handleStartRun)
	r.Delete("/v1/runs/{run}", s.handleCancelRun)

	return r
}

// Start serves until Stop is called. It blocks.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
