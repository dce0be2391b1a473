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

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/switchboard/pkg/plan"
	"github.com/kadirpekel/switchboard/pkg/router"
	"github.com/kadirpekel/switchboard/pkg/runner"
	"github.com/kadirpekel/switchboard/pkg/selector"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// planSummary is the public view of a plan.
type planSummary struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Steps       int    `json:"steps"`
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	defs := s.plans.List()
	summaries := make([]planSummary, 0, len(defs))
	for _, def := range defs {
		summaries = append(summaries, planSummary{
			ID:          def.ID,
			Description: def.Description,
			Steps:       len(def.Steps),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"plans": summaries})
}

// turnRequest is the POST /v1/turns body.
type turnRequest struct {
	SessionID string             `json:"session_id,omitempty"`
	Message   string             `json:"message"`
	History   []selector.Message `json:"history,omitempty"`
	Settings  map[string]any     `json:"settings,omitempty"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	stream, err := s.router.Route(r.Context(), &selector.ConversationState{
		SessionID:     req.SessionID,
		LatestMessage: req.Message,
		History:       req.History,
		Settings:      req.Settings,
	})
	if err != nil {
		if errors.Is(err, selector.ErrAmbiguous) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.serveStream(w, r, stream)
}

// runRequest is the POST /v1/runs body.
type runRequest struct {
	Plan   string         `json:"plan"`
	Params map[string]any `json:"params,omitempty"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Plan == "" {
		http.Error(w, "plan is required", http.StatusBadRequest)
		return
	}

	stream, err := s.router.StartRun(r.Context(), req.Plan, req.Params)
	if err != nil {
		if errors.Is(err, plan.ErrUnknownPlan) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.serveStream(w, r, stream)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run")
	if err := s.router.Cancel(runID); err != nil {
		if errors.Is(err, router.ErrUnknownRun) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// serveStream relays a run's chunks as SSE until the terminal chunk. A
// dropped client connection cancels the run.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, stream *runner.Stream) {
	sse, err := newSSEWriter(w, stream.RunID())
	if err != nil {
		stream.Cancel()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			stream.Cancel()
			// Drain so the pump can finish and release the run entry.
			for range stream.Chunks() {
			}
			return

		case chunk, ok := <-stream.Chunks():
			if !ok {
				return
			}
			if err := sse.WriteChunk(chunk); err != nil {
				slog.Debug("SSE write failed, cancelling run", "run", stream.RunID(), "error", err)
				stream.Cancel()
				for range stream.Chunks() {
				}
				return
			}
		}
	}
}
