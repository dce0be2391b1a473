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

// Package router is the top-level orchestration surface: it selects a plan
// for a conversational turn, launches plan runs, tracks the active run table
// and serves cancellation requests.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/kadirpekel/switchboard/pkg/plan"
	"github.com/kadirpekel/switchboard/pkg/runner"
	"github.com/kadirpekel/switchboard/pkg/selector"
)

// ErrUnknownRun signals a cancel request for a run that is not active.
var ErrUnknownRun = errors.New("unknown run")

// Router launches and tracks plan runs.
type Router struct {
	plans  *plan.Registry
	runner *runner.Runner
	sel    selector.Selector

	// clarificationPlan is the fallback plan for ambiguous turns. Empty
	// disables the fallback and surfaces ErrAmbiguous to the caller.
	clarificationPlan string

	mu     sync.Mutex
	active map[string]*runner.Stream
}

// Option customizes a Router.
type Option func(*Router)

// WithClarificationPlan routes ambiguous turns to the named plan instead of
// failing them.
func WithClarificationPlan(planID string) Option {
	return func(r *Router) { r.clarificationPlan = planID }
}

// New creates a router over the given plan catalog, runner and selector.
func New(plans *plan.Registry, run *runner.Runner, sel selector.Selector, opts ...Option) (*Router, error) {
	r := &Router{
		plans:  plans,
		runner: run,
		sel:    sel,
		active: make(map[string]*runner.Stream),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.clarificationPlan != "" {
		if _, err := plans.Lookup(r.clarificationPlan); err != nil {
			return nil, fmt.Errorf("clarification plan: %w", err)
		}
	}
	return r, nil
}

// StartRun launches a run of a known plan and returns its stream. Unknown
// plans fail immediately, before any stream exists.
func (r *Router) StartRun(ctx context.Context, planID string, params map[string]any) (*runner.Stream, error) {
	def, err := r.plans.Lookup(planID)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	stream := runner.NewStream(ctx, r.runner, runID, def, params, func() {
		r.mu.Lock()
		delete(r.active, runID)
		r.mu.Unlock()
	})

	r.mu.Lock()
	r.active[runID] = stream
	r.mu.Unlock()

	slog.Info("Run launched", "run", runID, "plan", planID)
	return stream, nil
}

// Route handles one conversational turn: select a plan, then launch it.
// Ambiguous turns fall back to the clarification plan when one is
// configured.
func (r *Router) Route(ctx context.Context, state *selector.ConversationState) (*runner.Stream, error) {
	sel, err := r.sel.Select(ctx, r.plans.List(), state)
	switch {
	case err == nil:
		return r.StartRun(ctx, sel.PlanID, sel.Params)

	case errors.Is(err, selector.ErrAmbiguous) && r.clarificationPlan != "":
		slog.Info("Turn ambiguous, routing to clarification plan",
			"plan", r.clarificationPlan, "session", state.SessionID)
		return r.StartRun(ctx, r.clarificationPlan, map[string]any{
			"query": state.LatestMessage,
		})

	default:
		return nil, err
	}
}

// Cancel requests cooperative cancellation of an active run. The run's
// stream still terminates normally, with a cancelled chunk.
func (r *Router) Cancel(runID string) error {
	r.mu.Lock()
	stream, ok := r.active[runID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRun, runID)
	}
	stream.Cancel()
	slog.Info("Run cancellation requested", "run", runID)
	return nil
}

// ActiveRuns returns the IDs of runs that have not yet settled.
func (r *Router) ActiveRuns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	return ids
}
