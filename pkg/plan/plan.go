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

// Package plan defines the action-plan model: a predeclared DAG of
// tool-invocation steps selected for one conversational turn, plus the
// read-only registry that holds the plan catalog.
//
// A plan is validated once, when the registry is built. Runs never see an
// invalid plan: cycles, missing dependencies, zero-step plans and ambiguous
// terminal steps are all rejected at load time.
package plan

import (
	"time"
)

// Mode determines how a step executes its invocations.
type Mode string

const (
	// ModeParallel starts every invocation of the step concurrently and
	// waits for all of them to settle.
	ModeParallel Mode = "parallel"

	// ModeSequential runs invocations one after another, aborting the step
	// at the first failure.
	ModeSequential Mode = "sequential"
)

// RetryPolicy bounds how often a failed invocation is re-attempted.
// Timed-out invocations are never retried, regardless of this policy.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts (1 = no retry).
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// InitialBackoff is the delay before the first retry; subsequent
	// retries back off exponentially.
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"`

	// MaxBackoff caps the exponential backoff interval.
	MaxBackoff time.Duration `yaml:"max_backoff" json:"max_backoff"`
}

// Invocation is one call to a named tool with an input template.
//
// Template values reference original run parameters as "${params.<key>}" and
// completed step outputs as "${steps.<step>.<invocation>.<field>}". A bare
// "${steps.<step>}" resolves to the map of all successful invocation payloads
// of that step, keyed by invocation ID.
type Invocation struct {
	// Tool is the registered tool name to call.
	Tool string `yaml:"tool" json:"tool"`

	// ID identifies the invocation within its step. Defaults to the tool
	// name; must be unique within the step.
	ID string `yaml:"id,omitempty" json:"id,omitempty"`

	// Input is the input template, resolved against the run context right
	// before the step starts.
	Input map[string]any `yaml:"input,omitempty" json:"input,omitempty"`
}

// Name returns the effective invocation ID.
func (inv Invocation) Name() string {
	if inv.ID != "" {
		return inv.ID
	}
	return inv.Tool
}

// Step is a unit of plan execution containing one or more tool invocations.
type Step struct {
	// ID identifies the step within its plan.
	ID string `yaml:"id" json:"id"`

	// Mode is parallel or sequential.
	Mode Mode `yaml:"mode" json:"mode"`

	// DependsOn lists step IDs that must settle before this step runs.
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`

	// Timeout bounds each invocation of this step. Zero means the engine
	// default applies.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Retry is the per-invocation retry policy. A zero MaxAttempts means
	// the engine default applies.
	Retry RetryPolicy `yaml:"retry,omitempty" json:"retry,omitempty"`

	// Invocations are the tool calls of this step, in declaration order.
	// Declaration order is the canonical output order for streaming.
	Invocations []Invocation `yaml:"invocations" json:"invocations"`
}

// Definition is a complete, immutable plan: an identifier and a DAG of steps.
type Definition struct {
	// ID is the plan identifier used for registry lookup.
	ID string `yaml:"id" json:"id"`

	// Description is shown to operators and to plan selectors.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Steps in declaration order. Declaration order breaks ties when
	// computing the topological execution order.
	Steps []Step `yaml:"steps" json:"steps"`
}

// Step returns the step with the given ID, or nil.
func (d *Definition) Step(id string) *Step {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i]
		}
	}
	return nil
}

// TerminalStep returns the single step no other step depends on.
// Validation guarantees exactly one exists.
func (d *Definition) TerminalStep() *Step {
	depended := make(map[string]bool)
	for _, s := range d.Steps {
		for _, dep := range s.DependsOn {
			depended[dep] = true
		}
	}
	for i := range d.Steps {
		if !depended[d.Steps[i].ID] {
			return &d.Steps[i]
		}
	}
	return nil
}

// TopoOrder returns step IDs in deterministic topological order: Kahn's
// algorithm with declaration order as the tiebreak. Identical plans always
// produce identical execution orders.
func (d *Definition) TopoOrder() ([]string, error) {
	indegree := make(map[string]int, len(d.Steps))
	for _, s := range d.Steps {
		indegree[s.ID] = len(s.DependsOn)
	}

	dependents := make(map[string][]string, len(d.Steps))
	for _, s := range d.Steps {
		for _, dep := range s.DependsOn {
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	order := make([]string, 0, len(d.Steps))
	for len(order) < len(d.Steps) {
		progressed := false
		// Scan in declaration order so ready steps are picked up
		// deterministically.
		for _, s := range d.Steps {
			if deg, pending := indegree[s.ID]; pending && deg == 0 {
				order = append(order, s.ID)
				delete(indegree, s.ID)
				for _, dep := range dependents[s.ID] {
					indegree[dep]--
				}
				progressed = true
			}
		}
		if !progressed {
			return nil, &ValidationError{
				Plan:    d.ID,
				Message: "dependency cycle detected",
			}
		}
	}
	return order, nil
}
