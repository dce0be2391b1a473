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

package executor

import "time"

// State is the lifecycle state of a single tool invocation.
// Invocation state is owned by the executor while the step runs and is
// discarded with the step; only the outcome survives in the StepResult.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	// StateSkipped marks sequential invocations that never started because
	// an earlier invocation in the chain failed.
	StateSkipped State = "skipped"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut, StateSkipped:
		return true
	}
	return false
}

// Status is the step-level result status.
type Status string

const (
	StatusSucceeded       Status = "succeeded"
	StatusPartiallyFailed Status = "partially_failed"
	StatusFailed          Status = "failed"
)

// Outcome records the terminal result of one invocation.
type Outcome struct {
	// InvocationID is the invocation's effective ID within its step.
	InvocationID string

	// Tool is the invoked tool name.
	Tool string

	// State is the terminal lifecycle state.
	State State

	// Payload is the final tool payload, set only when State is succeeded.
	Payload map[string]any

	// Err describes the failure for failed and timed-out invocations.
	Err string

	// Attempts is the number of attempts made, including the final one.
	Attempts int

	// Duration covers all attempts, backoff included.
	Duration time.Duration

	// Progress holds the buffered streaming fragments emitted by the
	// invocation, in emission order. Buffering keeps output ordering
	// across parallel siblings deterministic.
	Progress []map[string]any
}

// StepResult is the immutable result of one executed step: the outcome of
// every invocation plus the aggregate status. Produced once by the executor
// and owned by the plan runner's run context afterwards.
type StepResult struct {
	StepID   string
	Status   Status
	Outcomes []*Outcome // declaration order
}

// Outcome returns the outcome for the given invocation ID, or nil.
func (sr *StepResult) Outcome(invocationID string) *Outcome {
	for _, o := range sr.Outcomes {
		if o.InvocationID == invocationID {
			return o
		}
	}
	return nil
}

// SuccessfulPayloads returns the payloads of succeeded invocations keyed by
// invocation ID. A failed step is atomic: its successful prefix is discarded,
// so the map is empty.
func (sr *StepResult) SuccessfulPayloads() map[string]map[string]any {
	payloads := make(map[string]map[string]any)
	if sr.Status == StatusFailed {
		return payloads
	}
	for _, o := range sr.Outcomes {
		if o.State == StateSucceeded {
			payloads[o.InvocationID] = o.Payload
		}
	}
	return payloads
}

// DroppedTools returns the tool names of invocations whose outputs are not
// available downstream, in declaration order. The plan runner records these
// so the final aggregation can note degraded results instead of silently
// omitting them.
func (sr *StepResult) DroppedTools() []string {
	var dropped []string
	for _, o := range sr.Outcomes {
		if o.State != StateSucceeded {
			dropped = append(dropped, o.Tool)
		}
	}
	return dropped
}
