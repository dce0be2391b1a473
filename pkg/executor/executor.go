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

// Package executor runs single plan steps: it dispatches tool invocations
// concurrently or sequentially, bounds them with per-step timeouts, retries
// transient failures with exponential backoff, and settles every invocation
// before returning a StepResult.
//
// Concurrency is bounded by a weighted semaphore shared across all runs.
// When the pool is saturated, new invocations queue rather than spawning
// unbounded goroutines.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kadirpekel/switchboard/pkg/observability"
	"github.com/kadirpekel/switchboard/pkg/plan"
	"github.com/kadirpekel/switchboard/pkg/tool"
)

// errTimedOut classifies invocations that exceeded their step timeout.
// Timed-out invocations are never retried: retrying them would multiply the
// step's worst-case latency.
var errTimedOut = errors.New("invocation timed out")

// Config holds the executor's engine options.
type Config struct {
	// MaxConcurrentInvocations sizes the shared worker pool.
	MaxConcurrentInvocations int

	// DefaultStepTimeout bounds invocations of steps without an explicit
	// timeout.
	DefaultStepTimeout time.Duration

	// DefaultRetryAttempts is the total attempt count for steps without an
	// explicit retry policy (1 = no retry).
	DefaultRetryAttempts int

	// DefaultRetryBackoff is the initial backoff interval for retries.
	DefaultRetryBackoff time.Duration
}

// SetDefaults fills unset options.
func (c *Config) SetDefaults() {
	if c.MaxConcurrentInvocations <= 0 {
		c.MaxConcurrentInvocations = 8
	}
	if c.DefaultStepTimeout <= 0 {
		c.DefaultStepTimeout = 30 * time.Second
	}
	if c.DefaultRetryAttempts <= 0 {
		c.DefaultRetryAttempts = 1
	}
	if c.DefaultRetryBackoff <= 0 {
		c.DefaultRetryBackoff = 500 * time.Millisecond
	}
}

// Executor runs plan steps against the tool registry.
type Executor struct {
	tools *tool.Registry
	sem   *semaphore.Weighted
	cfg   Config
}

// New creates a step executor with a bounded worker pool.
func New(tools *tool.Registry, cfg Config) *Executor {
	cfg.SetDefaults()
	return &Executor{
		tools: tools,
		sem:   semaphore.NewWeighted(int64(cfg.MaxConcurrentInvocations)),
		cfg:   cfg,
	}
}

// Run executes one step. The inputs slice is aligned with the step's
// invocation declarations. Run never short-circuits a parallel group: every
// invocation settles before the StepResult is produced. Failures are absorbed
// into the result, not returned.
func (e *Executor) Run(ctx context.Context, step *plan.Step, inputs []map[string]any) *StepResult {
	tracer := otel.Tracer("switchboard.executor")
	ctx, span := tracer.Start(ctx, "step.run")
	span.SetAttributes(
		attribute.String("step.id", step.ID),
		attribute.String("step.mode", string(step.Mode)),
		attribute.Int("step.invocations", len(step.Invocations)),
	)
	defer span.End()

	start := time.Now()

	var outcomes []*Outcome
	if step.Mode == plan.ModeParallel {
		outcomes = e.runParallel(ctx, step, inputs)
	} else {
		outcomes = e.runSequential(ctx, step, inputs)
	}

	result := &StepResult{
		StepID:   step.ID,
		Status:   stepStatus(step.Mode, outcomes),
		Outcomes: outcomes,
	}

	observability.RecordStep(ctx, step.ID, string(result.Status), time.Since(start))
	slog.Debug("Step settled",
		"step", step.ID,
		"mode", step.Mode,
		"status", result.Status,
		"duration", time.Since(start))

	return result
}

// runParallel starts every invocation concurrently, bounded by the shared
// pool, and waits for all of them to settle.
func (e *Executor) runParallel(ctx context.Context, step *plan.Step, inputs []map[string]any) []*Outcome {
	outcomes := make([]*Outcome, len(step.Invocations))

	var g errgroup.Group
	for i := range step.Invocations {
		inv := step.Invocations[i]
		idx := i
		g.Go(func() error {
			if err := e.sem.Acquire(ctx, 1); err != nil {
				outcomes[idx] = &Outcome{
					InvocationID: inv.Name(),
					Tool:         inv.Tool,
					State:        StateFailed,
					Err:          err.Error(),
				}
				return nil
			}
			defer e.sem.Release(1)

			outcomes[idx] = e.invoke(ctx, step, inv, inputs[idx])
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// runSequential runs invocations in declaration order; the chain aborts at
// the first failure and the remaining invocations are never started.
func (e *Executor) runSequential(ctx context.Context, step *plan.Step, inputs []map[string]any) []*Outcome {
	outcomes := make([]*Outcome, len(step.Invocations))

	aborted := false
	for i := range step.Invocations {
		inv := step.Invocations[i]
		if aborted {
			outcomes[i] = &Outcome{
				InvocationID: inv.Name(),
				Tool:         inv.Tool,
				State:        StateSkipped,
			}
			continue
		}

		if err := e.sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = &Outcome{
				InvocationID: inv.Name(),
				Tool:         inv.Tool,
				State:        StateFailed,
				Err:          err.Error(),
			}
			aborted = true
			continue
		}
		outcomes[i] = e.invoke(ctx, step, inv, inputs[i])
		e.sem.Release(1)

		if outcomes[i].State != StateSucceeded {
			aborted = true
		}
	}

	return outcomes
}

// invoke runs one invocation to a terminal state: resolve the tool, bound
// each attempt with the step timeout, retry failures (never timeouts) with
// exponential backoff, and buffer streaming progress.
func (e *Executor) invoke(ctx context.Context, step *plan.Step, inv plan.Invocation, args map[string]any) *Outcome {
	outcome := &Outcome{
		InvocationID: inv.Name(),
		Tool:         inv.Tool,
		State:        StateRunning,
	}
	start := time.Now()

	t, err := e.tools.Resolve(inv.Tool)
	if err != nil {
		outcome.State = StateFailed
		outcome.Err = err.Error()
		outcome.Duration = time.Since(start)
		observability.RecordInvocation(ctx, inv.Tool, string(outcome.State), outcome.Duration)
		return outcome
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultStepTimeout
	}
	maxAttempts := step.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = e.cfg.DefaultRetryAttempts
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = e.cfg.DefaultRetryBackoff
	if step.Retry.InitialBackoff > 0 {
		expo.InitialInterval = step.Retry.InitialBackoff
	}
	if step.Retry.MaxBackoff > 0 {
		expo.MaxInterval = step.Retry.MaxBackoff
	}

	var progress []map[string]any
	operation := func() (map[string]any, error) {
		outcome.Attempts++
		progress = progress[:0]

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		payload, chunks, callErr := callTool(attemptCtx, t, args)
		progress = append(progress, chunks...)
		if callErr == nil {
			return payload, nil
		}

		if ctx.Err() != nil {
			// Run cancelled: abandon, do not retry.
			return nil, backoff.Permanent(callErr)
		}
		if attemptCtx.Err() == context.DeadlineExceeded {
			// Timed out: surfaced immediately, never retried, so total
			// step latency stays bounded.
			return nil, backoff.Permanent(fmt.Errorf("%w after %s: %v", errTimedOut, timeout, callErr))
		}
		return nil, tool.NewError(inv.Tool, callErr)
	}

	payload, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(maxAttempts)),
	)

	outcome.Duration = time.Since(start)
	outcome.Progress = progress

	switch {
	case err == nil:
		outcome.State = StateSucceeded
		outcome.Payload = payload
	case errors.Is(err, errTimedOut):
		outcome.State = StateTimedOut
		outcome.Err = err.Error()
	default:
		outcome.State = StateFailed
		outcome.Err = err.Error()
	}

	observability.RecordInvocation(ctx, inv.Tool, string(outcome.State), outcome.Duration)
	if outcome.State != StateSucceeded {
		slog.Debug("Invocation failed",
			"step", step.ID,
			"tool", inv.Tool,
			"state", outcome.State,
			"attempts", outcome.Attempts,
			"error", outcome.Err)
	}

	return outcome
}

// callTool invokes a tool, draining streaming output when supported.
// Progress fragments are returned in emission order alongside the final
// payload.
func callTool(ctx context.Context, t tool.Tool, args map[string]any) (map[string]any, []map[string]any, error) {
	st, ok := t.(tool.StreamingTool)
	if !ok {
		payload, err := t.Call(ctx, args)
		return payload, nil, err
	}

	var progress []map[string]any
	var final map[string]any
	finished := false

	for res, err := range st.CallStreaming(ctx, args) {
		if err != nil {
			return nil, progress, err
		}
		if res == nil {
			continue
		}
		if res.Streaming {
			progress = append(progress, res.Payload)
			continue
		}
		final = res.Payload
		finished = true
	}

	if !finished {
		if ctx.Err() != nil {
			return nil, progress, ctx.Err()
		}
		return nil, progress, fmt.Errorf("streaming tool %q ended without a final result", t.Name())
	}
	return final, progress, nil
}

// stepStatus aggregates invocation outcomes into a step status. Sequential
// steps are atomic; parallel steps degrade to partially failed when at least
// one sibling succeeded.
func stepStatus(mode plan.Mode, outcomes []*Outcome) Status {
	succeeded := 0
	for _, o := range outcomes {
		if o.State == StateSucceeded {
			succeeded++
		}
	}

	switch {
	case succeeded == len(outcomes):
		return StatusSucceeded
	case succeeded == 0:
		return StatusFailed
	case mode == plan.ModeParallel:
		return StatusPartiallyFailed
	default:
		return StatusFailed
	}
}
