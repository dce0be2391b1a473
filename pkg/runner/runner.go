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

// Package runner walks a validated plan DAG step by step, threading settled
// outputs into downstream input templates, and streams the run as an ordered
// chunk sequence closed by exactly one terminal chunk.
//
// Ordering is deterministic: steps run in topological order with declaration
// order as the tiebreak, and per-invocation progress is buffered until the
// step settles, then emitted in declaration order. Two runs of the same plan
// with the same outcomes produce identical chunk sequences.
package runner

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kadirpekel/switchboard/pkg/executor"
	"github.com/kadirpekel/switchboard/pkg/observability"
	"github.com/kadirpekel/switchboard/pkg/plan"
)

// Runner executes plans against a step executor.
type Runner struct {
	exec *executor.Executor
}

// New creates a plan runner.
func New(exec *executor.Executor) *Runner {
	return &Runner{exec: exec}
}

// Execute runs the plan under a fresh run ID. See ExecuteRun.
func (r *Runner) Execute(ctx context.Context, def *plan.Definition, params map[string]any) iter.Seq2[*StreamChunk, error] {
	return r.ExecuteRun(ctx, uuid.NewString(), def, params)
}

// ExecuteRun runs the plan and yields the ordered chunk stream. The sequence
// always ends with exactly one terminal chunk: final on success or partial
// success, error when the terminal step could not produce a payload, and
// cancelled when the caller's context ends the run early.
//
// Step failures never abort the walk by themselves; steps whose dependencies
// failed are skipped, everything else still runs.
func (r *Runner) ExecuteRun(ctx context.Context, runID string, def *plan.Definition, params map[string]any) iter.Seq2[*StreamChunk, error] {
	return func(yield func(*StreamChunk, error) bool) {
		tracer := otel.Tracer("switchboard.runner")
		ctx, span := tracer.Start(ctx, "plan.execute")
		span.SetAttributes(
			attribute.String("plan.id", def.ID),
			attribute.String("run.id", runID),
		)
		defer span.End()

		start := time.Now()
		rc := NewRunContext(runID, def.ID, params)

		order, err := def.TopoOrder()
		if err != nil {
			yield(nil, err)
			return
		}
		terminal := def.TerminalStep()

		slog.Info("Run started", "run", runID, "plan", def.ID, "steps", len(order))

		for _, stepID := range order {
			if ctx.Err() != nil {
				observability.RecordRun(ctx, def.ID, "cancelled", time.Since(start))
				slog.Info("Run cancelled", "run", runID, "plan", def.ID, "step", stepID)
				yield(&StreamChunk{Type: ChunkCancelled, Error: ctx.Err().Error()}, nil)
				return
			}

			step := def.Step(stepID)
			if blockedBy(rc, step) != "" {
				rc.MarkSkipped(stepID)
				slog.Debug("Step skipped", "run", runID, "step", stepID, "blocked_by", blockedBy(rc, step))
				continue
			}

			inputs, rerr := rc.ResolveInputs(step)
			if rerr != nil {
				// Unresolved templates fail the step, not the run; downstream
				// steps that depend on it are skipped.
				rc.Record(resolveFailure(step, rerr))
				slog.Warn("Step input resolution failed", "run", runID, "step", stepID, "error", rerr)
				continue
			}

			res := r.exec.Run(ctx, step, inputs)
			rc.Record(res)

			if !r.emitStepChunks(yield, step, res, stepID != terminal.ID) {
				return
			}
		}

		outcome, chunk := r.settle(rc, terminal, ctx.Err() != nil)
		observability.RecordRun(ctx, def.ID, outcome, time.Since(start))
		slog.Info("Run settled", "run", runID, "plan", def.ID, "outcome", outcome, "duration", time.Since(start))
		yield(chunk, nil)
	}
}

// emitStepChunks flushes the buffered progress of a settled step in
// declaration order. Non-terminal invocation payloads are surfaced as
// progress so consumers see intermediate results as steps settle.
func (r *Runner) emitStepChunks(yield func(*StreamChunk, error) bool, step *plan.Step, res *executor.StepResult, intermediate bool) bool {
	for _, o := range res.Outcomes {
		for _, frag := range o.Progress {
			chunk := &StreamChunk{
				Type:         ChunkProgress,
				StepID:       step.ID,
				InvocationID: o.InvocationID,
				Tool:         o.Tool,
				Payload:      frag,
			}
			if !yield(chunk, nil) {
				return false
			}
		}
		if intermediate && o.State == executor.StateSucceeded && res.Status != executor.StatusFailed {
			chunk := &StreamChunk{
				Type:         ChunkProgress,
				StepID:       step.ID,
				InvocationID: o.InvocationID,
				Tool:         o.Tool,
				Payload:      o.Payload,
			}
			if !yield(chunk, nil) {
				return false
			}
		}
	}
	return true
}

// settle produces the run's single terminal chunk from the terminal step's
// result.
func (r *Runner) settle(rc *RunContext, terminal *plan.Step, cancelled bool) (string, *StreamChunk) {
	if cancelled {
		return "cancelled", &StreamChunk{Type: ChunkCancelled, Error: context.Canceled.Error()}
	}

	res := rc.Result(terminal.ID)
	switch {
	case res == nil:
		// Terminal step never ran: everything upstream of it failed.
		return "failed", &StreamChunk{
			Type:   ChunkError,
			StepID: terminal.ID,
			Error:  rc.FailureSummary(),
		}
	case res.Status == executor.StatusFailed:
		return "failed", &StreamChunk{
			Type:   ChunkError,
			StepID: terminal.ID,
			Error:  terminalError(res),
		}
	default:
		chunk := &StreamChunk{
			Type:     ChunkFinal,
			StepID:   terminal.ID,
			Payload:  finalPayload(res),
			Degraded: rc.Dropped(),
		}
		if res.Status == executor.StatusPartiallyFailed || len(chunk.Degraded) > 0 {
			return "partial", chunk
		}
		return "succeeded", chunk
	}
}

// finalPayload aggregates the terminal step's successful payloads. A single
// invocation's payload passes through untouched; multiple invocations are
// keyed by invocation ID.
func finalPayload(res *executor.StepResult) map[string]any {
	if len(res.Outcomes) == 1 {
		return res.Outcomes[0].Payload
	}
	payloads := res.SuccessfulPayloads()
	out := make(map[string]any, len(payloads))
	for id, p := range payloads {
		out[id] = p
	}
	return map[string]any{"results": out}
}

func terminalError(res *executor.StepResult) string {
	for _, o := range res.Outcomes {
		if o.State == executor.StateFailed || o.State == executor.StateTimedOut {
			return fmt.Sprintf("terminal step %q failed: %s", res.StepID, o.Err)
		}
	}
	return fmt.Sprintf("terminal step %q failed", res.StepID)
}

// blockedBy returns the first dependency whose outputs are unavailable, or
// the empty string when the step may run.
func blockedBy(rc *RunContext, step *plan.Step) string {
	for _, dep := range step.DependsOn {
		if rc.Skipped(dep) || !rc.Usable(dep) {
			return dep
		}
	}
	return ""
}

// resolveFailure converts a template resolution error into a failed step
// result so downstream skip propagation treats it like any other failure.
func resolveFailure(step *plan.Step, err error) *executor.StepResult {
	outcomes := make([]*executor.Outcome, len(step.Invocations))
	for i, inv := range step.Invocations {
		outcomes[i] = &executor.Outcome{
			InvocationID: inv.Name(),
			Tool:         inv.Tool,
			State:        executor.StateFailed,
			Err:          err.Error(),
		}
	}
	return &executor.StepResult{
		StepID:   step.ID,
		Status:   executor.StatusFailed,
		Outcomes: outcomes,
	}
}
