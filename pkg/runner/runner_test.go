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

package runner

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/switchboard/pkg/executor"
	"github.com/kadirpekel/switchboard/pkg/plan"
	"github.com/kadirpekel/switchboard/pkg/tool"
)

func newTestRunner(t *testing.T, tools ...tool.Tool) *Runner {
	t.Helper()
	reg := tool.NewRegistry()
	for _, tl := range tools {
		require.NoError(t, reg.Add(tl))
	}
	exec := executor.New(reg, executor.Config{
		DefaultStepTimeout:  2 * time.Second,
		DefaultRetryBackoff: time.Millisecond,
	})
	return New(exec)
}

func echoTool(name string) tool.Tool {
	return &tool.Func{
		ToolName: name,
		Fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			out := map[string]any{"tool": name}
			for k, v := range args {
				out[k] = v
			}
			return out, nil
		},
	}
}

func brokenTool(name string) tool.Tool {
	return &tool.Func{
		ToolName: name,
		Fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return nil, errors.New("boom")
		},
	}
}

// delayedStreamTool emits progress fragments after an optional delay, then a
// final payload.
type delayedStreamTool struct {
	name     string
	delay    time.Duration
	progress []map[string]any
}

func (d *delayedStreamTool) Name() string        { return d.name }
func (d *delayedStreamTool) Description() string { return "test streaming tool" }

func (d *delayedStreamTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	return map[string]any{"tool": d.name}, nil
}

func (d *delayedStreamTool) CallStreaming(ctx context.Context, args map[string]any) iter.Seq2[*tool.Result, error] {
	return func(yield func(*tool.Result, error) bool) {
		if d.delay > 0 {
			select {
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			case <-time.After(d.delay):
			}
		}
		for _, p := range d.progress {
			if !yield(&tool.Result{Payload: p, Streaming: true}, nil) {
				return
			}
		}
		yield(&tool.Result{Payload: map[string]any{"tool": d.name}}, nil)
	}
}

func collect(t *testing.T, seq iter.Seq2[*StreamChunk, error]) []*StreamChunk {
	t.Helper()
	var chunks []*StreamChunk
	for chunk, err := range seq {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	return chunks
}

func terminalOf(t *testing.T, chunks []*StreamChunk) *StreamChunk {
	t.Helper()
	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	require.True(t, last.Terminal(), "last chunk must be terminal, got %s", last.Type)
	return last
}

func TestExecuteLinearPlan(t *testing.T) {
	r := newTestRunner(t, echoTool("fetch"), echoTool("compose"))

	def := &plan.Definition{ID: "linear", Steps: []plan.Step{
		{
			ID:   "first",
			Mode: plan.ModeSequential,
			Invocations: []plan.Invocation{
				{Tool: "fetch", Input: map[string]any{"q": "${params.query}"}},
			},
		},
		{
			ID:        "answer",
			Mode:      plan.ModeSequential,
			DependsOn: []string{"first"},
			Invocations: []plan.Invocation{
				{Tool: "compose", Input: map[string]any{"source": "${steps.first.fetch.q}"}},
			},
		},
	}}

	chunks := collect(t, r.Execute(context.Background(), def, map[string]any{"query": "hello"}))

	final := terminalOf(t, chunks)
	assert.Equal(t, ChunkFinal, final.Type)
	assert.Equal(t, "answer", final.StepID)
	// The upstream value threaded through the template into the terminal
	// payload.
	assert.Equal(t, "hello", final.Payload["source"])
	assert.Empty(t, final.Degraded)
}

func TestExecuteExactlyOneTerminalChunk(t *testing.T) {
	r := newTestRunner(t, echoTool("fetch"), echoTool("compose"))

	def := &plan.Definition{ID: "p", Steps: []plan.Step{
		{ID: "a", Mode: plan.ModeParallel, Invocations: []plan.Invocation{{Tool: "fetch"}}},
		{ID: "b", Mode: plan.ModeSequential, DependsOn: []string{"a"},
			Invocations: []plan.Invocation{{Tool: "compose"}}},
	}}

	chunks := collect(t, r.Execute(context.Background(), def, nil))

	terminals := 0
	for _, c := range chunks {
		if c.Terminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
	assert.True(t, chunks[len(chunks)-1].Terminal())
}

func TestExecuteProgressInDeclarationOrder(t *testing.T) {
	// The second-declared invocation finishes first; buffered progress must
	// still be flushed in declaration order.
	slow := &delayedStreamTool{
		name:     "slow",
		delay:    50 * time.Millisecond,
		progress: []map[string]any{{"src": "slow", "n": 1}, {"src": "slow", "n": 2}},
	}
	fast := &delayedStreamTool{
		name:     "fast",
		progress: []map[string]any{{"src": "fast", "n": 1}},
	}
	r := newTestRunner(t, slow, fast, echoTool("compose"))

	def := &plan.Definition{ID: "ordered", Steps: []plan.Step{
		{
			ID:   "gather",
			Mode: plan.ModeParallel,
			Invocations: []plan.Invocation{
				{Tool: "slow"},
				{Tool: "fast"},
			},
		},
		{
			ID:          "answer",
			Mode:        plan.ModeSequential,
			DependsOn:   []string{"gather"},
			Invocations: []plan.Invocation{{Tool: "compose"}},
		},
	}}

	for i := 0; i < 3; i++ {
		chunks := collect(t, r.Execute(context.Background(), def, nil))

		var order []string
		for _, c := range chunks {
			if c.Type == ChunkProgress && c.StepID == "gather" {
				order = append(order, c.InvocationID)
			}
		}
		// slow's fragments and payload first, then fast's, per declaration.
		assert.Equal(t, []string{"slow", "slow", "slow", "fast", "fast"}, order)
	}
}

func TestExecutePartialFailureDegradesFinalChunk(t *testing.T) {
	r := newTestRunner(t, echoTool("db"), brokenTool("api"), echoTool("compose"))

	def := &plan.Definition{ID: "partial", Steps: []plan.Step{
		{
			ID:   "gather",
			Mode: plan.ModeParallel,
			Invocations: []plan.Invocation{
				{Tool: "db"},
				{Tool: "api"},
			},
		},
		{
			ID:        "answer",
			Mode:      plan.ModeSequential,
			DependsOn: []string{"gather"},
			Invocations: []plan.Invocation{
				{Tool: "compose", Input: map[string]any{"sources": "${steps.gather}"}},
			},
		},
	}}

	chunks := collect(t, r.Execute(context.Background(), def, nil))

	final := terminalOf(t, chunks)
	require.Equal(t, ChunkFinal, final.Type)
	assert.Equal(t, []string{"api"}, final.Degraded)

	// Only the successful sibling's payload reached the terminal step.
	sources, ok := final.Payload["sources"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, sources, "db")
	assert.NotContains(t, sources, "api")
}

func TestExecuteSkipPropagation(t *testing.T) {
	r := newTestRunner(t, brokenTool("db"), echoTool("compose"))

	def := &plan.Definition{ID: "doomed", Steps: []plan.Step{
		{ID: "gather", Mode: plan.ModeSequential, Invocations: []plan.Invocation{{Tool: "db"}}},
		{ID: "answer", Mode: plan.ModeSequential, DependsOn: []string{"gather"},
			Invocations: []plan.Invocation{{Tool: "compose"}}},
	}}

	chunks := collect(t, r.Execute(context.Background(), def, nil))

	final := terminalOf(t, chunks)
	assert.Equal(t, ChunkError, final.Type)
	assert.Contains(t, final.Error, "gather")
	assert.Contains(t, final.Error, "answer")
}

func TestExecuteTerminalStepFailure(t *testing.T) {
	r := newTestRunner(t, echoTool("db"), brokenTool("compose"))

	def := &plan.Definition{ID: "p", Steps: []plan.Step{
		{ID: "gather", Mode: plan.ModeSequential, Invocations: []plan.Invocation{{Tool: "db"}}},
		{ID: "answer", Mode: plan.ModeSequential, DependsOn: []string{"gather"},
			Invocations: []plan.Invocation{{Tool: "compose"}}},
	}}

	chunks := collect(t, r.Execute(context.Background(), def, nil))

	final := terminalOf(t, chunks)
	assert.Equal(t, ChunkError, final.Type)
	assert.Equal(t, "answer", final.StepID)
	assert.Contains(t, final.Error, "boom")
}

func TestExecuteUnresolvedTemplateFailsStepNotRun(t *testing.T) {
	r := newTestRunner(t, echoTool("db"), echoTool("compose"))

	def := &plan.Definition{ID: "p", Steps: []plan.Step{
		{
			ID:   "gather",
			Mode: plan.ModeSequential,
			Invocations: []plan.Invocation{
				{Tool: "db", Input: map[string]any{"q": "${params.missing}"}},
			},
		},
		{ID: "answer", Mode: plan.ModeSequential, DependsOn: []string{"gather"},
			Invocations: []plan.Invocation{{Tool: "compose"}}},
	}}

	chunks := collect(t, r.Execute(context.Background(), def, nil))

	final := terminalOf(t, chunks)
	assert.Equal(t, ChunkError, final.Type)
	assert.Contains(t, final.Error, "gather")
}

func TestExecuteCancelledContext(t *testing.T) {
	r := newTestRunner(t, echoTool("db"))

	def := &plan.Definition{ID: "p", Steps: []plan.Step{
		{ID: "only", Mode: plan.ModeSequential, Invocations: []plan.Invocation{{Tool: "db"}}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chunks := collect(t, r.ExecuteRun(ctx, "run-c", def, nil))

	final := terminalOf(t, chunks)
	assert.Equal(t, ChunkCancelled, final.Type)
}

func TestExecuteMultiInvocationTerminalPayload(t *testing.T) {
	r := newTestRunner(t, echoTool("a"), echoTool("b"))

	def := &plan.Definition{ID: "p", Steps: []plan.Step{
		{
			ID:   "pair",
			Mode: plan.ModeParallel,
			Invocations: []plan.Invocation{
				{Tool: "a"},
				{Tool: "b"},
			},
		},
	}}

	chunks := collect(t, r.Execute(context.Background(), def, nil))

	final := terminalOf(t, chunks)
	require.Equal(t, ChunkFinal, final.Type)
	results, ok := final.Payload["results"].(map[string]any)
	require.True(t, ok, "multi-invocation terminal payload keyed by invocation")
	assert.Contains(t, results, "a")
	assert.Contains(t, results, "b")
}
