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

package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/switchboard/pkg/executor"
	"github.com/kadirpekel/switchboard/pkg/plan"
	"github.com/kadirpekel/switchboard/pkg/runner"
	"github.com/kadirpekel/switchboard/pkg/selector"
	"github.com/kadirpekel/switchboard/pkg/tool"
)

// stubSelector returns a fixed selection or error.
type stubSelector struct {
	selection *selector.Selection
	err       error
}

func (s *stubSelector) Select(ctx context.Context, plans []*plan.Definition, state *selector.ConversationState) (*selector.Selection, error) {
	return s.selection, s.err
}

func newTestRouter(t *testing.T, sel selector.Selector, opts ...Option) *Router {
	t.Helper()

	echo := &tool.Func{
		ToolName: "echo",
		Fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			out := map[string]any{}
			for k, v := range args {
				out[k] = v
			}
			return out, nil
		},
	}
	blocker := &tool.Func{
		ToolName: "blocker",
		Fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	reg := tool.NewRegistry()
	require.NoError(t, reg.Add(echo))
	require.NoError(t, reg.Add(blocker))

	plans, err := plan.NewRegistry([]*plan.Definition{
		{ID: "answer", Steps: []plan.Step{
			{ID: "only", Mode: plan.ModeSequential,
				Invocations: []plan.Invocation{{Tool: "echo", Input: map[string]any{"query": "${params.query}"}}}},
		}},
		{ID: "clarify", Steps: []plan.Step{
			{ID: "ask", Mode: plan.ModeSequential,
				Invocations: []plan.Invocation{{Tool: "echo", Input: map[string]any{"clarify": "${params.query}"}}}},
		}},
		{ID: "endless", Steps: []plan.Step{
			{ID: "wait", Mode: plan.ModeSequential, Retry: plan.RetryPolicy{MaxAttempts: 1},
				Invocations: []plan.Invocation{{Tool: "blocker"}}},
		}},
	})
	require.NoError(t, err)

	exec := executor.New(reg, executor.Config{
		DefaultStepTimeout:  2 * time.Second,
		DefaultRetryBackoff: time.Millisecond,
	})

	r, err := New(plans, runner.New(exec), sel, opts...)
	require.NoError(t, err)
	return r
}

func drain(t *testing.T, s *runner.Stream) []*runner.StreamChunk {
	t.Helper()
	var chunks []*runner.StreamChunk
	deadline := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-s.Chunks():
			if !ok {
				return chunks
			}
			chunks = append(chunks, chunk)
		case <-deadline:
			t.Fatal("stream did not close in time")
		}
	}
}

func TestStartRun(t *testing.T) {
	r := newTestRouter(t, &stubSelector{})

	s, err := r.StartRun(context.Background(), "answer", map[string]any{"query": "hi"})
	require.NoError(t, err)
	require.NotEmpty(t, s.RunID())

	chunks := drain(t, s)
	require.NotEmpty(t, chunks)
	final := chunks[len(chunks)-1]
	assert.Equal(t, runner.ChunkFinal, final.Type)
	assert.Equal(t, "hi", final.Payload["query"])

	// The run table entry is released once the stream closes.
	assert.Eventually(t, func() bool {
		return len(r.ActiveRuns()) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestStartRunUnknownPlan(t *testing.T) {
	r := newTestRouter(t, &stubSelector{})

	s, err := r.StartRun(context.Background(), "ghost", nil)
	assert.Nil(t, s)
	require.Error(t, err)
	assert.ErrorIs(t, err, plan.ErrUnknownPlan)
	assert.Empty(t, r.ActiveRuns())
}

func TestRouteSelectsPlan(t *testing.T) {
	sel := &stubSelector{selection: &selector.Selection{
		PlanID: "answer",
		Params: map[string]any{"query": "from selector"},
	}}
	r := newTestRouter(t, sel)

	s, err := r.Route(context.Background(), &selector.ConversationState{LatestMessage: "hello"})
	require.NoError(t, err)

	chunks := drain(t, s)
	final := chunks[len(chunks)-1]
	assert.Equal(t, runner.ChunkFinal, final.Type)
	assert.Equal(t, "from selector", final.Payload["query"])
}

func TestRouteAmbiguousFallsBackToClarification(t *testing.T) {
	sel := &stubSelector{err: selector.ErrAmbiguous}
	r := newTestRouter(t, sel, WithClarificationPlan("clarify"))

	s, err := r.Route(context.Background(), &selector.ConversationState{LatestMessage: "???"})
	require.NoError(t, err)

	chunks := drain(t, s)
	final := chunks[len(chunks)-1]
	require.Equal(t, runner.ChunkFinal, final.Type)
	assert.Equal(t, "ask", final.StepID)
	assert.Equal(t, "???", final.Payload["clarify"])
}

func TestRouteAmbiguousWithoutClarificationFails(t *testing.T) {
	sel := &stubSelector{err: selector.ErrAmbiguous}
	r := newTestRouter(t, sel)

	s, err := r.Route(context.Background(), &selector.ConversationState{LatestMessage: "???"})
	assert.Nil(t, s)
	assert.ErrorIs(t, err, selector.ErrAmbiguous)
}

func TestNewRejectsUnknownClarificationPlan(t *testing.T) {
	plans, err := plan.NewRegistry(nil)
	require.NoError(t, err)

	_, err = New(plans, nil, &stubSelector{}, WithClarificationPlan("ghost"))
	require.Error(t, err)
	assert.ErrorIs(t, err, plan.ErrUnknownPlan)
}

func TestCancelActiveRun(t *testing.T) {
	r := newTestRouter(t, &stubSelector{})

	s, err := r.StartRun(context.Background(), "endless", nil)
	require.NoError(t, err)

	// Wait for the run to appear in the table, then cancel it.
	require.Eventually(t, func() bool {
		return len(r.ActiveRuns()) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, r.Cancel(s.RunID()))

	chunks := drain(t, s)
	require.NotEmpty(t, chunks)
	assert.Equal(t, runner.ChunkCancelled, chunks[len(chunks)-1].Type)

	assert.Eventually(t, func() bool {
		return len(r.ActiveRuns()) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestCancelUnknownRun(t *testing.T) {
	r := newTestRouter(t, &stubSelector{})

	err := r.Cancel("no-such-run")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownRun))
}
