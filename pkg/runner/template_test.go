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
	"reflect"
	"strings"
	"testing"

	"github.com/kadirpekel/switchboard/pkg/executor"
	"github.com/kadirpekel/switchboard/pkg/plan"
)

func settledContext() *RunContext {
	rc := NewRunContext("run-1", "plan-1", map[string]any{
		"query": "revenue by region",
		"limit": 50,
		"settings": map[string]any{
			"locale": "en-US",
		},
	})
	rc.Record(&executor.StepResult{
		StepID: "gather",
		Status: executor.StatusPartiallyFailed,
		Outcomes: []*executor.Outcome{
			{
				InvocationID: "db",
				Tool:         "orders_db",
				State:        executor.StateSucceeded,
				Payload:      map[string]any{"rows": []any{"r1", "r2"}, "row_count": 2},
			},
			{
				InvocationID: "api",
				Tool:         "status_api",
				State:        executor.StateFailed,
				Err:          "boom",
			},
		},
	})
	return rc
}

func TestResolveInputs(t *testing.T) {
	tests := []struct {
		name    string
		input   map[string]any
		want    map[string]any
		wantErr string
	}{
		{
			name:  "param reference keeps original type",
			input: map[string]any{"max": "${params.limit}"},
			want:  map[string]any{"max": 50},
		},
		{
			name:  "nested param path",
			input: map[string]any{"locale": "${params.settings.locale}"},
			want:  map[string]any{"locale": "en-US"},
		},
		{
			name:  "embedded references interpolate as text",
			input: map[string]any{"q": "ask: ${params.query}!"},
			want:  map[string]any{"q": "ask: revenue by region!"},
		},
		{
			name:  "bare step reference resolves to successful payloads",
			input: map[string]any{"sources": "${steps.gather}"},
			want: map[string]any{"sources": map[string]any{
				"db": map[string]any{"rows": []any{"r1", "r2"}, "row_count": 2},
			}},
		},
		{
			name:  "field within an invocation payload",
			input: map[string]any{"count": "${steps.gather.db.row_count}"},
			want:  map[string]any{"count": 2},
		},
		{
			name:  "plain values pass through",
			input: map[string]any{"n": 7, "flags": []any{true, "x"}},
			want:  map[string]any{"n": 7, "flags": []any{true, "x"}},
		},
		{
			name:    "unknown root",
			input:   map[string]any{"x": "${env.HOME}"},
			wantErr: "unknown root",
		},
		{
			name:    "unsettled step",
			input:   map[string]any{"x": "${steps.future}"},
			wantErr: "has not settled",
		},
		{
			name:    "failed invocation",
			input:   map[string]any{"x": "${steps.gather.api}"},
			wantErr: "did not succeed",
		},
		{
			name:    "missing param key",
			input:   map[string]any{"x": "${params.nope}"},
			wantErr: "not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := settledContext()
			step := &plan.Step{
				ID:          "answer",
				Mode:        plan.ModeSequential,
				Invocations: []plan.Invocation{{Tool: "compose", Input: tt.input}},
			}

			inputs, err := rc.ResolveInputs(step)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("ResolveInputs() expected error containing %q, got nil", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("ResolveInputs() error = %v, want substring %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveInputs() unexpected error: %v", err)
			}
			if !reflect.DeepEqual(inputs[0], tt.want) {
				t.Errorf("ResolveInputs() = %#v, want %#v", inputs[0], tt.want)
			}
		})
	}
}

func TestResolveInputsNilTemplate(t *testing.T) {
	rc := settledContext()
	step := &plan.Step{
		ID:          "bare",
		Mode:        plan.ModeSequential,
		Invocations: []plan.Invocation{{Tool: "compose"}},
	}

	inputs, err := rc.ResolveInputs(step)
	if err != nil {
		t.Fatalf("ResolveInputs() unexpected error: %v", err)
	}
	if len(inputs) != 1 || inputs[0] == nil || len(inputs[0]) != 0 {
		t.Errorf("ResolveInputs() = %#v, want one empty map", inputs)
	}
}

func TestResolveInputsFailedStepIsAtomic(t *testing.T) {
	rc := NewRunContext("run-1", "plan-1", nil)
	rc.Record(&executor.StepResult{
		StepID: "broken",
		Status: executor.StatusFailed,
		Outcomes: []*executor.Outcome{
			{
				InvocationID: "first",
				Tool:         "t1",
				State:        executor.StateSucceeded,
				Payload:      map[string]any{"x": 1},
			},
			{InvocationID: "second", Tool: "t2", State: executor.StateFailed, Err: "boom"},
		},
	})

	step := &plan.Step{
		ID:   "next",
		Mode: plan.ModeSequential,
		Invocations: []plan.Invocation{
			{Tool: "compose", Input: map[string]any{"x": "${steps.broken.first}"}},
		},
	}

	// Even the successful prefix of a failed step must be unreachable.
	if _, err := rc.ResolveInputs(step); err == nil {
		t.Fatal("ResolveInputs() expected error for failed step reference")
	}
}
