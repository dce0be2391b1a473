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

package plan

import (
	"strings"
	"testing"
)

func step(id string, mode Mode, deps []string, tools ...string) Step {
	invs := make([]Invocation, len(tools))
	for i, tl := range tools {
		invs[i] = Invocation{Tool: tl}
	}
	return Step{ID: id, Mode: mode, DependsOn: deps, Invocations: invs}
}

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		wantErr string
	}{
		{
			name: "valid linear plan",
			def: Definition{ID: "p", Steps: []Step{
				step("a", ModeParallel, nil, "t1", "t2"),
				step("b", ModeSequential, []string{"a"}, "t3"),
			}},
		},
		{
			name:    "empty plan ID",
			def:     Definition{Steps: []Step{step("a", ModeParallel, nil, "t1")}},
			wantErr: "plan ID cannot be empty",
		},
		{
			name:    "zero steps",
			def:     Definition{ID: "p"},
			wantErr: "at least one step",
		},
		{
			name: "duplicate step IDs",
			def: Definition{ID: "p", Steps: []Step{
				step("a", ModeParallel, nil, "t1"),
				step("a", ModeParallel, nil, "t2"),
			}},
			wantErr: "duplicate step ID",
		},
		{
			name: "invalid mode",
			def: Definition{ID: "p", Steps: []Step{
				step("a", Mode("fanout"), nil, "t1"),
			}},
			wantErr: "invalid mode",
		},
		{
			name: "step without invocations",
			def: Definition{ID: "p", Steps: []Step{
				{ID: "a", Mode: ModeParallel},
			}},
			wantErr: "at least one invocation",
		},
		{
			name: "missing dependency",
			def: Definition{ID: "p", Steps: []Step{
				step("a", ModeParallel, []string{"ghost"}, "t1"),
			}},
			wantErr: "unknown dependency",
		},
		{
			name: "self dependency",
			def: Definition{ID: "p", Steps: []Step{
				step("a", ModeParallel, []string{"a"}, "t1"),
			}},
			wantErr: "depend on itself",
		},
		{
			name: "duplicate invocation names within a step",
			def: Definition{ID: "p", Steps: []Step{
				step("a", ModeParallel, nil, "t1", "t1"),
			}},
			wantErr: "duplicate invocation",
		},
		{
			name: "dependency cycle",
			def: Definition{ID: "p", Steps: []Step{
				step("a", ModeParallel, []string{"c"}, "t1"),
				step("b", ModeParallel, []string{"a"}, "t2"),
				step("c", ModeParallel, []string{"b"}, "t3"),
			}},
			wantErr: "cycle",
		},
		{
			name: "two terminal steps",
			def: Definition{ID: "p", Steps: []Step{
				step("a", ModeParallel, nil, "t1"),
				step("b", ModeParallel, []string{"a"}, "t2"),
				step("c", ModeParallel, []string{"a"}, "t3"),
			}},
			wantErr: "exactly one terminal step",
		},
		{
			name: "step referencing its own output",
			def: Definition{ID: "p", Steps: []Step{
				{ID: "a", Mode: ModeParallel, Invocations: []Invocation{
					{Tool: "t1", Input: map[string]any{"x": "${steps.a.t1.value}"}},
				}},
			}},
			wantErr: "own step's output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestTopoOrderDeterministic(t *testing.T) {
	def := Definition{ID: "p", Steps: []Step{
		step("fetch_a", ModeParallel, nil, "t1"),
		step("fetch_b", ModeParallel, nil, "t2"),
		step("join", ModeSequential, []string{"fetch_a", "fetch_b"}, "t3"),
	}}

	first, err := def.TopoOrder()
	if err != nil {
		t.Fatalf("TopoOrder() error: %v", err)
	}

	want := []string{"fetch_a", "fetch_b", "join"}
	for i, id := range want {
		if first[i] != id {
			t.Fatalf("TopoOrder() = %v, want %v", first, want)
		}
	}

	// Identical plans must produce identical orders.
	for range 20 {
		again, err := def.TopoOrder()
		if err != nil {
			t.Fatalf("TopoOrder() error: %v", err)
		}
		for i := range first {
			if again[i] != first[i] {
				t.Fatalf("TopoOrder() not deterministic: %v vs %v", again, first)
			}
		}
	}
}

func TestTerminalStep(t *testing.T) {
	def := Definition{ID: "p", Steps: []Step{
		step("a", ModeParallel, nil, "t1"),
		step("b", ModeSequential, []string{"a"}, "t2"),
	}}
	terminal := def.TerminalStep()
	if terminal == nil || terminal.ID != "b" {
		t.Fatalf("TerminalStep() = %v, want step b", terminal)
	}
}

func TestRegistry(t *testing.T) {
	valid := &Definition{ID: "p1", Steps: []Step{step("a", ModeParallel, nil, "t1")}}
	other := &Definition{ID: "p2", Steps: []Step{step("a", ModeParallel, nil, "t1")}}

	r, err := NewRegistry([]*Definition{valid, other})
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}
	if r.Count() != 2 {
		t.Errorf("Count() = %d, want 2", r.Count())
	}

	if _, err := r.Lookup("p1"); err != nil {
		t.Errorf("Lookup(p1) error: %v", err)
	}
	if _, err := r.Lookup("ghost"); err == nil {
		t.Error("Lookup(ghost) expected error")
	}

	ids := r.IDs()
	if len(ids) != 2 || ids[0] != "p1" || ids[1] != "p2" {
		t.Errorf("IDs() = %v, want [p1 p2]", ids)
	}

	// One invalid plan fails the whole build.
	invalid := &Definition{ID: "bad"}
	if _, err := NewRegistry([]*Definition{valid, invalid}); err == nil {
		t.Error("NewRegistry() with invalid plan expected error")
	}

	// Duplicate IDs are rejected.
	if _, err := NewRegistry([]*Definition{valid, valid}); err == nil {
		t.Error("NewRegistry() with duplicate IDs expected error")
	}
}
