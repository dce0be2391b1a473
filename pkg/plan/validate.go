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
	"fmt"
	"strings"
)

// Validate checks the structural invariants of a plan definition:
// at least one step, unique step and invocation IDs, existing dependencies,
// an acyclic dependency graph, exactly one terminal step, and no invocation
// referencing outputs of its own step.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return &ValidationError{Plan: d.ID, Message: "plan ID cannot be empty"}
	}
	if len(d.Steps) == 0 {
		return &ValidationError{Plan: d.ID, Message: "plan must declare at least one step"}
	}

	stepIDs := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		if s.ID == "" {
			return &ValidationError{Plan: d.ID, Message: "step ID cannot be empty"}
		}
		if stepIDs[s.ID] {
			return &ValidationError{Plan: d.ID, Step: s.ID, Message: "duplicate step ID"}
		}
		stepIDs[s.ID] = true
	}

	for _, s := range d.Steps {
		if err := d.validateStep(s, stepIDs); err != nil {
			return err
		}
	}

	// Cycle check.
	if _, err := d.TopoOrder(); err != nil {
		return err
	}

	// Exactly one terminal step produces the final payload.
	depended := make(map[string]bool)
	for _, s := range d.Steps {
		for _, dep := range s.DependsOn {
			depended[dep] = true
		}
	}
	var terminals []string
	for _, s := range d.Steps {
		if !depended[s.ID] {
			terminals = append(terminals, s.ID)
		}
	}
	if len(terminals) != 1 {
		return &ValidationError{
			Plan:    d.ID,
			Message: fmt.Sprintf("plan must have exactly one terminal step, found %d (%s)", len(terminals), strings.Join(terminals, ", ")),
		}
	}

	return nil
}

func (d *Definition) validateStep(s Step, stepIDs map[string]bool) error {
	if s.Mode != ModeParallel && s.Mode != ModeSequential {
		return &ValidationError{Plan: d.ID, Step: s.ID, Message: fmt.Sprintf("invalid mode %q", s.Mode)}
	}
	if len(s.Invocations) == 0 {
		return &ValidationError{Plan: d.ID, Step: s.ID, Message: "step must declare at least one invocation"}
	}

	for _, dep := range s.DependsOn {
		if dep == s.ID {
			return &ValidationError{Plan: d.ID, Step: s.ID, Message: "step cannot depend on itself"}
		}
		if !stepIDs[dep] {
			return &ValidationError{Plan: d.ID, Step: s.ID, Message: fmt.Sprintf("unknown dependency %q", dep)}
		}
	}

	names := make(map[string]bool, len(s.Invocations))
	for _, inv := range s.Invocations {
		if inv.Tool == "" {
			return &ValidationError{Plan: d.ID, Step: s.ID, Message: "invocation tool name cannot be empty"}
		}
		name := inv.Name()
		if names[name] {
			return &ValidationError{Plan: d.ID, Step: s.ID, Message: fmt.Sprintf("duplicate invocation ID %q", name)}
		}
		names[name] = true

		// Invocations are resolved before the step starts, so none of them
		// may reference outputs produced within the same step.
		for _, ref := range templateRefs(inv.Input) {
			if ref == "steps."+s.ID || strings.HasPrefix(ref, "steps."+s.ID+".") {
				return &ValidationError{
					Plan:    d.ID,
					Step:    s.ID,
					Message: fmt.Sprintf("invocation %q references its own step's output (%s)", name, ref),
				}
			}
		}
	}

	return nil
}

// templateRefs collects every "${...}" reference path in an input template.
func templateRefs(value any) []string {
	var refs []string
	collectRefs(value, &refs)
	return refs
}

func collectRefs(value any, refs *[]string) {
	switch v := value.(type) {
	case string:
		rest := v
		for {
			start := strings.Index(rest, "${")
			if start < 0 {
				return
			}
			end := strings.Index(rest[start:], "}")
			if end < 0 {
				return
			}
			*refs = append(*refs, rest[start+2:start+end])
			rest = rest[start+end+1:]
		}
	case map[string]any:
		for _, sub := range v {
			collectRefs(sub, refs)
		}
	case []any:
		for _, sub := range v {
			collectRefs(sub, refs)
		}
	}
}
