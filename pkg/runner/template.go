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
	"fmt"
	"regexp"
	"strings"

	"github.com/kadirpekel/switchboard/pkg/plan"
)

// refPattern matches "${...}" template references inside string values.
var refPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveInputs materializes the input templates of every invocation of a
// step against the run context. Resolution happens right before the step
// starts, so all dependency outputs are already settled. A single unresolved
// reference fails the whole step.
func (rc *RunContext) ResolveInputs(step *plan.Step) ([]map[string]any, error) {
	inputs := make([]map[string]any, len(step.Invocations))
	for i, inv := range step.Invocations {
		resolved, err := rc.resolveValue(inv.Input)
		if err != nil {
			return nil, fmt.Errorf("step %q invocation %q: %w", step.ID, inv.Name(), err)
		}
		if resolved == nil {
			inputs[i] = map[string]any{}
			continue
		}
		m, ok := resolved.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("step %q invocation %q: input resolved to %T, want map", step.ID, inv.Name(), resolved)
		}
		inputs[i] = m
	}
	return inputs, nil
}

// resolveValue walks a template value, substituting references. A string that
// is exactly one reference resolves to the referenced value with its original
// type; strings with embedded references are interpolated as text.
func (rc *RunContext) resolveValue(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return rc.resolveString(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			resolved, err := rc.resolveValue(elem)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			resolved, err := rc.resolveValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

func (rc *RunContext) resolveString(s string) (any, error) {
	matches := refPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	// Whole-string reference keeps the referenced value's type.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		return rc.lookupRef(s[matches[0][2]:matches[0][3]])
	}

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		sb.WriteString(s[last:m[0]])
		val, err := rc.lookupRef(s[m[2]:m[3]])
		if err != nil {
			return nil, err
		}
		sb.WriteString(fmt.Sprint(val))
		last = m[1]
	}
	sb.WriteString(s[last:])
	return sb.String(), nil
}

// lookupRef resolves one dotted reference path:
//
//	params.<key>...                    original run parameter
//	steps.<step>                       successful payloads keyed by invocation
//	steps.<step>.<invocation>          one invocation's payload
//	steps.<step>.<invocation>.<field>  a field within that payload
func (rc *RunContext) lookupRef(ref string) (any, error) {
	parts := strings.Split(ref, ".")
	switch parts[0] {
	case "params":
		if len(parts) < 2 {
			return nil, fmt.Errorf("unresolved reference %q: missing parameter key", ref)
		}
		return digMap(ref, rc.Params, parts[1:])

	case "steps":
		if len(parts) < 2 {
			return nil, fmt.Errorf("unresolved reference %q: missing step ID", ref)
		}
		stepID := parts[1]
		res := rc.Result(stepID)
		if res == nil {
			return nil, fmt.Errorf("unresolved reference %q: step %q has not settled", ref, stepID)
		}
		payloads := res.SuccessfulPayloads()
		if len(parts) == 2 {
			out := make(map[string]any, len(payloads))
			for id, p := range payloads {
				out[id] = p
			}
			return out, nil
		}

		invID := parts[2]
		payload, ok := payloads[invID]
		if !ok {
			return nil, fmt.Errorf("unresolved reference %q: invocation %q did not succeed", ref, invID)
		}
		if len(parts) == 3 {
			return payload, nil
		}
		return digMap(ref, payload, parts[3:])

	default:
		return nil, fmt.Errorf("unresolved reference %q: unknown root %q", ref, parts[0])
	}
}

// digMap follows a dotted path through nested maps.
func digMap(ref string, m map[string]any, path []string) (any, error) {
	var current any = m
	for _, key := range path {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unresolved reference %q: %q is not a map", ref, key)
		}
		current, ok = node[key]
		if !ok {
			return nil, fmt.Errorf("unresolved reference %q: key %q not found", ref, key)
		}
	}
	return current, nil
}
