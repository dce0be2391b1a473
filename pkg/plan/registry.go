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
	"sort"
)

// Registry is the immutable plan catalog. It is built once at process start
// from static declarations and is read-only thereafter, so concurrent reads
// need no synchronization.
type Registry struct {
	plans map[string]*Definition
}

// NewRegistry validates every definition and builds the catalog.
// A single invalid plan fails the whole build; nothing is registered.
func NewRegistry(defs []*Definition) (*Registry, error) {
	plans := make(map[string]*Definition, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, exists := plans[def.ID]; exists {
			return nil, fmt.Errorf("duplicate plan ID %q", def.ID)
		}
		plans[def.ID] = def
	}
	return &Registry{plans: plans}, nil
}

// Lookup returns the plan definition for the given ID.
func (r *Registry) Lookup(planID string) (*Definition, error) {
	def, ok := r.plans[planID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, planID)
	}
	return def, nil
}

// IDs returns all registered plan IDs in lexical order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.plans))
	for id := range r.plans {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns all plan definitions ordered by ID.
func (r *Registry) List() []*Definition {
	defs := make([]*Definition, 0, len(r.plans))
	for _, id := range r.IDs() {
		defs = append(defs, r.plans[id])
	}
	return defs
}

// Count returns the number of registered plans.
func (r *Registry) Count() int {
	return len(r.plans)
}
