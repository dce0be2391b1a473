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

package tool

import (
	"fmt"

	"github.com/kadirpekel/switchboard/pkg/registry"
)

// Registry is the tool catalog, keyed by tool name.
type Registry struct {
	*registry.Base[Tool]
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{Base: registry.NewBase[Tool]()}
}

// Add registers a tool under its own name.
func (r *Registry) Add(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	return r.Register(t.Name(), t)
}

// Resolve returns the tool registered under name.
func (r *Registry) Resolve(name string) (Tool, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("tool %q not registered", name)
	}
	return t, nil
}
