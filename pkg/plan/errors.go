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
	"errors"
	"fmt"
)

// ErrUnknownPlan is returned by Registry.Lookup for unregistered plan IDs.
// It is fatal to the run: surfaced immediately, never retried.
var ErrUnknownPlan = errors.New("unknown plan")

// ValidationError reports a structural defect in a plan definition,
// detected at registry load time.
type ValidationError struct {
	Plan    string
	Step    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("plan %q step %q: %s", e.Plan, e.Step, e.Message)
	}
	return fmt.Sprintf("plan %q: %s", e.Plan, e.Message)
}
