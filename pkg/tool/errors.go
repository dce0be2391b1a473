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

import "fmt"

// Error is an invocation-level tool failure. It is absorbed and aggregated
// by the step executor: retried per policy, then recorded in the step result
// rather than aborting the whole run.
type Error struct {
	Tool string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("tool %q: %v", e.Tool, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps a failure with the originating tool name.
func NewError(tool string, err error) *Error {
	return &Error{Tool: tool, Err: err}
}
