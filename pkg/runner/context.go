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
	"sort"

	"github.com/kadirpekel/switchboard/pkg/executor"
)

// RunContext accumulates per-run state while the runner walks the plan DAG:
// the original parameters plus every settled step result. It is owned by a
// single run goroutine and never shared, so it needs no locking.
type RunContext struct {
	RunID  string
	PlanID string
	Params map[string]any

	results map[string]*executor.StepResult
	skipped map[string]bool
	dropped []string
}

// NewRunContext creates the state for one run.
func NewRunContext(runID, planID string, params map[string]any) *RunContext {
	if params == nil {
		params = map[string]any{}
	}
	return &RunContext{
		RunID:   runID,
		PlanID:  planID,
		Params:  params,
		results: make(map[string]*executor.StepResult),
		skipped: make(map[string]bool),
	}
}

// Record stores a settled step result and accumulates its dropped tools.
func (rc *RunContext) Record(res *executor.StepResult) {
	rc.results[res.StepID] = res
	rc.dropped = append(rc.dropped, res.DroppedTools()...)
}

// Result returns the settled result for a step, or nil.
func (rc *RunContext) Result(stepID string) *executor.StepResult {
	return rc.results[stepID]
}

// MarkSkipped records that a step never ran because a dependency failed or
// was itself skipped.
func (rc *RunContext) MarkSkipped(stepID string) {
	rc.skipped[stepID] = true
}

// Skipped reports whether the step was skipped.
func (rc *RunContext) Skipped(stepID string) bool {
	return rc.skipped[stepID]
}

// Usable reports whether a step's outputs are available downstream: the step
// settled with at least a partial success.
func (rc *RunContext) Usable(stepID string) bool {
	res := rc.results[stepID]
	return res != nil && res.Status != executor.StatusFailed
}

// Dropped returns the tool names whose outputs were lost to failures across
// the run so far, de-duplicated in first-seen order.
func (rc *RunContext) Dropped() []string {
	seen := make(map[string]bool, len(rc.dropped))
	var out []string
	for _, name := range rc.dropped {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// FailureSummary describes why the run could not complete, naming the failed
// and skipped steps.
func (rc *RunContext) FailureSummary() string {
	var failed []string
	for id, res := range rc.results {
		if res.Status == executor.StatusFailed {
			failed = append(failed, id)
		}
	}
	sort.Strings(failed)

	var skipped []string
	for id := range rc.skipped {
		skipped = append(skipped, id)
	}
	sort.Strings(skipped)

	switch {
	case len(failed) > 0 && len(skipped) > 0:
		return fmt.Sprintf("steps %v failed; steps %v skipped", failed, skipped)
	case len(failed) > 0:
		return fmt.Sprintf("steps %v failed", failed)
	case len(skipped) > 0:
		return fmt.Sprintf("steps %v skipped", skipped)
	default:
		return "run produced no final result"
	}
}
