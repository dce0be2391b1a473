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

package selector

import (
	"context"
	"fmt"
	"strings"

	"github.com/kadirpekel/switchboard/pkg/plan"
)

// Rule maps keywords to a plan. A rule's score for a message is the number
// of its keywords the message contains.
type Rule struct {
	Plan     string   `yaml:"plan" json:"plan"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Rules selects plans by keyword matching. It is deterministic and needs no
// external service, which makes it the default selector.
type Rules struct {
	rules       []Rule
	defaultPlan string
}

// NewRules creates a keyword selector. defaultPlan, when non-empty, is chosen
// for messages that match no rule.
func NewRules(rules []Rule, defaultPlan string) *Rules {
	return &Rules{rules: rules, defaultPlan: defaultPlan}
}

// Select scores every rule against the latest message and picks the plan
// with the highest score. A tie between distinct plans, or no match without a
// default plan, is ambiguous.
func (s *Rules) Select(ctx context.Context, plans []*plan.Definition, state *ConversationState) (*Selection, error) {
	known := make(map[string]bool, len(plans))
	for _, def := range plans {
		known[def.ID] = true
	}

	message := strings.ToLower(state.LatestMessage)

	best, bestScore := "", 0
	tied := false
	for _, rule := range s.rules {
		score := 0
		for _, kw := range rule.Keywords {
			if strings.Contains(message, strings.ToLower(kw)) {
				score++
			}
		}
		switch {
		case score == 0:
		case score > bestScore:
			best, bestScore, tied = rule.Plan, score, false
		case score == bestScore && rule.Plan != best:
			tied = true
		}
	}

	switch {
	case bestScore == 0 && s.defaultPlan != "":
		best = s.defaultPlan
	case bestScore == 0:
		return nil, fmt.Errorf("no rule matched: %w", ErrAmbiguous)
	case tied:
		return nil, fmt.Errorf("multiple plans tied: %w", ErrAmbiguous)
	}

	if !known[best] {
		return nil, fmt.Errorf("rule selected unknown plan %q", best)
	}

	return &Selection{
		PlanID: best,
		Params: map[string]any{"query": state.LatestMessage},
	}, nil
}
