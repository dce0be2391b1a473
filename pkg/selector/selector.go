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

// Package selector maps a conversational turn to a plan from the catalog.
//
// Selection is pluggable: the router only depends on the Selector interface.
// Implementations range from keyword rules to LLM-backed classification; all
// of them signal an undecidable turn with ErrAmbiguous so the router can fall
// back to a clarification plan.
package selector

import (
	"context"
	"errors"

	"github.com/kadirpekel/switchboard/pkg/plan"
)

// ErrAmbiguous signals that no single plan clearly matches the turn.
var ErrAmbiguous = errors.New("ambiguous plan selection")

// Message is one prior turn of the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationState is the selector's view of a turn: the new message plus
// whatever history and session settings the caller carries.
type ConversationState struct {
	SessionID     string         `json:"session_id,omitempty"`
	LatestMessage string         `json:"latest_message"`
	History       []Message      `json:"history,omitempty"`
	Settings      map[string]any `json:"settings,omitempty"`
}

// Selection is a chosen plan plus the parameters to run it with.
type Selection struct {
	PlanID string         `json:"plan_id"`
	Params map[string]any `json:"params,omitempty"`
}

// Selector chooses a plan for a conversational turn.
type Selector interface {
	// Select picks one of the given plans. It returns ErrAmbiguous when the
	// turn does not clearly match a single plan.
	Select(ctx context.Context, plans []*plan.Definition, state *ConversationState) (*Selection, error)
}
