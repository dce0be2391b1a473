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

package tools

import (
	"context"
	"fmt"
	"strings"
)

// ClarifySettings configures a clarify tool instance.
type ClarifySettings struct {
	// Prompt is the clarification question template. "%s" is replaced with
	// the original query when present.
	Prompt string `yaml:"prompt"`

	// Suggestions are offered alongside the clarification question.
	Suggestions []string `yaml:"suggestions"`
}

// Clarify produces a clarification question for turns the selector could not
// route. It performs no external work, so ambiguous turns still get a
// well-formed final chunk.
type Clarify struct {
	name     string
	settings ClarifySettings
}

// NewClarify creates a clarification tool.
func NewClarify(name string, settings ClarifySettings) *Clarify {
	if settings.Prompt == "" {
		settings.Prompt = "I'm not sure what you're asking for with %q. Could you rephrase or add more detail?"
	}
	return &Clarify{name: name, settings: settings}
}

func (t *Clarify) Name() string { return t.name }

func (t *Clarify) Description() string {
	return "Ask the user to clarify an ambiguous request"
}

func (t *Clarify) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		query = "your request"
	}
	question := t.settings.Prompt
	if strings.Contains(question, "%") {
		question = fmt.Sprintf(question, query)
	}

	payload := map[string]any{
		"clarification": question,
	}
	if len(t.settings.Suggestions) > 0 {
		payload["suggestions"] = t.settings.Suggestions
	}
	return payload, nil
}
