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
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// ComposeSettings configures a compose_answer tool instance.
type ComposeSettings struct {
	// Encoding is the tiktoken encoding used for the token budget.
	// Defaults to cl100k_base.
	Encoding string `yaml:"encoding"`

	// MaxTokens bounds the composed answer. Defaults to 4000.
	MaxTokens int `yaml:"max_tokens"`
}

// Compose merges upstream step outputs into a single answer payload,
// trimming sources to a token budget.
type Compose struct {
	name     string
	settings ComposeSettings
	encoder  *tiktoken.Tiktoken
}

// NewCompose creates an answer composition tool. When the tiktoken encoding
// cannot be initialized (it may fetch encoding data on first use), token
// counts fall back to a bytes/4 estimate.
func NewCompose(name string, settings ComposeSettings) *Compose {
	if settings.Encoding == "" {
		settings.Encoding = "cl100k_base"
	}
	if settings.MaxTokens <= 0 {
		settings.MaxTokens = 4000
	}

	encoder, err := tiktoken.GetEncoding(settings.Encoding)
	if err != nil {
		encoder = nil
	}

	return &Compose{name: name, settings: settings, encoder: encoder}
}

func (t *Compose) Name() string { return t.name }

func (t *Compose) Description() string {
	return "Merge upstream results into a single answer within a token budget"
}

// Call composes args["sources"] (a map of named results) into an answer.
// An optional args["query"] is echoed back for context.
func (t *Compose) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	sources, ok := args["sources"].(map[string]any)
	if !ok || len(sources) == 0 {
		return nil, fmt.Errorf("sources parameter is required and must not be empty")
	}

	// Sorted for stable section order.
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	budget := t.settings.MaxTokens
	truncated := false
	var sections []map[string]any
	var sb strings.Builder

	for _, name := range names {
		text := renderSource(sources[name])
		tokens := t.countTokens(text)
		if tokens > budget {
			truncated = true
			continue
		}
		budget -= tokens

		sections = append(sections, map[string]any{
			"source": name,
			"tokens": tokens,
		})
		fmt.Fprintf(&sb, "## %s\n%s\n\n", name, text)
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("no source fits within the %d token budget", t.settings.MaxTokens)
	}

	payload := map[string]any{
		"answer":    strings.TrimSpace(sb.String()),
		"sections":  sections,
		"tokens":    t.settings.MaxTokens - budget,
		"truncated": truncated,
	}
	if query, ok := args["query"].(string); ok && query != "" {
		payload["query"] = query
	}
	return payload, nil
}

func (t *Compose) countTokens(text string) int {
	if t.encoder != nil {
		return len(t.encoder.Encode(text, nil, nil))
	}
	// Rough estimate: ~4 bytes per token for English text.
	return len(text)/4 + 1
}

// renderSource flattens a source value to readable text.
func renderSource(v any) string {
	switch val := v.(type) {
	case string:
		return val
	default:
		data, err := json.MarshalIndent(val, "", "  ")
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}
