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
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/kadirpekel/switchboard/pkg/plan"
)

// GeminiConfig configures the Gemini-backed selector.
type GeminiConfig struct {
	// APIKey is the Google AI API key.
	APIKey string

	// Model is the model name. Defaults to "gemini-2.0-flash".
	Model string
}

// Gemini classifies turns with a Gemini model constrained to JSON output.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini-backed selector.
func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{client: client, model: cfg.Model}, nil
}

// geminiVerdict is the structured response the model is constrained to.
type geminiVerdict struct {
	PlanID    string         `json:"plan_id"`
	Params    map[string]any `json:"params"`
	Ambiguous bool           `json:"ambiguous"`
	Reason    string         `json:"reason"`
}

// Select asks the model to pick one plan from the catalog. The model may
// declare the turn ambiguous, which maps to ErrAmbiguous.
func (s *Gemini) Select(ctx context.Context, plans []*plan.Definition, state *ConversationState) (*Selection, error) {
	known := make(map[string]bool, len(plans))
	for _, def := range plans {
		known[def.ID] = true
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"plan_id":   {Type: genai.TypeString},
				"params":    {Type: genai.TypeObject},
				"ambiguous": {Type: genai.TypeBoolean},
				"reason":    {Type: genai.TypeString},
			},
			Required: []string{"plan_id", "ambiguous"},
		},
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(s.buildPrompt(plans, state)), config)
	if err != nil {
		return nil, fmt.Errorf("Gemini selection failed: %w", err)
	}

	var verdict geminiVerdict
	if err := json.Unmarshal([]byte(resp.Text()), &verdict); err != nil {
		return nil, fmt.Errorf("failed to parse selection response: %w", err)
	}

	if verdict.Ambiguous {
		return nil, fmt.Errorf("%s: %w", verdict.Reason, ErrAmbiguous)
	}
	if !known[verdict.PlanID] {
		return nil, fmt.Errorf("model selected unknown plan %q", verdict.PlanID)
	}

	params := verdict.Params
	if params == nil {
		params = map[string]any{"query": state.LatestMessage}
	}
	return &Selection{PlanID: verdict.PlanID, Params: params}, nil
}

func (s *Gemini) buildPrompt(plans []*plan.Definition, state *ConversationState) string {
	var sb strings.Builder
	sb.WriteString("You route user messages to predeclared action plans.\n")
	sb.WriteString("Pick the single best plan for the latest message, or mark the turn ambiguous.\n\n")
	sb.WriteString("Available plans:\n")
	for _, def := range plans {
		fmt.Fprintf(&sb, "- %s: %s\n", def.ID, def.Description)
	}
	if len(state.History) > 0 {
		sb.WriteString("\nConversation so far:\n")
		for _, msg := range state.History {
			fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
		}
	}
	fmt.Fprintf(&sb, "\nLatest message: %s\n", state.LatestMessage)
	return sb.String()
}
