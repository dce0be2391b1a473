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

// Package tools provides the built-in tool implementations and the factory
// that builds the tool registry from configuration.
package tools

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/kadirpekel/switchboard/pkg/config"
	"github.com/kadirpekel/switchboard/pkg/tool"
)

// BuildRegistry constructs the tool registry from declared tool configs.
// Each tool is instantiated by type with its settings decoded into the
// type-specific settings struct.
func BuildRegistry(configs map[string]*config.ToolConfig) (*tool.Registry, error) {
	registry := tool.NewRegistry()

	for name, tc := range configs {
		t, err := buildTool(name, tc)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", name, err)
		}
		if err := registry.Add(t); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

func buildTool(name string, tc *config.ToolConfig) (tool.Tool, error) {
	switch tc.Type {
	case "sql_query":
		var settings SQLSettings
		if err := decodeSettings(tc.Settings, &settings); err != nil {
			return nil, err
		}
		return NewSQL(name, settings)

	case "document_extract":
		var settings DocumentSettings
		if err := decodeSettings(tc.Settings, &settings); err != nil {
			return nil, err
		}
		return NewDocument(name, settings), nil

	case "web_request":
		var settings WebSettings
		if err := decodeSettings(tc.Settings, &settings); err != nil {
			return nil, err
		}
		return NewWeb(name, settings), nil

	case "compose_answer":
		var settings ComposeSettings
		if err := decodeSettings(tc.Settings, &settings); err != nil {
			return nil, err
		}
		return NewCompose(name, settings), nil

	case "clarify":
		var settings ClarifySettings
		if err := decodeSettings(tc.Settings, &settings); err != nil {
			return nil, err
		}
		return NewClarify(name, settings), nil

	default:
		return nil, fmt.Errorf("unknown tool type %q", tc.Type)
	}
}

// decodeSettings maps loosely-typed config settings onto a typed settings
// struct, with string-to-duration coercion.
func decodeSettings(input map[string]any, output any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create settings decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}
