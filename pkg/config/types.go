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

// Package config declares the switchboard configuration model and loads it
// from file, consul or etcd sources with environment variable expansion.
package config

import (
	"fmt"
	"time"

	"github.com/kadirpekel/switchboard/pkg/executor"
	"github.com/kadirpekel/switchboard/pkg/observability"
	"github.com/kadirpekel/switchboard/pkg/plan"
	"github.com/kadirpekel/switchboard/pkg/selector"
)

// Config is the root configuration.
type Config struct {
	// Name identifies the deployment in logs and traces.
	Name string `yaml:"name" json:"name"`

	Server        ServerConfig        `yaml:"server" json:"server"`
	Engine        EngineConfig        `yaml:"engine" json:"engine"`
	Selector      SelectorConfig      `yaml:"selector" json:"selector"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`

	// Tools declares the tool catalog, keyed by tool name.
	Tools map[string]*ToolConfig `yaml:"tools" json:"tools"`

	// Plans is the static plan catalog.
	Plans []*plan.Definition `yaml:"plans" json:"plans"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// EngineConfig tunes the step executor.
type EngineConfig struct {
	MaxConcurrentInvocations int           `yaml:"max_concurrent_invocations" json:"max_concurrent_invocations"`
	DefaultStepTimeout       time.Duration `yaml:"default_step_timeout" json:"default_step_timeout"`
	DefaultRetryAttempts     int           `yaml:"default_retry_attempts" json:"default_retry_attempts"`
	DefaultRetryBackoff      time.Duration `yaml:"default_retry_backoff" json:"default_retry_backoff"`
}

// ToExecutorConfig converts engine settings to the executor's config.
func (e EngineConfig) ToExecutorConfig() executor.Config {
	return executor.Config{
		MaxConcurrentInvocations: e.MaxConcurrentInvocations,
		DefaultStepTimeout:       e.DefaultStepTimeout,
		DefaultRetryAttempts:     e.DefaultRetryAttempts,
		DefaultRetryBackoff:      e.DefaultRetryBackoff,
	}
}

// SelectorConfig configures plan selection.
type SelectorConfig struct {
	// Type is "rules" or "gemini".
	Type string `yaml:"type" json:"type"`

	// DefaultPlan is chosen by the rules selector when nothing matches.
	DefaultPlan string `yaml:"default_plan" json:"default_plan"`

	// ClarificationPlan receives ambiguous turns. Empty surfaces the
	// ambiguity to the caller instead.
	ClarificationPlan string `yaml:"clarification_plan" json:"clarification_plan"`

	// Rules drive the rules selector.
	Rules []selector.Rule `yaml:"rules" json:"rules"`

	Gemini GeminiSelectorConfig `yaml:"gemini" json:"gemini"`
}

// GeminiSelectorConfig configures the Gemini-backed selector.
type GeminiSelectorConfig struct {
	APIKey string `yaml:"api_key" json:"api_key"`
	Model  string `yaml:"model" json:"model"`
}

// ObservabilityConfig groups tracing and metrics settings.
type ObservabilityConfig struct {
	Tracing observability.TracerConfig  `yaml:"tracing" json:"tracing"`
	Metrics observability.MetricsConfig `yaml:"metrics" json:"metrics"`
}

// ToolConfig declares one tool instance: its implementation type plus
// type-specific settings decoded by the tool factory.
type ToolConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Settings map[string]any `yaml:"settings" json:"settings"`
}

// SetDefaults fills unset fields across the tree.
func (c *Config) SetDefaults() {
	if c.Name == "" {
		c.Name = "switchboard"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Selector.Type == "" {
		c.Selector.Type = "rules"
	}
	if c.Tools == nil {
		c.Tools = make(map[string]*ToolConfig)
	}
}

// Validate checks the tree for structural errors and dangling references.
// Plan DAG validation itself happens when the plan registry is built.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}

	switch c.Selector.Type {
	case "rules", "gemini":
	default:
		return fmt.Errorf("selector: unknown type %q (valid types: rules, gemini)", c.Selector.Type)
	}
	if c.Selector.Type == "gemini" && c.Selector.Gemini.APIKey == "" {
		return fmt.Errorf("selector: gemini selector requires an API key")
	}

	planIDs := make(map[string]bool, len(c.Plans))
	for _, def := range c.Plans {
		planIDs[def.ID] = true
	}
	if c.Selector.DefaultPlan != "" && !planIDs[c.Selector.DefaultPlan] {
		return fmt.Errorf("selector: default plan %q is not declared", c.Selector.DefaultPlan)
	}
	if c.Selector.ClarificationPlan != "" && !planIDs[c.Selector.ClarificationPlan] {
		return fmt.Errorf("selector: clarification plan %q is not declared", c.Selector.ClarificationPlan)
	}
	for _, rule := range c.Selector.Rules {
		if !planIDs[rule.Plan] {
			return fmt.Errorf("selector: rule references undeclared plan %q", rule.Plan)
		}
	}

	declaredTools := make(map[string]bool, len(c.Tools))
	for name, tc := range c.Tools {
		if tc == nil || tc.Type == "" {
			return fmt.Errorf("tool %q: type is required", name)
		}
		declaredTools[name] = true
	}
	for _, def := range c.Plans {
		for _, step := range def.Steps {
			for _, inv := range step.Invocations {
				if !declaredTools[inv.Tool] {
					return fmt.Errorf("plan %q step %q: tool %q is not declared", def.ID, step.ID, inv.Tool)
				}
			}
		}
	}

	return nil
}
