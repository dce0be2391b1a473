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

package main

import (
	"fmt"
	"strings"

	"github.com/kadirpekel/switchboard/pkg/config"
	"github.com/kadirpekel/switchboard/pkg/plan"
)

// ValidateCmd loads a config file and validates it, including full plan DAG
// validation, without starting the server.
type ValidateCmd struct {
	Config       string   `short:"c" help:"Config path (file path or remote key)." default:"switchboard.yaml"`
	ConfigSource string   `help:"Config source (file, consul, etcd)." default:"file"`
	Endpoints    []string `help:"Remote config endpoints."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	sourceType, err := config.ParseSourceType(c.ConfigSource)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(config.LoaderOptions{
		Type:      sourceType,
		Path:      c.Config,
		Endpoints: c.Endpoints,
	})
	if err != nil {
		return err
	}

	plans, err := plan.NewRegistry(cfg.Plans)
	if err != nil {
		return fmt.Errorf("invalid plan catalog: %w", err)
	}

	fmt.Printf("Configuration OK: %s\n", c.Config)
	fmt.Printf("  name:     %s\n", cfg.Name)
	fmt.Printf("  selector: %s\n", cfg.Selector.Type)
	fmt.Printf("  tools:    %d\n", len(cfg.Tools))
	fmt.Printf("  plans:    %d\n", plans.Count())
	for _, def := range plans.List() {
		order, _ := def.TopoOrder()
		fmt.Printf("    - %s (%d steps: %s)\n", def.ID, len(def.Steps), strings.Join(order, " -> "))
	}
	return nil
}
