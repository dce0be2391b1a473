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
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/switchboard/pkg/config"
	"github.com/kadirpekel/switchboard/pkg/executor"
	"github.com/kadirpekel/switchboard/pkg/observability"
	"github.com/kadirpekel/switchboard/pkg/plan"
	"github.com/kadirpekel/switchboard/pkg/router"
	"github.com/kadirpekel/switchboard/pkg/runner"
	"github.com/kadirpekel/switchboard/pkg/selector"
	"github.com/kadirpekel/switchboard/pkg/server"
	"github.com/kadirpekel/switchboard/pkg/tools"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Config       string   `short:"c" help:"Config path (file path or remote key)." default:"switchboard.yaml"`
	ConfigSource string   `help:"Config source (file, consul, etcd)." default:"file"`
	Endpoints    []string `help:"Remote config endpoints."`
	Watch        bool     `help:"Reload configuration on change."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	sourceType, err := config.ParseSourceType(c.ConfigSource)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(config.LoaderOptions{
		Type:      sourceType,
		Path:      c.Config,
		Endpoints: c.Endpoints,
		Watch:     c.Watch,
		OnChange: func(newCfg *config.Config) error {
			// Engine wiring is rebuilt only on restart.
			slog.Info("Configuration change accepted; restart to apply engine changes")
			return nil
		},
	})
	if err != nil {
		return err
	}

	ctx := context.Background()

	if _, err := observability.InitGlobalTracer(ctx, cfg.Observability.Tracing); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if _, err := observability.InitMetrics(ctx, cfg.Observability.Metrics); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	plans, err := plan.NewRegistry(cfg.Plans)
	if err != nil {
		return fmt.Errorf("invalid plan catalog: %w", err)
	}

	toolRegistry, err := tools.BuildRegistry(cfg.Tools)
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}

	sel, err := buildSelector(cfg)
	if err != nil {
		return err
	}

	exec := executor.New(toolRegistry, cfg.Engine.ToExecutorConfig())
	run := runner.New(exec)

	var opts []router.Option
	if cfg.Selector.ClarificationPlan != "" {
		opts = append(opts, router.WithClarificationPlan(cfg.Selector.ClarificationPlan))
	}
	rt, err := router.New(plans, run, sel, opts...)
	if err != nil {
		return err
	}

	srv := server.New(cfg.Server, rt, plans)

	slog.Info("Switchboard starting",
		"name", cfg.Name,
		"plans", plans.Count(),
		"tools", toolRegistry.Count(),
		"selector", cfg.Selector.Type)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func buildSelector(cfg *config.Config) (selector.Selector, error) {
	switch cfg.Selector.Type {
	case "rules":
		return selector.NewRules(cfg.Selector.Rules, cfg.Selector.DefaultPlan), nil
	case "gemini":
		return selector.NewGemini(selector.GeminiConfig{
			APIKey: cfg.Selector.Gemini.APIKey,
			Model:  cfg.Selector.Gemini.Model,
		})
	default:
		return nil, fmt.Errorf("unknown selector type %q", cfg.Selector.Type)
	}
}
