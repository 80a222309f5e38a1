// Copyright 2025 The Tenselens Authors
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
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/tenselens/tenselens/pkg/config"
	"github.com/tenselens/tenselens/pkg/observability"
	"github.com/tenselens/tenselens/pkg/pipeline"
	"github.com/tenselens/tenselens/pkg/ratelimit"
	"github.com/tenselens/tenselens/pkg/server"
	"github.com/tenselens/tenselens/pkg/session"
	"github.com/tenselens/tenselens/pkg/validate"
)

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("tenselens version %s\n", version)
	return nil
}

// ValidateCmd checks the configuration file and exits.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	fmt.Printf("Configuration OK (driver=%s, port=%d)\n", cfg.Database.Driver, cfg.Server.Port)
	return nil
}

// CleanupCmd bulk-expires idle sessions and exits, for cron use.
type CleanupCmd struct{}

func (c *CleanupCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	pool := config.NewDBPool()
	defer func() { _ = pool.Close() }()

	mgr, _, err := buildSessionManager(cfg, pool)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	maxIdle := time.Duration(cfg.Session.IdleTimeoutMinutes) * time.Minute
	n, err := mgr.CleanupExpired(ctx, maxIdle)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	fmt.Printf("Expired %d idle sessions\n", n)
	return nil
}

// RegisterCmd creates a pseudocode user.
type RegisterCmd struct {
	Pseudocode string `arg:"" help:"Five-digit pseudocode to register."`
}

func (c *RegisterCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	pool := config.NewDBPool()
	defer func() { _ = pool.Close() }()

	db, err := pool.Get(&cfg.Database)
	if err != nil {
		return err
	}
	store, err := session.NewSQLStore(db, cfg.Database.Dialect())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := store.CreatePseudocode(ctx, c.Pseudocode); err != nil {
		return fmt.Errorf("failed to register pseudocode: %w", err)
	}
	fmt.Printf("Registered pseudocode %s\n", c.Pseudocode)
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port int  `help:"Port to listen on (overrides config)." default:"0"`
	Mock bool `help:"Use mock pipeline stages instead of remote endpoints."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	pool := config.NewDBPool()
	defer func() { _ = pool.Close() }()

	sessions, db, err := buildSessionManager(cfg, pool)
	if err != nil {
		return err
	}

	limiter, err := ratelimit.New(&cfg.RateLimit)
	if err != nil {
		return fmt.Errorf("failed to create rate limiter: %w", err)
	}

	validator, err := validate.New(validate.Config{
		MaxTokens:         cfg.Validation.MaxTokens,
		MinThaiPercentage: cfg.Validation.MinThaiPercentage,
		ProfanityFilter:   cfg.Validation.IsProfanityFilterEnabled(),
	})
	if err != nil {
		return fmt.Errorf("failed to create validator: %w", err)
	}

	metrics, err := observability.InitMetrics(cfg.Observability.IsMetricsEnabled())
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	shutdownTracer, err := observability.InitTracer(ctx, cfg.Observability.TracingEnabled, "tenselens")
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	recorder, err := observability.NewSQLRecorder(db, cfg.Database.Dialect())
	if err != nil {
		return fmt.Errorf("failed to create performance recorder: %w", err)
	}

	orch, err := buildOrchestrator(cfg, c.Mock, recorder)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, server.Deps{
		Limiter:      limiter,
		Sessions:     sessions,
		Validator:    validator,
		Orchestrator: orch,
		Metrics:      metrics,
		DB:           db,
		Logger:       slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Run(ctx)
}

func buildSessionManager(cfg *config.Config, pool *config.DBPool) (*session.Manager, *sql.DB, error) {
	db, err := pool.Get(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	store, err := session.NewSQLStore(db, cfg.Database.Dialect())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session store: %w", err)
	}
	mgr, err := session.NewManager(store)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session manager: %w", err)
	}
	return mgr, db, nil
}

func buildOrchestrator(cfg *config.Config, mock bool, recorder pipeline.Recorder) (*pipeline.Orchestrator, error) {
	var (
		translator pipeline.Translator
		classifier pipeline.Classifier
		explainer  pipeline.Explainer
	)

	if mock || cfg.Pipeline.Translate.Endpoint == "" {
		slog.Info("Using mock pipeline stages")
		translator = pipeline.MockTranslator{}
		classifier = pipeline.MockClassifier{}
		explainer = pipeline.MockExplainer{}
	} else {
		tc, err := pipeline.NewStageClient(cfg.Pipeline.Translate.Endpoint,
			time.Duration(cfg.Pipeline.Translate.TimeoutSeconds)*time.Second,
			cfg.Pipeline.Translate.MaxRetries)
		if err != nil {
			return nil, fmt.Errorf("translate stage: %w", err)
		}
		cc, err := pipeline.NewStageClient(cfg.Pipeline.Classify.Endpoint,
			time.Duration(cfg.Pipeline.Classify.TimeoutSeconds)*time.Second,
			cfg.Pipeline.Classify.MaxRetries)
		if err != nil {
			return nil, fmt.Errorf("classify stage: %w", err)
		}
		ec, err := pipeline.NewStageClient(cfg.Pipeline.Explain.Endpoint,
			time.Duration(cfg.Pipeline.Explain.TimeoutSeconds)*time.Second,
			cfg.Pipeline.Explain.MaxRetries)
		if err != nil {
			return nil, fmt.Errorf("explain stage: %w", err)
		}
		translator = pipeline.NewRemoteTranslator(tc)
		classifier = pipeline.NewRemoteClassifier(cc)
		explainer = pipeline.NewRemoteExplainer(ec)
	}

	return pipeline.New(translator, classifier, explainer, pipeline.WithRecorder(recorder))
}
