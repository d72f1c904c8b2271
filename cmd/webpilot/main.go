package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/rahul/webpilot/internal/agent"
	"github.com/rahul/webpilot/internal/browser"
	"github.com/rahul/webpilot/internal/governance"
	"github.com/rahul/webpilot/internal/observability"
	"github.com/rahul/webpilot/internal/oracle"
	"github.com/rahul/webpilot/internal/report"
	"github.com/rahul/webpilot/internal/store"
	"github.com/rahul/webpilot/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	objective := flag.String("objective", "", "run a single objective instead of the configured scenarios")
	startURL := flag.String("url", "", "start URL for -objective")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	scenarios := cfg.Scenarios
	if *objective != "" {
		if *startURL == "" {
			logger.Fatal("-objective requires -url")
		}
		scenarios = []config.Scenario{{Name: "cli", Objective: *objective, StartURL: *startURL}}
	}
	if len(scenarios) == 0 {
		logger.Fatal("nothing to run: no scenarios configured and no -objective given")
	}

	model, err := newModel(cfg.Provider)
	if err != nil {
		logger.Fatal("initializing model", zap.Error(err))
	}

	policy := governance.NewPolicyEngine()
	for _, p := range cfg.Runner.Policy.DenySelectors {
		if err := policy.DenySelector(p); err != nil {
			logger.Fatal("invalid deny_selectors pattern", zap.String("pattern", p), zap.Error(err))
		}
	}
	for _, p := range cfg.Runner.Policy.DenyText {
		if err := policy.DenyText(p); err != nil {
			logger.Fatal("invalid deny_text pattern", zap.String("pattern", p), zap.Error(err))
		}
	}

	var runStore *store.RunStore
	if cfg.Store.Path != "" {
		runStore, err = store.NewRunStore(cfg.Store.Path)
		if err != nil {
			logger.Fatal("opening run store", zap.Error(err))
		}
		defer runStore.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pacing := agent.Pacing{
		ActionSettle: time.Duration(cfg.Runner.ActionSettleMS) * time.Millisecond,
		OracleCall:   time.Duration(cfg.Runner.OraclePauseMS) * time.Millisecond,
		ObserveRetry: time.Duration(cfg.Runner.ObserveRetryMS) * time.Millisecond,
	}

	allAchieved := true
	for _, sc := range scenarios {
		if ctx.Err() != nil {
			logger.Warn("interrupted, skipping remaining scenarios")
			allAchieved = false
			break
		}

		res, err := runScenario(ctx, cfg, sc, model, policy, pacing, logger)
		if err != nil {
			logger.Error("scenario aborted", zap.String("scenario", sc.Name), zap.Error(err))
			allAchieved = false
			continue
		}
		if !res.Achieved {
			allAchieved = false
		}

		path, err := report.Write(cfg.Report.Dir, res)
		if err != nil {
			logger.Error("writing report", zap.Error(err))
		} else {
			logger.Info("report written", zap.String("path", path))
		}

		if runStore != nil {
			id, err := runStore.SaveRun(res)
			if err != nil {
				logger.Error("persisting run", zap.Error(err))
			} else {
				logger.Info("run persisted", zap.String("run_id", id))
			}
		}
	}

	if !allAchieved {
		os.Exit(1)
	}
}

// runScenario owns the browser for exactly one run.
func runScenario(
	ctx context.Context,
	cfg *config.Config,
	sc config.Scenario,
	model llms.Model,
	policy *governance.PolicyEngine,
	pacing agent.Pacing,
	logger *zap.Logger,
) (agent.RunResult, error) {
	log := logger.With(zap.String("scenario", sc.Name))

	ctrl, err := browser.New(ctx, browser.Config{
		Headless:      cfg.Browser.Headless,
		ActionTimeout: cfg.Browser.ActionTimeout(),
	}, log)
	if err != nil {
		return agent.RunResult{}, fmt.Errorf("launching browser: %w", err)
	}

	decider := oracle.New(model,
		oracle.WithLogger(log),
		oracle.WithPageSummary(ctrl.PageSummary),
	)

	orch := agent.New(ctrl, decider,
		agent.WithMaxAttempts(cfg.Runner.MaxAttempts),
		agent.WithPacing(pacing),
		agent.WithPolicy(policy),
		agent.WithLogger(log),
	)

	res := orch.Run(ctx, sc.Objective, sc.StartURL)
	log.Info("scenario finished", zap.Bool("achieved", res.Achieved), zap.Int("steps", len(res.Steps)))
	return res, nil
}

func newModel(cfg config.ProviderConfig) (llms.Model, error) {
	switch cfg.Name {
	case "openai", "openrouter", "":
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Name)
	}
}
