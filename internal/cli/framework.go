// Package cli wires the framework components from configuration.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ScarletRedJoker/jarvis-safety/internal/approval"
	"github.com/ScarletRedJoker/jarvis-safety/internal/audit"
	"github.com/ScarletRedJoker/jarvis-safety/internal/config"
	"github.com/ScarletRedJoker/jarvis-safety/internal/core"
	"github.com/ScarletRedJoker/jarvis-safety/internal/db"
	"github.com/ScarletRedJoker/jarvis-safety/internal/integrations"
)

// framework bundles the wired components behind one CLI invocation.
type framework struct {
	cfg      *config.Config
	store    *db.DB
	executor *core.Executor
	svc      *approval.Service
	sink     audit.Sink
}

// openFramework loads config and constructs the store, classifier, limiter,
// audit sink, executor, and approval service.
func openFramework() (*framework, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigPath: flagConfig})
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	dbPath := cfg.General.DBPath
	if flagDB != "" {
		dbPath = flagDB
	}
	if dbPath == "" {
		dbPath = GetDB()
	}

	store, err := db.OpenAndMigrate(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening action store: %w", err)
	}

	classifier := core.NewClassifier()
	if err := loadConfigPatterns(classifier, cfg); err != nil {
		store.Close()
		return nil, err
	}

	limiter := core.NewRateLimiter(
		time.Duration(cfg.RateLimits.WindowSecs)*time.Second,
		cfg.RateLimits.MaxPerWindow,
	)

	sink, err := openAuditSink(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	actionTTL := time.Duration(cfg.General.ActionTTLHours * float64(time.Hour))
	executor := core.NewExecutor(store, classifier, limiter, sink,
		core.WithTimeout(time.Duration(cfg.Execution.TimeoutSecs)*time.Second),
		core.WithActionTTL(actionTTL))

	svc := approval.NewService(store, executor)
	svc.SetDefaultTTL(actionTTL)
	if cfg.Server.WebhookURL != "" {
		svc.SetNotifier(integrations.NewWebhookClient(cfg.Server.WebhookURL, ""))
	}

	return &framework{
		cfg:      cfg,
		store:    store,
		executor: executor,
		svc:      svc,
		sink:     sink,
	}, nil
}

func (f *framework) Close() {
	_ = f.sink.Close()
	_ = f.store.Close()
}

func loadConfigPatterns(c *core.Classifier, cfg *config.Config) error {
	groups := []struct {
		level    db.RiskLevel
		patterns []string
	}{
		{db.RiskForbidden, cfg.Patterns.Forbidden},
		{db.RiskSafe, cfg.Patterns.Safe},
		{db.RiskMedium, cfg.Patterns.Medium},
		{db.RiskHigh, cfg.Patterns.High},
	}

	for _, g := range groups {
		for _, p := range g.patterns {
			if err := c.AddPattern(g.level, p, "configured pattern", "config"); err != nil {
				return fmt.Errorf("loading %s pattern %q: %w", g.level, p, err)
			}
		}
	}
	return nil
}

func openAuditSink(cfg *config.Config) (audit.Sink, error) {
	path := cfg.Audit.LogPath
	if flagAudit != "" {
		path = flagAudit
	}
	if path == "" {
		if cwd, err := os.Getwd(); err == nil {
			path = filepath.Join(cwd, ".jarvis", "audit.jsonl")
		} else {
			return audit.NopSink{}, nil
		}
	}

	sink, err := audit.NewJSONLSink(path, int64(cfg.Audit.RotateMaxMB)*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return sink, nil
}
