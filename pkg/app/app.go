// Package app wires configuration into a ready coordinator.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spawn-mcp/adshipper/pkg/adplatform"
	"github.com/spawn-mcp/adshipper/pkg/adset"
	"github.com/spawn-mcp/adshipper/pkg/analysis"
	"github.com/spawn-mcp/adshipper/pkg/assets"
	"github.com/spawn-mcp/adshipper/pkg/config"
	"github.com/spawn-mcp/adshipper/pkg/coordinator"
	"github.com/spawn-mcp/adshipper/pkg/copywriter"
	"github.com/spawn-mcp/adshipper/pkg/dedup"
	"github.com/spawn-mcp/adshipper/pkg/gcp"
	"github.com/spawn-mcp/adshipper/pkg/jobs"
	"github.com/spawn-mcp/adshipper/pkg/llm"
	"github.com/spawn-mcp/adshipper/pkg/logger"
	"github.com/spawn-mcp/adshipper/pkg/metrics"
	"github.com/spawn-mcp/adshipper/pkg/pipeline"
	"github.com/spawn-mcp/adshipper/pkg/timeout"
	"github.com/spawn-mcp/adshipper/pkg/videointel"
	"github.com/spawn-mcp/adshipper/pkg/workspace"
)

// Version is stamped at build time.
var Version = "dev"

// App holds the wired services and the clients that need closing.
type App struct {
	Config      *config.Config
	Coordinator *coordinator.Server
	Cache       *analysis.Cache
	Tracker     *dedup.Tracker
	Metrics     *metrics.Metrics
	GCP         *gcp.Client
	Log         logger.Logger

	closers []func() error
}

// Build validates cfg and constructs every service.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	if err := cfg.Validate(cfg.DryRun); err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Log: log, Metrics: metrics.New(nil)}
	timeouts := timeout.NewManager(30 * time.Minute)
	httpClient := &http.Client{Timeout: 10 * time.Minute}

	gcpClient, err := gcp.NewClient(ctx, cfg.ProjectID, cfg.Region, log)
	if err != nil {
		return nil, err
	}
	a.GCP = gcpClient
	a.closers = append(a.closers, gcpClient.Close)

	docs := gcp.NewFirestoreStore(gcpClient.FirestoreClient)
	objects := gcp.NewGCSStore(gcpClient.StorageClient, cfg.StagingBucket)

	drive, err := assets.NewDriveLister(ctx, timeouts)
	if err != nil {
		a.Close()
		return nil, err
	}
	resolver := assets.NewResolver(drive, httpClient, objects, timeouts, log)

	a.Cache = analysis.NewCache(docs, cfg.CacheCollection, cfg.CacheTTL, log, analysis.WithRecorder(a.Metrics))

	videointel.SetAnalysisConcurrency(cfg.Video.AnalysisConcurrency)
	gemini, err := videointel.NewGeminiBackend(ctx, cfg.Video.GeminiAPIKey, cfg.Video.Model, objects, timeouts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, gemini.Close)
	analyzer := videointel.NewClient(gemini, videointel.Config{
		TokensPerSecond:       cfg.Video.TokensPerSecond,
		PricePerMillionTokens: cfg.Video.PricePerMillionTokens,
		MaxCostUSD:            cfg.Video.MaxCostUSD,
		MaxRetries:            cfg.Video.MaxRetries,
		BaseDelay:             cfg.RetryBaseDelay,
	}, log)

	completer := llm.NewClaudeCompleter(cfg.LLM.AnthropicAPIKey, cfg.LLM.Model, cfg.LLM.MaxTokens, timeouts)
	writer := copywriter.NewEngine(completer, log)

	platform := adplatform.NewGraphClient(adplatform.GraphConfig{
		BaseURL:     cfg.Meta.BaseURL,
		APIVersion:  cfg.Meta.APIVersion,
		AccessToken: cfg.Meta.AccessToken,
		AppSecret:   cfg.Meta.AppSecret,
		AdAccountID: cfg.Meta.AdAccountID,
	}, httpClient, timeouts, log)

	p := pipeline.New(resolver, a.Cache, analyzer, writer, platform, objects, analysis.Key, pipeline.Options{
		PageID:            cfg.Meta.PageID,
		CallToAction:      cfg.Meta.CallToActionType,
		DefaultLandingURL: cfg.Meta.DefaultLandingURL,
		SignedURLTTL:      cfg.SignedURLTTL,
	}, log)

	defaults, err := adSetDefaults(cfg.Meta)
	if err != nil {
		a.Close()
		return nil, err
	}
	scheduler := pipeline.NewScheduler(p, platform, defaults, cfg.BatchConcurrency, log).WithRecorder(a.Metrics)

	jobStore := jobs.NewStore(docs, cfg.JobsCollection, cfg.MaxJobRetries, log)
	jobStore.OnTransition(a.Metrics.JobTransition)
	queue := jobs.NewPubSubQueue(gcpClient, cfg.JobsTopic, cfg.JobsSubscription, cfg.BatchConcurrency, log)

	deps := coordinator.Deps{
		Jobs:      jobStore,
		Queue:     queue,
		Trigger:   gcpClient,
		Pipeline:  p,
		Scheduler: scheduler,
		Platform:  platform,
		Defaults:  defaults,
		Recorder:  a.Metrics,
	}

	if cfg.SpreadsheetID != "" {
		source, err := workspace.NewSheetSource(ctx, cfg.SpreadsheetID, cfg.SheetRange, timeouts, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		deps.Source = source
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		a.Tracker = dedup.NewTracker(client, cfg.Redis.TTL, log)
		deps.Tracker = a.Tracker
	}

	a.Coordinator = coordinator.NewServer(coordinator.Config{
		GroupID:       cfg.Meta.CampaignID,
		WorkerJobName: cfg.WorkerJobName,
		DryRun:        cfg.DryRun,
	}, deps, log)
	return a, nil
}

func adSetDefaults(meta config.MetaConfig) (adset.Defaults, error) {
	targeting := json.RawMessage(meta.DefaultTargeting)
	if !json.Valid(targeting) {
		return adset.Defaults{}, fmt.Errorf("META_DEFAULT_TARGETING is not valid JSON")
	}
	return adset.Defaults{
		Targeting:        targeting,
		OptimizationGoal: meta.OptimizationGoal,
		BillingEvent:     meta.BillingEvent,
		DailyBudgetCents: meta.DailyBudgetCents,
	}, nil
}

// Close releases every client in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn("Error closing client", logger.Error(err))
		}
	}
	a.closers = nil
}
