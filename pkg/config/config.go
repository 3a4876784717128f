// Package config loads adshipper settings from the environment.
//
// .env files are loaded first, in this order (earlier wins):
//
//  1. ENV_FILE, if set, is the only file loaded
//  2. .env.local
//  3. .env
//
// Real environment variables always override file values.
package config

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
	"github.com/spawn-mcp/adshipper/pkg/logger"
)

// Config is the full runtime configuration.
type Config struct {
	ProjectID string `env:"GOOGLE_CLOUD_PROJECT"`
	Region    string `env:"GOOGLE_CLOUD_REGION" envDefault:"us-central1"`

	StagingBucket   string        `env:"STAGING_BUCKET"`
	SignedURLTTL    time.Duration `env:"SIGNED_URL_TTL" envDefault:"1h"`
	JobsCollection  string        `env:"JOBS_COLLECTION" envDefault:"pipeline_jobs"`
	CacheCollection string        `env:"CACHE_COLLECTION" envDefault:"analysis_cache"`
	CacheTTL        time.Duration `env:"ANALYSIS_CACHE_TTL" envDefault:"168h"`

	JobsTopic        string `env:"JOBS_TOPIC" envDefault:"adshipper-jobs"`
	JobsSubscription string `env:"JOBS_SUBSCRIPTION" envDefault:"adshipper-jobs-worker"`
	WorkerJobName    string `env:"WORKER_JOB_NAME" envDefault:"adshipper-worker"`
	MaxJobRetries    int    `env:"MAX_JOB_RETRIES" envDefault:"3"`

	SpreadsheetID string `env:"SPREADSHEET_ID"`
	SheetRange    string `env:"SHEET_RANGE" envDefault:"Ads!A2:H"`

	Video VideoConfig
	LLM   LLMConfig
	Meta  MetaConfig
	Redis RedisConfig
	Log   logger.Config

	BatchConcurrency int           `env:"BATCH_CONCURRENCY" envDefault:"3"`
	RetryBaseDelay   time.Duration `env:"RETRY_BASE_DELAY" envDefault:"2s"`
	MetricsAddr      string        `env:"METRICS_ADDR" envDefault:":9090"`
	DryRun           bool          `env:"DRY_RUN" envDefault:"false"`
}

// VideoConfig configures the video intelligence client.
type VideoConfig struct {
	GeminiAPIKey          string  `env:"GEMINI_API_KEY"`
	Model                 string  `env:"GEMINI_MODEL" envDefault:"gemini-1.5-pro"`
	TokensPerSecond       float64 `env:"VIDEO_TOKENS_PER_SECOND" envDefault:"300"`
	PricePerMillionTokens float64 `env:"VIDEO_PRICE_PER_MILLION_TOKENS" envDefault:"1.25"`
	MaxCostUSD            float64 `env:"VIDEO_MAX_COST_USD" envDefault:"0.50"`
	AnalysisConcurrency   int64   `env:"VIDEO_ANALYSIS_CONCURRENCY" envDefault:"2"`
	MaxRetries            int     `env:"VIDEO_MAX_RETRIES" envDefault:"3"`
}

// LLMConfig configures the copywriting model.
type LLMConfig struct {
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	Model           string `env:"CLAUDE_MODEL" envDefault:"claude-sonnet-4-5"`
	MaxTokens       int64  `env:"CLAUDE_MAX_TOKENS" envDefault:"2048"`
}

// MetaConfig configures the ad platform client.
type MetaConfig struct {
	AccessToken       string `env:"META_ACCESS_TOKEN"`
	AppSecret         string `env:"META_APP_SECRET"`
	AdAccountID       string `env:"META_AD_ACCOUNT_ID"`
	PageID            string `env:"META_PAGE_ID"`
	CampaignID        string `env:"META_CAMPAIGN_ID"`
	BaseURL           string `env:"META_GRAPH_URL" envDefault:"https://graph.facebook.com"`
	APIVersion        string `env:"META_API_VERSION" envDefault:"v21.0"`
	DefaultTargeting  string `env:"META_DEFAULT_TARGETING" envDefault:"{\"geo_locations\":{\"countries\":[\"US\"]},\"age_min\":18}"`
	DailyBudgetCents  int64  `env:"META_DAILY_BUDGET_CENTS" envDefault:"2000"`
	OptimizationGoal  string `env:"META_OPTIMIZATION_GOAL" envDefault:"OFFSITE_CONVERSIONS"`
	BillingEvent      string `env:"META_BILLING_EVENT" envDefault:"IMPRESSIONS"`
	CallToActionType  string `env:"META_CALL_TO_ACTION" envDefault:"SHOP_NOW"`
	DefaultLandingURL string `env:"DEFAULT_LANDING_URL"`
}

// RedisConfig configures the shipped-row dedup tracker.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	TTL      time.Duration `env:"DEDUP_TTL" envDefault:"720h"`
}

// Load reads .env files and parses the environment into a Config.
func Load() (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load environment files: %w", err)
	}
	return Parse()
}

// Parse reads the current environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env.local: %w", err)
	}
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Validate checks the settings needed to run a batch. Platform credentials
// are only required when the batch will publish.
func (c *Config) Validate(dryRun bool) error {
	required := map[string]string{
		"GOOGLE_CLOUD_PROJECT": c.ProjectID,
		"STAGING_BUCKET":       c.StagingBucket,
		"GEMINI_API_KEY":       c.Video.GeminiAPIKey,
		"ANTHROPIC_API_KEY":    c.LLM.AnthropicAPIKey,
	}
	if !dryRun {
		required["META_ACCESS_TOKEN"] = c.Meta.AccessToken
		required["META_AD_ACCOUNT_ID"] = c.Meta.AdAccountID
		required["META_PAGE_ID"] = c.Meta.PageID
	}
	for _, name := range slices.Sorted(maps.Keys(required)) {
		if required[name] == "" {
			return pipeerrors.Newf(pipeerrors.ErrMissingRequired, "%s is required", name)
		}
	}
	if c.BatchConcurrency < 1 {
		return pipeerrors.Validation("BATCH_CONCURRENCY must be at least 1, got %d", c.BatchConcurrency)
	}
	if c.Video.AnalysisConcurrency < 1 {
		return pipeerrors.Validation("VIDEO_ANALYSIS_CONCURRENCY must be at least 1, got %d", c.Video.AnalysisConcurrency)
	}
	if c.CacheTTL <= 0 {
		return pipeerrors.Validation("ANALYSIS_CACHE_TTL must be positive")
	}
	return nil
}
