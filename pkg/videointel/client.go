// Package videointel turns a staged video into a structured analysis.
package videointel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
	"github.com/spawn-mcp/adshipper/pkg/llm"
	"github.com/spawn-mcp/adshipper/pkg/logger"
	"github.com/spawn-mcp/adshipper/pkg/retry"
	"github.com/spawn-mcp/adshipper/pkg/types"
)

// Backend uploads staged video and runs inference on it.
type Backend interface {
	Upload(ctx context.Context, file types.StagedFile) (RemoteRef, error)
	Generate(ctx context.Context, ref RemoteRef, prompt string) (string, error)
	Delete(ctx context.Context, ref RemoteRef) error
}

// RemoteRef identifies uploaded video on the backend.
type RemoteRef struct {
	URI      string
	MIMEType string
	Name     string
}

// Process-wide ceilings shared by every batch and interactive analysis.
// semaphore.Weighted serves waiters in FIFO order.
var (
	uploadSem = semaphore.NewWeighted(1)

	analysisMu  sync.Mutex
	analysisSem = semaphore.NewWeighted(2)
)

// SetAnalysisConcurrency replaces the end-to-end analysis ceiling. Call it
// once at startup before any analysis runs.
func SetAnalysisConcurrency(n int64) {
	if n < 1 {
		n = 1
	}
	analysisMu.Lock()
	defer analysisMu.Unlock()
	analysisSem = semaphore.NewWeighted(n)
}

func currentAnalysisSem() *semaphore.Weighted {
	analysisMu.Lock()
	defer analysisMu.Unlock()
	return analysisSem
}

// Config holds the cost model and retry settings.
type Config struct {
	TokensPerSecond       float64
	PricePerMillionTokens float64
	MaxCostUSD            float64
	// MaxRetries counts retries after the first attempt.
	MaxRetries int
	BaseDelay  time.Duration
}

// Client runs guarded, retried analyses against a Backend.
type Client struct {
	backend Backend
	cfg     Config
	policy  retry.Policy
	log     logger.Logger
}

// NewClient creates a client. Zero Config fields fall back to defaults.
func NewClient(backend Backend, cfg Config, log logger.Logger) *Client {
	if cfg.TokensPerSecond <= 0 {
		cfg.TokensPerSecond = 300
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	policy := retry.NewPolicy(cfg.MaxRetries+1, cfg.BaseDelay)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("Video analysis attempt failed, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Error(err),
		)
	}
	return &Client{backend: backend, cfg: cfg, policy: policy, log: log}
}

// EstimateCost returns the expected USD cost of analyzing duration seconds.
func (c *Client) EstimateCost(durationSeconds float64) float64 {
	return durationSeconds * c.cfg.TokensPerSecond * c.cfg.PricePerMillionTokens / 1e6
}

// Analyze checks the cost guard, then uploads and analyzes file under the
// global ceilings. Only transient failures are retried.
func (c *Client) Analyze(ctx context.Context, file types.StagedFile, durationSeconds float64) (*types.VideoAnalysis, error) {
	if c.cfg.MaxCostUSD > 0 {
		if est := c.EstimateCost(durationSeconds); est > c.cfg.MaxCostUSD {
			return nil, pipeerrors.Newf(pipeerrors.ErrCostExceeded,
				"estimated analysis cost $%.4f exceeds ceiling $%.4f", est, c.cfg.MaxCostUSD).
				WithContext("duration_seconds", durationSeconds)
		}
	}

	sem := currentAnalysisSem()
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for analysis slot: %w", err)
	}
	defer sem.Release(1)

	start := time.Now()
	ref, err := retry.ExecuteWithRetry(ctx, c.policy, func(ctx context.Context) (RemoteRef, error) {
		return c.upload(ctx, file)
	})
	if err != nil {
		return nil, err
	}
	defer c.release(ctx, ref)

	analysis, err := retry.ExecuteWithRetry(ctx, c.policy, func(ctx context.Context) (*types.VideoAnalysis, error) {
		text, err := c.backend.Generate(ctx, ref, Prompt)
		if err != nil {
			return nil, err
		}
		return ParseAnalysis(text)
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("Video analyzed",
		logger.String("path", file.StoragePath),
		logger.Int("scenes", len(analysis.Scenes)),
		logger.Duration("duration", time.Since(start)),
	)
	return analysis, nil
}

func (c *Client) upload(ctx context.Context, file types.StagedFile) (RemoteRef, error) {
	if err := uploadSem.Acquire(ctx, 1); err != nil {
		return RemoteRef{}, fmt.Errorf("wait for upload slot: %w", err)
	}
	defer uploadSem.Release(1)
	return c.backend.Upload(ctx, file)
}

// release deletes the remote copy. It runs even when ctx is already done.
func (c *Client) release(ctx context.Context, ref RemoteRef) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := c.backend.Delete(ctx, ref); err != nil {
		c.log.Warn("Failed to delete remote video",
			logger.String("name", ref.Name),
			logger.Error(err),
		)
	}
}

// ParseAnalysis strips fencing, decodes, and validates required fields.
func ParseAnalysis(text string) (*types.VideoAnalysis, error) {
	body := llm.StripFences(text)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.ErrMalformedResponse, "analysis is not a JSON object")
	}
	for _, field := range []string{"scenes", "tone", "approach", "transcript"} {
		v, ok := raw[field]
		if !ok || string(v) == "null" {
			return nil, pipeerrors.Malformed("analysis missing required field %q", field)
		}
	}

	var analysis types.VideoAnalysis
	if err := json.Unmarshal([]byte(body), &analysis); err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.ErrMalformedResponse, "analysis has unexpected field types")
	}
	return &analysis, nil
}

// Prompt asks for the analysis schema as bare JSON.
const Prompt = `You are analyzing a short-form video ad. Return only a JSON object with these fields:
{
  "scenes": [{"start": "m:ss", "end": "m:ss", "description": "what happens"}],
  "onScreenText": ["every text overlay, verbatim"],
  "tone": "one or two words",
  "approach": "ugc | testimonial | demo | founder | skit | other",
  "transcript": "spoken words, verbatim",
  "themes": ["key selling points"],
  "hook": "what happens in the first three seconds"
}`
