// Package adset finds or creates ad sets, deduplicating concurrent requests
// for the same name within one batch run.
package adset

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/spawn-mcp/adshipper/pkg/adplatform"
	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
	"github.com/spawn-mcp/adshipper/pkg/logger"
	"github.com/spawn-mcp/adshipper/pkg/types"
)

// Defaults are used when the campaign has no ad set to clone.
type Defaults struct {
	Targeting        json.RawMessage
	OptimizationGoal string
	BillingEvent     string
	DailyBudgetCents int64
}

type future struct {
	done chan struct{}
	res  types.AdSetResolution
	err  error
}

// Resolver memoizes find-or-create per (group, name). Create one per batch.
type Resolver struct {
	platform adplatform.Platform
	defaults Defaults
	log      logger.Logger
	recorder func(created bool)

	mu   sync.Mutex
	memo map[string]*future
}

// NewResolver creates an empty resolver.
func NewResolver(platform adplatform.Platform, defaults Defaults, log logger.Logger) *Resolver {
	return &Resolver{
		platform: platform,
		defaults: defaults,
		log:      log,
		memo:     make(map[string]*future),
	}
}

// OnResolve registers a callback invoked once per resolved name.
func (r *Resolver) OnResolve(fn func(created bool)) {
	r.recorder = fn
}

// Resolve returns the ad set named name in groupID, creating it if absent.
// Only the first caller for a key does the work; the rest wait for it. A
// permanent failure is memoized too, so later rows see the same error.
// Transient failures, cancellations and panics are handed to the current
// waiters and then forgotten, so the next call asks the platform again.
func (r *Resolver) Resolve(ctx context.Context, groupID, name string) (types.AdSetResolution, error) {
	key := groupID + "/" + name

	r.mu.Lock()
	f, ok := r.memo[key]
	if !ok {
		f = &future{done: make(chan struct{})}
		r.memo[key] = f
	}
	r.mu.Unlock()

	if ok {
		select {
		case <-f.done:
			return f.res, f.err
		case <-ctx.Done():
			return types.AdSetResolution{}, ctx.Err()
		}
	}

	r.settle(ctx, key, f, groupID, name)
	if f.err == nil && r.recorder != nil {
		r.recorder(f.res.Created)
	}
	return f.res, f.err
}

// settle fills f and always releases its waiters.
func (r *Resolver) settle(ctx context.Context, key string, f *future, groupID, name string) {
	defer close(f.done)
	defer func() {
		if p := recover(); p != nil {
			f.res = types.AdSetResolution{}
			f.err = pipeerrors.Newf(pipeerrors.ErrPanic, "resolve ad set %q panicked: %v", name, p)
			r.log.Error("Ad set resolution panicked",
				logger.String("group_id", groupID),
				logger.String("name", name),
				logger.Any("panic", p),
			)
			r.forget(key, f)
		}
	}()

	f.res, f.err = r.findOrCreate(ctx, groupID, name)
	if f.err != nil && !memoizable(f.err) {
		r.forget(key, f)
	}
}

func (r *Resolver) forget(key string, f *future) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.memo[key] == f {
		delete(r.memo, key)
	}
}

func memoizable(err error) bool {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !pipeerrors.IsRetryable(err)
}

func (r *Resolver) findOrCreate(ctx context.Context, groupID, name string) (types.AdSetResolution, error) {
	existing, err := r.platform.FindAdSetByName(ctx, groupID, name)
	if err != nil {
		return types.AdSetResolution{}, fmt.Errorf("find ad set %q: %w", name, err)
	}
	if existing != nil {
		return types.AdSetResolution{Name: name, ID: existing.ID}, nil
	}

	params, err := r.params(ctx, groupID, name)
	if err != nil {
		return types.AdSetResolution{}, err
	}
	id, err := r.platform.CreateAdSet(ctx, params)
	if err != nil {
		return types.AdSetResolution{}, fmt.Errorf("create ad set %q: %w", name, err)
	}

	r.log.Info("Created ad set",
		logger.String("group_id", groupID),
		logger.String("name", name),
		logger.String("adset_id", id),
		logger.Bool("campaign_budget", params.DailyBudget == 0),
	)
	return types.AdSetResolution{Name: name, ID: id, Created: true}, nil
}

// params clones the newest sibling ad set or falls back to defaults. The
// budget is dropped when the campaign owns the budget.
func (r *Resolver) params(ctx context.Context, groupID, name string) (adplatform.AdSetParams, error) {
	p := adplatform.AdSetParams{
		CampaignID:       groupID,
		Name:             name,
		OptimizationGoal: r.defaults.OptimizationGoal,
		BillingEvent:     r.defaults.BillingEvent,
		Targeting:        r.defaults.Targeting,
		DailyBudget:      r.defaults.DailyBudgetCents,
		Status:           adplatform.StatusPaused,
	}

	tmpl, err := r.platform.LatestAdSetTemplate(ctx, groupID)
	if err != nil {
		return p, fmt.Errorf("load ad set template: %w", err)
	}
	if tmpl != nil {
		if tmpl.OptimizationGoal != "" {
			p.OptimizationGoal = tmpl.OptimizationGoal
		}
		if tmpl.BillingEvent != "" {
			p.BillingEvent = tmpl.BillingEvent
		}
		if len(tmpl.Targeting) > 0 {
			p.Targeting = tmpl.Targeting
		}
		p.BidStrategy = tmpl.BidStrategy
		p.PromotedObject = tmpl.PromotedObject
		if b := parseCents(tmpl.DailyBudget); b > 0 {
			p.DailyBudget = b
		}
	}

	campaign, err := r.platform.GetCampaign(ctx, groupID)
	if err != nil {
		return p, fmt.Errorf("read campaign %s: %w", groupID, err)
	}
	if campaign.UsesCampaignBudget() {
		p.DailyBudget = 0
	}
	return p, nil
}

func parseCents(s string) int64 {
	var n int64
	if _, err := fmt.Sscan(s, &n); err != nil {
		return 0
	}
	return n
}
