// Package adplatform is the advertising platform boundary: ad sets,
// videos, creatives, and ads.
package adplatform

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/spawn-mcp/adshipper/pkg/types"
)

// Statuses used when publishing.
const (
	StatusPaused = "PAUSED"
	StatusActive = "ACTIVE"
)

// Platform is the subset of the ad platform the pipeline uses.
type Platform interface {
	// FindAdSetByName returns nil when no ad set in the campaign has name.
	FindAdSetByName(ctx context.Context, campaignID, name string) (*AdSet, error)
	// LatestAdSetTemplate returns the most recently created ad set, or nil.
	LatestAdSetTemplate(ctx context.Context, campaignID string) (*AdSet, error)
	GetCampaign(ctx context.Context, campaignID string) (*Campaign, error)
	CreateAdSet(ctx context.Context, params AdSetParams) (string, error)
	UploadVideo(ctx context.Context, fileURL, title string) (VideoUpload, error)
	CreateCreative(ctx context.Context, params CreativeParams) (string, error)
	CreateAd(ctx context.Context, params AdParams) (string, error)
	ListAdSets(ctx context.Context, campaignID string) ([]AdSet, error)
	FindCampaignByName(ctx context.Context, name string) (*Campaign, error)
}

// AdSet is a targeting container.
type AdSet struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	CampaignID       string          `json:"campaign_id,omitempty"`
	OptimizationGoal string          `json:"optimization_goal,omitempty"`
	BillingEvent     string          `json:"billing_event,omitempty"`
	BidStrategy      string          `json:"bid_strategy,omitempty"`
	DailyBudget      string          `json:"daily_budget,omitempty"`
	Targeting        json.RawMessage `json:"targeting,omitempty"`
	PromotedObject   json.RawMessage `json:"promoted_object,omitempty"`
	CreatedTime      string          `json:"created_time,omitempty"`
}

// Campaign is the ad set group.
type Campaign struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	DailyBudget    string `json:"daily_budget,omitempty"`
	LifetimeBudget string `json:"lifetime_budget,omitempty"`
}

// UsesCampaignBudget reports whether budget is set at campaign level, in
// which case ad sets must not carry their own.
func (c *Campaign) UsesCampaignBudget() bool {
	return positive(c.DailyBudget) || positive(c.LifetimeBudget)
}

func positive(s string) bool {
	n, err := strconv.ParseInt(s, 10, 64)
	return err == nil && n > 0
}

// AdSetParams creates an ad set. A zero DailyBudget omits the field.
type AdSetParams struct {
	CampaignID       string
	Name             string
	OptimizationGoal string
	BillingEvent     string
	BidStrategy      string
	DailyBudget      int64
	Targeting        json.RawMessage
	PromotedObject   json.RawMessage
	Status           string
}

// VideoUpload is an uploaded platform video.
type VideoUpload struct {
	VideoID      string
	ThumbnailURL string
}

// PlacedVideo is an uploaded video tagged with its aspect ratio.
type PlacedVideo struct {
	VideoUpload
	Ratio types.AspectRatio
}

// CreativeParams creates a creative. Two videos produce a placement-mapped
// creative; one produces a single-video creative.
type CreativeParams struct {
	Name         string
	PageID       string
	Copy         types.AdCopy
	Link         string
	CallToAction string
	Videos       []PlacedVideo
}

// AdParams creates an ad.
type AdParams struct {
	Name       string
	AdSetID    string
	CreativeID string
	Status     string
}
