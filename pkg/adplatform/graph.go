package adplatform

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
	"github.com/spawn-mcp/adshipper/pkg/logger"
	"github.com/spawn-mcp/adshipper/pkg/timeout"
	"github.com/spawn-mcp/adshipper/pkg/types"
)

const adSetFields = "id,name,campaign_id,optimization_goal,billing_event,bid_strategy,daily_budget,targeting,promoted_object,created_time"

// GraphConfig configures a GraphClient.
type GraphConfig struct {
	BaseURL     string
	APIVersion  string
	AccessToken string
	AppSecret   string
	AdAccountID string
}

// GraphClient implements Platform over the Marketing Graph API.
type GraphClient struct {
	cfg      GraphConfig
	http     *http.Client
	timeouts *timeout.Manager
	log      logger.Logger
}

// NewGraphClient creates a client. httpClient may be nil.
func NewGraphClient(cfg GraphConfig, httpClient *http.Client, timeouts *timeout.Manager, log logger.Logger) *GraphClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if !strings.HasPrefix(cfg.AdAccountID, "act_") && cfg.AdAccountID != "" {
		cfg.AdAccountID = "act_" + cfg.AdAccountID
	}
	return &GraphClient{cfg: cfg, http: httpClient, timeouts: timeouts, log: log}
}

type graphError struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		Subcode   int    `json:"error_subcode"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

type idResponse struct {
	ID string `json:"id"`
}

type page[T any] struct {
	Data   []T `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// appSecretProof is HMAC-SHA256 of the token keyed by the app secret.
func (g *GraphClient) appSecretProof() string {
	mac := hmac.New(sha256.New, []byte(g.cfg.AppSecret))
	mac.Write([]byte(g.cfg.AccessToken))
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *GraphClient) endpoint(path string) string {
	return fmt.Sprintf("%s/%s/%s", g.cfg.BaseURL, g.cfg.APIVersion, strings.TrimLeft(path, "/"))
}

func (g *GraphClient) auth(v url.Values) url.Values {
	if v == nil {
		v = url.Values{}
	}
	v.Set("access_token", g.cfg.AccessToken)
	if g.cfg.AppSecret != "" {
		v.Set("appsecret_proof", g.appSecretProof())
	}
	return v
}

// do sends one request and decodes a 2xx body into out.
func (g *GraphClient) do(ctx context.Context, method, rawURL string, form url.Values, out any) error {
	return g.timeouts.Run(ctx, timeout.OpPlatform, func(ctx context.Context) error {
		var body io.Reader
		if method == http.MethodPost {
			body = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
		if err != nil {
			return fmt.Errorf("build graph request: %w", err)
		}
		if method == http.MethodPost {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		resp, err := g.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return pipeerrors.Wrap(err, pipeerrors.ErrTimeout, "graph request timed out")
			}
			return pipeerrors.Wrap(err, pipeerrors.ErrServerError, "graph request failed")
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return pipeerrors.Wrap(err, pipeerrors.ErrServerError, "read graph response")
		}
		if resp.StatusCode >= 300 {
			return classifyGraphError(resp.StatusCode, raw)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return pipeerrors.Wrap(err, pipeerrors.ErrMalformedResponse, "decode graph response")
		}
		return nil
	})
}

func classifyGraphError(status int, raw []byte) error {
	var ge graphError
	if json.Unmarshal(raw, &ge) != nil || ge.Error.Message == "" {
		return pipeerrors.FromHTTP(status, "graph", string(raw))
	}
	code := pipeerrors.Classify(status)
	switch ge.Error.Code {
	case 4, 17, 32, 613, 80004:
		code = pipeerrors.ErrRateLimit
	case 190:
		code = pipeerrors.ErrAuthInvalid
	case 10, 200:
		code = pipeerrors.ErrAuthPermission
	case 1, 2:
		code = pipeerrors.ErrServerError
	}
	return pipeerrors.Newf(code, "graph error %d/%d: %s", ge.Error.Code, ge.Error.Subcode, ge.Error.Message).
		WithContext("status", status).
		WithContext("fbtrace_id", ge.Error.FBTraceID)
}

func (g *GraphClient) get(ctx context.Context, path string, query url.Values, out any) error {
	return g.do(ctx, http.MethodGet, g.endpoint(path)+"?"+g.auth(query).Encode(), nil, out)
}

func (g *GraphClient) post(ctx context.Context, path string, form url.Values) (string, error) {
	var resp idResponse
	if err := g.do(ctx, http.MethodPost, g.endpoint(path), g.auth(form), &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", pipeerrors.Malformed("graph POST %s returned no id", path)
	}
	return resp.ID, nil
}

// getAll follows paging.next until exhausted.
func getAll[T any](ctx context.Context, g *GraphClient, path string, query url.Values) ([]T, error) {
	var all []T
	var p page[T]
	if err := g.get(ctx, path, query, &p); err != nil {
		return nil, err
	}
	all = append(all, p.Data...)
	for p.Paging.Next != "" {
		next := p.Paging.Next
		p = page[T]{}
		if err := g.do(ctx, http.MethodGet, next, nil, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Data...)
	}
	return all, nil
}

// ListAdSets returns every ad set in campaignID.
func (g *GraphClient) ListAdSets(ctx context.Context, campaignID string) ([]AdSet, error) {
	return getAll[AdSet](ctx, g, campaignID+"/adsets", url.Values{
		"fields": {adSetFields},
		"limit":  {"200"},
	})
}

// FindAdSetByName matches name exactly.
func (g *GraphClient) FindAdSetByName(ctx context.Context, campaignID, name string) (*AdSet, error) {
	sets, err := g.ListAdSets(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	for i := range sets {
		if sets[i].Name == name {
			return &sets[i], nil
		}
	}
	return nil, nil
}

// LatestAdSetTemplate returns the newest ad set by created_time.
func (g *GraphClient) LatestAdSetTemplate(ctx context.Context, campaignID string) (*AdSet, error) {
	sets, err := g.ListAdSets(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return nil, nil
	}
	sort.SliceStable(sets, func(i, j int) bool { return sets[i].CreatedTime > sets[j].CreatedTime })
	return &sets[0], nil
}

func (g *GraphClient) GetCampaign(ctx context.Context, campaignID string) (*Campaign, error) {
	var c Campaign
	if err := g.get(ctx, campaignID, url.Values{"fields": {"id,name,daily_budget,lifetime_budget"}}, &c); err != nil {
		return nil, err
	}
	if c.ID == "" {
		return nil, pipeerrors.Malformed("campaign %s response has no id", campaignID)
	}
	return &c, nil
}

func (g *GraphClient) FindCampaignByName(ctx context.Context, name string) (*Campaign, error) {
	campaigns, err := getAll[Campaign](ctx, g, g.cfg.AdAccountID+"/campaigns", url.Values{
		"fields": {"id,name,daily_budget,lifetime_budget"},
		"limit":  {"200"},
	})
	if err != nil {
		return nil, err
	}
	for i := range campaigns {
		if campaigns[i].Name == name {
			return &campaigns[i], nil
		}
	}
	return nil, nil
}

func (g *GraphClient) CreateAdSet(ctx context.Context, p AdSetParams) (string, error) {
	form := url.Values{
		"name":              {p.Name},
		"campaign_id":       {p.CampaignID},
		"optimization_goal": {p.OptimizationGoal},
		"billing_event":     {p.BillingEvent},
		"targeting":         {string(p.Targeting)},
		"status":            {orDefault(p.Status, StatusPaused)},
	}
	if p.DailyBudget > 0 {
		form.Set("daily_budget", strconv.FormatInt(p.DailyBudget, 10))
	}
	if p.BidStrategy != "" {
		form.Set("bid_strategy", p.BidStrategy)
	}
	if len(p.PromotedObject) > 0 {
		form.Set("promoted_object", string(p.PromotedObject))
	}
	id, err := g.post(ctx, g.cfg.AdAccountID+"/adsets", form)
	if err != nil {
		return "", err
	}
	g.log.Info("Ad set created", logger.String("adset_id", id), logger.String("name", p.Name))
	return id, nil
}

// UploadVideo has the platform pull fileURL, then reads back the thumbnail.
func (g *GraphClient) UploadVideo(ctx context.Context, fileURL, title string) (VideoUpload, error) {
	id, err := g.post(ctx, g.cfg.AdAccountID+"/advideos", url.Values{
		"file_url": {fileURL},
		"title":    {title},
	})
	if err != nil {
		return VideoUpload{}, err
	}
	var v struct {
		Picture string `json:"picture"`
	}
	if err := g.get(ctx, id, url.Values{"fields": {"picture"}}, &v); err != nil {
		return VideoUpload{}, err
	}
	return VideoUpload{VideoID: id, ThumbnailURL: v.Picture}, nil
}

func (g *GraphClient) CreateCreative(ctx context.Context, p CreativeParams) (string, error) {
	form, err := creativeForm(p)
	if err != nil {
		return "", err
	}
	return g.post(ctx, g.cfg.AdAccountID+"/adcreatives", form)
}

func (g *GraphClient) CreateAd(ctx context.Context, p AdParams) (string, error) {
	creative, _ := json.Marshal(map[string]string{"creative_id": p.CreativeID})
	return g.post(ctx, g.cfg.AdAccountID+"/ads", url.Values{
		"name":     {p.Name},
		"adset_id": {p.AdSetID},
		"creative": {string(creative)},
		"status":   {orDefault(p.Status, StatusPaused)},
	})
}

// creativeForm builds a single-video object_story_spec, or an
// asset_feed_spec whose customization rules serve the 9x16 video on
// vertical placements and the other video on feeds.
func creativeForm(p CreativeParams) (url.Values, error) {
	if len(p.Videos) == 0 {
		return nil, pipeerrors.Validation("creative needs at least one video")
	}
	cta := orDefault(p.CallToAction, "LEARN_MORE")
	form := url.Values{"name": {p.Name}}

	if len(p.Videos) == 1 {
		v := p.Videos[0]
		spec := map[string]any{
			"page_id": p.PageID,
			"video_data": map[string]any{
				"video_id":         v.VideoID,
				"image_url":        v.ThumbnailURL,
				"message":          p.Copy.PrimaryText,
				"title":            p.Copy.Headline,
				"link_description": p.Copy.Description,
				"call_to_action": map[string]any{
					"type":  cta,
					"value": map[string]string{"link": p.Link},
				},
			},
		}
		raw, err := json.Marshal(spec)
		if err != nil {
			return nil, err
		}
		form.Set("object_story_spec", string(raw))
		return form, nil
	}

	feed, vertical := p.Videos[0], p.Videos[1]
	if feed.Ratio == types.Ratio9x16 && vertical.Ratio != types.Ratio9x16 {
		feed, vertical = vertical, feed
	}
	assetFeed := map[string]any{
		"videos": []map[string]any{
			{"video_id": feed.VideoID, "thumbnail_url": feed.ThumbnailURL, "adlabels": []map[string]string{{"name": "feed"}}},
			{"video_id": vertical.VideoID, "thumbnail_url": vertical.ThumbnailURL, "adlabels": []map[string]string{{"name": "vertical"}}},
		},
		"bodies":               []map[string]string{{"text": p.Copy.PrimaryText}},
		"titles":               []map[string]string{{"text": p.Copy.Headline}},
		"descriptions":         []map[string]string{{"text": p.Copy.Description}},
		"link_urls":            []map[string]string{{"website_url": p.Link}},
		"call_to_action_types": []string{cta},
		"ad_formats":           []string{"SINGLE_VIDEO"},
		"asset_customization_rules": []map[string]any{
			{
				"customization_spec": map[string]any{
					"publisher_platforms": []string{"facebook", "instagram"},
					"facebook_positions":  []string{"story", "facebook_reels"},
					"instagram_positions": []string{"story", "reels"},
				},
				"video_label": map[string]string{"name": "vertical"},
				"priority":    1,
			},
			{
				"customization_spec": map[string]any{
					"publisher_platforms": []string{"facebook", "instagram"},
					"facebook_positions":  []string{"feed"},
					"instagram_positions": []string{"stream", "explore"},
				},
				"video_label": map[string]string{"name": "feed"},
				"priority":    2,
			},
		},
	}
	rawFeed, err := json.Marshal(assetFeed)
	if err != nil {
		return nil, err
	}
	rawStory, err := json.Marshal(map[string]string{"page_id": p.PageID})
	if err != nil {
		return nil, err
	}
	form.Set("asset_feed_spec", string(rawFeed))
	form.Set("object_story_spec", string(rawStory))
	return form, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
