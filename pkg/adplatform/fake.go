package adplatform

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Platform. Func fields override the default
// behavior; every call is counted.
type Fake struct {
	mu        sync.Mutex
	adSets    map[string][]AdSet
	campaigns map[string]*Campaign
	seq       int
	calls     map[string]int

	CreateAdSetFunc    func(ctx context.Context, p AdSetParams) (string, error)
	UploadVideoFunc    func(ctx context.Context, fileURL, title string) (VideoUpload, error)
	CreateCreativeFunc func(ctx context.Context, p CreativeParams) (string, error)
	CreateAdFunc       func(ctx context.Context, p AdParams) (string, error)

	Creatives  []CreativeParams
	AdSetsMade []AdSetParams
	Ads        []AdParams
}

// NewFake creates an empty fake platform.
func NewFake() *Fake {
	return &Fake{
		adSets:    make(map[string][]AdSet),
		campaigns: make(map[string]*Campaign),
		calls:     make(map[string]int),
	}
}

// AddCampaign registers a campaign.
func (f *Fake) AddCampaign(c Campaign) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.campaigns[c.ID] = &c
}

// AddAdSet registers an existing ad set under campaignID.
func (f *Fake) AddAdSet(campaignID string, s AdSet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.CampaignID = campaignID
	f.adSets[campaignID] = append(f.adSets[campaignID], s)
}

// Calls returns how many times method was called.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// PublishCalls counts upload, creative, and ad calls.
func (f *Fake) PublishCalls() int {
	return f.Calls("UploadVideo") + f.Calls("CreateCreative") + f.Calls("CreateAd")
}

func (f *Fake) record(method string) {
	f.mu.Lock()
	f.calls[method]++
	f.mu.Unlock()
}

func (f *Fake) nextID(prefix string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *Fake) FindAdSetByName(ctx context.Context, campaignID, name string) (*AdSet, error) {
	f.record("FindAdSetByName")
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.adSets[campaignID] {
		if s.Name == name {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (f *Fake) LatestAdSetTemplate(ctx context.Context, campaignID string) (*AdSet, error) {
	f.record("LatestAdSetTemplate")
	f.mu.Lock()
	defer f.mu.Unlock()
	sets := f.adSets[campaignID]
	if len(sets) == 0 {
		return nil, nil
	}
	latest := sets[0]
	for _, s := range sets[1:] {
		if s.CreatedTime > latest.CreatedTime {
			latest = s
		}
	}
	return &latest, nil
}

func (f *Fake) GetCampaign(ctx context.Context, campaignID string) (*Campaign, error) {
	f.record("GetCampaign")
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[campaignID]
	if !ok {
		return &Campaign{ID: campaignID}, nil
	}
	cp := *c
	return &cp, nil
}

func (f *Fake) CreateAdSet(ctx context.Context, p AdSetParams) (string, error) {
	f.record("CreateAdSet")
	if f.CreateAdSetFunc != nil {
		return f.CreateAdSetFunc(ctx, p)
	}
	id := f.nextID("adset")
	f.mu.Lock()
	f.AdSetsMade = append(f.AdSetsMade, p)
	f.adSets[p.CampaignID] = append(f.adSets[p.CampaignID], AdSet{ID: id, Name: p.Name, CampaignID: p.CampaignID})
	f.mu.Unlock()
	return id, nil
}

func (f *Fake) UploadVideo(ctx context.Context, fileURL, title string) (VideoUpload, error) {
	f.record("UploadVideo")
	if f.UploadVideoFunc != nil {
		return f.UploadVideoFunc(ctx, fileURL, title)
	}
	id := f.nextID("video")
	return VideoUpload{VideoID: id, ThumbnailURL: "https://thumbs.test/" + id}, nil
}

func (f *Fake) CreateCreative(ctx context.Context, p CreativeParams) (string, error) {
	f.record("CreateCreative")
	if f.CreateCreativeFunc != nil {
		return f.CreateCreativeFunc(ctx, p)
	}
	f.mu.Lock()
	f.Creatives = append(f.Creatives, p)
	f.mu.Unlock()
	return f.nextID("creative"), nil
}

func (f *Fake) CreateAd(ctx context.Context, p AdParams) (string, error) {
	f.record("CreateAd")
	if f.CreateAdFunc != nil {
		return f.CreateAdFunc(ctx, p)
	}
	f.mu.Lock()
	f.Ads = append(f.Ads, p)
	f.mu.Unlock()
	return f.nextID("ad"), nil
}

func (f *Fake) ListAdSets(ctx context.Context, campaignID string) ([]AdSet, error) {
	f.record("ListAdSets")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]AdSet(nil), f.adSets[campaignID]...), nil
}

func (f *Fake) FindCampaignByName(ctx context.Context, name string) (*Campaign, error) {
	f.record("FindCampaignByName")
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.campaigns {
		if c.Name == name {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}
