package types

import "time"

// Scene is one segment of an analyzed video.
type Scene struct {
	Start       string `json:"start" firestore:"start"`
	End         string `json:"end" firestore:"end"`
	Description string `json:"description" firestore:"description"`
}

// VideoAnalysis is the structured result of video intelligence.
type VideoAnalysis struct {
	Scenes       []Scene  `json:"scenes" firestore:"scenes"`
	OnScreenText []string `json:"onScreenText" firestore:"onScreenText"`
	Tone         string   `json:"tone" firestore:"tone"`
	Approach     string   `json:"approach" firestore:"approach"`
	Transcript   string   `json:"transcript" firestore:"transcript"`
	Themes       []string `json:"themes" firestore:"themes"`
	Hook         string   `json:"hook,omitempty" firestore:"hook,omitempty"`
}

// AnalysisCacheEntry is a memoized analysis keyed by staged path.
type AnalysisCacheEntry struct {
	Key        string        `json:"key" firestore:"key"`
	RowID      string        `json:"rowId" firestore:"rowId"`
	Analysis   VideoAnalysis `json:"analysis" firestore:"analysis"`
	StagedPath string        `json:"stagedPath" firestore:"stagedPath"`
	ExpiresAt  time.Time     `json:"expiresAt" firestore:"expiresAt"`
	HitCount   int64         `json:"hitCount" firestore:"hitCount"`
	CreatedAt  time.Time     `json:"createdAt" firestore:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt" firestore:"updatedAt"`
}

// Expired reports whether the entry should be treated as absent at now.
func (e *AnalysisCacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// AspectRatio is a supported video aspect ratio.
type AspectRatio string

const (
	Ratio4x5     AspectRatio = "4x5"
	Ratio9x16    AspectRatio = "9x16"
	RatioUnknown AspectRatio = "unknown"
)

// StagedFile is a video persisted to object storage.
type StagedFile struct {
	StoragePath     string      `json:"storagePath"`
	ContentType     string      `json:"contentType"`
	Ratio           AspectRatio `json:"ratio"`
	Name            string      `json:"name"`
	SizeBytes       int64       `json:"sizeBytes"`
	DurationSeconds float64     `json:"durationSeconds"`
}

// StagedAssets are the staged files selected for one row.
type StagedAssets struct {
	Primary   StagedFile  `json:"primary"`
	Secondary *StagedFile `json:"secondary,omitempty"`
}
