package types

import "time"

// CreativeAngle is the creative brief attached to a row.
type CreativeAngle struct {
	Name     string `json:"name" firestore:"name"`
	Hook     string `json:"hook,omitempty" firestore:"hook,omitempty"`
	Audience string `json:"audience,omitempty" firestore:"audience,omitempty"`
	Notes    string `json:"notes,omitempty" firestore:"notes,omitempty"`
}

// Row is one candidate ad to ship.
type Row struct {
	ID         string            `json:"id" firestore:"id"`
	Link       string            `json:"link" firestore:"link"`
	AdSetName  string            `json:"adSetName" firestore:"adSetName"`
	AdName     string            `json:"adName" firestore:"adName"`
	Angle      CreativeAngle     `json:"angle" firestore:"angle"`
	LandingURL string            `json:"landingUrl,omitempty" firestore:"landingUrl,omitempty"`
	UTM        map[string]string `json:"utm,omitempty" firestore:"utm,omitempty"`
}

// AdSetResolution is the outcome of find-or-create for one ad set name.
type AdSetResolution struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

// RowStatus is the terminal status of a row within a batch.
type RowStatus string

const (
	RowShipped RowStatus = "shipped"
	RowFailed  RowStatus = "failed"
	RowDryRun  RowStatus = "dry_run"
)

// RowResult is produced exactly once per row per batch.
type RowResult struct {
	RowID          string        `json:"rowId"`
	Status         RowStatus     `json:"status"`
	Copy           *CopyResult   `json:"copy,omitempty"`
	Link           string        `json:"link,omitempty"`
	AdSetID        string        `json:"adSetId,omitempty"`
	AdSetCreated   bool          `json:"adSetCreated,omitempty"`
	VideoIDs       []string      `json:"videoIds,omitempty"`
	CreativeID     string        `json:"creativeId,omitempty"`
	AdID           string        `json:"adId,omitempty"`
	AnalysisCached bool          `json:"analysisCached"`
	Error          string        `json:"error,omitempty"`
	Duration       time.Duration `json:"durationNs"`

	// Err is the failure behind Error, kept for classification.
	Err error `json:"-"`
}

// BatchRequest is the batch entry point input.
type BatchRequest struct {
	GroupID string `json:"groupId"`
	Rows    []Row  `json:"rows"`
	DryRun  bool   `json:"dryRun,omitempty"`
}

// BatchSummary is tallied after every row has finished.
type BatchSummary struct {
	RunID      string      `json:"runId"`
	Total      int         `json:"total"`
	Shipped    int         `json:"shipped"`
	Failed     int         `json:"failed"`
	DryRun     int         `json:"dryRun"`
	DurationMs int64       `json:"durationMs"`
	Results    []RowResult `json:"results"`
}
