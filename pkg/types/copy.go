package types

// Review verdicts that count as clean.
const (
	CompliancePass = "PASS"
	AccuracyGreen  = "GREEN"
)

// ReviewLog records the final reviewer verdicts for a draft.
type ReviewLog struct {
	ComplianceVerdict string   `json:"complianceVerdict"`
	ComplianceFlags   []string `json:"complianceFlags,omitempty"`
	AccuracyVerdict   string   `json:"accuracyVerdict"`
	AccuracyClaims    []string `json:"accuracyClaims,omitempty"`
	Revised           bool     `json:"revised"`
	Rounds            int      `json:"rounds"`
}

// Clean reports whether both verdicts passed.
func (r ReviewLog) Clean() bool {
	return r.ComplianceVerdict == CompliancePass && r.AccuracyVerdict == AccuracyGreen
}

// AdCopy is the text of one ad.
type AdCopy struct {
	PrimaryText string `json:"primaryText"`
	Headline    string `json:"headline"`
	Description string `json:"description"`
}

// CopyResult is the output of the draft and review loop.
type CopyResult struct {
	AdCopy
	Review ReviewLog `json:"review"`
}
