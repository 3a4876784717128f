package copywriter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spawn-mcp/adshipper/pkg/types"
)

// System roles for each call in the loop.
const (
	DrafterSystem = `You write direct-response ad copy for short-form video ads.
Write from what the video actually shows and says. Never invent claims, prices, or guarantees.
Respond with only a JSON object: {"primaryText": "...", "headline": "...", "description": "..."}.
primaryText is at most 125 characters before the fold, headline at most 40, description at most 30.`

	ComplianceSystem = `You review ad copy against advertising policy: no personal attributes ("are you overweight?"),
no before/after or miracle claims, no health or financial guarantees, no misleading urgency.
Respond with only a JSON object: {"verdict": "PASS" or "FAIL", "flags": ["each problem, quoted"]}.`

	AccuracySystem = `You check that every factual claim in ad copy is supported by the video analysis provided.
Respond with only a JSON object: {"verdict": "GREEN", "YELLOW" or "RED", "claims": ["each unsupported claim"]}.
GREEN means every claim is supported.`

	ReviserSystem = `You revise ad copy to resolve reviewer findings while changing as little as possible.
Keep the voice, structure, and length. Remove or soften only what was flagged.
Respond with only a JSON object: {"primaryText": "...", "headline": "...", "description": "..."}.`
)

func draftPrompt(b Brief) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Creative angle: %s\n", b.Angle.Name)
	if b.Angle.Hook != "" {
		fmt.Fprintf(&sb, "Hook: %s\n", b.Angle.Hook)
	}
	if b.Angle.Audience != "" {
		fmt.Fprintf(&sb, "Audience: %s\n", b.Angle.Audience)
	}
	if b.Angle.Notes != "" {
		fmt.Fprintf(&sb, "Notes: %s\n", b.Angle.Notes)
	}
	sb.WriteString("\nVideo analysis:\n")
	sb.WriteString(analysisJSON(b.Analysis))
	return sb.String()
}

func reviewPrompt(b Brief, draft types.AdCopy) string {
	return fmt.Sprintf("Ad copy:\n%s\n\nVideo analysis:\n%s", copyJSON(draft), analysisJSON(b.Analysis))
}

func revisePrompt(b Brief, draft types.AdCopy, c complianceReview, a accuracyReview) string {
	var sb strings.Builder
	sb.WriteString("Current copy:\n")
	sb.WriteString(copyJSON(draft))
	fmt.Fprintf(&sb, "\n\nCompliance verdict: %s\n", c.Verdict)
	for _, f := range c.Flags {
		fmt.Fprintf(&sb, "- %s\n", f)
	}
	fmt.Fprintf(&sb, "\nAccuracy verdict: %s\n", a.Verdict)
	for _, claim := range a.Claims {
		fmt.Fprintf(&sb, "- %s\n", claim)
	}
	sb.WriteString("\nVideo analysis:\n")
	sb.WriteString(analysisJSON(b.Analysis))
	return sb.String()
}

func analysisJSON(a types.VideoAnalysis) string {
	raw, _ := json.MarshalIndent(a, "", "  ")
	return string(raw)
}

func copyJSON(c types.AdCopy) string {
	raw, _ := json.MarshalIndent(c, "", "  ")
	return string(raw)
}
