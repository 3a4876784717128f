// Package copywriter drafts ad copy and runs it through compliance and
// accuracy review.
package copywriter

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
	"github.com/spawn-mcp/adshipper/pkg/llm"
	"github.com/spawn-mcp/adshipper/pkg/logger"
	"github.com/spawn-mcp/adshipper/pkg/types"
)

// MaxRounds bounds review rounds per row.
const MaxRounds = 2

// State is a step of the review state machine.
type State string

const (
	StateDrafted   State = "drafted"
	StateReviewing State = "reviewing"
	StateRevising  State = "revising"
	StateAccepted  State = "accepted"
)

// Brief is everything the drafter sees.
type Brief struct {
	RowID    string
	Analysis types.VideoAnalysis
	Angle    types.CreativeAngle
}

type complianceReview struct {
	Verdict string   `json:"verdict"`
	Flags   []string `json:"flags"`
}

type accuracyReview struct {
	Verdict string   `json:"verdict"`
	Claims  []string `json:"claims"`
}

// Engine runs draft, review, and revision calls against one Completer.
type Engine struct {
	llm       llm.Completer
	maxRounds int
	log       logger.Logger
}

// NewEngine creates an engine with MaxRounds review rounds.
func NewEngine(completer llm.Completer, log logger.Logger) *Engine {
	return &Engine{llm: completer, maxRounds: MaxRounds, log: log}
}

// run is the per-row machine state.
type run struct {
	brief      Brief
	state      State
	round      int
	draft      types.AdCopy
	compliance complianceReview
	accuracy   accuracyReview
	revised    bool
}

// Write drafts copy for brief and reviews it until both reviewers are clean
// or the round limit is reached. After the last round the current draft is
// accepted regardless of verdicts.
func (e *Engine) Write(ctx context.Context, brief Brief) (*types.CopyResult, error) {
	log := e.log.With(logger.String("row_id", brief.RowID))

	draft, err := e.draft(ctx, brief)
	if err != nil {
		return nil, err
	}
	r := &run{brief: brief, state: StateDrafted, draft: draft}

	for r.state != StateAccepted {
		switch r.state {
		case StateDrafted:
			r.state = StateReviewing

		case StateReviewing:
			r.round++
			if err := e.review(ctx, r); err != nil {
				return nil, fmt.Errorf("review round %d: %w", r.round, err)
			}
			switch {
			case r.clean():
				r.state = StateAccepted
			case r.round >= e.maxRounds:
				r.revised = true
				log.Warn("Accepting copy with unresolved review findings",
					logger.Int("rounds", r.round),
					logger.String("compliance", r.compliance.Verdict),
					logger.Strings("flags", r.compliance.Flags),
					logger.String("accuracy", r.accuracy.Verdict),
					logger.Strings("claims", r.accuracy.Claims),
				)
				r.state = StateAccepted
			default:
				r.state = StateRevising
			}

		case StateRevising:
			revised, err := e.revise(ctx, r)
			if err != nil {
				return nil, fmt.Errorf("revision after round %d: %w", r.round, err)
			}
			r.draft = revised
			r.revised = true
			r.state = StateReviewing
		}
	}

	return &types.CopyResult{
		AdCopy: r.draft,
		Review: types.ReviewLog{
			ComplianceVerdict: r.compliance.Verdict,
			ComplianceFlags:   r.compliance.Flags,
			AccuracyVerdict:   r.accuracy.Verdict,
			AccuracyClaims:    r.accuracy.Claims,
			Revised:           r.revised,
			Rounds:            r.round,
		},
	}, nil
}

func (r *run) clean() bool {
	return r.compliance.Verdict == types.CompliancePass && r.accuracy.Verdict == types.AccuracyGreen
}

func (e *Engine) draft(ctx context.Context, brief Brief) (types.AdCopy, error) {
	text, err := e.llm.Complete(ctx, DrafterSystem, draftPrompt(brief))
	if err != nil {
		return types.AdCopy{}, fmt.Errorf("draft copy: %w", err)
	}
	var out types.AdCopy
	if err := llm.ExtractJSON(text, &out, "primaryText", "headline", "description"); err != nil {
		return types.AdCopy{}, fmt.Errorf("draft copy: %w", err)
	}
	out = trimCopy(out)
	if out.PrimaryText == "" || out.Headline == "" {
		return types.AdCopy{}, pipeerrors.Malformed("draft is missing primary text or headline")
	}
	return out, nil
}

// review runs both reviewers in parallel against the current draft.
func (e *Engine) review(ctx context.Context, r *run) error {
	prompt := reviewPrompt(r.brief, r.draft)
	var c complianceReview
	var a accuracyReview

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		text, err := e.llm.Complete(gctx, ComplianceSystem, prompt)
		if err != nil {
			return fmt.Errorf("compliance review: %w", err)
		}
		if err := llm.ExtractJSON(text, &c, "verdict"); err != nil {
			return fmt.Errorf("compliance review: %w", err)
		}
		c.Verdict = normalizeVerdict(c.Verdict)
		if c.Verdict == "" {
			return pipeerrors.Malformed("compliance review returned no verdict")
		}
		return nil
	})
	g.Go(func() error {
		text, err := e.llm.Complete(gctx, AccuracySystem, prompt)
		if err != nil {
			return fmt.Errorf("accuracy review: %w", err)
		}
		if err := llm.ExtractJSON(text, &a, "verdict"); err != nil {
			return fmt.Errorf("accuracy review: %w", err)
		}
		a.Verdict = normalizeVerdict(a.Verdict)
		if a.Verdict == "" {
			return pipeerrors.Malformed("accuracy review returned no verdict")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	r.compliance, r.accuracy = c, a
	return nil
}

// revise keeps any field the reviser left empty from the current draft.
func (e *Engine) revise(ctx context.Context, r *run) (types.AdCopy, error) {
	text, err := e.llm.Complete(ctx, ReviserSystem, revisePrompt(r.brief, r.draft, r.compliance, r.accuracy))
	if err != nil {
		return types.AdCopy{}, err
	}
	var out types.AdCopy
	if err := llm.ExtractJSON(text, &out, "primaryText", "headline", "description"); err != nil {
		return types.AdCopy{}, err
	}
	out = trimCopy(out)
	if out.PrimaryText == "" {
		out.PrimaryText = r.draft.PrimaryText
	}
	if out.Headline == "" {
		out.Headline = r.draft.Headline
	}
	if out.Description == "" {
		out.Description = r.draft.Description
	}
	return out, nil
}

func trimCopy(c types.AdCopy) types.AdCopy {
	return types.AdCopy{
		PrimaryText: strings.TrimSpace(c.PrimaryText),
		Headline:    strings.TrimSpace(c.Headline),
		Description: strings.TrimSpace(c.Description),
	}
}

func normalizeVerdict(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}
