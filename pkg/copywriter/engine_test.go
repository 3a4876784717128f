package copywriter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
	"github.com/spawn-mcp/adshipper/pkg/logger"
	"github.com/spawn-mcp/adshipper/pkg/types"
)

// scriptedLLM answers by system role and counts calls per role.
type scriptedLLM struct {
	mu         sync.Mutex
	calls      map[string]int
	Draft      func(n int) (string, error)
	Compliance func(n int) string
	Accuracy   func(n int) string
	Revise     func(n int) string
}

func (s *scriptedLLM) Complete(ctx context.Context, system, user string) (string, error) {
	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[system]++
	n := s.calls[system]
	s.mu.Unlock()

	switch system {
	case DrafterSystem:
		return s.Draft(n)
	case ComplianceSystem:
		return s.Compliance(n), nil
	case AccuracySystem:
		return s.Accuracy(n), nil
	case ReviserSystem:
		return s.Revise(n), nil
	}
	return "", errors.New("unexpected role")
}

func (s *scriptedLLM) count(system string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[system]
}

func goodDraft(int) (string, error) {
	return `{"primaryText": "Ice that lasts all day.", "headline": "Cold for 24h", "description": "Free shipping"}`, nil
}

func pass(int) string  { return `{"verdict": "PASS", "flags": []}` }
func green(int) string { return `{"verdict": "GREEN", "claims": []}` }

var brief = Brief{
	RowID:    "row-1",
	Analysis: types.VideoAnalysis{Tone: "playful", Approach: "demo", Transcript: "watch this"},
	Angle:    types.CreativeAngle{Name: "durability"},
}

func TestEngine_CleanFirstRound(t *testing.T) {
	fake := &scriptedLLM{Draft: goodDraft, Compliance: pass, Accuracy: green}
	e := NewEngine(fake, logger.NewNop())

	got, err := e.Write(context.Background(), brief)
	require.NoError(t, err)

	assert.Equal(t, "Ice that lasts all day.", got.PrimaryText)
	assert.Equal(t, "Cold for 24h", got.Headline)
	assert.False(t, got.Review.Revised)
	assert.Equal(t, 1, got.Review.Rounds)
	assert.True(t, got.Review.Clean())
	assert.Equal(t, 0, fake.count(ReviserSystem))
}

func TestEngine_RevisesThenPasses(t *testing.T) {
	fake := &scriptedLLM{
		Draft: goodDraft,
		Compliance: func(n int) string {
			if n == 1 {
				return `{"verdict": "FAIL", "flags": ["implies a guarantee"]}`
			}
			return `{"verdict": "pass"}`
		},
		Accuracy: green,
		Revise: func(int) string {
			return `{"primaryText": "Ice that can last all day.", "headline": "Cold for hours"}`
		},
	}
	e := NewEngine(fake, logger.NewNop())

	got, err := e.Write(context.Background(), brief)
	require.NoError(t, err)

	assert.Equal(t, "Ice that can last all day.", got.PrimaryText)
	assert.Equal(t, "Free shipping", got.Description, "empty revised fields keep the prior draft")
	assert.True(t, got.Review.Revised)
	assert.True(t, got.Review.Clean())
	assert.Equal(t, 2, got.Review.Rounds)
	assert.Equal(t, 1, fake.count(ReviserSystem))
}

func TestEngine_AlwaysDirtyTerminates(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	fake := &scriptedLLM{
		Draft:      goodDraft,
		Compliance: pass,
		Accuracy:   func(int) string { return `{"verdict": "RED", "claims": ["24h is not shown"]}` },
		Revise:     func(int) string { return `{"primaryText": "Ice that lasts.", "headline": "Stays cold"}` },
	}
	e := NewEngine(fake, logger.FromZap(zap.New(core)))

	got, err := e.Write(context.Background(), brief)
	require.NoError(t, err)

	assert.Equal(t, MaxRounds, fake.count(AccuracySystem))
	assert.Equal(t, MaxRounds, fake.count(ComplianceSystem))
	assert.Equal(t, MaxRounds-1, fake.count(ReviserSystem))
	assert.True(t, got.Review.Revised)
	assert.Equal(t, "RED", got.Review.AccuracyVerdict)
	assert.Equal(t, "Ice that lasts.", got.PrimaryText)
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "unresolved")
}

func TestEngine_EmptyDraftFailsRow(t *testing.T) {
	fake := &scriptedLLM{
		Draft: func(int) (string, error) { return `{"primaryText": "  ", "headline": "H"}`, nil },
	}
	e := NewEngine(fake, logger.NewNop())

	_, err := e.Write(context.Background(), brief)
	require.Error(t, err)
	assert.True(t, pipeerrors.IsCode(err, pipeerrors.ErrMalformedResponse))
}

func TestEngine_UnparseableReviewFails(t *testing.T) {
	fake := &scriptedLLM{
		Draft:      goodDraft,
		Compliance: func(int) string { return "Looks fine to me." },
		Accuracy:   green,
	}
	e := NewEngine(fake, logger.NewNop())

	_, err := e.Write(context.Background(), brief)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "compliance review"))
}

func TestEngine_DraftErrorPropagates(t *testing.T) {
	fake := &scriptedLLM{
		Draft: func(int) (string, error) { return "", pipeerrors.New(pipeerrors.ErrRateLimit, "429") },
	}
	e := NewEngine(fake, logger.NewNop())

	_, err := e.Write(context.Background(), brief)
	require.Error(t, err)
	assert.True(t, pipeerrors.IsCode(err, pipeerrors.ErrRateLimit))
}
