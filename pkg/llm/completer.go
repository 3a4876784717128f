// Package llm is the text completion boundary used for drafting and review.
package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"

	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
	"github.com/spawn-mcp/adshipper/pkg/timeout"
)

// Completer returns free text for a system role and user message.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, system, user string) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

// ClaudeCompleter implements Completer with the Anthropic Messages API.
type ClaudeCompleter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeouts  *timeout.Manager
}

// NewClaudeCompleter creates a completer for model.
func NewClaudeCompleter(apiKey, model string, maxTokens int64, timeouts *timeout.Manager, opts ...aoption.RequestOption) *ClaudeCompleter {
	opts = append([]aoption.RequestOption{aoption.WithAPIKey(apiKey)}, opts...)
	return &ClaudeCompleter{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		timeouts:  timeouts,
	}
}

// Complete sends one user turn and concatenates the text blocks of the reply.
func (c *ClaudeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	msg, err := timeout.Call(ctx, c.timeouts, timeout.OpLLM, func(ctx context.Context) (*anthropic.Message, error) {
		return c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: c.maxTokens,
			System:    []anthropic.TextBlockParam{{Text: system}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
			},
		})
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", pipeerrors.Wrap(err, pipeerrors.Classify(apiErr.StatusCode), "claude request failed")
		}
		if timeout.IsTimeout(err) {
			return "", pipeerrors.Wrap(err, pipeerrors.ErrTimeout, "claude request timed out")
		}
		return "", pipeerrors.Wrap(err, pipeerrors.ErrInternal, "claude request failed")
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", pipeerrors.Malformed("claude returned no text content")
	}
	return b.String(), nil
}
