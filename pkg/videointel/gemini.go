package videointel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
	"github.com/spawn-mcp/adshipper/pkg/objectstore"
	"github.com/spawn-mcp/adshipper/pkg/timeout"
	"github.com/spawn-mcp/adshipper/pkg/types"
)

// GeminiBackend implements Backend with the Gemini File API and
// GenerateContent.
type GeminiBackend struct {
	client       *genai.Client
	model        string
	store        objectstore.Store
	timeouts     *timeout.Manager
	pollInterval time.Duration
}

// NewGeminiBackend creates a backend that reads staged bytes from store.
func NewGeminiBackend(ctx context.Context, apiKey, model string, store objectstore.Store, timeouts *timeout.Manager) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiBackend{
		client:       client,
		model:        model,
		store:        store,
		timeouts:     timeouts,
		pollInterval: 2 * time.Second,
	}, nil
}

// Close releases the Gemini client.
func (g *GeminiBackend) Close() error {
	return g.client.Close()
}

// Upload streams the staged object to the File API and waits until the file
// is ACTIVE.
func (g *GeminiBackend) Upload(ctx context.Context, file types.StagedFile) (RemoteRef, error) {
	return timeout.Call(ctx, g.timeouts, timeout.OpVideoUpload, func(ctx context.Context) (RemoteRef, error) {
		rc, err := g.store.Read(ctx, file.StoragePath)
		if err != nil {
			return RemoteRef{}, fmt.Errorf("read staged video: %w", err)
		}
		defer rc.Close()

		f, err := g.client.UploadFile(ctx, "", rc, &genai.UploadFileOptions{
			DisplayName: file.Name,
			MIMEType:    file.ContentType,
		})
		if err != nil {
			return RemoteRef{}, pipeerrors.FromGoogleAPI(err, "gemini upload")
		}

		for f.State == genai.FileStateProcessing {
			select {
			case <-ctx.Done():
				return RemoteRef{}, pipeerrors.Wrap(ctx.Err(), pipeerrors.ErrTimeout, "gemini file processing")
			case <-time.After(g.pollInterval):
			}
			if f, err = g.client.GetFile(ctx, f.Name); err != nil {
				return RemoteRef{}, pipeerrors.FromGoogleAPI(err, "gemini get file")
			}
		}
		if f.State != genai.FileStateActive {
			return RemoteRef{}, pipeerrors.Newf(pipeerrors.ErrServerError, "gemini file %s ended in state %v", f.Name, f.State)
		}
		return RemoteRef{URI: f.URI, MIMEType: f.MIMEType, Name: f.Name}, nil
	})
}

// Delete removes the uploaded file from the File API.
func (g *GeminiBackend) Delete(ctx context.Context, ref RemoteRef) error {
	if ref.Name == "" {
		return nil
	}
	if err := g.client.DeleteFile(ctx, ref.Name); err != nil {
		return pipeerrors.FromGoogleAPI(err, "gemini delete file")
	}
	return nil
}

// Generate runs prompt against the uploaded video and returns the text parts.
func (g *GeminiBackend) Generate(ctx context.Context, ref RemoteRef, prompt string) (string, error) {
	return timeout.Call(ctx, g.timeouts, timeout.OpVideoAnalyze, func(ctx context.Context) (string, error) {
		model := g.client.GenerativeModel(g.model)
		model.ResponseMIMEType = "application/json"
		model.SetTemperature(0.2)

		resp, err := model.GenerateContent(ctx,
			genai.FileData{MIMEType: ref.MIMEType, URI: ref.URI},
			genai.Text(prompt),
		)
		if err != nil {
			return "", pipeerrors.FromGoogleAPI(err, "gemini generate")
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return "", pipeerrors.Malformed("gemini returned no candidates")
		}

		var b strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		return b.String(), nil
	})
}
