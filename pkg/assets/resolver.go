package assets

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"regexp"
	"strings"

	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
	"github.com/spawn-mcp/adshipper/pkg/logger"
	"github.com/spawn-mcp/adshipper/pkg/objectstore"
	"github.com/spawn-mcp/adshipper/pkg/timeout"
	"github.com/spawn-mcp/adshipper/pkg/types"
)

// Resolver classifies a link, chooses the videos, and stages them.
type Resolver struct {
	lister   Lister
	http     *http.Client
	store    objectstore.Store
	timeouts *timeout.Manager
	log      logger.Logger
}

// NewResolver creates a resolver. httpClient may be nil.
func NewResolver(lister Lister, httpClient *http.Client, store objectstore.Store, timeouts *timeout.Manager, log logger.Logger) *Resolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Resolver{lister: lister, http: httpClient, store: store, timeouts: timeouts, log: log}
}

// Resolve returns the staged primary and optional secondary video for link.
// Every file is in object storage under jobs/<jobID>/ before this returns.
func (r *Resolver) Resolve(ctx context.Context, jobID, link string) (types.StagedAssets, error) {
	kind, id := ClassifyLink(link)
	switch kind {
	case LinkFolder:
		return r.resolveFolder(ctx, jobID, link, id)
	case LinkFile:
		entry, err := r.lister.Stat(ctx, id)
		if err != nil {
			return types.StagedAssets{}, fmt.Errorf("stat drive file: %w", err)
		}
		body, contentType, err := r.lister.Download(ctx, id)
		if err != nil {
			return types.StagedAssets{}, fmt.Errorf("download drive file: %w", err)
		}
		staged, err := r.stage(ctx, jobID, link, entry, body, contentType)
		if err != nil {
			return types.StagedAssets{}, err
		}
		return types.StagedAssets{Primary: staged}, nil
	case LinkURL:
		return r.resolveURL(ctx, jobID, link)
	default:
		return types.StagedAssets{}, pipeerrors.Validation("unsupported asset link %q", link)
	}
}

func (r *Resolver) resolveFolder(ctx context.Context, jobID, link, folderID string) (types.StagedAssets, error) {
	entries, err := r.lister.List(ctx, folderID)
	if err != nil {
		return types.StagedAssets{}, fmt.Errorf("list folder: %w", err)
	}

	sel := SelectVideos(entries)
	if sel.Primary == nil {
		return types.StagedAssets{}, pipeerrors.Newf(pipeerrors.ErrNoVideoFound,
			"no video files in folder %s (%d non-video files)", folderID, sel.NonVideo).
			WithContext("non_video_files", sel.NonVideo)
	}

	var out types.StagedAssets
	primary, err := r.stageEntry(ctx, jobID, link, *sel.Primary)
	if err != nil {
		return types.StagedAssets{}, err
	}
	out.Primary = primary

	if sel.Secondary != nil {
		secondary, err := r.stageEntry(ctx, jobID, link, *sel.Secondary)
		if err != nil {
			return types.StagedAssets{}, err
		}
		out.Secondary = &secondary
	}

	r.log.Info("Folder resolved",
		logger.String("job_id", jobID),
		logger.Int("files", len(entries)),
		logger.String("primary", primary.Name),
		logger.Bool("has_secondary", out.Secondary != nil),
	)
	return out, nil
}

func (r *Resolver) stageEntry(ctx context.Context, jobID, link string, e Entry) (types.StagedFile, error) {
	body, contentType, err := r.lister.Download(ctx, e.ID)
	if err != nil {
		return types.StagedFile{}, fmt.Errorf("download %s: %w", e.Name, err)
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = e.MIMEType
	}
	return r.stage(ctx, jobID, link, e, body, contentType)
}

func (r *Resolver) resolveURL(ctx context.Context, jobID, link string) (types.StagedAssets, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return types.StagedAssets{}, pipeerrors.Validation("bad asset URL %q: %v", link, err)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return types.StagedAssets{}, pipeerrors.Wrap(err, pipeerrors.ErrServerError, "download asset")
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return types.StagedAssets{}, pipeerrors.FromHTTP(resp.StatusCode, "asset host", resp.Status)
	}

	name := path.Base(req.URL.Path)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	entry := Entry{Name: name, SizeBytes: resp.ContentLength}

	staged, err := r.stage(ctx, jobID, link, entry, resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return types.StagedAssets{}, err
	}
	return types.StagedAssets{Primary: staged}, nil
}

// stage writes body to jobs/<jobID>/<ratio>-<name>. It always closes body.
func (r *Resolver) stage(ctx context.Context, jobID, link string, e Entry, body io.ReadCloser, contentType string) (types.StagedFile, error) {
	defer body.Close()

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if !strings.HasPrefix(mediaType, "video/") {
		return types.StagedFile{}, pipeerrors.Newf(pipeerrors.ErrUnsupportedMedia,
			"%s has content type %q, want video/*", e.Name, contentType)
	}

	ratio := RatioOf(e)
	key := fmt.Sprintf("jobs/%s/%s-%s", jobID, ratio, safeName(e.Name))
	storagePath, err := timeout.Call(ctx, r.timeouts, timeout.OpStorage, func(ctx context.Context) (string, error) {
		return r.store.Upload(ctx, body, key, objectstore.UploadOptions{
			ContentType: mediaType,
			Metadata: map[string]string{
				"job_id": jobID,
				"source": link,
			},
		})
	})
	if err != nil {
		return types.StagedFile{}, pipeerrors.Wrap(err, pipeerrors.ErrServerError, "stage video")
	}

	return types.StagedFile{
		StoragePath:     storagePath,
		ContentType:     mediaType,
		Ratio:           ratio,
		Name:            e.Name,
		SizeBytes:       e.SizeBytes,
		DurationSeconds: float64(e.DurationMillis) / 1000,
	}, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func safeName(name string) string {
	name = unsafeChars.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == "/" {
		return "video"
	}
	return name
}
