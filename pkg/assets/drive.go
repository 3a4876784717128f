package assets

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
	"github.com/spawn-mcp/adshipper/pkg/timeout"
)

// Lister enumerates and downloads files from a folder source.
type Lister interface {
	List(ctx context.Context, folderID string) ([]Entry, error)
	Stat(ctx context.Context, fileID string) (Entry, error)
	// Download returns the body and its Content-Type.
	Download(ctx context.Context, fileID string) (io.ReadCloser, string, error)
}

const driveFields = "id, name, mimeType, size, videoMediaMetadata"

// DriveLister implements Lister with the Drive v3 API.
type DriveLister struct {
	svc      *drive.Service
	timeouts *timeout.Manager
}

// NewDriveLister creates a Drive-backed lister.
func NewDriveLister(ctx context.Context, timeouts *timeout.Manager, opts ...option.ClientOption) (*DriveLister, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive client: %w", err)
	}
	return &DriveLister{svc: svc, timeouts: timeouts}, nil
}

// List returns every non-trashed file directly under folderID.
func (d *DriveLister) List(ctx context.Context, folderID string) ([]Entry, error) {
	var entries []Entry
	err := d.timeouts.Run(ctx, timeout.OpDrive, func(ctx context.Context) error {
		call := d.svc.Files.List().
			Q(fmt.Sprintf("'%s' in parents and trashed = false", folderID)).
			Fields("nextPageToken, files(" + driveFields + ")").
			PageSize(100).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true)
		return call.Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				entries = append(entries, toEntry(f))
			}
			return nil
		})
	})
	if err != nil {
		return nil, pipeerrors.FromGoogleAPI(err, "drive list")
	}
	return entries, nil
}

// Stat returns metadata for one file.
func (d *DriveLister) Stat(ctx context.Context, fileID string) (Entry, error) {
	f, err := timeout.Call(ctx, d.timeouts, timeout.OpDrive, func(ctx context.Context) (*drive.File, error) {
		return d.svc.Files.Get(fileID).Fields(driveFields).SupportsAllDrives(true).Context(ctx).Do()
	})
	if err != nil {
		return Entry{}, pipeerrors.FromGoogleAPI(err, "drive get")
	}
	return toEntry(f), nil
}

// Download opens the file's media. The caller bounds the read with ctx.
func (d *DriveLister) Download(ctx context.Context, fileID string) (io.ReadCloser, string, error) {
	resp, err := d.svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, "", pipeerrors.FromGoogleAPI(err, "drive download")
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func toEntry(f *drive.File) Entry {
	e := Entry{
		ID:        f.Id,
		Name:      f.Name,
		MIMEType:  f.MimeType,
		SizeBytes: f.Size,
	}
	if m := f.VideoMediaMetadata; m != nil {
		e.Width = m.Width
		e.Height = m.Height
		e.DurationMillis = m.DurationMillis
	}
	return e
}
