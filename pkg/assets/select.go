package assets

import (
	"math"
	"path"
	"sort"
	"strings"

	"github.com/spawn-mcp/adshipper/pkg/types"
)

// Entry is one file in a source folder.
type Entry struct {
	ID             string
	Name           string
	MIMEType       string
	SizeBytes      int64
	Width          int64
	Height         int64
	DurationMillis int64
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".m4v": true, ".webm": true, ".avi": true, ".mkv": true,
}

// IsVideo reports whether e is a video by declared type or extension.
func IsVideo(e Entry) bool {
	if strings.HasPrefix(e.MIMEType, "video/") {
		return true
	}
	return videoExtensions[strings.ToLower(path.Ext(e.Name))]
}

// RatioOf classifies e by its pixel dimensions, falling back to filename hints.
func RatioOf(e Entry) types.AspectRatio {
	if e.Width > 0 && e.Height > 0 {
		r := float64(e.Width) / float64(e.Height)
		switch {
		case math.Abs(r-4.0/5.0) < 0.03:
			return types.Ratio4x5
		case math.Abs(r-9.0/16.0) < 0.03:
			return types.Ratio9x16
		}
	}
	return RatioFromName(e.Name)
}

// RatioFromName reads aspect hints such as 4x5, 9:16, feed, or story.
func RatioFromName(name string) types.AspectRatio {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "4x5"), strings.Contains(n, "4:5"), strings.Contains(n, "feed"):
		return types.Ratio4x5
	case strings.Contains(n, "9x16"), strings.Contains(n, "9:16"), strings.Contains(n, "story"), strings.Contains(n, "reel"):
		return types.Ratio9x16
	}
	return types.RatioUnknown
}

// Selection is the outcome of choosing videos from a folder.
type Selection struct {
	Primary   *Entry
	Secondary *Entry
	NonVideo  int
}

// SelectVideos picks a primary by preference 4x5, then 9x16, then any video,
// and a secondary of the other supported ratio when one exists.
func SelectVideos(entries []Entry) Selection {
	var sel Selection
	byRatio := make(map[types.AspectRatio][]Entry)
	var videos []Entry
	for _, e := range entries {
		if !IsVideo(e) {
			sel.NonVideo++
			continue
		}
		videos = append(videos, e)
	}
	sort.SliceStable(videos, func(i, j int) bool { return videos[i].Name < videos[j].Name })
	for _, v := range videos {
		r := RatioOf(v)
		byRatio[r] = append(byRatio[r], v)
	}

	pick := func(r types.AspectRatio) *Entry {
		if list := byRatio[r]; len(list) > 0 {
			e := list[0]
			return &e
		}
		return nil
	}

	switch {
	case pick(types.Ratio4x5) != nil:
		sel.Primary = pick(types.Ratio4x5)
		sel.Secondary = pick(types.Ratio9x16)
	case pick(types.Ratio9x16) != nil:
		sel.Primary = pick(types.Ratio9x16)
	case len(videos) > 0:
		e := videos[0]
		sel.Primary = &e
	}
	return sel
}
