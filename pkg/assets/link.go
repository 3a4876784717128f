// Package assets resolves an input link to staged video files.
package assets

import (
	"net/url"
	"regexp"
	"strings"
)

// LinkKind is the structural class of an input link.
type LinkKind int

const (
	LinkInvalid LinkKind = iota
	LinkFolder
	LinkFile
	LinkURL
)

func (k LinkKind) String() string {
	switch k {
	case LinkFolder:
		return "folder"
	case LinkFile:
		return "file"
	case LinkURL:
		return "url"
	default:
		return "invalid"
	}
}

var (
	folderPattern = regexp.MustCompile(`/folders/([A-Za-z0-9_-]+)`)
	filePattern   = regexp.MustCompile(`/file/d/([A-Za-z0-9_-]+)`)
)

// ClassifyLink inspects link without any network call and returns its kind
// and, for Drive links, the folder or file ID.
func ClassifyLink(link string) (LinkKind, string) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return LinkInvalid, ""
	}

	host := strings.ToLower(u.Host)
	if host != "drive.google.com" && host != "docs.google.com" {
		return LinkURL, ""
	}
	if m := folderPattern.FindStringSubmatch(u.Path); m != nil {
		return LinkFolder, m[1]
	}
	if m := filePattern.FindStringSubmatch(u.Path); m != nil {
		return LinkFile, m[1]
	}
	if id := u.Query().Get("id"); id != "" {
		return LinkFile, id
	}
	return LinkURL, ""
}
