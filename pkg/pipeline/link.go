package pipeline

import (
	"net/url"
	"strings"

	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
)

// BuildLink appends tracking parameters to landing. Existing query params are
// kept; the row's own UTM values override the generated ones.
func BuildLink(landing, adSetName, adName string, extra map[string]string) (string, error) {
	landing = strings.TrimSpace(landing)
	if landing == "" {
		return "", pipeerrors.Validation("landing URL is required")
	}
	u, err := url.Parse(landing)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", pipeerrors.Validation("invalid landing URL %q", landing)
	}

	q := u.Query()
	q.Set("utm_source", "facebook")
	q.Set("utm_medium", "paid")
	if adSetName != "" {
		q.Set("utm_campaign", adSetName)
	}
	if adName != "" {
		q.Set("utm_content", adName)
	}
	for k, v := range extra {
		if k == "" {
			continue
		}
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
