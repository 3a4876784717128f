package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
)

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// ExtractJSON decodes model output into v. It tries, in order: the raw text,
// the widest {...} span, that span after fix-ups, and finally a per-field
// regex over fields. It returns a MalformedResponse error if none succeed.
func ExtractJSON(text string, v any, fields ...string) error {
	text = strings.TrimSpace(text)
	if json.Unmarshal([]byte(text), v) == nil {
		return nil
	}

	candidate, ok := widestObject(text)
	if ok {
		if json.Unmarshal([]byte(candidate), v) == nil {
			return nil
		}
		if json.Unmarshal([]byte(fixUp(candidate)), v) == nil {
			return nil
		}
	}

	if found := extractFields(text, fields); len(found) > 0 {
		raw, err := json.Marshal(found)
		if err == nil && json.Unmarshal(raw, v) == nil {
			return nil
		}
	}

	return pipeerrors.Malformed("no JSON object found in model output (%d bytes)", len(text))
}

// StripFences removes a surrounding markdown code fence.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func widestObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func fixUp(s string) string {
	return trailingComma.ReplaceAllString(escapeBareNewlines(s), "$1")
}

// escapeBareNewlines escapes raw newlines and tabs that appear inside string
// literals.
func escapeBareNewlines(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && inString:
			escaped = true
		case r == '"':
			inString = !inString
		case inString && r == '\n':
			b.WriteString(`\n`)
			continue
		case inString && r == '\r':
			continue
		case inString && r == '\t':
			b.WriteString(`\t`)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func extractFields(text string, fields []string) map[string]string {
	found := make(map[string]string)
	for _, f := range fields {
		quoted := regexp.MustCompile(`"` + regexp.QuoteMeta(f) + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
		if m := quoted.FindStringSubmatch(text); m != nil {
			var s string
			if json.Unmarshal([]byte(`"`+m[1]+`"`), &s) != nil {
				s = m[1]
			}
			found[f] = s
			continue
		}
		bare := regexp.MustCompile(`(?im)^[\s*\-]*` + regexp.QuoteMeta(f) + `\s*[:=]\s*"?([^"\n]+?)"?\s*,?\s*$`)
		if m := bare.FindStringSubmatch(text); m != nil {
			found[f] = strings.TrimSpace(m[1])
		}
	}
	return found
}
