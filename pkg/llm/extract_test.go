package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
)

type draft struct {
	PrimaryText string `json:"primaryText"`
	Headline    string `json:"headline"`
}

func TestExtractJSON_FallbacksAgree(t *testing.T) {
	want := draft{PrimaryText: "Meet the bottle that keeps ice for 24 hours.", Headline: "Cold all day"}

	inputs := map[string]string{
		"direct":         `{"primaryText": "Meet the bottle that keeps ice for 24 hours.", "headline": "Cold all day"}`,
		"fenced":         "```json\n{\"primaryText\": \"Meet the bottle that keeps ice for 24 hours.\", \"headline\": \"Cold all day\"}\n```",
		"trailing comma": `Here you go: {"primaryText": "Meet the bottle that keeps ice for 24 hours.", "headline": "Cold all day",}`,
		"prose":          `Sure! I'd go with "primaryText": "Meet the bottle that keeps ice for 24 hours." and for the title "headline": "Cold all day" which fits the limit.`,
	}

	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			var got draft
			require.NoError(t, ExtractJSON(in, &got, "primaryText", "headline"))
			assert.Equal(t, want, got)
		})
	}
}

func TestExtractJSON_BareNewlineInString(t *testing.T) {
	in := "{\"primaryText\": \"Line one\nLine two\", \"headline\": \"H\"}"

	var got draft
	require.NoError(t, ExtractJSON(in, &got, "primaryText", "headline"))
	assert.Equal(t, "Line one\nLine two", got.PrimaryText)
}

func TestExtractJSON_BareKeyLines(t *testing.T) {
	in := "Draft:\nprimaryText: Stay cold longer\nheadline: Ice for days\n"

	var got draft
	require.NoError(t, ExtractJSON(in, &got, "primaryText", "headline"))
	assert.Equal(t, draft{PrimaryText: "Stay cold longer", Headline: "Ice for days"}, got)
}

func TestExtractJSON_TotalFailure(t *testing.T) {
	var got draft
	err := ExtractJSON("I cannot help with that.", &got, "primaryText", "headline")
	require.Error(t, err)
	assert.True(t, pipeerrors.IsCode(err, pipeerrors.ErrMalformedResponse))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences(`{"a":1}`))
}
