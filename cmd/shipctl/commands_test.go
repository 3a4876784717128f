package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRows(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "rows.json")
	require.NoError(t, os.WriteFile(good, []byte(`[{"id":"r1","link":"https://cdn.test/a.mp4","adSetName":"A","adName":"B"}]`), 0o600))

	rows, err := readRows(good)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0].AdSetName)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`[]`), 0o600))
	_, err = readRows(empty)
	assert.Error(t, err)

	_, err = readRows(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestValidateCommandReportsMissingSettings(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "none.env"))
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")

	cmd := validateCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is required")
}
