package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetExportFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		exportSince, exportUntil, exportLast = "", "", 0
		exportChart, exportTable, exportBucket = "", "", 0
	})
}

func TestBuildExportOptionsDefaultsToConfigWindow(t *testing.T) {
	resetExportFlags(t)
	exportTable = "out.csv"

	opts, err := buildExportOptions(time.Now())
	require.NoError(t, err)
	assert.Nil(t, opts.From)
	assert.Nil(t, opts.To)
	assert.Equal(t, "out.csv", opts.CSVPath)
}

func TestBuildExportOptionsLastEndsAtUntil(t *testing.T) {
	resetExportFlags(t)
	exportUntil = "2024-05-08"
	exportLast = 48 * time.Hour

	opts, err := buildExportOptions(time.Now())
	require.NoError(t, err)
	require.NotNil(t, opts.From)
	require.NotNil(t, opts.To)
	assert.Equal(t, time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC), *opts.To)
	assert.Equal(t, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), *opts.From)
}

func TestBuildExportOptionsSinceRFC3339(t *testing.T) {
	resetExportFlags(t)
	exportSince = "2024-05-01T10:00:00+02:00"

	opts, err := buildExportOptions(time.Now())
	require.NoError(t, err)
	require.NotNil(t, opts.From)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), *opts.From)
}

func TestBuildExportOptionsRejectsBadInput(t *testing.T) {
	resetExportFlags(t)

	exportSince, exportLast = "2024-05-01", time.Hour
	_, err := buildExportOptions(time.Now())
	assert.Error(t, err)

	exportSince, exportLast = "yesterday", 0
	_, err = buildExportOptions(time.Now())
	assert.ErrorContains(t, err, "--since")
}
