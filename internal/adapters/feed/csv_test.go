package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func collect(t *testing.T, f *CSVFeed) ([]domain.Bar, error) {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- f.Run(context.Background()) }()

	var bars []domain.Bar
	for bar := range f.Bars() {
		bars = append(bars, bar)
	}
	return bars, <-errCh
}

func TestCSVFeedWithHeader(t *testing.T) {
	path := writeCSV(t, `Time,Open,High,Low,Close,Volume
1700000000000,100,101,99,100.5,12.3
1700000060000,100.5,102,100,101,8.1
`)

	bars, err := collect(t, NewCSVFeed(path))
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, int64(1700000000000), bars[0].Timestamp)
	assert.Equal(t, 100.0, bars[0].Open)
	assert.Equal(t, 101.0, bars[0].High)
	assert.Equal(t, 99.0, bars[0].Low)
	assert.Equal(t, 100.5, bars[0].Close)
	assert.Equal(t, 12.3, bars[0].Volume)
	assert.Equal(t, 101.0, bars[1].Close)
}

func TestCSVFeedSecondsPromotedToMillis(t *testing.T) {
	path := writeCSV(t, "1700000000,100,101,99,100,1\n")

	bars, err := collect(t, NewCSVFeed(path))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, int64(1700000000000), bars[0].Timestamp)
}

func TestCSVFeedRFC3339Timestamps(t *testing.T) {
	path := writeCSV(t, "2024-01-02T15:04:05Z,100,101,99,100,1\n")

	bars, err := collect(t, NewCSVFeed(path))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, int64(1704207845000), bars[0].Timestamp)
}

func TestCSVFeedBadRow(t *testing.T) {
	path := writeCSV(t, "1700000000000,100,abc,99,100,1\n")

	_, err := collect(t, NewCSVFeed(path))
	assert.Error(t, err)
}

func TestCSVFeedMissingFile(t *testing.T) {
	_, err := collect(t, NewCSVFeed(filepath.Join(t.TempDir(), "missing.csv")))
	assert.Error(t, err)
}
