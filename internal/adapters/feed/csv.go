package feed

// csv.go — historical bar source for backtests. One row per bar:
// Time,Open,High,Low,Close,Volume, with Time as unix milliseconds or
// RFC 3339.

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// CSVFeed replays a candle file through the bar channel.
type CSVFeed struct {
	path string
	bars chan domain.Bar
}

// NewCSVFeed builds a feed over the given file path.
func NewCSVFeed(path string) *CSVFeed {
	return &CSVFeed{
		path: path,
		bars: make(chan domain.Bar, 64),
	}
}

// Bars returns the bar channel; closed when the file is exhausted.
func (f *CSVFeed) Bars() <-chan domain.Bar {
	return f.bars
}

// Run streams the file row by row until EOF or context cancellation.
func (f *CSVFeed) Run(ctx context.Context) error {
	defer close(f.bars)

	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("feed.CSVFeed: open %q: %w", f.path, err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.ReuseRecord = true

	line := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("feed.CSVFeed: read line %d: %w", line+1, err)
		}
		line++

		if len(record) < 6 {
			return fmt.Errorf("feed.CSVFeed: line %d: want 6 columns, got %d", line, len(record))
		}

		bar, err := parseBar(record)
		if err != nil {
			// The first line may be a header. An RFC 3339 timestamp is
			// not numeric either, so only an unparseable row is skipped.
			if line == 1 && !isNumeric(record[0]) {
				continue
			}
			return fmt.Errorf("feed.CSVFeed: line %d: %w", line, err)
		}

		select {
		case f.bars <- bar:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func parseBar(record []string) (domain.Bar, error) {
	ts, err := parseTimestamp(record[0])
	if err != nil {
		return domain.Bar{}, err
	}

	vals := make([]float64, 5)
	for i, field := range record[1:6] {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("parse column %d: %w", i+2, err)
		}
		vals[i] = v
	}

	return domain.Bar{
		Timestamp: ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}

func parseTimestamp(field string) (int64, error) {
	if ms, err := strconv.ParseInt(field, 10, 64); err == nil {
		// Plain seconds are promoted to milliseconds.
		if ms < 1e12 {
			ms *= 1000
		}
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, field)
	if err != nil {
		return 0, fmt.Errorf("parse timestamp %q: %w", field, err)
	}
	return t.UnixMilli(), nil
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
