package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marketpulse/optionsfeed/pkg/quote"
)

// csvHeader is the column layout of the daily observation files.
var csvHeader = []string{
	"observed_at", "key", "symbol", "last_price", "average_price",
	"volume", "oi", "net_change", "quote_ts",
}

// CSVSink appends each observation to a daily CSV file under Dir, one file
// per UTC day named quotes-YYYY-MM-DD.csv. Rows are flushed per write so a
// crash loses at most the row in flight.
type CSVSink struct {
	mu     sync.Mutex
	dir    string
	day    string
	file   *os.File
	writer *csv.Writer
	logger zerolog.Logger
}

// NewCSVSink creates a CSV sink writing into dir, creating it if needed.
func NewCSVSink(dir string) (*CSVSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("csv sink directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create csv sink dir: %w", err)
	}

	return &CSVSink{
		dir:    dir,
		logger: log.With().Str("component", "sink_csv").Logger(),
	}, nil
}

// Write appends one observation row, rolling to a new file at UTC midnight.
func (s *CSVSink) Write(_ context.Context, key string, q quote.Quote, observedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rollLocked(observedAt); err != nil {
		sinkWritesTotal.WithLabelValues("csv", "error").Inc()
		return err
	}

	row := []string{
		observedAt.UTC().Format(time.RFC3339Nano),
		key,
		q.Symbol,
		strconv.FormatFloat(q.LastPrice, 'f', -1, 64),
		strconv.FormatFloat(q.AveragePrice, 'f', -1, 64),
		strconv.FormatInt(q.Volume, 10),
		strconv.FormatInt(q.OpenInterest, 10),
		strconv.FormatFloat(q.NetChange, 'f', -1, 64),
		q.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if err := s.writer.Write(row); err != nil {
		sinkWritesTotal.WithLabelValues("csv", "error").Inc()
		return fmt.Errorf("csv write %s: %w", key, err)
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		sinkWritesTotal.WithLabelValues("csv", "error").Inc()
		return fmt.Errorf("csv flush: %w", err)
	}

	sinkWritesTotal.WithLabelValues("csv", "ok").Inc()
	return nil
}

// rollLocked opens the file for observedAt's UTC day, closing the previous
// day's file and writing the header on a fresh file. Callers hold s.mu.
func (s *CSVSink) rollLocked(observedAt time.Time) error {
	day := observedAt.UTC().Format("2006-01-02")
	if s.file != nil && day == s.day {
		return nil
	}

	if s.file != nil {
		s.writer.Flush()
		_ = s.file.Close()
	}

	path := filepath.Join(s.dir, "quotes-"+day+".csv")
	info, statErr := os.Stat(path)
	fresh := statErr != nil || info.Size() == 0

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open csv file: %w", err)
	}

	s.file = file
	s.writer = csv.NewWriter(file)
	s.day = day

	if fresh {
		if err := s.writer.Write(csvHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		s.writer.Flush()
	}

	s.logger.Info().Str("path", path).Msg("CSV sink file opened")
	return nil
}

// Close flushes and closes the current file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	s.writer.Flush()
	err := s.file.Close()
	s.file = nil
	return err
}
