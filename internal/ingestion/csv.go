package ingestion

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"trailing-lab/internal/domain"
)

// ErrMalformedCSV is returned when a line cannot be split into fields.
var ErrMalformedCSV = errors.New("malformed csv line")

// CSV column names recognized in a header line.
var (
	timeColumns  = []string{"time", "timestamp"}
	priceColumns = []string{"price", "close"}
)

// CSVSource streams ticks from a price CSV.
//
// Blank lines and lines starting with '#' are skipped. The first remaining
// line is a header unless every field in it is numeric; a header selects the
// time column (time or timestamp, else the first column) and the price column
// (price or close, else the second). Rows with an empty time or a price that
// is not a finite number are skipped. Times are passed through as text.
type CSVSource struct {
	scanner *bufio.Scanner
	closer  io.Closer
	name    string

	line         int
	headerParsed bool
	timeIdx      int
	priceIdx     int
	skipped      int
}

// NewCSVSource reads ticks from r. name is used in error messages.
func NewCSVSource(r io.Reader, name string) *CSVSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &CSVSource{
		scanner:  sc,
		name:     name,
		timeIdx:  0,
		priceIdx: 1,
	}
}

// OpenCSV opens a CSV file. The caller must Close it.
func OpenCSV(path string) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	s := NewCSVSource(f, path)
	s.closer = f
	return s, nil
}

// ReadCSV reads every tick from r.
func ReadCSV(ctx context.Context, r io.Reader) ([]domain.Tick, error) {
	return Drain(ctx, NewCSVSource(r, "csv"))
}

// Next returns the next usable row.
func (s *CSVSource) Next(ctx context.Context) (domain.Tick, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.Tick{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return domain.Tick{}, fmt.Errorf("read %s: %w", s.name, err)
			}
			return domain.Tick{}, io.EOF
		}
		s.line++

		trimmed := strings.TrimSpace(s.scanner.Text())
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		fields, err := splitCSVLine(trimmed)
		if err != nil {
			return domain.Tick{}, fmt.Errorf("%w: %s:%d: %v", ErrMalformedCSV, s.name, s.line, err)
		}

		if !s.headerParsed {
			s.headerParsed = true
			if !allNumeric(fields) {
				s.applyHeader(fields)
				continue
			}
		}

		tick, ok := s.row(fields)
		if !ok {
			s.skipped++
			continue
		}
		return tick, nil
	}
}

// Skipped returns the number of data rows rejected so far.
func (s *CSVSource) Skipped() int {
	return s.skipped
}

// Close closes the underlying file when the source was opened with OpenCSV.
func (s *CSVSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *CSVSource) applyHeader(fields []string) {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = strings.ToLower(strings.TrimSpace(f))
	}
	if i := indexOfAny(cols, timeColumns); i >= 0 {
		s.timeIdx = i
	}
	if i := indexOfAny(cols, priceColumns); i >= 0 {
		s.priceIdx = i
	}
}

func (s *CSVSource) row(fields []string) (domain.Tick, bool) {
	if s.timeIdx >= len(fields) || s.priceIdx >= len(fields) {
		return domain.Tick{}, false
	}
	ts := fields[s.timeIdx]
	if ts == "" {
		return domain.Tick{}, false
	}
	price, err := strconv.ParseFloat(fields[s.priceIdx], 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		return domain.Tick{}, false
	}
	return domain.Tick{Time: domain.Text(ts), Price: price}, true
}

// splitCSVLine splits one line into trimmed fields. Quoted fields may
// contain commas and "" escapes.
func splitCSVLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	fields, err := r.Read()
	if err != nil {
		return nil, err
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields, nil
}

// allNumeric reports whether every field reads as a number. Empty fields
// count as numeric so that a data row with a missing value is not taken
// for a header.
func allNumeric(fields []string) bool {
	for _, f := range fields {
		if f == "" {
			continue
		}
		if _, err := strconv.ParseFloat(f, 64); err != nil {
			return false
		}
	}
	return true
}

func indexOfAny(cols, names []string) int {
	for i, c := range cols {
		for _, n := range names {
			if c == n {
				return i
			}
		}
	}
	return -1
}
