// Package ingest provides the file-backed customer source used by the
// planner binary. Richer sources (spreadsheets, databases) implement
// the same port.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"fleet-route-planner/internal/domain"
)

// CSVSource reads customer records from a CSV file with a header row of
// id,name,gps,volume (case-insensitive, any column order).
type CSVSource struct {
	Path string
}

func NewCSVSource(path string) *CSVSource { return &CSVSource{Path: path} }

func (s *CSVSource) Load(ctx context.Context) ([]domain.CustomerRecord, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open customers file %s: %w", s.Path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", s.Path, err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"id", "gps", "volume"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("customers file %s: missing column %q", s.Path, required)
		}
	}

	var records []domain.CustomerRecord
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read %s line %d: %w", s.Path, line, err)
		}

		volume, err := strconv.ParseFloat(strings.TrimSpace(field(row, cols, "volume")), 64)
		if err != nil {
			// Leave the value invalid; validation drops it with a warning.
			volume = -1
		}
		records = append(records, domain.CustomerRecord{
			ID:     strings.TrimSpace(field(row, cols, "id")),
			Name:   strings.TrimSpace(field(row, cols, "name")),
			GPS:    strings.TrimSpace(field(row, cols, "gps")),
			Volume: volume,
		})
	}
	return records, nil
}

func field(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}
