package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/aluiziolira/go-harvest/models"
)

// TabularStore keeps records in a CSV file with a header row, one row per
// key. Every keyed upsert rewrites the whole file, so the cost grows
// linearly with the file size.
type TabularStore struct {
	path   string
	schema models.Schema
}

// NewTabularStore returns a CSV store at path laid out by schema.
func NewTabularStore(path string, schema models.Schema) *TabularStore {
	return &TabularStore{path: path, schema: schema}
}

func (s *TabularStore) Name() string { return "csv" }

// Path returns the file location.
func (s *TabularStore) Path() string { return s.path }

// Upsert merges record into the row with the same key, appends it when the
// key is new, and appends it verbatim when it has no key.
func (s *TabularStore) Upsert(_ context.Context, record models.Record) (Outcome, error) {
	header, rows, err := s.read()
	if err != nil {
		return "", &PersistenceError{Path: s.path, Err: err}
	}

	if header == nil {
		header = append([]string(nil), s.schema.Columns...)
		outcome := OutcomeInserted
		if !record.Has(s.schema.Key) {
			outcome = OutcomeAppended
		}
		if err := s.write(header, [][]string{layout(header, record)}); err != nil {
			return "", &PersistenceError{Path: s.path, Err: err}
		}
		return outcome, nil
	}

	header = extendHeader(header, s.schema.Columns)
	key := record.Get(s.schema.Key)
	if key == "" {
		if err := s.appendRow(layout(header, record)); err != nil {
			return "", &PersistenceError{Path: s.path, Err: err}
		}
		return OutcomeAppended, nil
	}

	keyCol := indexOf(header, s.schema.Key)
	outcome := OutcomeInserted
	for i, row := range rows {
		if cell(row, keyCol) != key {
			continue
		}
		rows[i] = layout(header, models.Merge(fromRow(header, row), record))
		outcome = OutcomeUpdated
		break
	}
	if outcome == OutcomeInserted {
		rows = append(rows, layout(header, record))
	}

	if err := s.write(header, rows); err != nil {
		return "", &PersistenceError{Path: s.path, Err: err}
	}
	return outcome, nil
}

// Compact rewrites the file so each key appears once, at its first
// position, with later non-empty values merged in. Keyless rows are kept.
func (s *TabularStore) Compact() (int, int, error) {
	header, rows, err := s.read()
	if err != nil {
		return 0, 0, &PersistenceError{Path: s.path, Err: err}
	}
	if header == nil {
		return 0, 0, nil
	}

	keyCol := indexOf(header, s.schema.Key)
	positions := make(map[string]int, len(rows))
	merged := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		rec := fromRow(header, row)
		key := cell(row, keyCol)
		if key == "" {
			merged = append(merged, rec)
			continue
		}
		if pos, ok := positions[key]; ok {
			merged[pos] = models.Merge(merged[pos], rec)
			continue
		}
		positions[key] = len(merged)
		merged = append(merged, rec)
	}

	header = extendHeader(header, s.schema.Columns)
	out := make([][]string, len(merged))
	for i, rec := range merged {
		out[i] = layout(header, rec)
	}
	if err := s.write(header, out); err != nil {
		return 0, 0, &PersistenceError{Path: s.path, Err: err}
	}
	return len(rows), len(out), nil
}

// Records returns every stored row as a record, in file order.
func (s *TabularStore) Records() ([]models.Record, error) {
	header, rows, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(header, row))
	}
	return out, nil
}

func (s *TabularStore) read() ([]string, [][]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv records: %w", err)
	}
	return header, rows, nil
}

func (s *TabularStore) write(header []string, rows [][]string) error {
	return replaceFile(s.path, func(f *os.File) error {
		writer := csv.NewWriter(f)
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		if err := writer.WriteAll(rows); err != nil {
			return fmt.Errorf("write csv records: %w", err)
		}
		return nil
	})
}

func (s *TabularStore) appendRow(row []string) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open csv file: %w", err)
	}
	writer := csv.NewWriter(f)
	if err := writer.Write(row); err != nil {
		f.Close()
		return fmt.Errorf("write csv record: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush csv record: %w", err)
	}
	return f.Close()
}

// extendHeader appends schema columns missing from an existing header.
func extendHeader(header, columns []string) []string {
	for _, c := range columns {
		if indexOf(header, c) < 0 {
			header = append(header, c)
		}
	}
	return header
}

func layout(header []string, record models.Record) []string {
	row := make([]string, len(header))
	for i, c := range header {
		row[i] = record[c]
	}
	return row
}

func fromRow(header, row []string) models.Record {
	rec := make(models.Record, len(header))
	for i, c := range header {
		if i < len(row) {
			rec[c] = row[i]
		}
	}
	return rec
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func indexOf(values []string, v string) int {
	for i, s := range values {
		if s == v {
			return i
		}
	}
	return -1
}
