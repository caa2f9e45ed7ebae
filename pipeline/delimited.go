package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/aluiziolira/go-harvest/models"
)

// Separator is the field separator of delimited output lines.
const Separator = "|"

var fieldSanitizer = strings.NewReplacer(Separator, " ", "\r", " ", "\n", " ")

// DelimitedStore keeps records as headerless pipe-separated lines laid out
// by the schema. The key is read from its fixed column position. Lines too
// short to carry a key, or with an empty key, are kept untouched.
type DelimitedStore struct {
	path   string
	schema models.Schema
}

// NewDelimitedStore returns a pipe-delimited store at path.
func NewDelimitedStore(path string, schema models.Schema) *DelimitedStore {
	return &DelimitedStore{path: path, schema: schema}
}

func (s *DelimitedStore) Name() string { return "delimited" }

// Path returns the file location.
func (s *DelimitedStore) Path() string { return s.path }

func (s *DelimitedStore) Upsert(_ context.Context, record models.Record) (Outcome, error) {
	fields := s.fields(record)
	keyIdx := s.schema.KeyIndex()
	key := strings.TrimSpace(fields[keyIdx])

	lines, exists, err := s.read()
	if err != nil {
		return "", &PersistenceError{Path: s.path, Err: err}
	}

	if !exists || key == "" {
		if err := s.appendLine(strings.Join(fields, Separator), exists); err != nil {
			return "", &PersistenceError{Path: s.path, Err: err}
		}
		if key == "" {
			return OutcomeAppended, nil
		}
		return OutcomeInserted, nil
	}

	outcome := OutcomeInserted
	for i, line := range lines {
		old := strings.Split(line, Separator)
		if keyIdx >= len(old) || strings.TrimSpace(old[keyIdx]) != key {
			continue
		}
		lines[i] = strings.Join(mergeFields(old, fields), Separator)
		outcome = OutcomeUpdated
		break
	}
	if outcome == OutcomeInserted {
		lines = append(lines, strings.Join(fields, Separator))
	}

	if err := s.write(lines); err != nil {
		return "", &PersistenceError{Path: s.path, Err: err}
	}
	return outcome, nil
}

func (s *DelimitedStore) fields(record models.Record) []string {
	values := s.schema.Values(record)
	for i, v := range values {
		values[i] = fieldSanitizer.Replace(v)
	}
	return values
}

// mergeFields applies every non-empty field of update over old by position.
func mergeFields(old, update []string) []string {
	n := len(old)
	if len(update) > n {
		n = len(update)
	}
	out := make([]string, n)
	copy(out, old)
	for i, v := range update {
		if strings.TrimSpace(v) != "" {
			out[i] = v
		}
	}
	return out
}

// Lines returns the stored lines in file order.
func (s *DelimitedStore) Lines() ([]string, error) {
	lines, _, err := s.read()
	return lines, err
}

func (s *DelimitedStore) read() ([]string, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read delimited file: %w", err)
	}
	content := strings.TrimRight(string(data), "\r\n")
	if content == "" {
		return nil, true, nil
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines, true, nil
}

func (s *DelimitedStore) write(lines []string) error {
	return replaceFile(s.path, func(f *os.File) error {
		if _, err := f.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
			return fmt.Errorf("write delimited lines: %w", err)
		}
		return nil
	})
}

func (s *DelimitedStore) appendLine(line string, exists bool) error {
	if !exists {
		if err := ensureDir(s.path); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open delimited file: %w", err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("append delimited line: %w", err)
	}
	return f.Close()
}
