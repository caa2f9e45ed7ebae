package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aluiziolira/go-harvest/metrics"
	"github.com/aluiziolira/go-harvest/models"
)

// Outcome describes what an upsert did to a store.
type Outcome string

const (
	OutcomeInserted Outcome = metrics.OutcomeInserted
	OutcomeUpdated  Outcome = metrics.OutcomeUpdated
	OutcomeAppended Outcome = metrics.OutcomeAppended
	OutcomeSkipped  Outcome = "skipped"
)

// Store is one persistent view of the output.
type Store interface {
	Name() string
	Upsert(ctx context.Context, record models.Record) (Outcome, error)
}

// Compactor is implemented by stores that can collapse duplicate keys left
// over from earlier runs.
type Compactor interface {
	Compact() (before, after int, err error)
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}

// replaceFile atomically replaces path with the output of write.
func replaceFile(path string, write func(*os.File) error) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
