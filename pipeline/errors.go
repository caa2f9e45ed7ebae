package pipeline

import "fmt"

// AdapterError wraps a failure raised by the caller-supplied process function.
type AdapterError struct {
	URL   string
	Err   error
	Panic bool
}

func (e *AdapterError) Error() string {
	if e.Panic {
		return fmt.Sprintf("adapter panicked on %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("adapter failed on %s: %v", e.URL, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed write to an output store.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist to %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
