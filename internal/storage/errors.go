package storage

import "fmt"

// StoreError reports a snapshot that could not be read, decoded or written.
type StoreError struct {
	Op   string // "load" or "save"
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Op == "save" {
		return fmt.Sprintf("unable to save scheduler state to %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("unable to load scheduler state from %s: %v", e.Path, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
