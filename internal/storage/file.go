package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps a snapshot as a JSON document on disk.
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads and normalizes the snapshot. A missing file is the first run:
// the default snapshot is written and returned.
func (f *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		snap := NewSnapshot()
		if err := f.Save(ctx, snap); err != nil {
			return nil, err
		}
		return snap, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "load", Path: f.path, Err: err}
	}

	snap, err := Decode(raw)
	if err != nil {
		return nil, &StoreError{Op: "load", Path: f.path, Err: err}
	}
	return snap, nil
}

// Save overwrites the file with the whole snapshot. The document is written
// to a temporary file in the same directory and renamed into place.
func (f *FileStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "save", Path: f.path, Err: err}
	}
	raw, err := Encode(snap)
	if err != nil {
		return &StoreError{Op: "save", Path: f.path, Err: err}
	}
	if err := writeFile(f.path, raw); err != nil {
		return &StoreError{Op: "save", Path: f.path, Err: err}
	}
	return nil
}

func writeFile(path string, raw []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
