package keystore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/byokit/byokit/errs"
)

// FileBackend is the Persistent storage shape from §4.3: a device-local
// string-map backend, analogous to a browser's localStorage. Records live
// in a single JSON file so the whole map can be read/written atomically —
// the same "one file, whole map" shape a localStorage polyfill uses.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

// NewFileBackend opens (or creates) the JSON file at path. The initial
// probe — stat-or-create — is what the §4.3 chooser uses to decide whether
// to fall back to Ephemeral.
func NewFileBackend(path string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errs.Wrap(errs.StorageError, "", "creating key store directory", err)
	}
	fb := &FileBackend{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := fb.writeAll(map[string]Stored{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, errs.Wrap(errs.StorageError, "", "probing key store file", err)
	}
	return fb, nil
}

func (f *FileBackend) readAll() (map[string]Stored, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Stored{}, nil
		}
		return nil, errs.Wrap(errs.StorageError, "", "reading key store file", err)
	}
	if len(data) == 0 {
		return map[string]Stored{}, nil
	}
	var all map[string]Stored
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, errs.Wrap(errs.StorageError, "", "decoding key store file", err)
	}
	return all, nil
}

func (f *FileBackend) writeAll(all map[string]Stored) error {
	data, err := json.Marshal(all)
	if err != nil {
		return errs.Wrap(errs.StorageError, "", "encoding key store file", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return errs.Wrap(errs.StorageError, "", "writing key store file", err)
	}
	return nil
}

func (f *FileBackend) Get(_ context.Context, provider string) (*Stored, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.readAll()
	if err != nil {
		return nil, false, err
	}
	rec, ok := all[provider]
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

func (f *FileBackend) Set(_ context.Context, provider string, rec *Stored) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.readAll()
	if err != nil {
		return err
	}
	all[provider] = *rec
	return f.writeAll(all)
}

func (f *FileBackend) Remove(_ context.Context, provider string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.readAll()
	if err != nil {
		return err
	}
	delete(all, provider)
	return f.writeAll(all)
}

func (f *FileBackend) List(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.readAll()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(all))
	for k := range all {
		out = append(out, k)
	}
	return out, nil
}

func (f *FileBackend) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeAll(map[string]Stored{})
}

func (f *FileBackend) Close() error { return nil }
