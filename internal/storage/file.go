package storage

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

// fileData is the whole JSON document on disk.
type fileData struct {
	Entries map[string]fileEntry `json:"entries"`
}

type fileEntry struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

// FileStore persists every key into a single JSON file. Each write rewrites
// the file.
type FileStore struct {
	mu       sync.RWMutex
	data     fileData
	filePath string
}

// NewFileStore opens (or creates) the JSON file at path.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{filePath: path}
	if err := fs.loadData(); err != nil {
		if _, ok := err.(*json.SyntaxError); !ok {
			return nil, err
		}
		// Unreadable document: start over rather than refuse to boot.
		log.Printf("FileStore - Corrupt data file %s, starting empty: %v", path, err)
		fs.data.Entries = map[string]fileEntry{}
		if saveErr := fs.saveData(); saveErr != nil {
			return nil, saveErr
		}
	}
	return fs, nil
}

func (fs *FileStore) loadData() error {
	fs.data.Entries = map[string]fileEntry{}
	if _, err := os.Stat(fs.filePath); os.IsNotExist(err) {
		return fs.saveData()
	}

	raw, err := os.ReadFile(fs.filePath)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &fs.data); err != nil {
		return err
	}
	if fs.data.Entries == nil {
		fs.data.Entries = map[string]fileEntry{}
	}
	return nil
}

func (fs *FileStore) saveData() error {
	raw, err := json.MarshalIndent(fs.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(fs.filePath, raw, 0644)
}

func (fs *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	fs.mu.RLock()
	e, ok := fs.data.Entries[key]
	fs.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if e.ExpiresAt != nil && !time.Now().Before(*e.ExpiresAt) {
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.Value))
	copy(out, e.Value)
	return out, nil
}

// Set stores value. Values that are not valid JSON are kept as JSON strings so
// the document stays well-formed.
func (fs *FileStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := fileEntry{}
	if json.Valid(value) {
		e.Value = append(json.RawMessage(nil), value...)
	} else {
		quoted, err := json.Marshal(string(value))
		if err != nil {
			return err
		}
		e.Value = quoted
	}
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		e.ExpiresAt = &exp
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.data.Entries[key] = e
	fs.pruneExpired()
	return fs.saveData()
}

func (fs *FileStore) Delete(_ context.Context, key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.data.Entries[key]; !ok {
		return nil
	}
	delete(fs.data.Entries, key)
	return fs.saveData()
}

// pruneExpired drops expired entries. Caller holds the write lock.
func (fs *FileStore) pruneExpired() {
	now := time.Now()
	for k, e := range fs.data.Entries {
		if e.ExpiresAt != nil && !now.Before(*e.ExpiresAt) {
			delete(fs.data.Entries, k)
		}
	}
}
