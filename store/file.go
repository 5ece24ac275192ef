package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// File keeps every key in a single indented JSON object on disk. Values must
// be valid JSON documents. Each operation is recorded in an append-only
// operation log when a log path is configured.
//
// The whole document is rewritten on every Put and Delete, so File suits
// small deployments and fixtures rather than large user bases.
type File struct {
	fs   afero.Fs
	path string

	mu      sync.Mutex
	log     zerolog.Logger
	logFile afero.File
}

// NewFile opens (or lazily creates) the JSON document at path on fs. When
// logPath is non-empty, the operation log is appended to it.
func NewFile(fs afero.Fs, path, logPath string) (*File, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if path == "" {
		return nil, errors.New("file store: path required")
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("file store: create directory: %w", err)
	}

	f := &File{
		fs:   fs,
		path: path,
		log:  zerolog.Nop(),
	}

	if logPath != "" {
		if err := fs.MkdirAll(filepath.Dir(logPath), 0o750); err != nil {
			return nil, fmt.Errorf("file store: create log directory: %w", err)
		}
		lf, err := fs.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, fmt.Errorf("file store: open operation log: %w", err)
		}
		f.logFile = lf
		f.log = zerolog.New(lf).With().Timestamp().Str("store", path).Logger()
	}

	return f, nil
}

func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return nil, err
	}

	v, ok := doc[key]
	if !ok {
		f.log.Info().Str("op", "get").Str("key", key).Bool("found", false).Msg("key not found in database")
		return nil, ErrNotFound
	}
	f.log.Info().Str("op", "get").Str("key", key).Bool("found", true).Msg("loaded key from database")
	return append([]byte(nil), v...), nil
}

func (f *File) Put(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("file store: value for %q is not valid JSON", key)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	doc[key] = append(json.RawMessage(nil), value...)

	if err := f.save(doc); err != nil {
		return err
	}
	f.log.Info().Str("op", "put").Str("key", key).Int("bytes", len(value)).Msg("wrote value to database")
	return nil
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)

	if err := f.save(doc); err != nil {
		return err
	}
	f.log.Info().Str("op", "delete").Str("key", key).Msg("deleted key from database")
	return nil
}

// Close closes the operation log.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.logFile == nil {
		return nil
	}
	err := f.logFile.Close()
	f.logFile = nil
	f.log = zerolog.Nop()
	return err
}

func (f *File) load() (map[string]json.RawMessage, error) {
	raw, err := afero.ReadFile(f.fs, f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]json.RawMessage), nil
	}
	if err != nil {
		return nil, fmt.Errorf("file store: read %s: %w", f.path, err)
	}

	doc := make(map[string]json.RawMessage)
	if len(bytes.TrimSpace(raw)) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("file store: decode %s: %w", f.path, err)
	}
	return doc, nil
}

func (f *File) save(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("file store: encode: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("file store: write %s: %w", tmp, err)
	}
	if err := f.fs.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("file store: replace %s: %w", f.path, err)
	}
	return nil
}
