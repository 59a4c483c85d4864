package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/vidfetch/vidfetch/internal/model"
)

// FallbackStore keeps payloads which could not be delivered in
// <dir>/<plugin>-<requestId>.json. An empty dir disables it.
type FallbackStore struct {
	dir string
}

func NewFallbackStore(dir string) FallbackStore {
	return FallbackStore{dir: dir}
}

func (s FallbackStore) Enabled() bool {
	return s.dir != ""
}

func (s FallbackStore) Dir() string {
	return s.dir
}

// Name returns the file name used for a request. Path separators in the
// key are replaced so the file always lands directly in the directory.
func (s FallbackStore) Name(plugin, requestID string) string {
	return fileKey(plugin) + "-" + fileKey(requestID) + ".json"
}

func (s FallbackStore) Path(plugin, requestID string) string {
	return filepath.Join(s.dir, s.Name(plugin, requestID))
}

// Save writes the pretty printed payload, creating the directory if needed.
// The file is replaced atomically.
func (s FallbackStore) Save(ctx context.Context, plugin string, payload model.Payload) (string, error) {
	if !s.Enabled() {
		return "", model.ErrFallbackDisabled
	}
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	b = append(b, '\n')

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", s.dir, err)
	}
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return "", fmt.Errorf("opening directory %s: %w", s.dir, err)
	}
	defer func() {
		_ = root.Close()
	}()

	name := s.Name(plugin, payload.RequestID)
	tmp := "." + name + ".tmp"
	f, err := root.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("creating fallback file: %w", err)
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = root.Remove(tmp)
		return "", fmt.Errorf("saving fallback file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = root.Remove(tmp)
		return "", fmt.Errorf("syncing fallback file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = root.Remove(tmp)
		return "", fmt.Errorf("closing fallback file: %w", err)
	}
	if err := root.Rename(tmp, name); err != nil {
		_ = root.Remove(tmp)
		return "", fmt.Errorf("renaming fallback file: %w", err)
	}

	path := filepath.Join(s.dir, name)
	slog.InfoContext(ctx, "payload saved", "path", path)
	return path, nil
}

// Load reads a stored payload. It returns an error wrapping fs.ErrNotExist
// when nothing was stored for the request.
func (s FallbackStore) Load(plugin, requestID string) (model.Payload, error) {
	if !s.Enabled() {
		return model.Payload{}, model.ErrFallbackDisabled
	}
	return readPayload(s.Path(plugin, requestID))
}

// List returns the stored files of plugin in lexical order.
func (s FallbackStore) List(plugin string) ([]string, error) {
	if !s.Enabled() {
		return nil, model.ErrFallbackDisabled
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", s.dir, err)
	}
	prefix := fileKey(plugin) + "-"
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, name))
	}
	slices.Sort(paths)
	return paths, nil
}

func readPayload(path string) (model.Payload, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return model.Payload{}, err
	}
	var p model.Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return model.Payload{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return p, nil
}

func fileKey(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, s)
}
