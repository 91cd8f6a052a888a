// Package local implements a filesystem-backed object store.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/awwvision/internal/scrape"
)

const metaSuffix = ".meta.json"

// Config captures the parameters for the local filesystem object store.
type Config struct {
	// BaseDir is the root directory where objects will be stored.
	BaseDir string
	// PublicBaseURL prefixes object names in listings, e.g. "/images".
	PublicBaseURL string
}

// sidecar holds what GCS would keep as object attributes.
type sidecar struct {
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ObjectStore writes images and their metadata sidecars to the local filesystem.
type ObjectStore struct {
	baseDir       string
	publicBaseURL string
}

// New creates a new local filesystem-backed object store.
func New(cfg Config) (*ObjectStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &ObjectStore{
		baseDir:       filepath.Clean(cfg.BaseDir),
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// Exists reports whether a regular file named name is present. Any stat error reads as absent.
func (s *ObjectStore) Exists(_ context.Context, name string) bool {
	fullPath, err := s.resolve(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && info.Mode().IsRegular()
}

// Upload writes content to name and its attributes to the sidecar next to it.
func (s *ObjectStore) Upload(_ context.Context, name string, content io.Reader, contentType string, metadata map[string]string) error {
	fullPath, err := s.resolve(name)
	if err != nil {
		return fmt.Errorf("%w: %w", scrape.ErrUpload, err)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("%w: create parent directories: %w", scrape.ErrUpload, err)
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("%w: read content: %w", scrape.ErrUpload, err)
	}
	meta, err := json.Marshal(sidecar{ContentType: contentType, Metadata: metadata})
	if err != nil {
		return fmt.Errorf("%w: marshal metadata: %w", scrape.ErrUpload, err)
	}
	// Sidecar first so a listed object always carries its label.
	if err := os.WriteFile(fullPath+metaSuffix, meta, 0o600); err != nil {
		return fmt.Errorf("%w: write metadata: %w", scrape.ErrUpload, err)
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return fmt.Errorf("%w: write file: %w", scrape.ErrUpload, err)
	}
	return nil
}

// ListAll walks the base directory in lexical order.
func (s *ObjectStore) ListAll(_ context.Context) ([]scrape.StoredObject, error) {
	var out []scrape.StoredObject
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(path, metaSuffix) || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		meta, err := s.readSidecar(path)
		if err != nil {
			return err
		}
		out = append(out, scrape.StoredObject{
			Name:      name,
			Label:     meta.Metadata[scrape.LabelMetadataKey],
			PublicURL: s.PublicURL(name),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: walk %s: %w", scrape.ErrList, s.baseDir, err)
	}
	return out, nil
}

// Open returns the file contents for name and the content type recorded at upload.
func (s *ObjectStore) Open(_ context.Context, name string) (io.ReadCloser, string, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return nil, "", err
	}
	if strings.HasSuffix(fullPath, metaSuffix) {
		return nil, "", fmt.Errorf("object %q: %w", name, scrape.ErrNotFound)
	}
	// #nosec G304 -- fullPath is confined to baseDir by resolve.
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("object %q: %w", name, scrape.ErrNotFound)
		}
		return nil, "", fmt.Errorf("open %q: %w", name, err)
	}
	meta, err := s.readSidecar(fullPath)
	if err != nil {
		_ = f.Close()
		return nil, "", err
	}
	return f, meta.ContentType, nil
}

// PublicURL returns the URL the gallery uses for name.
func (s *ObjectStore) PublicURL(name string) string {
	return s.publicBaseURL + "/" + name
}

func (s *ObjectStore) readSidecar(fullPath string) (sidecar, error) {
	var meta sidecar
	// #nosec G304 -- sidecar paths are derived from files inside baseDir.
	raw, err := os.ReadFile(fullPath + metaSuffix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return meta, nil
		}
		return meta, fmt.Errorf("read metadata: %w", err)
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return meta, fmt.Errorf("decode metadata for %s: %w", filepath.Base(fullPath), err)
	}
	return meta, nil
}

func (s *ObjectStore) resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("object name is required")
	}
	fullPath := filepath.Clean(filepath.Join(s.baseDir, name))
	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}
