// Package memory stores images in-memory for development.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/JakeFAU/awwvision/internal/scrape"
)

const defaultPageSize = 100

type object struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

// ObjectStore keeps objects in a map and lists them in name order, one page at a time.
type ObjectStore struct {
	mu            sync.RWMutex
	objects       map[string]object
	pageSize      int
	publicBaseURL string
}

// NewObjectStore creates an in-memory object store. Public URLs are publicBaseURL + "/" + name.
func NewObjectStore(publicBaseURL string, pageSize int) *ObjectStore {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &ObjectStore{
		objects:       make(map[string]object),
		pageSize:      pageSize,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Exists reports whether name has been uploaded.
func (s *ObjectStore) Exists(_ context.Context, name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[name]
	return ok
}

// Upload stores a copy of content and metadata under name.
func (s *ObjectStore) Upload(_ context.Context, name string, content io.Reader, contentType string, metadata map[string]string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: object name is required", scrape.ErrUpload)
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("%w: read content: %w", scrape.ErrUpload, err)
	}
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = object{data: data, contentType: contentType, metadata: meta}
	return nil
}

// ListAll pages through the store until no continuation token remains.
func (s *ObjectStore) ListAll(_ context.Context) ([]scrape.StoredObject, error) {
	var (
		out   []scrape.StoredObject
		token string
	)
	for {
		page, next, err := s.listPage(token)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", scrape.ErrList, err)
		}
		out = append(out, page...)
		if next == "" {
			return out, nil
		}
		token = next
	}
}

func (s *ObjectStore) listPage(token string) ([]scrape.StoredObject, string, error) {
	start := 0
	if token != "" {
		n, err := strconv.Atoi(token)
		if err != nil || n < 0 {
			return nil, "", fmt.Errorf("invalid page token %q", token)
		}
		start = n
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.objects))
	for name := range s.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	if start >= len(names) {
		return nil, "", nil
	}
	end := start + s.pageSize
	if end > len(names) {
		end = len(names)
	}
	page := make([]scrape.StoredObject, 0, end-start)
	for _, name := range names[start:end] {
		page = append(page, scrape.StoredObject{
			Name:      name,
			Label:     s.objects[name].metadata[scrape.LabelMetadataKey],
			PublicURL: s.PublicURL(name),
		})
	}
	next := ""
	if end < len(names) {
		next = strconv.Itoa(end)
	}
	return page, next, nil
}

// Open returns the stored bytes for name along with their content type.
func (s *ObjectStore) Open(_ context.Context, name string) (io.ReadCloser, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[name]
	if !ok {
		return nil, "", fmt.Errorf("object %q: %w", name, scrape.ErrNotFound)
	}
	return io.NopCloser(strings.NewReader(string(obj.data))), obj.contentType, nil
}

// PublicURL returns the URL the gallery uses for name.
func (s *ObjectStore) PublicURL(name string) string {
	return s.publicBaseURL + "/" + name
}
