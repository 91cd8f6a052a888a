package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/awwvision/internal/scrape"
)

const testBucket = "test-bucket"

func newTestStore(t *testing.T, handler http.Handler, cfg Config) *ObjectStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(
		context.Background(),
		option.WithEndpoint(server.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	if cfg.Bucket == "" {
		cfg.Bucket = testBucket
	}
	store, err := New(client, cfg, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: testBucket}, nil)
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{Bucket: "  "}, nil)
	require.Error(t, err)

	store, err := New(client, Config{Bucket: testBucket}, nil)
	require.NoError(t, err)
	require.Equal(t, "http://storage.googleapis.com/test-bucket/img1.jpg", store.PublicURL("img1.jpg"))
}

func TestExists(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/o/present.jpg"):
			fmt.Fprintf(w, `{"kind":"storage#object","bucket":%q,"name":"present.jpg"}`, testBucket)
		case strings.HasSuffix(r.URL.Path, "/o/broken.jpg"):
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprintln(w, `{"error":{"code":403,"message":"forbidden"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(w, `{"error":{"code":404,"message":"No such object"}}`)
		}
	})
	store := newTestStore(t, handler, Config{})

	require.True(t, store.Exists(context.Background(), "present.jpg"))
	require.False(t, store.Exists(context.Background(), "missing.jpg"))
	require.False(t, store.Exists(context.Background(), "broken.jpg"))
}

func TestUploadSetsPublicReadAndMetadata(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		query   map[string]string
		payload string
	)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, fmt.Sprintf("/b/%s/o", testBucket))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		mu.Lock()
		query = map[string]string{
			"name":          r.URL.Query().Get("name"),
			"predefinedAcl": r.URL.Query().Get("predefinedAcl"),
		}
		payload = string(body)
		mu.Unlock()

		fmt.Fprintf(w, `{"kind":"storage#object","bucket":%q,"name":"img1.jpg"}`, testBucket)
	})
	store := newTestStore(t, handler, Config{})

	err := store.Upload(
		context.Background(),
		"img1.jpg",
		strings.NewReader("jpeg-bytes"),
		scrape.ImageContentType,
		map[string]string{scrape.LabelMetadataKey: "dog"},
	)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "img1.jpg", query["name"])
	require.Equal(t, "publicRead", query["predefinedAcl"])
	require.Contains(t, payload, "jpeg-bytes")
	require.Contains(t, payload, `"label":"dog"`)
	require.Contains(t, payload, "image/jpeg")
}

func TestUploadFailureWrapsErrUpload(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	store := newTestStore(t, handler, Config{})

	err := store.Upload(context.Background(), "img1.jpg", strings.NewReader("x"), scrape.ImageContentType, nil)
	require.ErrorIs(t, err, scrape.ErrUpload)

	err = store.Upload(context.Background(), "", strings.NewReader("x"), scrape.ImageContentType, nil)
	require.ErrorIs(t, err, scrape.ErrUpload)
}

func TestListAllFollowsPageTokens(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		tokens []string
	)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, fmt.Sprintf("/b/%s/o", testBucket)), r.URL.Path)
		token := r.URL.Query().Get("pageToken")

		mu.Lock()
		tokens = append(tokens, token)
		mu.Unlock()

		switch token {
		case "":
			fmt.Fprintln(w, `{"kind":"storage#objects","nextPageToken":"page-2","items":[
				{"name":"obj1","metadata":{"label":"dog"}},
				{"name":"obj2","metadata":{"label":"cat"}}]}`)
		case "page-2":
			fmt.Fprintln(w, `{"kind":"storage#objects","nextPageToken":"page-3","items":[
				{"name":"obj3"}]}`)
		default:
			fmt.Fprintln(w, `{"kind":"storage#objects"}`)
		}
	})
	store := newTestStore(t, handler, Config{PublicBaseURL: "https://cdn.example.com/", PageSize: 2})

	objs, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, []scrape.StoredObject{
		{Name: "obj1", Label: "dog", PublicURL: "https://cdn.example.com/test-bucket/obj1"},
		{Name: "obj2", Label: "cat", PublicURL: "https://cdn.example.com/test-bucket/obj2"},
		{Name: "obj3", PublicURL: "https://cdn.example.com/test-bucket/obj3"},
	}, objs)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"", "page-2", "page-3"}, tokens)
}

func TestListAllFailureWrapsErrList(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprintln(w, `{"error":{"code":403,"message":"forbidden"}}`)
	})
	store := newTestStore(t, handler, Config{})

	_, err := store.ListAll(context.Background())
	require.ErrorIs(t, err, scrape.ErrList)
}
