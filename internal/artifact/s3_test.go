package artifact

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/certichain/internal/model"
)

// fakeS3 is a tiny path-style S3 endpoint keeping objects in memory.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	requests atomic.Int32
	deny     bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	if f.deny {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(body)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestS3(t *testing.T, f *fakeS3) *S3 {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	s, err := NewS3(S3Options{
		Bucket:        "certs",
		Prefix:        "certificates/",
		Region:        "us-east-1",
		Endpoint:      srv.URL,
		AccessKey:     "test",
		SecretKey:     "test",
		PublicBaseURL: "https://cdn.example.edu/",
	}, nil)
	require.NoError(t, err)
	return s
}

func TestS3_RoundTrip(t *testing.T) {
	f := &fakeS3{objects: map[string][]byte{}}
	s := newTestS3(t, f)
	ctx := context.Background()

	h, err := s.Put(ctx, "GU-ABC-123", pdfBytes)
	require.NoError(t, err)
	assert.Equal(t, model.ArtifactS3, h.Backend)
	assert.Equal(t, "certificates/GU-ABC-123.pdf", h.Key)
	assert.Equal(t, "https://cdn.example.edu/certificates/GU-ABC-123.pdf", h.URL)
	assert.Contains(t, f.objects, "certs/certificates/GU-ABC-123.pdf")

	got, err := s.Get(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, got)

	require.NoError(t, s.Delete(ctx, h))
	_, err = s.Get(ctx, h)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3_EmptyRejectedBeforeNetwork(t *testing.T) {
	f := &fakeS3{objects: map[string][]byte{}}
	s := newTestS3(t, f)

	_, err := s.Put(context.Background(), "k", []byte{})
	assert.ErrorIs(t, err, ErrEmpty)
	assert.Equal(t, int32(0), f.requests.Load())
}

func TestS3_BackendFailureSurfaces(t *testing.T) {
	f := &fakeS3{objects: map[string][]byte{}, deny: true}
	s := newTestS3(t, f)

	_, err := s.Put(context.Background(), "k", pdfBytes)
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "put", se.Op)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(S3Options{Region: "us-east-1"}, nil)
	assert.Error(t, err)
}
