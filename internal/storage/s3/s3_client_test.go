package s3_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimsqa/internal/config"
	"claimsqa/internal/domain"
	"claimsqa/internal/port"
	s3storage "claimsqa/internal/storage/s3"
)

// fakeS3 serves path-style object requests for a single bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	puts    []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/artifacts/")
	switch r.Method {
	case http.MethodPut:
		_, _ = io.Copy(io.Discard, r.Body)
		f.puts = append(f.puts, key)
		f.objects[key] = "stored"
		w.Header().Set("ETag", `"etag-1"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		if _, ok := f.objects[key]; !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStorage(t *testing.T) (port.ObjectStorage, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string]string{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	store, err := s3storage.NewS3Client(context.Background(), &config.S3Config{
		Region:    "us-east-1",
		Bucket:    "artifacts",
		Endpoint:  server.URL,
		AccessKey: "test",
		SecretKey: "test",
	})
	require.NoError(t, err)
	return store, fake
}

func TestS3Client_UploadDownloadDelete(t *testing.T) {
	store, fake := newTestStorage(t)
	ctx := context.Background()

	out, err := store.Upload(ctx, port.UploadInput{
		Key:         "claims/doc-1.pdf",
		Body:        strings.NewReader("%PDF-1.7"),
		ContentType: "application/pdf",
		Size:        8,
	})
	require.NoError(t, err)
	assert.Contains(t, out.Location, "claims/doc-1.pdf")
	assert.Equal(t, []string{"claims/doc-1.pdf"}, fake.puts)

	data, err := store.Download(ctx, "claims/doc-1.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), data)

	require.NoError(t, store.Delete(ctx, "claims/doc-1.pdf"))
	_, err = store.Download(ctx, "claims/doc-1.pdf")
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)
}
