package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUploaderRequiresBucket(t *testing.T) {
	t.Parallel()

	_, err := NewUploader(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrNoBucket)
}

func TestUpload(t *testing.T) {
	t.Parallel()

	var (
		mu          sync.Mutex
		method      string
		path        string
		body        []byte
		contentType string
		auth        string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, buf
		contentType, auth = r.Header.Get("Content-Type"), r.Header.Get("Authorization")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, err := NewUploader(context.Background(), Config{
		Bucket:    "reports",
		Endpoint:  srv.URL,
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "reports", u.Bucket())

	require.NoError(t, u.Upload(context.Background(), "runs/report.json", []byte(`{"measurements":[]}`), "application/json"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/reports/runs/report.json", path)
	assert.Equal(t, "application/json", contentType)
	assert.Contains(t, auth, "AKIDEXAMPLE")
	assert.Contains(t, string(body), `{"measurements":[]}`)
}

func TestUploadError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
	}))
	defer srv.Close()

	u, err := NewUploader(context.Background(), Config{
		Bucket:    "reports",
		Endpoint:  srv.URL,
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
		Region:    "eu-west-1",
	})
	require.NoError(t, err)

	err = u.Upload(context.Background(), "report.json", []byte(`{}`), "application/json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
}
