package planet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownload_FreshFileFullBody(t *testing.T) {
	const body = "planet notes payload"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "planet.xml")
	d := New(srv.URL, "notesd/test", 5*time.Second)
	n, err := d.Download(context.Background(), dest)
	require.NoError(t, err)
	assert.EqualValues(t, len(body), n)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestDownload_ResumesWithRangeHeader(t *testing.T) {
	const full = "0123456789ABCDEF"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		if rng == "" {
			w.Write([]byte(full))
			return
		}
		assert.Equal(t, "bytes=8-", rng)
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(full[8:]))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "planet.xml")
	require.NoError(t, os.WriteFile(dest, []byte(full[:8]), 0o644))

	d := New(srv.URL, "notesd/test", 5*time.Second)
	n, err := d.Download(context.Background(), dest)
	require.NoError(t, err)
	assert.EqualValues(t, len(full), n)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, full, string(got))
}

func TestDownload_ServerIgnoresRangeRestartsFromScratch(t *testing.T) {
	const full = "abcdefgh"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(full))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "planet.xml")
	require.NoError(t, os.WriteFile(dest, []byte("stale-partial-content"), 0o644))

	d := New(srv.URL, "notesd/test", 5*time.Second)
	n, err := d.Download(context.Background(), dest)
	require.NoError(t, err)
	assert.EqualValues(t, len(full), n)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, full, string(got))
}
