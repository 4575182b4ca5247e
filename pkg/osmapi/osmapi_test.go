package osmapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeLiveness_TrueWhenNotesPresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "notesd/test", r.Header.Get("User-Agent"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		w.Write([]byte(`<?xml version="1.0"?><osm><note id="1"/></osm>`))
	}))
	defer srv.Close()

	c := New(srv.URL, "notesd/test", 5*time.Second)
	has, err := c.ProbeLiveness(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, has)
}

func TestProbeLiveness_FalseWhenNoNotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?><osm></osm>`))
	}))
	defer srv.Close()

	c := New(srv.URL, "notesd/test", 5*time.Second)
	has, err := c.ProbeLiveness(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestProbeLiveness_NonOKStatusIsInternetIssue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, "notesd/test", 5*time.Second)
	_, err := c.ProbeLiveness(context.Background(), time.Now())
	assert.Error(t, err)
}

func TestFetchIncremental_CopiesBodyToWriter(t *testing.T) {
	const payload = `<?xml version="1.0"?><osm><note id="1"/><note id="2"/></osm>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := New(srv.URL, "notesd/test", 5*time.Second)
	var buf bytes.Buffer
	n, err := c.FetchIncremental(context.Background(), time.Now().Add(-time.Hour), &buf)
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), n)
	assert.Equal(t, payload, buf.String())
}
