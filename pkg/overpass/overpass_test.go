package overpass

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

func TestCountryRelationIDs_ParsesElements(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"elements":[{"id":51477},{"id":62149}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	ids, err := c.CountryRelationIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{51477, 62149}, ids)
}

func TestFetchGeometry_WritesRawBody(t *testing.T) {
	const payload = `{"elements":[{"id":1,"geometry":[]}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	var buf bytes.Buffer
	require.NoError(t, c.FetchGeometry(context.Background(), 1, &buf))
	assert.Equal(t, payload, buf.String())
}

func TestRelationDetails_ParsesNameTags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"elements":[
			{"id":51477,"tags":{"name":"Österreich","name:en":"Austria"}},
			{"id":62149,"tags":{}}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	details, err := c.RelationDetails(context.Background(), []int64{51477, 62149})
	require.NoError(t, err)
	assert.Equal(t, "Austria", details[51477].NameEn)
	assert.Equal(t, "Österreich", details[51477].NameLocal)
	assert.Equal(t, RelationTags{}, details[62149])
}

func TestRelationDetails_EmptyIDsSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	details, err := c.RelationDetails(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, details)
	assert.False(t, called)
}

func TestChecker_DialsDerivedHostPort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	checker, err := c.Checker()
	require.NoError(t, err)
	assert.True(t, checker.Check(context.Background()).Healthy)
}

func TestRelationIDs_NonOKStatusIsDownloadIDsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.CountryRelationIDs(context.Background())
	assert.Error(t, err)
}
