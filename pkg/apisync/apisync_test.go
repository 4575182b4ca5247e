package apisync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/osmapi"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/store/storetest"
)

func TestRun_NoWatermarkIsFatal(t *testing.T) {
	fake := storetest.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?><osm></osm>`))
	}))
	defer srv.Close()

	api := osmapi.New(srv.URL, "notesd/test", time.Second)
	_, err := Run(context.Background(), fake, api, nil, Config{MaxNotes: 10000})
	assert.Error(t, err)
}

func TestRun_SkipsWhenNoCandidates(t *testing.T) {
	fake := storetest.New()
	require.NoError(t, fake.SetWatermark(context.Background(), time.Now().Add(-time.Hour)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?><osm></osm>`))
	}))
	defer srv.Close()

	api := osmapi.New(srv.URL, "notesd/test", time.Second)
	outcome, err := Run(context.Background(), fake, api, nil, Config{MaxNotes: 10000})
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
}

func TestRun_EscalatesToPlanetWhenCountExceedsMaxNotes(t *testing.T) {
	fake := storetest.New()
	require.NoError(t, fake.SetWatermark(context.Background(), time.Now().Add(-time.Hour)))

	body := `<?xml version="1.0"?><osm>`
	for i := 0; i < 5; i++ {
		body += `<note id="1" lat="1" lon="1" created_at="2023-01-01T00:00:00Z" closed_at="" status="open"/>`
	}
	body += `</osm>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	api := osmapi.New(srv.URL, "notesd/test", time.Second)
	cfg := Config{MaxNotes: 3, WorkDir: t.TempDir()}

	escalated := false
	escalate := func(ctx context.Context) (int, error) {
		escalated = true
		return 5, nil
	}

	outcome, err := Run(context.Background(), fake, api, escalate, cfg)
	require.NoError(t, err)
	assert.True(t, escalated)
	assert.True(t, outcome.EscalatedToPlanet)
	assert.Equal(t, 5, outcome.NotesProcessed)
}
