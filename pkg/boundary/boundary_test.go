package boundary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/model"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/overpass"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/store/storetest"
)

func TestRegeoTag_MarksThenClearsRefreshedCountries(t *testing.T) {
	fake := storetest.New()
	fake.SeedCountry(model.Country{ID: 1, NameEn: "Alpha"})
	fake.SeedCountry(model.Country{ID: 2, NameEn: "Beta"})

	m := &Manager{Store: fake}
	diff := model.BoundaryRevisionDiff{Added: []int64{1}}

	changed, err := m.RegeoTag(context.Background(), diff)
	require.NoError(t, err)
	assert.Equal(t, 0, changed) // no GetCountryFn installed, no notes to touch

	c1, _ := fake.Country(1)
	assert.False(t, c1.Updated)
	assert.False(t, c1.UpdateFailed)

	c2, _ := fake.Country(2)
	assert.True(t, c2.UpdateFailed) // never cleared, so marked failed
}

func TestRegeoTag_RefreshesOnlyNotesInAffectedCountries(t *testing.T) {
	fake := storetest.New()
	fake.SeedCountry(model.Country{ID: 1, NameEn: "Alpha"})
	old := int64(1)
	fake.MainNotes[10] = model.Note{ID: 10, Lat: 1, Lon: 1, CountryID: &old}
	newID := int64(99)
	fake.GetCountryFn = func(lat, lon float64) *int64 { return &newID }

	m := &Manager{Store: fake}
	diff := model.BoundaryRevisionDiff{Changed: []int64{1}}

	changed, err := m.RegeoTag(context.Background(), diff)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.Equal(t, &newID, fake.MainNotes[10].CountryID)
}

func TestGeometryImporter_TimeoutZeroUntilSet(t *testing.T) {
	g := GeometryImporter{Command: "/bin/echo"}
	assert.Equal(t, time.Duration(0), g.Timeout) // zero value; Import substitutes its 2-minute default locally without changing g
}

func TestGeometryImporter_Ready_OKForRunnableBinary(t *testing.T) {
	g := GeometryImporter{Command: "/bin/echo"}
	assert.NoError(t, g.Ready(context.Background()))
}

func TestGeometryImporter_Ready_ErrorsForMissingBinary(t *testing.T) {
	g := GeometryImporter{Command: "/nonexistent/not-a-real-binary"}
	assert.Error(t, g.Ready(context.Background()))
}

func TestManager_Import_FailsFastWhenOverpassUnreachable(t *testing.T) {
	fake := storetest.New()
	m := &Manager{
		Overpass: overpass.New("http://127.0.0.1:1", time.Second), // nothing listens here
		Importer: GeometryImporter{Command: "/bin/echo"},
		Store:    fake,
	}

	_, err := m.Import(context.Background())
	assert.Error(t, err)
}

func TestManager_Import_FailsFastWhenImporterNotRunnable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	fake := storetest.New()
	m := &Manager{
		Overpass: overpass.New(srv.URL, time.Second),
		Importer: GeometryImporter{Command: "/nonexistent/not-a-real-binary"},
		Store:    fake,
	}

	_, err := m.Import(context.Background())
	assert.Error(t, err)
}
