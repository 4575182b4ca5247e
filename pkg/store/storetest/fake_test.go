package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/model"
)

func TestFake_DeduplicateAndUpsert_CommentRequiredForText(t *testing.T) {
	f := New()
	ctx := context.Background()

	f.SyncStagingNotes[0] = []model.Note{{ID: 1, Lat: 1, Lon: 1, CreatedAt: time.Now(), Status: model.NoteOpen}}
	f.SyncStagingComments[0] = []model.NoteComment{{NoteID: 1, Sequence: 1, Action: model.ActionOpened, At: time.Now()}}
	f.SyncStagingText[0] = []model.NoteCommentText{
		{NoteID: 1, Sequence: 1, Body: "hello"},
		{NoteID: 1, Sequence: 2, Body: "orphaned, no matching comment"},
	}

	summary, err := f.DeduplicateAndUpsert(ctx, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NotesUpserted)
	assert.Equal(t, 1, summary.CommentsInserted)
	assert.Equal(t, 1, summary.TextInserted)
	assert.Len(t, f.MainText, 1)
}

func TestFake_DeduplicateAndUpsert_CommentDedup(t *testing.T) {
	f := New()
	ctx := context.Background()
	f.MainComments[1] = []model.NoteComment{{NoteID: 1, Sequence: 1, Action: model.ActionOpened, At: time.Now()}}

	f.SyncStagingComments[0] = []model.NoteComment{
		{NoteID: 1, Sequence: 1, Action: model.ActionOpened, At: time.Now()},
		{NoteID: 1, Sequence: 2, Action: model.ActionCommented, At: time.Now()},
	}

	summary, err := f.DeduplicateAndUpsert(ctx, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CommentsInserted)
	assert.Len(t, f.MainComments[1], 2)
}

func TestFake_AcquireLogicalLock_SerializesCallers(t *testing.T) {
	f := New()
	ctx := context.Background()

	require.NoError(t, f.AcquireLogicalLock(ctx, "a"))
	err := f.AcquireLogicalLock(ctx, "b")
	assert.Error(t, err)

	require.NoError(t, f.ReleaseLogicalLock(ctx, "a"))
	assert.NoError(t, f.AcquireLogicalLock(ctx, "b"))
}

func TestFake_BulkAssignCountries_UsesInjectedLookup(t *testing.T) {
	f := New()
	ctx := context.Background()
	f.MainNotes[1] = model.Note{ID: 1, Lat: 48.8, Lon: 2.3}
	fr := int64(250)
	f.GetCountryFn = func(lat, lon float64) *int64 { return &fr }

	require.NoError(t, f.BulkAssignCountries(ctx))
	assert.Equal(t, &fr, f.MainNotes[1].CountryID)
}

func TestFake_MarkStaleCountriesFailed(t *testing.T) {
	f := New()
	ctx := context.Background()
	f.SeedCountry(model.Country{ID: 1, NameEn: "Testland"})

	require.NoError(t, f.MarkCountriesForUpdate(ctx))
	c, ok := f.Country(1)
	require.True(t, ok)
	assert.True(t, c.Updated)

	n, err := f.MarkStaleCountriesFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	c, _ = f.Country(1)
	assert.True(t, c.UpdateFailed)
}

func TestFake_SetWatermark_OnlyAdvancesForward(t *testing.T) {
	f := New()
	ctx := context.Background()
	t0 := time.Now().UTC()
	require.NoError(t, f.SetWatermark(ctx, t0))
	require.NoError(t, f.SetWatermark(ctx, t0.Add(-time.Hour)))

	got, ok, err := f.GetWatermark(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, t0, got)
}
