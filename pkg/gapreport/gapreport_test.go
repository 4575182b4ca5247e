package gapreport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/model"
)

func TestStore_RecordAndRecent_NewestFirst(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	t0 := time.Now().Add(-time.Hour)
	t1 := time.Now()

	require.NoError(t, s.Record(model.GapRecord{ObservedAt: t0, Kind: model.GapNoComments, Count: 3}))
	require.NoError(t, s.Record(model.GapRecord{ObservedAt: t1, Kind: model.GapNoComments, Count: 7}))

	recent, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 7, recent[0].Count)
	assert.Equal(t, 3, recent[1].Count)
}

func TestStore_Recent_RespectsLimit(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(model.GapRecord{ObservedAt: base.Add(time.Duration(i) * time.Minute), Count: i}))
	}

	recent, err := s.Recent(2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}
