package consolidator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/model"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/retry"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/store/storetest"
)

func baseConfig() Config {
	return Config{
		Partitions: 1,
		ProcessID:  "test-process",
		LockRetry:  retry.Config{Attempts: 3, Delay: time.Millisecond},
	}
}

func TestRun_UpsertsAndAdvancesWatermark(t *testing.T) {
	fake := storetest.New()
	now := time.Now().UTC()
	fake.SyncStagingNotes[0] = []model.Note{{ID: 1, Lat: 1, Lon: 1, CreatedAt: now, Status: model.NoteOpen}}

	summary, err := Run(context.Background(), fake, baseConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NotesUpserted)

	wm, ok, err := fake.GetWatermark(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.WithinDuration(t, now, wm, time.Second)
}

func TestRun_ReleasesLockEvenOnConsolidateFailure(t *testing.T) {
	fake := storetest.New()
	fake.FailConsolidate = assertErr{}

	_, err := Run(context.Background(), fake, baseConfig())
	require.Error(t, err)

	// Lock must be released: a subsequent acquire succeeds.
	require.NoError(t, fake.AcquireLogicalLock(context.Background(), "someone-else"))
}

func TestRun_GapThresholdExceededIsHardError(t *testing.T) {
	fake := storetest.New()
	fake.RecentGapRecord = model.GapRecord{Kind: model.GapNoComments, Count: 150, Total: 1000}

	cfg := baseConfig()
	cfg.GapThreshold = 100

	_, err := Run(context.Background(), fake, cfg)
	assert.Error(t, err)
}

func TestRun_GapUnderThresholdSucceeds(t *testing.T) {
	fake := storetest.New()
	fake.RecentGapRecord = model.GapRecord{Kind: model.GapNoComments, Count: 5, Total: 1000}

	cfg := baseConfig()
	cfg.GapThreshold = 100

	_, err := Run(context.Background(), fake, cfg)
	assert.NoError(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "simulated consolidate failure" }
