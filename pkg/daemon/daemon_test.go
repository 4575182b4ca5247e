package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/apisync"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/bootstrap"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/log"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/store/storetest"
)

func baseCollab(fake *storetest.Fake) Collaborators {
	return Collaborators{
		Store: fake,
		RunBase: func(ctx context.Context) (bootstrap.BaseResult, error) {
			return bootstrap.BaseResult{NotesLoaded: 10}, nil
		},
		RunAPISync: func(ctx context.Context) (apisync.Outcome, error) {
			return apisync.Outcome{}, nil
		},
		ShutdownFlag:  func() bool { return false },
		ClearShutdown: func() error { return nil },
	}
}

func TestRunOnce_ShutdownFlagStopsLoop(t *testing.T) {
	fake := storetest.New()
	fake.SetTablesExist(true)
	collab := baseCollab(fake)
	cleared := false
	collab.ShutdownFlag = func() bool { return true }
	collab.ClearShutdown = func() error { cleared = true; return nil }

	d := New(Config{TargetInterval: time.Minute}, collab, log.NewRingBuffer(4))
	keepGoing, sleep, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, keepGoing)
	assert.Zero(t, sleep)
	assert.True(t, cleared)
}

func TestRunOnce_RunsBaseModeWhenTablesMissing(t *testing.T) {
	fake := storetest.New()
	fake.SetTablesExist(false)
	collab := baseCollab(fake)

	d := New(Config{TargetInterval: time.Minute}, collab, log.NewRingBuffer(4))
	keepGoing, sleep, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, keepGoing)
	assert.Equal(t, time.Minute, sleep)
	assert.Equal(t, 0, d.ConsecutiveErrors())
}

func TestRunOnce_RunsAPISyncWhenTablesPresent(t *testing.T) {
	fake := storetest.New()
	fake.SetTablesExist(true)
	collab := baseCollab(fake)
	called := false
	collab.RunAPISync = func(ctx context.Context) (apisync.Outcome, error) {
		called = true
		return apisync.Outcome{NotesProcessed: 3}, nil
	}

	d := New(Config{TargetInterval: time.Minute}, collab, log.NewRingBuffer(4))
	keepGoing, _, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, keepGoing)
	assert.True(t, called)
}

func TestRunOnce_SuccessRecordsLastWatermark(t *testing.T) {
	fake := storetest.New()
	fake.SetTablesExist(true)
	collab := baseCollab(fake)
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	collab.RunAPISync = func(ctx context.Context) (apisync.Outcome, error) {
		return apisync.Outcome{NotesProcessed: 1, Watermark: want}, nil
	}

	d := New(Config{TargetInterval: time.Minute}, collab, log.NewRingBuffer(4))
	_, _, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, d.Snapshot().LastWatermark)
}

func TestRunOnce_SleepShrinksByCycleDuration(t *testing.T) {
	fake := storetest.New()
	fake.SetTablesExist(true)
	collab := baseCollab(fake)
	collab.RunAPISync = func(ctx context.Context) (apisync.Outcome, error) {
		time.Sleep(10 * time.Millisecond)
		return apisync.Outcome{}, nil
	}

	d := New(Config{TargetInterval: 50 * time.Millisecond}, collab, log.NewRingBuffer(4))
	_, sleep, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Less(t, sleep, 50*time.Millisecond)
}

func TestRunOnce_ConsecutiveFailuresTripMaxErrors(t *testing.T) {
	fake := storetest.New()
	fake.SetTablesExist(true)
	collab := baseCollab(fake)
	collab.RunAPISync = func(ctx context.Context) (apisync.Outcome, error) {
		return apisync.Outcome{}, errors.New("boom")
	}

	d := New(Config{
		TargetInterval:       time.Millisecond,
		MaxConsecutiveErrors: 2,
		BaseDir:              t.TempDir(),
		ScriptName:           "notesd-test",
		TempDir:              t.TempDir(),
	}, collab, log.NewRingBuffer(4))

	_, _, err1 := d.RunOnce(context.Background())
	assert.NoError(t, err1)
	assert.Equal(t, 1, d.ConsecutiveErrors())

	_, _, err2 := d.RunOnce(context.Background())
	assert.Error(t, err2)
	assert.Equal(t, 2, d.ConsecutiveErrors())
}

func TestRunOnce_SuccessResetsConsecutiveErrors(t *testing.T) {
	fake := storetest.New()
	fake.SetTablesExist(true)
	collab := baseCollab(fake)
	fail := true
	collab.RunAPISync = func(ctx context.Context) (apisync.Outcome, error) {
		if fail {
			fail = false
			return apisync.Outcome{}, errors.New("boom")
		}
		return apisync.Outcome{}, nil
	}

	d := New(Config{TargetInterval: time.Millisecond, MaxConsecutiveErrors: 5}, collab, log.NewRingBuffer(4))
	_, _, _ = d.RunOnce(context.Background())
	assert.Equal(t, 1, d.ConsecutiveErrors())

	_, _, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, d.ConsecutiveErrors())
}
