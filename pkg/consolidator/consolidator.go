// Package consolidator implements C7: the orchestration around
// store.Store.DeduplicateAndUpsert — acquiring the database-level logical
// lock with retry, running the dedupe+upsert, refreshing the watermark,
// analyzing affected tables, and checking for a post-cycle gap-rate
// regression, all under a scoped-release guarantee on the logical lock.
package consolidator

import (
	"context"
	"time"

	nerrors "github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/errors"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/metrics"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/retry"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/store"
)

// Config bounds one Consolidator pass.
type Config struct {
	Partitions         int
	APIMode            bool
	ProcessID          string
	LockRetry          retry.Config // Attempts <= 0: 3 attempts, 2s apart
	GapWindow          time.Duration
	GapThreshold       int // default 100 (spec §4.7)
}

func run(ctx context.Context, s store.Store, cfg Config) (store.Summary, error) {
	lockRetry := cfg.LockRetry
	if lockRetry.Attempts <= 0 {
		lockRetry = retry.Config{Attempts: 3, Delay: 2 * time.Second}
	}
	if err := retry.Do(ctx, lockRetry, func(ctx context.Context) error {
		return s.AcquireLogicalLock(ctx, cfg.ProcessID)
	}); err != nil {
		return store.Summary{}, nerrors.General(err, "acquire consolidator logical lock after retries")
	}
	defer func() {
		// Scoped-release guarantee: the lock is always released even if a
		// step below fails partway (spec §4.7: "the logical lock MUST
		// still be released").
		_ = s.ReleaseLogicalLock(context.Background(), cfg.ProcessID)
	}()

	timer := metrics.NewTimer()
	summary, err := s.DeduplicateAndUpsert(ctx, cfg.Partitions, cfg.APIMode)
	timer.ObserveDuration(metrics.ConsolidationDuration)
	if err != nil {
		return store.Summary{}, err
	}

	if !summary.MaxUpdatedAt.IsZero() {
		if err := s.SetWatermark(ctx, summary.MaxUpdatedAt); err != nil {
			return summary, nerrors.General(err, "update watermark after consolidation")
		}
	}

	if err := s.AnalyzeMainTables(ctx); err != nil {
		return summary, nerrors.General(err, "analyze main tables after consolidation")
	}

	return summary, nil
}

// Run executes one full Consolidator pass and checks the gap rate
// afterwards, returning a hard error if it exceeds cfg.GapThreshold (spec
// §4.7: "more than a configurable threshold ... is a hard error requiring
// operator attention").
func Run(ctx context.Context, s store.Store, cfg Config) (store.Summary, error) {
	summary, err := run(ctx, s, cfg)
	if err != nil {
		return summary, err
	}

	threshold := cfg.GapThreshold
	if threshold <= 0 {
		threshold = 100
	}
	window := cfg.GapWindow
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}

	gap, gerr := s.RecentGaps(ctx, window)
	if gerr != nil {
		return summary, nerrors.General(gerr, "compute post-cycle gap report")
	}
	metrics.GapRecordsTotal.Set(float64(gap.Count))
	if gap.Count > threshold {
		return summary, nerrors.General(nil,
			"gap rate exceeded threshold: %d notes without comments (threshold %d)", gap.Count, threshold)
	}

	return summary, nil
}
