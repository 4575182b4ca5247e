// Package apisync implements C9: the per-cycle API Sync Orchestrator. It
// assumes the main process lock is already held and previous-failure
// gating has already passed — both are the Daemon Loop's responsibility,
// not this package's.
package apisync

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	nerrors "github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/errors"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/metrics"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/osmapi"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/store"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/xmlvalidate"
)

// Config bounds one orchestrator cycle.
type Config struct {
	MaxNotes    int // spec §5 large-delta threshold
	WorkDir     string
	Pool        *pgxpool.Pool // bulk-copy destination for the small-file load path
	ValidateCfg xmlvalidate.Config
}

// Outcome reports what one cycle did, for the Daemon Loop's logging and
// sleep-interval computation.
type Outcome struct {
	Skipped           bool // no update candidates; cycle short-circuited
	EscalatedToPlanet bool
	NotesProcessed    int
	Watermark         time.Time // watermark after the cycle: refreshed on the small-file path, unchanged when skipped or escalated
}

// EscalateFunc invokes the Bootstrap Orchestrator's Sync mode entry point
// when the incremental delta is too large to process incrementally (spec
// §4.9 step 4). The caller supplies it (cmd/notesd builds one with
// buildEscalateFunc), so apisync itself does not import bootstrap.
type EscalateFunc func(ctx context.Context) (notesLoaded int, err error)

// Run executes one full API Sync Orchestrator cycle.
func Run(ctx context.Context, s store.Store, api *osmapi.Client, escalate EscalateFunc, cfg Config) (Outcome, error) {
	watermark, ok, err := s.GetWatermark(ctx)
	if err != nil {
		return Outcome{}, nerrors.General(err, "read watermark before api sync cycle")
	}
	if !ok {
		return Outcome{}, nerrors.NoWatermark()
	}

	hasCandidates, err := api.ProbeLiveness(ctx, watermark)
	if err != nil {
		return Outcome{}, err
	}
	if !hasCandidates {
		return Outcome{Skipped: true, Watermark: watermark}, nil
	}

	xmlPath := filepath.Join(cfg.WorkDir, "api-incremental.xml")
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return Outcome{}, nerrors.General(err, "create api sync work dir %s", cfg.WorkDir)
	}

	f, err := os.Create(xmlPath)
	if err != nil {
		return Outcome{}, nerrors.General(err, "create api fetch destination %s", xmlPath)
	}
	if _, err := api.FetchIncremental(ctx, watermark, f); err != nil {
		f.Close()
		return Outcome{}, err
	}
	f.Close()

	valResult, err := xmlvalidate.Validate(ctx, xmlPath, xmlvalidate.ModeAPI, cfg.ValidateCfg)
	if err != nil {
		return Outcome{}, err
	}

	if valResult.NoteCount >= cfg.MaxNotes {
		metrics.NotesIngestedTotal.WithLabelValues("planet_escalation").Add(float64(valResult.NoteCount))
		loaded, err := escalate(ctx)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{EscalatedToPlanet: true, NotesProcessed: loaded, Watermark: watermark}, nil
	}

	processed, err := runSmallFilePath(ctx, s, xmlPath, cfg)
	if err != nil {
		// Truncate API staging unconditionally even on failure (spec §4.9
		// step 6), but the failure itself still propagates.
		_ = s.TruncateAPIStaging(ctx)
		return Outcome{}, err
	}

	if err := s.TruncateAPIStaging(ctx); err != nil {
		return Outcome{}, nerrors.General(err, "truncate api staging after cycle")
	}

	newWatermark, ok, err := s.GetWatermark(ctx)
	if err != nil {
		return Outcome{}, nerrors.General(err, "read watermark after api sync cycle")
	}
	if !ok {
		newWatermark = watermark
	}

	return Outcome{NotesProcessed: processed, Watermark: newWatermark}, nil
}
