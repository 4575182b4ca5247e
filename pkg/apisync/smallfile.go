package apisync

import (
	"context"
	"os"
	"path/filepath"

	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/consolidator"
	nerrors "github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/errors"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/loader"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/metrics"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/store"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/xmlsplit"
)

// runSmallFilePath implements spec §4.9 step 5: single-process extraction
// (no split) of the incremental XML, loading directly into API staging,
// then a Consolidator pass.
func runSmallFilePath(ctx context.Context, s store.Store, xmlPath string, cfg Config) (int, error) {
	extractDir := filepath.Join(cfg.WorkDir, "extract")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return 0, nerrors.General(err, "create extract dir %s", extractDir)
	}

	f, err := os.Open(xmlPath)
	if err != nil {
		return 0, nerrors.General(err, "open incremental xml %s", xmlPath)
	}
	defer f.Close()

	// No split stage: the whole document is treated as a single part.
	paths, count, err := xmlsplit.Split(ctx, f, extractDir, 1)
	if err != nil {
		return 0, err
	}
	extracted, extractedCount, err := xmlsplit.Extract(ctx, paths[0], extractDir)
	if err != nil {
		return 0, err
	}

	notesT, commentsT, textT := s.StagingPartitionNames("api", 0)
	if _, err := loader.LoadPart(ctx, cfg.Pool, loader.Part{
		CSVs:          extracted,
		NotesTable:    notesT,
		CommentsTable: commentsT,
		TextTable:     textT,
	}); err != nil {
		return 0, err
	}

	metrics.NotesIngestedTotal.WithLabelValues("api").Add(float64(extractedCount))

	consCfg := consolidator.Config{
		Partitions: 1,
		APIMode:    true,
		ProcessID:  "api-sync",
	}
	if _, err := consolidator.Run(ctx, s, consCfg); err != nil {
		return 0, err
	}

	return count, nil
}
