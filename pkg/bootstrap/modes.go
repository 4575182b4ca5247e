package bootstrap

import (
	"context"

	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/boundary"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/consolidator"

	nerrors "github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/errors"
)

// BaseResult summarizes a completed Base mode run.
type BaseResult struct {
	NotesLoaded   int
	BoundaryCount int
}

// RunBase implements spec §4.10's "from-scratch" entry point: rebuild the
// schema from migrations, load the full Planet dump, then run the
// Boundary Manager import flow and a single bulk country assignment pass.
func RunBase(ctx context.Context, d Deps, b *boundary.Manager) (BaseResult, error) {
	if err := d.Store.DropAPIStaging(ctx); err != nil {
		return BaseResult{}, err
	}
	if err := d.Store.DropSyncStaging(ctx, d.Concurrency); err != nil {
		return BaseResult{}, err
	}
	if err := applyMigrations(d.DB, d.MigrationsDir); err != nil {
		return BaseResult{}, err
	}
	if err := d.Store.CreateSyncStaging(ctx, d.Concurrency); err != nil {
		return BaseResult{}, err
	}
	if err := d.Store.InstallCountryLookupStub(ctx); err != nil {
		return BaseResult{}, err
	}

	valResult, loadResults, err := downloadValidateAndLoad(ctx, d)
	if err != nil {
		return BaseResult{}, err
	}

	cfg := consolidator.Config{
		Partitions: len(loadResults),
		ProcessID:  "bootstrap-base",
	}
	if _, err := consolidator.Run(ctx, d.Store, cfg); err != nil {
		return BaseResult{}, err
	}

	importResult, err := b.Import(ctx)
	if err != nil {
		return BaseResult{}, err
	}
	if err := d.Store.InstallCountryLookupSpatial(ctx); err != nil {
		return BaseResult{}, err
	}
	if err := d.Store.BulkAssignCountries(ctx); err != nil {
		return BaseResult{}, err
	}
	if err := d.Store.AnalyzeMainTables(ctx); err != nil {
		return BaseResult{}, err
	}

	return BaseResult{
		NotesLoaded:   valResult.NoteCount,
		BoundaryCount: importResult.DownloadedCount,
	}, nil
}

// SyncResult summarizes a completed Sync mode run.
type SyncResult struct {
	NotesLoaded int
}

// RunSync implements spec §4.10's routine reload entry point. It refuses
// to proceed when the tables-exist check is ambiguous or reports missing
// tables — that would require Base mode, which RunSync never invokes
// implicitly ("do not silently re-bootstrap because that would destroy
// data").
func RunSync(ctx context.Context, d Deps, b *boundary.Manager, baselineDrifted bool) (SyncResult, error) {
	exists, err := CheckTablesExist(ctx, d.Store)
	if err != nil {
		return SyncResult{}, err
	}
	switch exists {
	case TablesExistUnknown:
		return SyncResult{}, nerrors.General(nil, "tables-exist check was ambiguous; refusing to choose a bootstrap mode")
	case TablesExistNo:
		return SyncResult{}, nerrors.NoWatermark()
	}

	if err := d.Store.DropSyncStaging(ctx, d.Concurrency); err != nil {
		return SyncResult{}, err
	}
	if err := d.Store.CreateSyncStaging(ctx, d.Concurrency); err != nil {
		return SyncResult{}, err
	}

	valResult, loadResults, err := downloadValidateAndLoad(ctx, d)
	if err != nil {
		return SyncResult{}, err
	}

	cfg := consolidator.Config{
		Partitions: len(loadResults),
		ProcessID:  "bootstrap-sync",
	}
	if _, err := consolidator.Run(ctx, d.Store, cfg); err != nil {
		return SyncResult{}, err
	}

	if baselineDrifted && b != nil {
		if _, err := b.Import(ctx); err != nil {
			return SyncResult{}, err
		}
	}

	return SyncResult{NotesLoaded: valResult.NoteCount}, nil
}
