// Package bootstrap implements C10: the two entry points that stand up or
// refresh the notes dataset from the OSM Planet dump — Base mode
// (from-scratch) and Sync mode (routine reload) — plus the dedicated
// tables-exist check their invariant depends on.
package bootstrap

import (
	"context"
	"database/sql"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"

	nerrors "github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/errors"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/loader"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/planet"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/store"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/workerpool"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/xmlsplit"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/xmlvalidate"
)

// Deps bundles bootstrap's external collaborators so the orchestrator
// functions below stay table-driven instead of reaching into globals.
type Deps struct {
	Store         store.Store
	Pool          *pgxpool.Pool // bulk-copy path the loader needs directly; Store stays the narrow interface for everything else
	DB            *sql.DB       // raw *sql.DB handle for goose
	MigrationsDir string
	Planet        *planet.Downloader
	PlanetPath    string
	SplitDir      string
	Concurrency   int
	PartCap       int
	ValidateCfg   xmlvalidate.Config
}

func openPlanetFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nerrors.PlanetDumpFailed(err, "open downloaded planet dump %s", path)
	}
	return f, nil
}

func loadPartsUsingStoreConn(ctx context.Context, d Deps, parts []loader.Part) ([]loader.Result, error) {
	return loader.LoadParts(ctx, d.Pool, parts, d.Concurrency)
}

// TablesExistResult disambiguates "missing" from "can't tell" per the
// spec §4.10 invariant: "Base mode MUST be chosen only when the 'tables
// missing' signal ... is unambiguous."
type TablesExistResult int

const (
	TablesExistYes TablesExistResult = iota
	TablesExistNo
	TablesExistUnknown
)

// CheckTablesExist is the dedicated check routine the invariant requires:
// any connection or permission error is reported as Unknown, never as No.
func CheckTablesExist(ctx context.Context, s store.Store) (TablesExistResult, error) {
	exists, err := s.TablesExist(ctx)
	if err != nil {
		return TablesExistUnknown, nerrors.General(err, "tables-exist check failed ambiguously")
	}
	if exists {
		return TablesExistYes, nil
	}
	return TablesExistNo, nil
}

// applyMigrations treats the goose migration set as an opaque DDL
// contract: schema shape is owned by the .sql files under MigrationsDir,
// not by Go code.
func applyMigrations(db *sql.DB, dir string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return nerrors.General(err, "set goose dialect")
	}
	if err := goose.Up(db, dir); err != nil {
		return nerrors.General(err, "apply schema migrations from %s", dir)
	}
	return nil
}

// downloadValidateAndLoad is the fetch/validate/split/load sequence shared
// by both Base and Sync mode: download the Planet dump, validate it,
// split it into parts, and parallel-load those parts.
func downloadValidateAndLoad(ctx context.Context, d Deps) (xmlvalidate.Result, []loader.Result, error) {
	if _, err := d.Planet.Download(ctx, d.PlanetPath); err != nil {
		return xmlvalidate.Result{}, nil, err
	}

	valResult, err := xmlvalidate.Validate(ctx, d.PlanetPath, xmlvalidate.ModePlanet, d.ValidateCfg)
	if err != nil {
		return xmlvalidate.Result{}, nil, err
	}

	partCount := xmlsplit.PlanPartCount(valResult.NoteCount, d.Concurrency, d.PartCap)

	f, err := openPlanetFile(d.PlanetPath)
	if err != nil {
		return valResult, nil, err
	}
	defer f.Close()

	partPaths, splitCount, err := xmlsplit.Split(ctx, f, d.SplitDir, partCount)
	if err != nil {
		return valResult, nil, err
	}
	if splitCount != valResult.NoteCount {
		return valResult, nil, nerrors.DataValidation(nil,
			"extractor note count %d does not match validator count %d", splitCount, valResult.NoteCount)
	}

	parts := make([]loader.Part, len(partPaths))
	err = workerpool.Run(ctx, len(partPaths), d.Concurrency, func(ctx context.Context, i int) error {
		extracted, _, err := xmlsplit.Extract(ctx, partPaths[i], d.SplitDir)
		if err != nil {
			return err
		}
		notesT, commentsT, textT := d.Store.StagingPartitionNames("sync", i)
		parts[i] = loader.Part{
			CSVs:          extracted,
			NotesTable:    notesT,
			CommentsTable: commentsT,
			TextTable:     textT,
		}
		return nil
	})
	if err != nil {
		return valResult, nil, err
	}

	results, err := loadPartsUsingStoreConn(ctx, d, parts)
	if err != nil {
		return valResult, nil, err
	}
	return valResult, results, nil
}
