package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver for goose

	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/boundary"
	nerrors "github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/errors"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/failuremarker"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/health"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/lock"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/osmapi"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/overpass"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/planet"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/retry"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/store"
)

const exitCodeForLoadFailure = nerrors.CodeGeneral

// exitCodeFor maps any error returned from a RunE to the closed exit-code
// taxonomy (spec §4.12), classifying it as General if it isn't already a
// *Fault.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	return int(nerrors.AsFault(err).Code)
}

// connections bundles the live handles a command needs; Close releases both.
type connections struct {
	Store store.Store
	Pool  *pgxpool.Pool
	DB    *sql.DB
}

func (c *connections) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}
}

// postgresChecker returns a raw-dial TCPChecker against the configured
// Postgres DSN's host:port, the cheap "is the network/database host even up"
// pre-check run ahead of opening the real pool and ahead of the self-heal
// gate's liveness probe (spec §4.2/§7) — a DB doesn't have a cheap HTTP
// health endpoint the way the OSM Notes API does, so a TCP dial is the
// bounded check available here.
func postgresChecker() (health.Checker, error) {
	pgCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, nerrors.General(err, "parse postgres dsn")
	}
	host := net.JoinHostPort(pgCfg.ConnConfig.Host, fmt.Sprintf("%d", pgCfg.ConnConfig.Port))
	return health.NewTCPChecker(host), nil
}

func openConnections(ctx context.Context) (*connections, error) {
	if cfg.PostgresDSN == "" {
		return nil, nerrors.InvalidArgument("NOTES_PG_DSN (or config postgres_dsn) is required")
	}

	checker, err := postgresChecker()
	if err != nil {
		return nil, err
	}
	if res := checker.Check(ctx); !res.Healthy {
		return nil, nerrors.InternetIssue(nil, "postgres unreachable: %s", res.Message)
	}

	s, err := store.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nerrors.General(err, "open postgres pool")
	}

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		s.Close()
		return nil, nerrors.General(err, "open database/sql handle for migrations")
	}

	pgxStore, ok := s.(interface{ Pool() *pgxpool.Pool })
	var pool *pgxpool.Pool
	if ok {
		pool = pgxStore.Pool()
	}

	return &connections{Store: s, Pool: pool, DB: db}, nil
}

func newOSMAPIClient() *osmapi.Client {
	return osmapi.New(cfg.OSMAPIBaseURL, cfg.UserAgent, cfg.HTTPProbeTimeout)
}

func newPlanetDownloader() *planet.Downloader {
	return planet.New(cfg.PlanetDumpURL, cfg.UserAgent, cfg.HTTPFetchTimeout)
}

func newBoundaryManager(s store.Store) *boundary.Manager {
	return &boundary.Manager{
		Overpass:     overpass.New(cfg.OverpassURL, cfg.HTTPFetchTimeout),
		Importer:     boundary.GeometryImporter{Command: cfg.GeometryImporter},
		BaselinePath: cfg.BoundaryBaselineDir,
		DSN:          cfg.PostgresDSN,
		Retry:        defaultRetryConfig(),
		Store:        s,
	}
}

func defaultRetryConfig() retry.Config {
	return retry.Config{
		Attempts: cfg.RetryAttempts,
		Delay:    cfg.RetryDelay,
	}
}

// withProcessLock acquires the single-writer OS lock for role, runs fn, and
// always releases it, matching spec §4.1/§4.7's "lock scope wraps the whole
// operation" invariant.
func withProcessLock(role string, fn func(processID string) error) error {
	processID := lock.NewProcessID()
	h, err := lock.Acquire(cfg.BaseDir, cfg.ProcessName, role, os.TempDir(), processID)
	if err != nil {
		if busy, ok := err.(*lock.BusyError); ok {
			return nerrors.PlanetProcessRunning(fmt.Sprintf("pid %d since %s", busy.Owner.PID, busy.Owner.StartedAt))
		}
		return nerrors.General(err, "acquire process lock")
	}
	defer h.Release()

	return fn(processID)
}

// postgresProbeOK is the gateOnPreviousFailure probe for commands that
// don't otherwise open a connection before the gate check runs; errors
// building the checker count as "not reachable" rather than panicking the
// gate.
func postgresProbeOK(ctx context.Context) func() bool {
	return func() bool {
		checker, err := postgresChecker()
		if err != nil {
			return false
		}
		return checker.Check(ctx).Healthy
	}
}

// gateOnPreviousFailure refuses to start when a failure marker is present,
// unless it is self-healable and a fresh liveness probe now succeeds (spec
// §4.2, §7).
func gateOnPreviousFailure(probeOK func() bool) error {
	rec, present, err := failuremarker.Check(cfg.BaseDir, cfg.ProcessName)
	if err != nil {
		return nerrors.General(err, "check failure marker")
	}
	if !present {
		return nil
	}
	if failuremarker.SelfHealable(rec) && probeOK != nil && probeOK() {
		return failuremarker.Clear(cfg.BaseDir, cfg.ProcessName)
	}
	return nerrors.New(nerrors.CodePreviousExecutionFailed, nerrors.KindPreviousExecutionFailed,
		"inspect it with `notesd lock status` and clear it with `notesd lock clear-marker` once the underlying issue is fixed",
		nil, "previous run failed: %s (%s)", rec.Kind, rec.Message)
}
