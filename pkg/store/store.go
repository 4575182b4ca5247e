// Package store is the Postgres/PostGIS access layer (spec §6.1). It owns
// the narrow interface the rest of notesd programs against; the DDL itself
// (tables, the get_country/put_lock/remove_lock stored procedures) is an
// opaque external contract, applied via goose migrations in
// pkg/bootstrap, never generated here.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/model"
)

// Store is the full set of database operations the core needs. It mirrors
// the teacher's storage.Store interface-first style: callers depend on this
// interface, never on *pgxpool.Pool directly, so unit tests can fake it.
type Store interface {
	// Schema / lifecycle (C10)
	TablesExist(ctx context.Context) (bool, error)
	DropAPIStaging(ctx context.Context) error
	DropSyncStaging(ctx context.Context, partitions int) error
	CreateSyncStaging(ctx context.Context, partitions int) error
	TruncateAPIStaging(ctx context.Context) error

	// Watermark
	GetWatermark(ctx context.Context) (time.Time, bool, error)
	SetWatermark(ctx context.Context, ts time.Time) error

	// Logical lock (C7 step 1 / §9 RAII note)
	AcquireLogicalLock(ctx context.Context, token string) error
	ReleaseLogicalLock(ctx context.Context, token string) error

	// Bulk load targets (C6)
	StagingPartitionNames(kind string, partition int) (notes, comments, text string)

	// Consolidation (C7)
	DeduplicateAndUpsert(ctx context.Context, partitions int, apiMode bool) (Summary, error)
	AnalyzeMainTables(ctx context.Context) error
	RecentGaps(ctx context.Context, window time.Duration) (model.GapRecord, error)

	// Countries / boundaries (C8)
	CountryIDs(ctx context.Context) ([]int64, error)
	MarkCountriesForUpdate(ctx context.Context) error
	ClearCountryUpdated(ctx context.Context, countryID int64) error
	MarkStaleCountriesFailed(ctx context.Context) (int, error)
	UpsertCountry(ctx context.Context, c model.Country) error
	AffectedNoteCountryRefresh(ctx context.Context, countryIDs []int64) (int, error)
	InstallCountryLookupStub(ctx context.Context) error
	InstallCountryLookupSpatial(ctx context.Context) error

	BulkAssignCountries(ctx context.Context) error

	Close()
}

// Summary is the result of one Consolidator pass.
type Summary struct {
	NotesUpserted    int
	CommentsInserted int
	TextInserted     int
	MaxUpdatedAt     time.Time
}

// pgStore is the pgx-backed implementation.
type pgStore struct {
	pool *pgxpool.Pool
}

// Open creates a connection pool against dsn.
func Open(ctx context.Context, dsn string) (Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &pgStore{pool: pool}, nil
}

func (s *pgStore) Close() { s.pool.Close() }

// Pool exposes the underlying connection pool for the bulk-copy path
// (pkg/loader), which needs pgx.CopyFrom directly rather than through the
// narrow Store interface.
func (s *pgStore) Pool() *pgxpool.Pool { return s.pool }

// TablesExist implements the "dedicated check routine" spec §4.10 requires
// before choosing Base vs Sync mode: ambiguous errors (connection/permission)
// must propagate, never be folded into "missing".
func (s *pgStore) TablesExist(ctx context.Context) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = 'notes'
	)`
	var exists bool
	if err := s.pool.QueryRow(ctx, q).Scan(&exists); err != nil {
		return false, fmt.Errorf("check main tables existence: %w", err)
	}
	return exists, nil
}

func (s *pgStore) DropAPIStaging(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS notes_api_staging, note_comments_api_staging, note_comment_text_api_staging CASCADE`)
	if err != nil {
		return fmt.Errorf("drop api staging: %w", err)
	}
	return nil
}

func (s *pgStore) DropSyncStaging(ctx context.Context, partitions int) error {
	for i := 0; i < partitions; i++ {
		notes, comments, text := s.StagingPartitionNames("sync", i)
		if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s, %s, %s CASCADE`, notes, comments, text)); err != nil {
			return fmt.Errorf("drop sync staging partition %d: %w", i, err)
		}
	}
	return nil
}

func (s *pgStore) CreateSyncStaging(ctx context.Context, partitions int) error {
	for i := 0; i < partitions; i++ {
		notes, comments, text := s.StagingPartitionNames("sync", i)
		stmts := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (LIKE notes INCLUDING DEFAULTS)`, notes),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (LIKE note_comments INCLUDING DEFAULTS)`, comments),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (LIKE note_comment_text INCLUDING DEFAULTS)`, text),
		}
		for _, stmt := range stmts {
			if _, err := s.pool.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("create sync staging partition %d: %w", i, err)
			}
		}
	}
	return nil
}

func (s *pgStore) TruncateAPIStaging(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE notes_api_staging, note_comments_api_staging, note_comment_text_api_staging`)
	if err != nil {
		return fmt.Errorf("truncate api staging: %w", err)
	}
	return nil
}

// StagingPartitionNames returns the deterministic table names for partition
// i of the given kind ("sync" or "api"), matching spec §6.1's requirement
// that "partitioned staging tables whose partition count matches the worker
// count of the current cycle" be addressable by name.
func (s *pgStore) StagingPartitionNames(kind string, partition int) (notes, comments, text string) {
	return fmt.Sprintf("notes_%s_staging_%d", kind, partition),
		fmt.Sprintf("note_comments_%s_staging_%d", kind, partition),
		fmt.Sprintf("note_comment_text_%s_staging_%d", kind, partition)
}

func (s *pgStore) GetWatermark(ctx context.Context) (time.Time, bool, error) {
	var ts time.Time
	err := s.pool.QueryRow(ctx, `SELECT timestamp FROM max_note_timestamp LIMIT 1`).Scan(&ts)
	if err == pgx.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get watermark: %w", err)
	}
	return ts, true, nil
}

func (s *pgStore) SetWatermark(ctx context.Context, ts time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO max_note_timestamp (id, timestamp) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET timestamp = GREATEST(max_note_timestamp.timestamp, EXCLUDED.timestamp)
	`, ts)
	if err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	return nil
}

// AcquireLogicalLock calls the put_lock stored procedure (spec §6.1, §9):
// an advisory-style serialization scoped to the database, independent of
// the OS-level lock file in pkg/lock (the two do not share a token).
func (s *pgStore) AcquireLogicalLock(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `SELECT put_lock($1)`, token)
	if err != nil {
		return fmt.Errorf("acquire logical lock: %w", err)
	}
	return nil
}

// ReleaseLogicalLock always attempts remove_lock, even if the caller is
// unwinding from a mid-transaction failure — the "scoped-release guarantee"
// of spec §4.7 is enforced by callers using defer immediately after a
// successful AcquireLogicalLock.
func (s *pgStore) ReleaseLogicalLock(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `SELECT remove_lock($1)`, token)
	if err != nil {
		return fmt.Errorf("release logical lock: %w", err)
	}
	return nil
}

func (s *pgStore) AnalyzeMainTables(ctx context.Context) error {
	for _, tbl := range []string{"notes", "note_comments", "note_comment_text"} {
		if _, err := s.pool.Exec(ctx, "ANALYZE "+tbl); err != nil {
			return fmt.Errorf("analyze %s: %w", tbl, err)
		}
	}
	return nil
}

func (s *pgStore) RecentGaps(ctx context.Context, window time.Duration) (model.GapRecord, error) {
	const q = `
		SELECT count(*) FILTER (WHERE c.note_id IS NULL), count(*)
		FROM notes n
		LEFT JOIN note_comments c ON c.note_id = n.id
		WHERE n.created_at > now() - $1::interval`
	var withoutComments, total int
	if err := s.pool.QueryRow(ctx, q, window).Scan(&withoutComments, &total); err != nil {
		return model.GapRecord{}, fmt.Errorf("recent gaps: %w", err)
	}
	pct := 0.0
	if total > 0 {
		pct = float64(withoutComments) / float64(total) * 100
	}
	return model.GapRecord{
		ObservedAt:  time.Now().UTC(),
		Kind:        model.GapNoComments,
		Count:       withoutComments,
		Total:       total,
		Percent:     pct,
		Unprocessed: true,
	}, nil
}

func (s *pgStore) CountryIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM countries`)
	if err != nil {
		return nil, fmt.Errorf("list country ids: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan country id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkCountriesForUpdate implements the Stable -> MarkedForUpdate transition
// (spec §4.8 state machine) ahead of an update-mode boundary refresh.
func (s *pgStore) MarkCountriesForUpdate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `UPDATE countries SET updated = true, last_update_attempt = now()`)
	if err != nil {
		return fmt.Errorf("mark countries for update: %w", err)
	}
	return nil
}

func (s *pgStore) ClearCountryUpdated(ctx context.Context, countryID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE countries SET updated = false WHERE id = $1`, countryID)
	if err != nil {
		return fmt.Errorf("clear updated flag for country %d: %w", countryID, err)
	}
	return nil
}

// MarkStaleCountriesFailed implements the [MarkedForUpdate] -> Failed
// transition for any country still flagged updated=true once import
// finishes (spec §4.8 state machine).
func (s *pgStore) MarkStaleCountriesFailed(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE countries SET update_failed = true WHERE updated = true`)
	if err != nil {
		return 0, fmt.Errorf("mark stale countries failed: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *pgStore) UpsertCountry(ctx context.Context, c model.Country) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO countries (id, name_en, name_local, updated, last_update_attempt, update_failed)
		VALUES ($1, $2, $3, false, $4, false)
		ON CONFLICT (id) DO UPDATE SET
			name_en = EXCLUDED.name_en,
			name_local = EXCLUDED.name_local,
			updated = false,
			update_failed = false
	`, c.ID, c.NameEn, c.NameLocal, c.LastUpdateAttempt)
	if err != nil {
		return fmt.Errorf("upsert country %d: %w", c.ID, err)
	}
	return nil
}

// AffectedNoteCountryRefresh re-runs get_country(lat, lon) only for notes
// whose current country is in countryIDs, or whose coordinates fall inside
// one of those countries' bounding boxes (spec §4.8 (b)) — it deliberately
// avoids a full-table scan by using the spatial index via the bbox
// predicate before the exact polygon test inside get_country.
func (s *pgStore) AffectedNoteCountryRefresh(ctx context.Context, countryIDs []int64) (int, error) {
	if len(countryIDs) == 0 {
		return 0, nil
	}
	const q = `
		WITH candidates AS (
			SELECT n.id, n.lat, n.lon
			FROM notes n
			WHERE n.id_country = ANY($1)
			   OR EXISTS (
				SELECT 1 FROM countries c
				WHERE c.id = ANY($1)
				  AND n.lat BETWEEN c.bbox_min_lat AND c.bbox_max_lat
				  AND n.lon BETWEEN c.bbox_min_lon AND c.bbox_max_lon
			   )
		)
		UPDATE notes n
		SET id_country = get_country(n.lat, n.lon)
		FROM candidates cand
		WHERE n.id = cand.id
		  AND n.id_country IS DISTINCT FROM get_country(cand.lat, cand.lon)
	`
	tag, err := s.pool.Exec(ctx, q, countryIDs)
	if err != nil {
		return 0, fmt.Errorf("affected note country refresh: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *pgStore) InstallCountryLookupStub(ctx context.Context) error {
	const q = `
		CREATE OR REPLACE FUNCTION get_country(lat double precision, lon double precision)
		RETURNS bigint AS $$
			SELECT NULL::bigint
		$$ LANGUAGE sql IMMUTABLE`
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("install get_country stub: %w", err)
	}
	return nil
}

func (s *pgStore) InstallCountryLookupSpatial(ctx context.Context) error {
	const q = `
		CREATE OR REPLACE FUNCTION get_country(lat double precision, lon double precision)
		RETURNS bigint AS $$
			SELECT c.id FROM countries c
			WHERE ST_Contains(c.geom, ST_SetSRID(ST_MakePoint(lon, lat), 4326))
			ORDER BY ST_Area(c.geom) ASC
			LIMIT 1
		$$ LANGUAGE sql STABLE`
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("install get_country spatial: %w", err)
	}
	return nil
}

func (s *pgStore) BulkAssignCountries(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `UPDATE notes SET id_country = get_country(lat, lon) WHERE id_country IS NULL`)
	if err != nil {
		return fmt.Errorf("bulk assign countries: %w", err)
	}
	return nil
}
