// Package loader implements C6: bulk-loading one part's three CSV streams
// into its matching staging partition, one transaction per part, using
// pgx's binary COPY path for throughput. Workers are independent and
// fail-fast — see pkg/workerpool for the pool this package is driven by.
package loader

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	nerrors "github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/errors"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/xmlsplit"
)

// Part is one partition's load inputs: the CSV paths Extract produced and
// the staging table names the Consolidator will later dedupe from.
type Part struct {
	CSVs           xmlsplit.ExtractedPaths
	NotesTable     string
	CommentsTable  string
	TextTable      string
}

// Result is per-part load bookkeeping used for logging and metrics.
type Result struct {
	NotesLoaded    int64
	CommentsLoaded int64
	TextLoaded     int64
	Duration       time.Duration
}

// LoadPart copies one part's three CSVs into its matching staging tables
// inside a single transaction: any row failure aborts the whole part
// (on_error_stop), matching the C5 fail-fast contract one level down.
func LoadPart(ctx context.Context, pool *pgxpool.Pool, p Part) (Result, error) {
	start := time.Now()
	tx, err := pool.Begin(ctx)
	if err != nil {
		return Result{}, nerrors.General(err, "begin load transaction for part")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	notesN, err := copyCSV(ctx, tx, p.CSVs.Notes, p.NotesTable,
		[]string{"id", "lat", "lon", "created_at", "closed_at", "status"}, notesRow)
	if err != nil {
		return Result{}, err
	}
	commentsN, err := copyCSV(ctx, tx, p.CSVs.Comments, p.CommentsTable,
		[]string{"note_id", "action", "at", "user_id", "user_name", "sequence"}, commentsRow)
	if err != nil {
		return Result{}, err
	}
	textN, err := copyCSV(ctx, tx, p.CSVs.Text, p.TextTable,
		[]string{"note_id", "sequence", "body"}, textRow)
	if err != nil {
		return Result{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, nerrors.General(err, "commit load transaction for part")
	}

	return Result{
		NotesLoaded:    notesN,
		CommentsLoaded: commentsN,
		TextLoaded:     textN,
		Duration:       time.Since(start),
	}, nil
}

type rowConverter func(record []string) ([]any, error)

func copyCSV(ctx context.Context, tx pgx.Tx, path, table string, columns []string, convert rowConverter) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nerrors.General(err, "open csv %s for load", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true

	src := &csvCopySource{reader: r, convert: convert}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, src)
	if err != nil {
		return 0, nerrors.PlanetDumpFailed(err, "bulk copy into %s", table)
	}
	return n, nil
}

// csvCopySource adapts an encoding/csv.Reader to pgx.CopyFromSource so the
// whole load streams row by row instead of materializing the CSV in memory.
type csvCopySource struct {
	reader  *csv.Reader
	convert rowConverter
	current []any
	err     error
}

func (s *csvCopySource) Next() bool {
	record, err := s.reader.Read()
	if err == io.EOF {
		return false
	}
	if err != nil {
		s.err = nerrors.General(err, "read csv record")
		return false
	}
	row, err := s.convert(record)
	if err != nil {
		s.err = err
		return false
	}
	s.current = row
	return true
}

func (s *csvCopySource) Values() ([]any, error) { return s.current, s.err }
func (s *csvCopySource) Err() error              { return s.err }

func notesRow(rec []string) ([]any, error) {
	id, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil {
		return nil, nerrors.DataValidation(err, "load: bad note id %q", rec[0])
	}
	lat, err := strconv.ParseFloat(rec[1], 64)
	if err != nil {
		return nil, nerrors.DataValidation(err, "load: bad lat %q", rec[1])
	}
	lon, err := strconv.ParseFloat(rec[2], 64)
	if err != nil {
		return nil, nerrors.DataValidation(err, "load: bad lon %q", rec[2])
	}
	var closedAt any
	if rec[4] != "" {
		closedAt = rec[4]
	}
	return []any{id, lat, lon, rec[3], closedAt, rec[5]}, nil
}

func commentsRow(rec []string) ([]any, error) {
	noteID, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil {
		return nil, nerrors.DataValidation(err, "load: bad comment note_id %q", rec[0])
	}
	seq, err := strconv.ParseInt(rec[5], 10, 32)
	if err != nil {
		return nil, nerrors.DataValidation(err, "load: bad sequence %q", rec[5])
	}
	var userID any
	if rec[3] != "" {
		userID = rec[3]
	}
	var userName any
	if rec[4] != "" {
		userName = rec[4]
	}
	return []any{noteID, rec[1], rec[2], userID, userName, int32(seq)}, nil
}

func textRow(rec []string) ([]any, error) {
	noteID, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil {
		return nil, nerrors.DataValidation(err, "load: bad text note_id %q", rec[0])
	}
	seq, err := strconv.ParseInt(rec[1], 10, 32)
	if err != nil {
		return nil, nerrors.DataValidation(err, "load: bad text sequence %q", rec[1])
	}
	return []any{noteID, int32(seq), rec[2]}, nil
}
