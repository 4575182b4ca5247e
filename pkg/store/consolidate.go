package store

import (
	"context"
	"fmt"
	"time"
)

// DeduplicateAndUpsert implements Consolidator steps 2-4 (spec §4.7):
// dedupe each staging partition against main into a "filtered" temp table,
// then upsert notes and comments, then insert text rows that have a
// matching comment in main.
//
// Conflict policy (spec §9 Open Question, decided here): for notes,
// "on conflict (id) do update ... when the incoming row is newer by
// updated_at" — implemented as a WHERE guard on the UPDATE so an
// incoming row with an equal-or-older updated_at is a no-op, i.e. ties
// go to "do nothing". For comments, "on conflict (note_id, sequence) do
// nothing" per spec, since a comment's content is immutable once
// assigned a sequence number.
func (s *pgStore) DeduplicateAndUpsert(ctx context.Context, partitions int, apiMode bool) (Summary, error) {
	kind := "sync"
	if apiMode {
		kind = "api"
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("begin consolidation tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op if committed

	if _, err := tx.Exec(ctx, `
		CREATE TEMP TABLE IF NOT EXISTS filtered_notes (LIKE notes INCLUDING DEFAULTS) ON COMMIT DROP
	`); err != nil {
		return Summary{}, fmt.Errorf("create filtered_notes: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		CREATE TEMP TABLE IF NOT EXISTS filtered_comments (LIKE note_comments INCLUDING DEFAULTS) ON COMMIT DROP
	`); err != nil {
		return Summary{}, fmt.Errorf("create filtered_comments: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		CREATE TEMP TABLE IF NOT EXISTS filtered_text (LIKE note_comment_text INCLUDING DEFAULTS) ON COMMIT DROP
	`); err != nil {
		return Summary{}, fmt.Errorf("create filtered_text: %w", err)
	}

	for i := 0; i < partitions; i++ {
		notesT, commentsT, textT := s.StagingPartitionNames(kind, i)

		if _, err := tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO filtered_notes
			SELECT stg.* FROM %s stg
			LEFT JOIN notes n ON n.id = stg.id
			WHERE n.id IS NULL OR stg.updated_at > n.updated_at
		`, notesT)); err != nil {
			return Summary{}, fmt.Errorf("dedupe notes partition %d: %w", i, err)
		}

		if _, err := tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO filtered_comments
			SELECT stg.* FROM %s stg
			LEFT JOIN note_comments c ON c.note_id = stg.note_id AND c.sequence = stg.sequence
			WHERE c.note_id IS NULL
		`, commentsT)); err != nil {
			return Summary{}, fmt.Errorf("dedupe comments partition %d: %w", i, err)
		}

		if _, err := tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO filtered_text
			SELECT stg.* FROM %s stg
		`, textT)); err != nil {
			return Summary{}, fmt.Errorf("stage text partition %d: %w", i, err)
		}
	}

	notesTag, err := tx.Exec(ctx, `
		INSERT INTO notes (id, lat, lon, created_at, closed_at, status, updated_at)
		SELECT id, lat, lon, created_at, closed_at, status, updated_at FROM filtered_notes
		ON CONFLICT (id) DO UPDATE SET
			closed_at = EXCLUDED.closed_at,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		WHERE EXCLUDED.updated_at > notes.updated_at
	`)
	if err != nil {
		return Summary{}, fmt.Errorf("upsert notes: %w", err)
	}

	commentsTag, err := tx.Exec(ctx, `
		INSERT INTO note_comments (note_id, sequence, action, at, user_id, user_name)
		SELECT note_id, sequence, action, at, user_id, user_name FROM filtered_comments
		ON CONFLICT (note_id, sequence) DO NOTHING
	`)
	if err != nil {
		return Summary{}, fmt.Errorf("upsert comments: %w", err)
	}

	textTag, err := tx.Exec(ctx, `
		INSERT INTO note_comment_text (note_id, sequence, body)
		SELECT ft.note_id, ft.sequence, ft.body
		FROM filtered_text ft
		JOIN note_comments c ON c.note_id = ft.note_id AND c.sequence = ft.sequence
		ON CONFLICT (note_id, sequence) DO NOTHING
	`)
	if err != nil {
		return Summary{}, fmt.Errorf("insert text: %w", err)
	}

	var maxUpdated time.Time
	if err := tx.QueryRow(ctx, `
		SELECT GREATEST(
			COALESCE((SELECT max(updated_at) FROM filtered_notes), 'epoch'::timestamptz),
			COALESCE((SELECT max(at) FROM filtered_comments), 'epoch'::timestamptz)
		)
	`).Scan(&maxUpdated); err != nil {
		return Summary{}, fmt.Errorf("compute max updated_at: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Summary{}, fmt.Errorf("commit consolidation tx: %w", err)
	}

	return Summary{
		NotesUpserted:    int(notesTag.RowsAffected()),
		CommentsInserted: int(commentsTag.RowsAffected()),
		TextInserted:     int(textTag.RowsAffected()),
		MaxUpdatedAt:     maxUpdated,
	}, nil
}
