package loader

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/workerpool"
)

// LoadParts runs LoadPart over every part with bounded concurrency,
// fail-fast: the first part that errors cancels the rest (spec §4.6 "After
// all workers succeed, the Consolidator runs" implies none may partially
// land without the others completing too).
func LoadParts(ctx context.Context, pool *pgxpool.Pool, parts []Part, concurrency int) ([]Result, error) {
	return workerpool.RunValues(ctx, len(parts), concurrency, func(ctx context.Context, i int) (Result, error) {
		return LoadPart(ctx, pool, parts[i])
	})
}
