// Package gapreport keeps a local BoltDB-backed history of GapRecords so
// the `notesd gaps` command can report recent data-integrity smells
// without round-tripping to Postgres — Postgres remains the source of
// truth. Only records passed to Store.Record are kept; the Consolidator's
// post-cycle gap check does not write here, so `notesd gaps` lists nothing
// from it.
package gapreport

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	bolt "go.etcd.io/bbolt"

	nerrors "github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/errors"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/model"
)

var bucketGaps = []byte("gap_records")

// Store is a BoltDB-backed append-only log of model.GapRecord snapshots,
// keyed by observation instant so ordering and retention are both free.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the gap report database under dataDir.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "gapreport.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, nerrors.General(err, "open gap report database %s", dbPath)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketGaps)
		return err
	})
	if err != nil {
		db.Close()
		return nil, nerrors.General(err, "create gap_records bucket")
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Record appends one GapRecord observation.
func (s *Store) Record(rec model.GapRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGaps)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		key := []byte(rec.ObservedAt.UTC().Format("20060102T150405.000000000"))
		return b.Put(key, data)
	})
}

// Recent returns up to n most recent GapRecords, newest first.
func (s *Store) Recent(n int) ([]model.GapRecord, error) {
	var all []model.GapRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGaps)
		return b.ForEach(func(k, v []byte) error {
			var rec model.GapRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode gap record %s: %w", k, err)
			}
			all = append(all, rec)
			return nil
		})
	})
	if err != nil {
		return nil, nerrors.General(err, "read gap records")
	}

	sort.Slice(all, func(i, j int) bool { return all[i].ObservedAt.After(all[j].ObservedAt) })
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all, nil
}
