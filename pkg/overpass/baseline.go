package overpass

import (
	"encoding/json"
	"io"
	"os"
	"sort"

	nerrors "github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/errors"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/model"
)

// FixedDisputedAndAntarcticIDs augments the Overpass country set with
// well-known relation ids Overpass's administrative-boundary query alone
// does not reliably return (spec §4.8(a)). Values are OSM relation ids for
// Antarctica and a handful of long-disputed territories.
var FixedDisputedAndAntarcticIDs = []int64{
	3394112, // Antarctica
	1803923, // Western Sahara
	2177161, // Kosovo
	307787,  // Somaliland
}

// Baseline is the repository-shipped GeoJSON snapshot of known boundaries,
// keyed by relation id, along with a content hash used to detect geometry
// drift without re-downloading unchanged boundaries.
type Baseline struct {
	IDs      []int64          `json:"ids"`
	Hashes   map[int64]string `json:"hashes"`
}

// LoadBaseline reads the baseline file from path.
func LoadBaseline(path string) (Baseline, error) {
	f, err := os.Open(path)
	if err != nil {
		return Baseline{}, nerrors.General(err, "open boundary baseline %s", path)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return Baseline{}, nerrors.General(err, "read boundary baseline %s", path)
	}
	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return Baseline{}, nerrors.General(err, "parse boundary baseline %s", path)
	}
	return b, nil
}

// Diff compares the current Overpass id set (plus per-id content hashes,
// when already known locally) against the baseline, producing the
// BoundaryRevisionDiff the import flow acts on.
func Diff(baseline Baseline, currentIDs []int64, currentHashes map[int64]string) model.BoundaryRevisionDiff {
	baseSet := map[int64]bool{}
	for _, id := range baseline.IDs {
		baseSet[id] = true
	}
	curSet := map[int64]bool{}
	for _, id := range currentIDs {
		curSet[id] = true
	}

	var diff model.BoundaryRevisionDiff
	for _, id := range currentIDs {
		if !baseSet[id] {
			diff.Added = append(diff.Added, id)
			continue
		}
		if baseline.Hashes[id] != currentHashes[id] {
			diff.Changed = append(diff.Changed, id)
		}
	}
	for _, id := range baseline.IDs {
		if !curSet[id] {
			diff.Removed = append(diff.Removed, id)
		}
	}

	sort.Slice(diff.Added, func(i, j int) bool { return diff.Added[i] < diff.Added[j] })
	sort.Slice(diff.Changed, func(i, j int) bool { return diff.Changed[i] < diff.Changed[j] })
	sort.Slice(diff.Removed, func(i, j int) bool { return diff.Removed[i] < diff.Removed[j] })
	return diff
}
