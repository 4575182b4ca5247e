package overpass

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiff_DetectsAddedChangedRemoved(t *testing.T) {
	baseline := Baseline{
		IDs:    []int64{1, 2, 3},
		Hashes: map[int64]string{1: "h1", 2: "h2", 3: "h3"},
	}
	current := []int64{1, 2, 4}
	currentHashes := map[int64]string{1: "h1", 2: "h2-changed", 4: "h4"}

	diff := Diff(baseline, current, currentHashes)
	assert.Equal(t, []int64{4}, diff.Added)
	assert.Equal(t, []int64{2}, diff.Changed)
	assert.Equal(t, []int64{3}, diff.Removed)
	assert.False(t, diff.Empty())
}

func TestDiff_NoChangesIsEmpty(t *testing.T) {
	baseline := Baseline{IDs: []int64{1}, Hashes: map[int64]string{1: "h1"}}
	diff := Diff(baseline, []int64{1}, map[int64]string{1: "h1"})
	assert.True(t, diff.Empty())
}
