package boundary

import (
	"fmt"
	"os"

	nerrors "github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/errors"
)

func createTempGeoJSON(relationID int64) (*os.File, error) {
	f, err := os.CreateTemp("", fmt.Sprintf("boundary-%d-*.geojson", relationID))
	if err != nil {
		return nil, nerrors.General(err, "create temp geometry file for relation %d", relationID)
	}
	return f, nil
}

func removeTemp(path string) {
	_ = os.Remove(path)
}
