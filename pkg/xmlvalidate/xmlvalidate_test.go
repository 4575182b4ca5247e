package xmlvalidate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.xml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func fixedNow() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

func TestValidate_WellFormedSmallFile(t *testing.T) {
	body := `<?xml version="1.0" encoding="UTF-8"?>
<osm>
  <note lat="48.8" lon="2.3" created_at="2023-01-01T00:00:00Z" closed_at="">
    <comments><comment action="opened" date="2023-01-01T00:00:00Z" uid="1" user="a">hi</comment></comments>
  </note>
  <note lat="-10.5" lon="100.1" created_at="2023-02-01T00:00:00Z" closed_at="">
  </note>
</osm>`
	path := writeTemp(t, body)
	cfg := DefaultConfig()
	cfg.Now = fixedNow

	res, err := Validate(context.Background(), path, ModeAPI, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, res.NoteCount)
	assert.False(t, res.Streamed)
}

func TestValidate_ZeroNotesPasses(t *testing.T) {
	body := `<?xml version="1.0" encoding="UTF-8"?><osm></osm>`
	path := writeTemp(t, body)
	cfg := DefaultConfig()
	cfg.Now = fixedNow

	res, err := Validate(context.Background(), path, ModeAPI, cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, res.NoteCount)
}

func TestValidate_MissingDeclarationRejected(t *testing.T) {
	body := `<osm><note lat="1" lon="1" created_at="2023-01-01T00:00:00Z"></note></osm>`
	path := writeTemp(t, body)
	cfg := DefaultConfig()
	cfg.Now = fixedNow

	_, err := Validate(context.Background(), path, ModeAPI, cfg)
	assert.Error(t, err)
}

func TestValidate_LatitudeOutOfRangeRejected(t *testing.T) {
	body := `<?xml version="1.0"?><osm><note lat="90.0000001" lon="0" created_at="2023-01-01T00:00:00Z"></note></osm>`
	path := writeTemp(t, body)
	cfg := DefaultConfig()
	cfg.Now = fixedNow

	_, err := Validate(context.Background(), path, ModeAPI, cfg)
	assert.Error(t, err)
}

func TestValidate_MissingCoordinatesRejected(t *testing.T) {
	body := `<?xml version="1.0"?><osm><note created_at="2023-01-01T00:00:00Z"></note></osm>`
	path := writeTemp(t, body)
	cfg := DefaultConfig()
	cfg.Now = fixedNow

	_, err := Validate(context.Background(), path, ModeAPI, cfg)
	assert.Error(t, err)
}

func TestValidate_FutureDateRejected(t *testing.T) {
	body := `<?xml version="1.0"?><osm><note lat="1" lon="1" created_at="2099-01-01T00:00:00Z"></note></osm>`
	path := writeTemp(t, body)
	cfg := DefaultConfig()
	cfg.Now = fixedNow

	_, err := Validate(context.Background(), path, ModeAPI, cfg)
	assert.Error(t, err)
}

func TestValidate_DateBeforeEpochRejected(t *testing.T) {
	body := `<?xml version="1.0"?><osm><note lat="1" lon="1" created_at="1999-01-01T00:00:00Z"></note></osm>`
	path := writeTemp(t, body)
	cfg := DefaultConfig()
	cfg.Now = fixedNow

	_, err := Validate(context.Background(), path, ModeAPI, cfg)
	assert.Error(t, err)
}

func TestValidate_FutureCommentDateRejected(t *testing.T) {
	body := `<?xml version="1.0"?><osm><note lat="1" lon="1" created_at="2023-01-01T00:00:00Z">
		<comments><comment action="commented" date="2099-01-01T00:00:00Z" uid="1" user="a">x</comment></comments>
	</note></osm>`
	path := writeTemp(t, body)
	cfg := DefaultConfig()
	cfg.Now = fixedNow

	_, err := Validate(context.Background(), path, ModeAPI, cfg)
	assert.Error(t, err)
}

func TestValidate_StreamingModeSamplesButCountsAllNotes(t *testing.T) {
	var body string
	body = `<?xml version="1.0"?><osm>`
	for i := 0; i < 200; i++ {
		body += `<note lat="1" lon="1" created_at="2023-01-01T00:00:00Z"></note>`
	}
	body += `</osm>`
	path := writeTemp(t, body)

	cfg := DefaultConfig()
	cfg.FullValidationThresholdBytes = 10 // force streaming mode
	cfg.SampleEvery = 10
	cfg.Now = fixedNow

	res, err := Validate(context.Background(), path, ModeAPI, cfg)
	require.NoError(t, err)
	assert.Equal(t, 200, res.NoteCount)
	assert.True(t, res.Streamed)
}

func TestValidate_MissingFileReturnsNotFoundFault(t *testing.T) {
	_, err := Validate(context.Background(), "/nonexistent/path.xml", ModePlanet, DefaultConfig())
	assert.Error(t, err)
}
