package xmlsplit

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanPartCount_ClampsUpNeverDown(t *testing.T) {
	assert.Equal(t, 10, PlanPartCount(1_000_000, 4, 100_000))
	assert.Equal(t, 1, PlanPartCount(10, 1, 100_000))
	assert.Equal(t, 2, PlanPartCount(150_000, 1, 100_000))
	assert.Equal(t, 5, PlanPartCount(150_000, 5, 100_000))
}

func buildSampleXML(n int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><osm>`)
	for i := 1; i <= n; i++ {
		b.WriteString(fmt.Sprintf(
			`<note id="%d" lat="1.0" lon="2.0" created_at="2023-01-01T00:00:00Z" closed_at="" status="open">`+
				`<comments><comment action="opened" date="2023-01-01T00:00:00Z" uid="7" user="alice"><text>hello %d</text></comment></comments>`+
				`</note>`, i, i))
	}
	b.WriteString(`</osm>`)
	return b.String()
}

func TestSplit_DistributesAllNotesRoundRobin(t *testing.T) {
	dir := t.TempDir()
	src := strings.NewReader(buildSampleXML(10))

	paths, total, err := Split(context.Background(), src, dir, 3)
	require.NoError(t, err)
	assert.Equal(t, 10, total)
	assert.Len(t, paths, 3)

	for _, p := range paths {
		body, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(strings.TrimSpace(string(body)), "<?xml"))
		assert.Contains(t, string(body), "<osm>")
	}
}

func TestExtract_ProducesThreeCSVsWithExpectedRowCounts(t *testing.T) {
	dir := t.TempDir()
	src := strings.NewReader(buildSampleXML(5))
	paths, total, err := Split(context.Background(), src, dir, 1)
	require.NoError(t, err)
	require.Equal(t, 5, total)

	extracted, count, err := Extract(context.Background(), paths[0], dir)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	notesBody, err := os.ReadFile(extracted.Notes)
	require.NoError(t, err)
	assert.Equal(t, 5, strings.Count(string(notesBody), "\n"))

	commentsBody, err := os.ReadFile(extracted.Comments)
	require.NoError(t, err)
	assert.Equal(t, 5, strings.Count(string(commentsBody), "\n"))

	textBody, err := os.ReadFile(extracted.Text)
	require.NoError(t, err)
	assert.Equal(t, 5, strings.Count(string(textBody), "\n"))
	assert.Contains(t, string(textBody), "hello 1")
}

func TestExtract_NoteWithoutTextSkipsTextRow(t *testing.T) {
	dir := t.TempDir()
	body := `<?xml version="1.0"?><osm><note id="1" lat="1" lon="1" created_at="2023-01-01T00:00:00Z" closed_at="" status="open"></note></osm>`
	paths, total, err := Split(context.Background(), strings.NewReader(body), dir, 1)
	require.NoError(t, err)
	require.Equal(t, 1, total)

	extracted, count, err := Extract(context.Background(), paths[0], dir)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	textBody, err := os.ReadFile(extracted.Text)
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(string(textBody)))
}
