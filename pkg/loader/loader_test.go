package loader

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCSVReader(t *testing.T, body string) *csv.Reader {
	t.Helper()
	return csv.NewReader(strings.NewReader(body))
}

func TestNotesRow_ParsesAndNullsEmptyClosedAt(t *testing.T) {
	row, err := notesRow([]string{"1", "48.8", "2.3", "2023-01-01T00:00:00Z", "", "open"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), row[0])
	assert.Equal(t, 48.8, row[1])
	assert.Nil(t, row[4])
	assert.Equal(t, "open", row[5])
}

func TestNotesRow_RejectsBadID(t *testing.T) {
	_, err := notesRow([]string{"not-a-number", "1", "1", "2023-01-01T00:00:00Z", "", "open"})
	assert.Error(t, err)
}

func TestCommentsRow_NullsEmptyAuthorFields(t *testing.T) {
	row, err := commentsRow([]string{"1", "opened", "2023-01-01T00:00:00Z", "", "", "1"})
	require.NoError(t, err)
	assert.Nil(t, row[3])
	assert.Nil(t, row[4])
	assert.Equal(t, int32(1), row[5])
}

func TestCommentsRow_KeepsAuthorWhenPresent(t *testing.T) {
	row, err := commentsRow([]string{"1", "commented", "2023-01-01T00:00:00Z", "42", "alice", "2"})
	require.NoError(t, err)
	assert.Equal(t, "42", row[3])
	assert.Equal(t, "alice", row[4])
}

func TestTextRow_ParsesSequenceAsInt32(t *testing.T) {
	row, err := textRow([]string{"1", "3", "hello world"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), row[0])
	assert.Equal(t, int32(3), row[1])
	assert.Equal(t, "hello world", row[2])
}

func TestCsvCopySource_IteratesAllRowsThenStops(t *testing.T) {
	r := newTestCSVReader(t, "1,48.8,2.3,2023-01-01T00:00:00Z,,open\n2,1.0,1.0,2023-01-02T00:00:00Z,2023-01-03T00:00:00Z,closed\n")
	src := &csvCopySource{reader: r, convert: notesRow}

	var rows [][]any
	for src.Next() {
		v, err := src.Values()
		require.NoError(t, err)
		rows = append(rows, v)
	}
	require.NoError(t, src.Err())
	assert.Len(t, rows, 2)
}
