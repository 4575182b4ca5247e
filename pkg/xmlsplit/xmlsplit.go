// Package xmlsplit implements C5: splitting a validated notes XML document
// into N well-formed part files, then extracting each part into the three
// CSV streams the Parallel Loader bulk-copies into staging. Both stages are
// streaming (constant memory per part) and never buffer a whole document.
package xmlsplit

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"

	nerrors "github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/errors"
)

// PartNoteCap is the default per-part note ceiling (spec §5 default 100000).
const PartNoteCap = 100_000

// PlanPartCount implements the clamping formula from spec §4.5: the
// requested part count is increased, never decreased, so that no part
// exceeds cap notes.
func PlanPartCount(totalNotes, requestedParts, cap int) int {
	if cap <= 0 {
		cap = PartNoteCap
	}
	if requestedParts <= 0 {
		requestedParts = 1
	}
	minParts := (totalNotes + cap - 1) / cap
	if minParts < 1 {
		minParts = 1
	}
	if requestedParts < minParts {
		return minParts
	}
	return requestedParts
}

// Split reads the root element of src and distributes its <note> children
// round-robin across n part files under outDir, each wrapped in the same
// root element name so every part remains independently well-formed. It
// returns the part file paths in order and the total note count seen,
// which must equal the count the validator already established.
func Split(ctx context.Context, src io.Reader, outDir string, n int) ([]string, int, error) {
	if n <= 0 {
		n = 1
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, 0, nerrors.General(err, "create split output dir %s", outDir)
	}

	dec := xml.NewDecoder(bufio.NewReaderSize(src, 256*1024))

	var rootName xml.Name
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, 0, nerrors.DataValidation(err, "locate root element while splitting")
		}
		if se, ok := tok.(xml.StartElement); ok {
			rootName = se.Name
			break
		}
	}

	writers := make([]*partWriter, n)
	paths := make([]string, n)
	for i := 0; i < n; i++ {
		path := filepath.Join(outDir, fmt.Sprintf("part-%04d.xml", i))
		paths[i] = path
		w, err := newPartWriter(path, rootName.Local)
		if err != nil {
			return nil, 0, err
		}
		writers[i] = w
	}
	defer func() {
		for _, w := range writers {
			if w != nil {
				w.Close()
			}
		}
	}()

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, nerrors.DataValidation(err, "xml decode error while splitting at offset %d", dec.InputOffset())
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "note" {
			continue
		}

		var raw noteElement
		if err := dec.DecodeElement(&raw, &se); err != nil {
			return nil, 0, nerrors.DataValidation(err, "decode note element while splitting")
		}

		target := writers[total%n]
		if err := target.WriteNote(raw); err != nil {
			return nil, 0, err
		}
		total++
	}

	for _, w := range writers {
		if err := w.Finish(); err != nil {
			return nil, 0, err
		}
	}
	return paths, total, nil
}

// noteElement is captured generically (raw inner XML) so Split never needs
// to know the full note schema — only Extract decodes attributes.
type noteElement struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   []byte     `xml:",innerxml"`
}

type partWriter struct {
	f        *os.File
	bw       *bufio.Writer
	rootName string
}

func newPartWriter(path, rootName string) (*partWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nerrors.General(err, "create part file %s", path)
	}
	bw := bufio.NewWriter(f)
	if _, err := fmt.Fprintf(bw, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<%s>\n", rootName); err != nil {
		f.Close()
		return nil, nerrors.General(err, "write part header %s", path)
	}
	return &partWriter{f: f, bw: bw, rootName: rootName}, nil
}

func (w *partWriter) WriteNote(n noteElement) error {
	enc := xml.NewEncoder(w.bw)
	if err := enc.Encode(n); err != nil {
		return nerrors.General(err, "write note to part file")
	}
	return enc.Flush()
}

func (w *partWriter) Finish() error {
	if _, err := fmt.Fprintf(w.bw, "\n</%s>\n", w.rootName); err != nil {
		return nerrors.General(err, "write part footer")
	}
	if err := w.bw.Flush(); err != nil {
		return nerrors.General(err, "flush part file")
	}
	return w.f.Close()
}

func (w *partWriter) Close() {
	_ = w.f.Close()
}

// ExtractedPaths are the three CSV streams one part produces.
type ExtractedPaths struct {
	Notes    string
	Comments string
	Text     string
}

// Extract streams partPath into three CSVs in outDir, named after the part
// file's base name. It returns constant memory per part: one note's
// comments are buffered at a time, never the whole document.
func Extract(ctx context.Context, partPath, outDir string) (ExtractedPaths, int, error) {
	base := fileBase(partPath)
	paths := ExtractedPaths{
		Notes:    filepath.Join(outDir, base+".notes.csv"),
		Comments: filepath.Join(outDir, base+".comments.csv"),
		Text:     filepath.Join(outDir, base+".text.csv"),
	}

	notesF, err := os.Create(paths.Notes)
	if err != nil {
		return paths, 0, nerrors.General(err, "create notes csv %s", paths.Notes)
	}
	defer notesF.Close()
	commentsF, err := os.Create(paths.Comments)
	if err != nil {
		return paths, 0, nerrors.General(err, "create comments csv %s", paths.Comments)
	}
	defer commentsF.Close()
	textF, err := os.Create(paths.Text)
	if err != nil {
		return paths, 0, nerrors.General(err, "create text csv %s", paths.Text)
	}
	defer textF.Close()

	notesW := csv.NewWriter(notesF)
	commentsW := csv.NewWriter(commentsF)
	textW := csv.NewWriter(textF)

	src, err := os.Open(partPath)
	if err != nil {
		return paths, 0, nerrors.General(err, "open part file %s", partPath)
	}
	defer src.Close()

	dec := xml.NewDecoder(bufio.NewReaderSize(src, 256*1024))
	count := 0

	for {
		if err := ctx.Err(); err != nil {
			return paths, 0, err
		}
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return paths, 0, nerrors.DataValidation(err, "xml decode error while extracting %s", partPath)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "note" {
			continue
		}

		var n decodedNote
		if err := dec.DecodeElement(&n, &se); err != nil {
			return paths, 0, nerrors.DataValidation(err, "decode note while extracting")
		}

		if err := notesW.Write(n.notesRow()); err != nil {
			return paths, 0, nerrors.General(err, "write notes csv row")
		}
		for i, c := range n.Comments {
			seq := i + 1
			if err := commentsW.Write(c.commentRow(n.ID, seq)); err != nil {
				return paths, 0, nerrors.General(err, "write comments csv row")
			}
			if c.Text != "" {
				if err := textW.Write([]string{fmt.Sprint(n.ID), fmt.Sprint(seq), c.Text}); err != nil {
					return paths, 0, nerrors.General(err, "write text csv row")
				}
			}
		}
		count++
	}

	notesW.Flush()
	commentsW.Flush()
	textW.Flush()
	if err := notesW.Error(); err != nil {
		return paths, 0, nerrors.General(err, "flush notes csv")
	}
	if err := commentsW.Error(); err != nil {
		return paths, 0, nerrors.General(err, "flush comments csv")
	}
	if err := textW.Error(); err != nil {
		return paths, 0, nerrors.General(err, "flush text csv")
	}

	return paths, count, nil
}

type decodedNote struct {
	XMLName  xml.Name         `xml:"note"`
	ID       int64            `xml:"id,attr"`
	Lat      float64          `xml:"lat,attr"`
	Lon      float64          `xml:"lon,attr"`
	Created  string           `xml:"created_at,attr"`
	Closed   string           `xml:"closed_at,attr"`
	Status   string           `xml:"status,attr"`
	Comments []decodedComment `xml:"comments>comment"`
}

type decodedComment struct {
	Action string `xml:"action,attr"`
	Date   string `xml:"date,attr"`
	UID    string `xml:"uid,attr"`
	User   string `xml:"user,attr"`
	Text   string `xml:"text"`
}

func (n decodedNote) notesRow() []string {
	return []string{
		fmt.Sprint(n.ID),
		fmt.Sprintf("%f", n.Lat),
		fmt.Sprintf("%f", n.Lon),
		n.Created,
		n.Closed,
		n.Status,
	}
}

func (c decodedComment) commentRow(noteID int64, sequence int) []string {
	return []string{
		fmt.Sprint(noteID),
		c.Action,
		c.Date,
		c.UID,
		c.User,
		fmt.Sprint(sequence),
	}
}

func fileBase(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}
