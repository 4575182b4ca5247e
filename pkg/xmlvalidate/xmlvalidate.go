// Package xmlvalidate implements the size-adaptive validator that gates
// every XML document (API fetch or Planet dump) before it reaches the
// splitter. Small files get full decode-and-check validation; large files
// get a single streaming pass that checks well-formedness plus sampled
// date/coordinate sanity, keeping memory bounded regardless of input size.
package xmlvalidate

import (
	"bufio"
	"context"
	"encoding/xml"
	"io"
	"os"
	"time"

	nerrors "github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/errors"
)

// Mode names which document kind is being validated (API fetch or Planet
// dump). Validate applies the same checks in both modes; no schema is
// checked for either.
type Mode int

const (
	ModeAPI Mode = iota
	ModePlanet
)

// Config controls the adaptive thresholds and sanity bounds.
type Config struct {
	// FullValidationThresholdBytes is the file-size cutoff below which
	// every note is decoded and checked; above it, only a sample is.
	FullValidationThresholdBytes int64

	// SampleEvery checks date/coordinate sanity on every Nth note once
	// streaming mode kicks in, instead of all of them.
	SampleEvery int

	// MinEpoch rejects any date timestamp before this instant.
	MinEpoch time.Time

	// Now is overridable for tests; defaults to time.Now at call time.
	Now func() time.Time
}

// DefaultConfig returns the thresholds notesd runs with in production.
func DefaultConfig() Config {
	return Config{
		FullValidationThresholdBytes: 10 * 1024 * 1024, // 10 MiB
		SampleEvery:                  50,
		MinEpoch:                     time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Result is the outcome of a successful Validate call.
type Result struct {
	NoteCount int
	Streamed  bool
}

// rawNote mirrors xmlsplit.decodedNote's attribute-form schema exactly —
// both stages must agree on where dates live, or date sanity checking
// here silently validates nothing.
type rawNote struct {
	XMLName  xml.Name     `xml:"note"`
	Lat      *float64     `xml:"lat,attr"`
	Lon      *float64     `xml:"lon,attr"`
	Created  string       `xml:"created_at,attr"`
	Closed   string       `xml:"closed_at,attr"`
	Comments []rawComment `xml:"comments>comment"`
}

type rawComment struct {
	Date string `xml:"date,attr"`
}

// Validate streams path, choosing full or sampled sanity checks based on
// file size, and returns the note count the splitter must later reproduce
// exactly (spec invariant: extractor count == validator count).
func Validate(ctx context.Context, path string, mode Mode, cfg Config) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, nerrors.New(nerrors.CodeDataValidation, nerrors.KindDataValidation,
				"verify the download step completed", err, "xml file not found: %s", path)
		}
		return Result{}, nerrors.New(nerrors.CodeDataValidation, nerrors.KindDataValidation,
			"check filesystem permissions", err, "stat xml file: %s", path)
	}

	full := info.Size() < cfg.FullValidationThresholdBytes
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}

	f, err := os.Open(path)
	if err != nil {
		return Result{}, nerrors.New(nerrors.CodeDataValidation, nerrors.KindDataValidation,
			"check filesystem permissions", err, "open xml file: %s", path)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 256*1024)
	dec := xml.NewDecoder(br)

	var (
		sawDecl     bool
		sawRoot     bool
		openTags    int
		noteCount   int
		minEpoch    = cfg.MinEpoch
		sampleEvery = cfg.SampleEvery
	)
	if sampleEvery <= 0 {
		sampleEvery = 1
	}

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, nerrors.New(nerrors.CodeDataValidation, nerrors.KindDataValidation,
				"inspect the source for malformed XML", err, "xml decode error at offset %d", dec.InputOffset())
		}

		switch t := tok.(type) {
		case xml.ProcInst:
			if t.Target == "xml" {
				sawDecl = true
			}
		case xml.StartElement:
			if !sawRoot {
				sawRoot = true
			}
			openTags++
			if t.Name.Local == "note" {
				noteCount++
				checkThis := full || noteCount%sampleEvery == 0
				if checkThis {
					var n rawNote
					if err := dec.DecodeElement(&n, &t); err != nil {
						return Result{}, nerrors.DataValidation(err, "decode note element")
					}
					openTags-- // DecodeElement consumed the matching EndElement too
					if err := validateNote(n, minEpoch, now()); err != nil {
						return Result{}, err
					}
					continue
				}
			}
		case xml.EndElement:
			openTags--
		}
	}

	if !sawDecl {
		return Result{}, nerrors.DataValidation(nil, "missing xml declaration")
	}
	if !sawRoot {
		return Result{}, nerrors.DataValidation(nil, "missing root element")
	}
	if openTags != 0 {
		return Result{}, nerrors.DataValidation(nil, "unbalanced open/close tags (delta %d)", openTags)
	}

	return Result{NoteCount: noteCount, Streamed: !full}, nil
}

func validateNote(n rawNote, minEpoch, now time.Time) error {
	if n.Lat == nil || n.Lon == nil {
		return nerrors.DataValidation(nil, "note missing coordinates")
	}
	if *n.Lat < -90 || *n.Lat > 90 {
		return nerrors.DataValidation(nil, "latitude %f out of range", *n.Lat)
	}
	if *n.Lon < -180 || *n.Lon > 180 {
		return nerrors.DataValidation(nil, "longitude %f out of range", *n.Lon)
	}

	dates := []string{n.Created, n.Closed}
	for _, c := range n.Comments {
		dates = append(dates, c.Date)
	}
	for _, raw := range dates {
		if raw == "" {
			continue
		}
		t, err := parseDate(raw)
		if err != nil {
			return nerrors.DataValidation(err, "unparseable date %q", raw)
		}
		if t.After(now) {
			return nerrors.DataValidation(nil, "date %q is in the future", raw)
		}
		if t.Before(minEpoch) {
			return nerrors.DataValidation(nil, "date %q precedes configured epoch %s", raw, minEpoch)
		}
	}
	return nil
}

func parseDate(raw string) (time.Time, error) {
	layouts := []string{time.RFC3339, "2006-01-02 15:04:05 MST", "2006-01-02T15:04:05Z"}
	var lastErr error
	for _, l := range layouts {
		if t, err := time.Parse(l, raw); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}
