// Package model defines the domain entities replicated from the OSM Notes
// dataset: notes, their comment history, and the country/maritime
// boundaries used to geotag them.
package model

import "time"

// NoteStatus is the lifecycle state of a Note.
type NoteStatus string

const (
	NoteOpen   NoteStatus = "open"
	NoteClosed NoteStatus = "closed"
	NoteHidden NoteStatus = "hidden"
)

// CommentAction is the event type carried by a NoteComment.
type CommentAction string

const (
	ActionOpened    CommentAction = "opened"
	ActionCommented CommentAction = "commented"
	ActionClosed    CommentAction = "closed"
	ActionReopened  CommentAction = "reopened"
	ActionHidden    CommentAction = "hidden"
)

// Note is a single geotagged OSM note.
type Note struct {
	ID        int64
	Lat       float64
	Lon       float64
	CreatedAt time.Time
	ClosedAt  *time.Time
	Status    NoteStatus
	CountryID *int64
}

// NoteComment is one event in a note's history.
type NoteComment struct {
	NoteID     int64
	Sequence   int32
	Action     CommentAction
	At         time.Time
	UserID     *int64
	UserName   *string
}

// NoteCommentText is the free-text body attached to a comment, when present.
type NoteCommentText struct {
	NoteID   int64
	Sequence int32
	Body     string
}

// Country is a sovereign country or maritime zone polygon used to geotag
// notes. Geometry itself is opaque here (owned by the SQL/PostGIS layer);
// the Go side only needs identity and the transient refresh-state fields.
type Country struct {
	ID                 int64
	NameEn             string
	NameLocal          string
	Updated            bool
	LastUpdateAttempt  *time.Time
	UpdateFailed       bool
}

// Watermark is the single-row high-water mark used as the lower bound for
// the next incremental API fetch.
type Watermark struct {
	Timestamp time.Time
}

// GapKind enumerates the integrity defects the Consolidator can observe.
type GapKind string

const (
	GapNoComments GapKind = "note_without_comments"
)

// GapRecord is a recorded data-integrity smell.
type GapRecord struct {
	ObservedAt time.Time
	Kind       GapKind
	Count      int
	Total      int
	Percent    float64
	Unprocessed bool
}

// BoundaryRevisionDiff is the transient result of comparing the Overpass
// id/geometry set against what is stored locally. It is never persisted;
// it only drives one Boundary Manager pass.
type BoundaryRevisionDiff struct {
	Added   []int64 // ids present in Overpass but missing locally
	Changed []int64 // ids whose geometry hash differs from the baseline
	Removed []int64 // ids present locally but no longer reported by Overpass
}

// Empty reports whether the diff requires no action.
func (d BoundaryRevisionDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Changed) == 0 && len(d.Removed) == 0
}

// AffectedIDs returns the set of country ids a re-geotag pass must consider:
// anything added or whose geometry changed.
func (d BoundaryRevisionDiff) AffectedIDs() []int64 {
	out := make([]int64, 0, len(d.Added)+len(d.Changed))
	out = append(out, d.Added...)
	out = append(out, d.Changed...)
	return out
}
