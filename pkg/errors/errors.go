// Package errors implements the closed error taxonomy (spec §4.12): every
// exit path of notesd returns a *Fault carrying one of a fixed set of exit
// codes, so trap handlers and the previous-failure gate never have to guess
// at a cause from an ad-hoc error string.
package errors

import (
	"fmt"

	faster "github.com/go-faster/errors"
)

// Code is one of the closed set of exit codes in spec §4.12.
type Code int

const (
	CodeHelpShown               Code = 1
	CodePreviousExecutionFailed Code = 238
	CodeMissingLibrary          Code = 241
	CodeInvalidArgument         Code = 242
	CodeLoggerMissing           Code = 243
	CodeDownloadIDsFailed       Code = 244
	CodeNoWatermark             Code = 245
	CodePlanetProcessRunning    Code = 246
	CodePlanetDumpFailed        Code = 248
	CodeBoundaryDownloadFailed  Code = 249
	CodeDataValidation          Code = 250
	CodeInternetIssue           Code = 251
	CodeGeneral                 Code = 255
)

// Kind is the human name paired with a Code; it is what gets persisted in a
// Failure Marker and matched against the previous-failure self-heal rule.
type Kind string

const (
	KindHelpShown               Kind = "HelpShown"
	KindPreviousExecutionFailed Kind = "PreviousExecutionFailed"
	KindMissingLibrary          Kind = "MissingLibraryOrCommand"
	KindInvalidArgument         Kind = "InvalidArgument"
	KindLoggerMissing           Kind = "LoggerMissing"
	KindDownloadIDsFailed       Kind = "DownloadIdsFailed"
	KindNoWatermark             Kind = "NoWatermark"
	KindPlanetProcessRunning    Kind = "PlanetProcessRunning"
	KindPlanetDumpFailed        Kind = "PlanetDumpExecutionFailed"
	KindBoundaryDownloadFailed  Kind = "BoundaryDownloadFailed"
	KindDataValidation          Kind = "DataValidation"
	KindInternetIssue           Kind = "InternetIssue"
	KindGeneral                 Kind = "General"
)

var retryableByDaemon = map[Kind]bool{
	KindDownloadIDsFailed:      true,
	KindPlanetProcessRunning:   true,
	KindPlanetDumpFailed:       true,
	KindBoundaryDownloadFailed: true,
	KindInternetIssue:          true,
	// DataValidation is conditional; callers decide via Retryable override.
}

// Fault is the typed error returned from every fallible operation that can
// terminate a cycle or a process.
type Fault struct {
	Code           Code
	Kind           Kind
	Message        string
	RequiredAction string
	retryable      *bool
	cause          error
}

func (f *Fault) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Fault) Unwrap() error { return f.cause }

// Retryable reports whether the daemon loop's consecutive-error counter
// should treat this as recoverable (spec §4.12 "Retryable by daemon"
// column), honoring a per-instance override set via WithRetryable.
func (f *Fault) Retryable() bool {
	if f.retryable != nil {
		return *f.retryable
	}
	return retryableByDaemon[f.Kind]
}

// WithRetryable overrides the default retryability (used for the
// conditional DataValidation case).
func (f *Fault) WithRetryable(retryable bool) *Fault {
	f.retryable = &retryable
	return f
}

// New constructs a Fault of the given kind, wrapping cause with stack
// information via go-faster/errors so the original call site survives
// logging even after several layers of propagation.
func New(code Code, kind Kind, requiredAction string, cause error, format string, args ...any) *Fault {
	msg := fmt.Sprintf(format, args...)
	var wrapped error
	if cause != nil {
		wrapped = faster.Wrap(cause, msg)
	} else {
		wrapped = faster.New(msg)
	}
	return &Fault{
		Code:           code,
		Kind:           kind,
		Message:        msg,
		RequiredAction: requiredAction,
		cause:          wrapped,
	}
}

// As-style helpers for the common cases call sites construct most often.

func InternetIssue(cause error, format string, args ...any) *Fault {
	return New(CodeInternetIssue, KindInternetIssue,
		"retry once network connectivity is restored; the daemon will self-heal on next startup probe",
		cause, format, args...)
}

func DataValidation(cause error, format string, args ...any) *Fault {
	return New(CodeDataValidation, KindDataValidation,
		"inspect the rejected XML/CSV payload and clear the failure marker once fixed",
		cause, format, args...)
}

func PlanetProcessRunning(owner string) *Fault {
	return New(CodePlanetProcessRunning, KindPlanetProcessRunning,
		"another instance holds the process lock; wait for it to finish or investigate a stale lock",
		nil, "writer already running: %s", owner)
}

func NoWatermark() *Fault {
	return New(CodeNoWatermark, KindNoWatermark,
		"run `notesd bootstrap --base` before starting the sync daemon",
		nil, "no watermark row present; base mode has not run")
}

func BoundaryDownloadFailed(cause error, boundaryID int64) *Fault {
	return New(CodeBoundaryDownloadFailed, KindBoundaryDownloadFailed,
		"check Overpass availability and retry the boundary refresh",
		cause, "failed to download boundary relation %d", boundaryID)
}

func DownloadIDsFailed(cause error) *Fault {
	return New(CodeDownloadIDsFailed, KindDownloadIDsFailed,
		"check Overpass availability; the next cycle will retry",
		cause, "failed to download boundary id list")
}

func PlanetDumpFailed(cause error, format string, args ...any) *Fault {
	return New(CodePlanetDumpFailed, KindPlanetDumpFailed,
		"inspect the Planet download/load logs for the failing stage",
		cause, format, args...)
}

func InvalidArgument(format string, args ...any) *Fault {
	return New(CodeInvalidArgument, KindInvalidArgument, "fix the invocation and retry", nil, format, args...)
}

func MissingLibrary(cause error, format string, args ...any) *Fault {
	return New(CodeMissingLibrary, KindMissingLibrary,
		"install the missing command/library and retry", cause, format, args...)
}

func General(cause error, format string, args ...any) *Fault {
	return New(CodeGeneral, KindGeneral, "inspect the log file for the failing step", cause, format, args...)
}

// AsFault extracts a *Fault from err, wrapping it as General if it is not
// already one — used at the single top-level handler per entry point.
func AsFault(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if faster.As(err, &f) {
		return f
	}
	return General(err, "unclassified failure")
}
