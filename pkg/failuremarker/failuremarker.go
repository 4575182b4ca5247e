// Package failuremarker implements the crash-safe failure record that gates
// re-runs (spec §4.2, C2): a present marker stops the Daemon Loop and batch
// entry points from starting until an operator clears it, except for the
// InternetIssue self-heal rule.
package failuremarker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	nerrors "github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/errors"
)

// Record is the persisted content of a marker file.
type Record struct {
	ScriptName     string    `json:"script_name"`
	Code           int       `json:"code"`
	Kind           string    `json:"kind"`
	Message        string    `json:"message"`
	RequiredAction string    `json:"required_action"`
	PID            int       `json:"pid"`
	TempDir        string    `json:"temp_dir"`
	WrittenAt      time.Time `json:"written_at"`
}

func primaryPath(baseDir, scriptName string) string {
	return filepath.Join(baseDir, "markers", scriptName+".failure.json")
}

func fallbackPath(scriptName string) string {
	return filepath.Join(os.TempDir(), "notesd-"+scriptName+".failure.json")
}

// Write persists a Record, trying the primary path under baseDir first and
// falling back to a per-script path under the OS temp dir if that fails
// (e.g. the base dir's filesystem is unavailable) — the crash-safety
// guarantee from spec §4.2.
func Write(baseDir, scriptName string, fault *nerrors.Fault, tempDir string) error {
	rec := Record{
		ScriptName:     scriptName,
		Code:           int(fault.Code),
		Kind:           string(fault.Kind),
		Message:        fault.Message,
		RequiredAction: fault.RequiredAction,
		PID:            os.Getpid(),
		TempDir:        tempDir,
		WrittenAt:      time.Now().UTC(),
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal failure marker: %w", err)
	}

	primary := primaryPath(baseDir, scriptName)
	if err := os.MkdirAll(filepath.Dir(primary), 0o755); err == nil {
		if err := os.WriteFile(primary, b, 0o644); err == nil {
			return nil
		}
	}

	fb := fallbackPath(scriptName)
	if err := os.WriteFile(fb, b, 0o644); err != nil {
		return fmt.Errorf("write failure marker (both primary and fallback failed): %w", err)
	}
	return nil
}

// Check looks for an existing marker, primary path first.
func Check(baseDir, scriptName string) (Record, bool, error) {
	for _, p := range []string{primaryPath(baseDir, scriptName), fallbackPath(scriptName)} {
		b, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Record{}, false, fmt.Errorf("read failure marker %s: %w", p, err)
		}
		var rec Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return Record{}, false, fmt.Errorf("corrupt failure marker %s: %w", p, err)
		}
		return rec, true, nil
	}
	return Record{}, false, nil
}

// Clear removes markers at both the primary and fallback paths.
func Clear(baseDir, scriptName string) error {
	var firstErr error
	for _, p := range []string{primaryPath(baseDir, scriptName), fallbackPath(scriptName)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SelfHealable reports whether rec is of the kind the daemon is permitted to
// auto-clear on startup (spec §4.2, §7): only InternetIssue, and only when
// a fresh liveness probe (caller-supplied) now succeeds.
func SelfHealable(rec Record) bool {
	return rec.Kind == string(nerrors.KindInternetIssue)
}
