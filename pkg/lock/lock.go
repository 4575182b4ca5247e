// Package lock implements the single-writer-per-process-name guarantee
// (spec §4.1, C1): an advisory file lock at a well-known path, carrying
// owner metadata so a contending operator can diagnose who holds it, with
// stale-lock reclamation when the recorded pid is no longer alive.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Owner is the metadata persisted into a lock file.
type Owner struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	TempDir   string    `json:"temp_dir"`
	Role      string    `json:"role"`
	ProcessID string    `json:"process_id"`
}

// Handle represents a held lock; Release must be called exactly once.
type Handle struct {
	path  string
	Owner Owner
}

// BusyError is returned when the lock is held by a live process.
type BusyError struct {
	Path  string
	Owner Owner
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("lock %s held by pid %d (%s) since %s", e.Path, e.Owner.PID, e.Owner.Role, e.Owner.StartedAt)
}

// pathFor returns the well-known lock file path for a process name, under
// the locks directory of the given base directory (spec §6.6).
func pathFor(baseDir, name string) string {
	return filepath.Join(baseDir, "locks", name+".lock")
}

// Acquire attempts to take the named lock. role, tempDir and processID (a
// fresh token from NewProcessID) are recorded in the lock file for
// diagnosability. The processID is not used as the database logical-lock
// token: the Consolidator's callers pass fixed per-role tokens
// ("api-sync", "bootstrap-base", "bootstrap-sync"), so the OS-level lock
// and the DB-level one do not share a token.
func Acquire(baseDir, name, role, tempDir, processID string) (*Handle, error) {
	path := pathFor(baseDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create locks dir: %w", err)
	}

	if existing, err := readOwner(path); err == nil {
		if processAlive(existing.PID) {
			return nil, &BusyError{Path: path, Owner: existing}
		}
		// Stale: the recorded pid is dead, reclaim.
	}

	owner := Owner{
		PID:       os.Getpid(),
		StartedAt: time.Now().UTC(),
		TempDir:   tempDir,
		Role:      role,
		ProcessID: processID,
	}
	if err := writeOwner(path, owner); err != nil {
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return &Handle{path: path, Owner: owner}, nil
}

// Release removes the lock file. It is a no-op if already released.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	err := os.Remove(h.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Handoff releases the lock and immediately re-acquires it under the same
// name and process id, writing fresh owner metadata (new role and start
// time) to the lock file. No command in cmd/notesd calls it: the bootstrap
// commands run the Planet load in-process inside one withProcessLock scope.
func (h *Handle) Handoff(baseDir, name, role string) (*Handle, error) {
	processID := h.Owner.ProcessID
	tempDir := h.Owner.TempDir
	if err := h.Release(); err != nil {
		return nil, err
	}
	return Acquire(baseDir, name, role, tempDir, processID)
}

// Status reads the current owner of a named lock without acquiring it, for
// diagnostic commands (`notesd lock status`).
func Status(baseDir, name string) (Owner, bool, error) {
	owner, err := readOwner(pathFor(baseDir, name))
	if os.IsNotExist(err) {
		return Owner{}, false, nil
	}
	if err != nil {
		return Owner{}, false, err
	}
	return owner, true, nil
}

// NewProcessID mints a fresh token identifying one command run's writer.
// It is recorded in the OS lock file; the `put_lock`/`remove_lock` DB calls
// use fixed per-role tokens instead.
func NewProcessID() string {
	return uuid.NewString()
}

func readOwner(path string) (Owner, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Owner{}, err
	}
	var o Owner
	if err := json.Unmarshal(b, &o); err != nil {
		return Owner{}, fmt.Errorf("corrupt lock file %s: %w", path, err)
	}
	return o, nil
}

func writeOwner(path string, owner Owner) error {
	b, err := json.MarshalIndent(owner, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// processAlive reports whether pid refers to a live process, by sending
// signal 0 (no-op signal that only checks deliverability).
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}
