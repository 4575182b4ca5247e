// Package daemon implements C11: the single-threaded cooperative loop that
// drives Base/Sync bootstrap and the API Sync Orchestrator, with signal
// handling, a consecutive-error circuit breaker, and the sleep-interval
// computation from spec §4.11.
package daemon

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/apisync"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/bootstrap"
	nerrors "github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/errors"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/failuremarker"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/log"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/metrics"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/store"
)

// Config bounds the daemon's scheduling and breaker behavior.
type Config struct {
	TargetInterval       time.Duration
	MaxConsecutiveErrors int
	BaseDir              string
	ScriptName           string
	TempDir              string
}

// Collaborators bundles the per-cycle callables the loop invokes; Daemon
// itself never imports apisync/bootstrap's HTTP or SQL internals directly.
type Collaborators struct {
	Store          store.Store
	RunBase        func(ctx context.Context) (bootstrap.BaseResult, error)
	RunAPISync     func(ctx context.Context) (apisync.Outcome, error)
	ShutdownFlag   func() bool // checks for the shutdown-flag file
	ClearShutdown  func() error
}

// Daemon runs the loop described in spec §4.11.
type Daemon struct {
	cfg     Config
	collab  Collaborators
	breaker *gobreaker.CircuitBreaker
	errors  int64

	lastCycleDuration time.Duration
	lastWatermark     time.Time
	startedAt         time.Time
	logs              *log.RingBuffer
}

// New constructs a Daemon ready to Run.
func New(cfg Config, collab Collaborators, logs *log.RingBuffer) *Daemon {
	d := &Daemon{cfg: cfg, collab: collab, startedAt: time.Now(), logs: logs}
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "api-sync-cycle",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.TargetInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			max := cfg.MaxConsecutiveErrors
			if max <= 0 {
				max = 5
			}
			return counts.ConsecutiveFailures >= uint32(max)
		},
	})
	return d
}

// RunOnce executes exactly one iteration of the loop (spec §4.11 "Per
// iteration" steps 1-6), returning whether the daemon should keep looping
// and how long to sleep before the next call.
func (d *Daemon) RunOnce(ctx context.Context) (keepGoing bool, sleepFor time.Duration, err error) {
	if d.collab.ShutdownFlag() {
		if cerr := d.collab.ClearShutdown(); cerr != nil {
			return false, 0, nerrors.General(cerr, "remove shutdown flag")
		}
		return false, 0, nil
	}

	cycleStart := time.Now()

	missing, err := bootstrap.CheckTablesExist(ctx, d.collab.Store)
	if err != nil {
		return false, 0, err
	}
	if missing != bootstrap.TablesExistYes {
		result, err := d.collab.RunBase(ctx)
		if err != nil {
			if fatal := d.recordFailure(err); fatal != nil {
				return false, 0, fatal
			}
			return true, d.cfg.TargetInterval, nil
		}
		log.WithComponent("daemon").Info().Int("notes_loaded", result.NotesLoaded).Msg("base mode complete")
		d.resetErrors()
		return true, d.cfg.TargetInterval, nil
	}

	var outcome apisync.Outcome
	_, execErr := d.breaker.Execute(func() (any, error) {
		o, err := d.collab.RunAPISync(ctx)
		outcome = o
		return o, err
	})

	d.lastCycleDuration = time.Since(cycleStart)
	metrics.CycleDuration.Observe(d.lastCycleDuration.Seconds())

	if execErr != nil {
		metrics.CyclesTotal.WithLabelValues("failure").Inc()
		return true, d.cfg.TargetInterval, d.recordFailure(execErr)
	}

	metrics.CyclesTotal.WithLabelValues("success").Inc()
	d.resetErrors()
	if !outcome.Watermark.IsZero() {
		d.lastWatermark = outcome.Watermark
	}

	sleep := d.cfg.TargetInterval - d.lastCycleDuration
	if sleep < 0 {
		sleep = 0
	}
	return true, sleep, nil
}

func (d *Daemon) recordFailure(err error) error {
	n := atomic.AddInt64(&d.errors, 1)
	metrics.ConsecutiveErrors.Set(float64(n))

	fault := nerrors.AsFault(err)
	max := d.cfg.MaxConsecutiveErrors
	if max <= 0 {
		max = 5
	}
	if int(n) >= max {
		_ = failuremarker.Write(d.cfg.BaseDir, d.cfg.ScriptName, fault, d.cfg.TempDir)
		metrics.BreakerOpen.Set(1)
		return fault
	}
	return nil
}

func (d *Daemon) resetErrors() {
	atomic.StoreInt64(&d.errors, 0)
	metrics.ConsecutiveErrors.Set(0)
	metrics.BreakerOpen.Set(0)
}

// ConsecutiveErrors reports the current streak, for status snapshots.
func (d *Daemon) ConsecutiveErrors() int { return int(atomic.LoadInt64(&d.errors)) }

// Uptime reports how long the daemon has been running.
func (d *Daemon) Uptime() time.Duration { return time.Since(d.startedAt) }

// StatusSnapshot is what SIGUSR1 logs (spec §4.11 "uptime, last watermark,
// last cycle duration, recent log lines").
type StatusSnapshot struct {
	Uptime            time.Duration
	LastCycleDuration time.Duration
	LastWatermark     time.Time
	ConsecutiveErrors int
	RecentLogLines    []string
}

// Snapshot builds a StatusSnapshot for the SIGUSR1 handler.
func (d *Daemon) Snapshot() StatusSnapshot {
	var lines []string
	if d.logs != nil {
		lines = d.logs.Lines()
	}
	return StatusSnapshot{
		Uptime:            d.Uptime(),
		LastCycleDuration: d.lastCycleDuration,
		LastWatermark:     d.lastWatermark,
		ConsecutiveErrors: d.ConsecutiveErrors(),
		RecentLogLines:    lines,
	}
}

// ShutdownFlagPath is the well-known per-instance path SIGTERM/SIGINT
// create, and what a fresh loop iteration checks for.
func ShutdownFlagPath(baseDir string) string {
	return baseDir + "/shutdown.flag"
}

// DefaultShutdownFlagChecker returns a ShutdownFlag func bound to baseDir.
func DefaultShutdownFlagChecker(baseDir string) func() bool {
	return func() bool {
		_, err := os.Stat(ShutdownFlagPath(baseDir))
		return err == nil
	}
}

// DefaultClearShutdown returns a ClearShutdown func bound to baseDir.
func DefaultClearShutdown(baseDir string) func() error {
	return func() error {
		err := os.Remove(ShutdownFlagPath(baseDir))
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
}
