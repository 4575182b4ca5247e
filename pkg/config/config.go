// Package config reads the recognized configuration surface (spec §6.7):
// environment variables first, with an optional YAML file supplying the
// static, rarely-changed values (DSNs, filesystem base paths). No other
// option is honored anywhere in the codebase.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full recognized configuration surface.
type Config struct {
	// Ambient
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	// spec §6.7
	Clean                  bool `yaml:"clean"`
	MaxThreads             int  `yaml:"max_threads"`
	MaxNotes               int  `yaml:"max_notes"`
	DaemonSleepInterval    time.Duration `yaml:"daemon_sleep_interval"`
	SkipXMLValidation      bool `yaml:"skip_xml_validation"`
	SkipAutoLoadCountries  bool `yaml:"skip_auto_load_countries"`
	SendAlertEmail         bool `yaml:"send_alert_email"`

	// resource envelope defaults (spec §5)
	PartNoteCap            int           `yaml:"part_note_cap"`
	RetryAttempts          int           `yaml:"retry_attempts"`
	RetryDelay             time.Duration `yaml:"retry_delay"`
	MaxConsecutiveErrors   int           `yaml:"max_consecutive_errors"`
	ValidatorCPUCapPercent int           `yaml:"validator_cpu_cap_percent"`
	ValidatorMemCapBytes   int64         `yaml:"validator_mem_cap_bytes"`
	HTTPProbeTimeout       time.Duration `yaml:"http_probe_timeout"`
	HTTPFetchTimeout       time.Duration `yaml:"http_fetch_timeout"`

	// filesystem layout (spec §6.6)
	BaseDir     string `yaml:"base_dir"`
	ProcessName string `yaml:"process_name"`

	// external collaborators
	PostgresDSN       string `yaml:"postgres_dsn"`
	OSMAPIBaseURL     string `yaml:"osm_api_base_url"`
	PlanetDumpURL     string `yaml:"planet_dump_url"`
	OverpassURL       string `yaml:"overpass_url"`
	UserAgent         string `yaml:"user_agent"`
	GeometryImporter  string `yaml:"geometry_importer_bin"`
	BoundaryBaselineDir string `yaml:"boundary_baseline_dir"`

	Environment string `yaml:"environment"` // "prod" | "test"
}

// Default returns the resource-envelope defaults from spec §5.
func Default() Config {
	return Config{
		LogLevel:               "info",
		MaxThreads:             4,
		MaxNotes:               10000,
		DaemonSleepInterval:    60 * time.Second,
		PartNoteCap:            100000,
		RetryAttempts:          3,
		RetryDelay:             2 * time.Second,
		MaxConsecutiveErrors:   5,
		ValidatorCPUCapPercent: 25,
		ValidatorMemCapBytes:   2 << 30, // 2 GiB
		HTTPProbeTimeout:       10 * time.Second,
		HTTPFetchTimeout:       10 * time.Minute,
		BaseDir:                "/var/lib/notesd",
		ProcessName:            "notesd",
		UserAgent:              "OSM-Notes-Ingestion/1.0 (+https://github.com/OSM-Notes)",
		GeometryImporter:       "ogr2ogr",
		Environment:            "prod",
	}
}

// LoadFile merges a YAML file's values on top of the defaults. Missing file
// is not an error; the defaults and environment variables still apply.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays recognized environment variables on top of cfg. Env
// always wins over the YAML file, matching the original tool's precedence.
func (c Config) ApplyEnv() Config {
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookupBool("LOG_JSON"); ok {
		c.LogJSON = v
	}
	if v, ok := lookupBool("CLEAN"); ok {
		c.Clean = v
	}
	if v, ok := lookupInt("MAX_THREADS"); ok {
		c.MaxThreads = v
	}
	if v, ok := lookupInt("MAX_NOTES"); ok {
		c.MaxNotes = v
	}
	if v, ok := os.LookupEnv("DAEMON_SLEEP_INTERVAL"); ok {
		if secs, err := strconv.Atoi(v); err == nil {
			c.DaemonSleepInterval = time.Duration(secs) * time.Second
		}
	}
	if v, ok := lookupBool("SKIP_XML_VALIDATION"); ok {
		c.SkipXMLValidation = v
	}
	if v, ok := lookupBool("SKIP_AUTO_LOAD_COUNTRIES"); ok {
		c.SkipAutoLoadCountries = v
	}
	if v, ok := lookupBool("SEND_ALERT_EMAIL"); ok {
		c.SendAlertEmail = v
	}
	if v, ok := os.LookupEnv("NOTES_PG_DSN"); ok {
		c.PostgresDSN = v
	}
	if v, ok := os.LookupEnv("NOTES_BASE_DIR"); ok {
		c.BaseDir = v
	}
	if v, ok := os.LookupEnv("NOTES_ENV"); ok {
		c.Environment = v
	}
	return c
}

func lookupBool(key string) (bool, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func lookupInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// WorkerCount computes the worker count formula from spec §5:
// min(MAX_THREADS, ceil(totalNotes / partCap)).
func (c Config) WorkerCount(totalNotes int) int {
	if totalNotes <= 0 {
		return 1
	}
	needed := (totalNotes + c.PartNoteCap - 1) / c.PartNoteCap
	if needed < 1 {
		needed = 1
	}
	if needed > c.MaxThreads {
		return c.MaxThreads
	}
	return needed
}
