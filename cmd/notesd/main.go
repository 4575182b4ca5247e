// Command notesd ingests OpenStreetMap Notes into a PostGIS-backed database:
// a one-shot bootstrap from the Planet dump, an incremental API sync cycle,
// boundary refreshes, and a daemon loop tying all three together.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/config"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/log"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

var cfgFile string
var cfg config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:     "notesd",
	Short:   "OSM Notes ingestion daemon",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("notesd version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initConfigAndLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(boundariesCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(gapsCmd)
}

func initConfigAndLogging() {
	loaded, err := config.LoadFile(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(int(exitCodeForLoadFailure))
	}
	cfg = loaded.ApplyEnv()

	if v, _ := rootCmd.PersistentFlags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := rootCmd.PersistentFlags().GetBool("log-json"); v {
		cfg.LogJSON = v
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})

	if cfg.SkipAutoLoadCountries && cfg.Environment != "test" {
		log.WithComponent("config").Warn().Msg("SKIP_AUTO_LOAD_COUNTRIES is a test affordance and is set outside NOTES_ENV=test")
	}
}
