package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/bootstrap"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/log"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/xmlvalidate"
)

var bootstrapBaseMode bool

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Load notes from the OSM Planet dump",
	Long: `Bootstrap loads the full Planet Notes dump into the database.

With --base it rebuilds from scratch (drops staging, reapplies migrations,
reseeds country boundaries). Without it, it runs Sync mode: a routine full
reload against an already-bootstrapped schema.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.WithComponent("bootstrap")
		ctx := cmd.Context()

		return withProcessLock("bootstrap", func(processID string) error {
			if err := gateOnPreviousFailure(postgresProbeOK(ctx)); err != nil {
				return err
			}

			conns, err := openConnections(ctx)
			if err != nil {
				return err
			}
			defer conns.Close()

			b := newBoundaryManager(conns.Store)
			deps := bootstrap.Deps{
				Store:         conns.Store,
				Pool:          conns.Pool,
				DB:            conns.DB,
				MigrationsDir: cfg.BaseDir + "/migrations",
				Planet:        newPlanetDownloader(),
				PlanetPath:    cfg.BaseDir + "/planet-notes-latest.osn",
				SplitDir:      cfg.BaseDir + "/split",
				Concurrency:   cfg.MaxThreads,
				PartCap:       cfg.PartNoteCap,
				ValidateCfg:   xmlvalidate.DefaultConfig(),
			}

			if bootstrapBaseMode {
				result, err := bootstrap.RunBase(ctx, deps, b)
				if err != nil {
					return err
				}
				logger.Info().
					Str("process_id", processID).
					Int("notes_loaded", result.NotesLoaded).
					Int("boundary_count", result.BoundaryCount).
					Msg("base bootstrap complete")
				fmt.Printf("Base bootstrap complete: %d notes loaded, %d boundaries imported\n",
					result.NotesLoaded, result.BoundaryCount)
				return nil
			}

			result, err := bootstrap.RunSync(ctx, deps, b, false)
			if err != nil {
				return err
			}
			logger.Info().Str("process_id", processID).Int("notes_loaded", result.NotesLoaded).Msg("sync bootstrap complete")
			fmt.Printf("Sync bootstrap complete: %d notes loaded\n", result.NotesLoaded)
			return nil
		})
	},
}

func init() {
	bootstrapCmd.Flags().BoolVar(&bootstrapBaseMode, "base", false, "Rebuild from scratch instead of a routine reload")
}
