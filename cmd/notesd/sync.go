package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/apisync"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/bootstrap"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/log"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/xmlvalidate"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one API Sync Orchestrator cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.WithComponent("apisync")
		ctx := cmd.Context()

		return withProcessLock("api-sync", func(processID string) error {
			api := newOSMAPIClient()
			if err := gateOnPreviousFailure(func() bool {
				return api.Checker().Check(ctx).Healthy
			}); err != nil {
				return err
			}

			conns, err := openConnections(ctx)
			if err != nil {
				return err
			}
			defer conns.Close()

			escalate := buildEscalateFunc(conns)

			outcome, err := apisync.Run(ctx, conns.Store, api, escalate, apisync.Config{
				MaxNotes:    cfg.MaxNotes,
				WorkDir:     cfg.BaseDir + "/api-sync",
				Pool:        conns.Pool,
				ValidateCfg: xmlvalidate.DefaultConfig(),
			})
			if err != nil {
				return err
			}

			logger.Info().
				Str("process_id", processID).
				Bool("skipped", outcome.Skipped).
				Bool("escalated", outcome.EscalatedToPlanet).
				Int("notes_processed", outcome.NotesProcessed).
				Msg("api sync cycle complete")

			switch {
			case outcome.Skipped:
				fmt.Println("No update candidates; cycle skipped")
			case outcome.EscalatedToPlanet:
				fmt.Printf("Delta too large, escalated to Planet reload: %d notes\n", outcome.NotesProcessed)
			default:
				fmt.Printf("Sync cycle complete: %d notes processed\n", outcome.NotesProcessed)
			}
			return nil
		})
	},
}

// buildEscalateFunc wires apisync's injected escalation hook to bootstrap's
// Sync mode, so apisync never imports bootstrap directly.
func buildEscalateFunc(conns *connections) apisync.EscalateFunc {
	return func(ctx context.Context) (int, error) {
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
		result, err := bootstrap.RunSync(ctx, deps, b, false)
		if err != nil {
			return 0, err
		}
		return result.NotesLoaded, nil
	}
}
