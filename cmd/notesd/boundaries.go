package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/log"
)

var boundariesUpdate bool

var boundariesCmd = &cobra.Command{
	Use:   "boundaries",
	Short: "Inspect or refresh country/maritime boundary geometry",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.WithComponent("boundary")
		ctx := cmd.Context()

		if !boundariesUpdate {
			return nil
		}

		return withProcessLock("boundaries", func(processID string) error {
			if err := gateOnPreviousFailure(postgresProbeOK(ctx)); err != nil {
				return err
			}

			conns, err := openConnections(ctx)
			if err != nil {
				return err
			}
			defer conns.Close()

			b := newBoundaryManager(conns.Store)
			importResult, err := b.Import(ctx)
			if err != nil {
				return err
			}

			affected, err := b.RegeoTag(ctx, importResult.Diff)
			if err != nil {
				return err
			}

			logger.Info().
				Str("process_id", processID).
				Int("added", len(importResult.Diff.Added)).
				Int("changed", len(importResult.Diff.Changed)).
				Int("removed", len(importResult.Diff.Removed)).
				Int("notes_regeotagged", affected).
				Msg("boundary refresh complete")

			fmt.Printf("Boundary refresh: %d added, %d changed, %d removed; %d notes re-geotagged\n",
				len(importResult.Diff.Added), len(importResult.Diff.Changed), len(importResult.Diff.Removed), affected)
			return nil
		})
	},
}

func init() {
	boundariesCmd.Flags().BoolVar(&boundariesUpdate, "update", false, "Download and apply the latest boundary geometry")
}
