package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/failuremarker"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/lock"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect the process lock and failure marker",
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who holds the process lock, and any pending failure marker",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, held, err := lock.Status(cfg.BaseDir, cfg.ProcessName)
		if err != nil {
			return err
		}
		if !held {
			fmt.Println("Lock: not held")
		} else {
			fmt.Printf("Lock: held by pid %d (role=%s) since %s\n", owner.PID, owner.Role, owner.StartedAt)
		}

		rec, present, err := failuremarker.Check(cfg.BaseDir, cfg.ProcessName)
		if err != nil {
			return err
		}
		if !present {
			fmt.Println("Failure marker: none")
			return nil
		}
		fmt.Printf("Failure marker: %s — %s (written %s)\n", rec.Kind, rec.Message, rec.WrittenAt)
		fmt.Printf("  Required action: %s\n", rec.RequiredAction)
		return nil
	},
}

var lockClearCmd = &cobra.Command{
	Use:   "clear-marker",
	Short: "Clear a failure marker after resolving the underlying issue",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := failuremarker.Clear(cfg.BaseDir, cfg.ProcessName); err != nil {
			return err
		}
		fmt.Println("Failure marker cleared")
		return nil
	},
}

func init() {
	lockCmd.AddCommand(lockStatusCmd)
	lockCmd.AddCommand(lockClearCmd)
}
