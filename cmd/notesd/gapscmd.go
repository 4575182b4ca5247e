package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/gapreport"
)

var gapsLimit int

var gapsCmd = &cobra.Command{
	Use:   "gaps",
	Short: "Show recent gap records (notes with no comments) from the local gap-report store",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := gapreport.Open(cfg.BaseDir)
		if err != nil {
			return err
		}
		defer s.Close()

		records, err := s.Recent(gapsLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No gap records recorded")
			return nil
		}
		for _, r := range records {
			fmt.Printf("%s  kind=%s  count=%d\n", r.ObservedAt.Format("2006-01-02T15:04:05Z07:00"), r.Kind, r.Count)
		}
		return nil
	},
}

func init() {
	gapsCmd.Flags().IntVar(&gapsLimit, "limit", 20, "Maximum number of records to show")
}
