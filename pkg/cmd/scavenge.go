package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/octavia/pkg/app"
	octx "github.com/yeisme/octavia/pkg/context"
	"github.com/yeisme/octavia/pkg/internal/storage"
)

var scavengeCmd = &cobra.Command{
	Use:   "scavenge",
	Short: "run one retention pass and exit",
	Long:  "Remove audio files of tracks past the retention window and backfill missing purchase links.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		mgr, err := storage.New(cmd.Context(), cfg, storage.Options{SkipMQ: true})
		if err != nil {
			return err
		}
		defer mgr.Close()

		ctx := octx.WithStorageManager(cmd.Context(), mgr)

		svc, err := app.NewTrackService(ctx, cfg, octx.GetManager(ctx))
		if err != nil {
			return err
		}

		report, err := svc.Scavenge(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(),
			"candidates=%d scavenged=%d files_missing=%d backfilled=%d failed=%d staging_swept=%d duration=%s\n",
			report.Candidates, report.Scavenged, report.FilesMissing, report.Backfilled,
			report.Failed, report.StagingSwept, report.Duration)

		return nil
	},
}

func registerScavengeCommands() {
	rootCmd.AddCommand(scavengeCmd)
}
