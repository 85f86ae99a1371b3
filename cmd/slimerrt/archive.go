package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dbechrd/slimerrt/pkg/archive"
	"github.com/dbechrd/slimerrt/pkg/chat"
	"github.com/spf13/cobra"
)

func archiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Browse archived chat transcripts",
		Long: `Browse the chat transcripts the server saves to S3 on shutdown.

The bucket, prefix, region and endpoint come from the archive
section of slimerrt.json or SLIMERRT_ARCHIVE_* variables.
Credentials come from AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.`,
	}

	cmd.AddCommand(archiveListCmd(), archiveShowCmd())
	return cmd
}

func openArchive() (*archive.Archiver, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := newArchiver(cfg, logger)
	if a == nil {
		return nil, errors.New("no archive bucket configured")
	}
	return a, nil
}

func archiveListCmd() *cobra.Command {
	var day string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived transcripts",
		Long: `List archived transcripts, optionally only those saved on one UTC day.

Examples:
  slimerrt archive list
  slimerrt archive list --day=2026-03-04`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var when time.Time
			if day != "" {
				var err error
				if when, err = time.Parse(time.DateOnly, day); err != nil {
					return fmt.Errorf("invalid --day: %w", err)
				}
			}

			a, err := openArchive()
			if err != nil {
				return err
			}
			objects, err := a.ListChat(cmd.Context(), when)
			if err != nil {
				return err
			}
			if len(objects) == 0 {
				warn("No transcripts found")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tSIZE\tMODIFIED")
			for _, obj := range objects {
				fmt.Fprintf(w, "%s\t%d\t%s\n", obj.Key, obj.Size, obj.Modified.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&day, "day", "", "Only list transcripts from this UTC day (YYYY-MM-DD)")
	return cmd
}

func archiveShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <key>",
		Short: "Print an archived transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive()
			if err != nil {
				return err
			}
			lines, err := a.LoadChat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, l := range lines {
				fmt.Fprintf(out, "%s %s\n", l.Timestamp.Format(time.DateTime), chat.Format(l.Value))
			}
			return nil
		},
	}
}
