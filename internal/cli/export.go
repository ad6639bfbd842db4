package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"token-alerts/internal/app"
)

var (
	exportSince  string
	exportUntil  string
	exportLast   time.Duration
	exportChart  string
	exportTable  string
	exportBucket int
)

// exportCmd dumps the hourly ingestion buckets (total, scams, risky) kept by the worker.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump hourly token ingestion buckets to CSV and/or a PNG chart",
	Long: `Reads the hourly ingestion counters (tokens seen, scams, risky tokens)
from Postgres and writes them as CSV rows and/or a line chart.
The window defaults to the last 7 days.`,
	Example: `  tokenalerts export --last 48h --csv out/ingestion.csv
  tokenalerts export --since 2024-05-01 --until 2024-05-08 --png out/ingestion.png`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := buildExportOptions(time.Now().UTC())
		if err != nil {
			return err
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

func buildExportOptions(now time.Time) (app.ExportOptions, error) {
	opts := app.ExportOptions{
		PNGPath:   exportChart,
		CSVPath:   exportTable,
		MaxPoints: exportBucket,
	}

	if exportLast > 0 && exportSince != "" {
		return opts, errors.New("--last and --since cannot be combined")
	}

	if exportUntil != "" {
		until, err := parseBucketTime(exportUntil)
		if err != nil {
			return opts, fmt.Errorf("invalid --until value: %w", err)
		}
		opts.To = &until
	}

	switch {
	case exportSince != "":
		since, err := parseBucketTime(exportSince)
		if err != nil {
			return opts, fmt.Errorf("invalid --since value: %w", err)
		}
		opts.From = &since
	case exportLast > 0:
		end := now
		if opts.To != nil {
			end = *opts.To
		}
		since := end.Add(-exportLast)
		opts.From = &since
	}

	return opts, nil
}

// parseBucketTime accepts RFC3339 or a bare UTC date.
func parseBucketTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation(time.DateOnly, v, time.UTC)
}

func init() {
	exportCmd.Flags().StringVar(&exportSince, "since", "", "First ingestion bucket to include (RFC3339 or YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportUntil, "until", "", "End of the window, exclusive (RFC3339 or YYYY-MM-DD, default now)")
	exportCmd.Flags().DurationVar(&exportLast, "last", 0, "Window length ending at --until, e.g. 48h")
	exportCmd.Flags().StringVar(&exportChart, "png", "", "Write a line chart of the buckets to this path")
	exportCmd.Flags().StringVar(&exportTable, "csv", "", "Write bucket rows to this path")
	exportCmd.Flags().IntVar(&exportBucket, "max-points", 0, "Downsample to at most this many buckets (default export.max_data_points)")
}
