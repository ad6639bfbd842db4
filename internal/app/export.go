package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"token-alerts/internal/storage"
)

// Export renders the hourly ingestion counters as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, err := a.openPostgres(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-7 * 24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	stats, err := store.ListIngestionStats(ctx, from, to)
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		a.Logger.Info().Msg("no ingestion stats found for export window")
		return nil
	}

	downsampled := downsampleStats(stats, opts.MaxPoints)
	a.Logger.Info().Int("total", len(stats)).Int("exported", len(downsampled)).Msg("exporting ingestion stats")

	if opts.CSVPath != "" {
		if err := writeStatsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeStatsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleStats(stats []storage.IngestionStat, max int) []storage.IngestionStat {
	if max <= 0 || len(stats) <= max {
		return stats
	}
	if max == 1 {
		return stats[:1]
	}

	result := make([]storage.IngestionStat, 0, max)
	step := float64(len(stats)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(stats) {
			idx = len(stats) - 1
		}
		result = append(result, stats[idx])
	}
	return result
}

func writeStatsCSV(path string, stats []storage.IngestionStat) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"bucket_ts", "total", "scams", "risky"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, st := range stats {
		record := []string{
			st.Bucket.UTC().Format(time.RFC3339),
			strconv.FormatInt(st.Total, 10),
			strconv.FormatInt(st.Scams, 10),
			strconv.FormatInt(st.Risky, 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeStatsPNG(path string, stats []storage.IngestionStat) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(stats))
	total := make([]float64, len(stats))
	scams := make([]float64, len(stats))
	risky := make([]float64, len(stats))

	for i, st := range stats {
		x[i] = st.Bucket
		total[i] = float64(st.Total)
		scams[i] = float64(st.Scams)
		risky[i] = float64(st.Risky)
	}

	countFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Tokens per hour",
			ValueFormatter: countFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Total",
				XValues: x,
				YValues: total,
			},
			chart.TimeSeries{
				Name:    "Scams",
				XValues: x,
				YValues: scams,
			},
			chart.TimeSeries{
				Name:    "Risky",
				XValues: x,
				YValues: risky,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
