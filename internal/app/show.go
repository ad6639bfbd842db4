package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints queue depths and the head of the dead-letter list.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	client, err := a.openRedis(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	q := a.newQueue(client)
	stats, err := q.Stats(ctx)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Queue\tRetry\tFailed\tNotifications")
	fmt.Fprintf(writer, "%d\t%d\t%d\t%d\n", stats.Queue, stats.Retry, stats.Failed, stats.Notifications)
	writer.Flush()

	letters, err := q.DeadLetters(ctx, int64(opts.Limit))
	if err != nil {
		return err
	}
	if len(letters) == 0 {
		fmt.Fprintln(os.Stdout, "\nno dead letters")
		return nil
	}

	fmt.Fprintln(os.Stdout)
	writer = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Event ID\tType\tChain\tTarget\tRetries\tLast Retry (UTC)\tError")
	for _, letter := range letters {
		if letter.Job == nil {
			fmt.Fprintf(writer, "-\tmalformed\t-\t-\t-\t-\t%s\n", sanitizeInline(truncate(letter.Raw, 80)))
			continue
		}
		job := letter.Job
		lastRetry := "-"
		if job.LastRetryAt != nil {
			lastRetry = job.LastRetryAt.UTC().Format(time.RFC3339)
		}
		target := job.Target()
		if target == "" {
			target = job.Pair()
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			job.EventID,
			job.EventType,
			job.ChainID,
			target,
			job.RetryCount,
			lastRetry,
			sanitizeInline(job.LastError),
		)
	}

	writer.Flush()
	return nil
}

// Replay moves dead letters back onto the work queue.
func (a *App) Replay(ctx context.Context, limit int) error {
	client, err := a.openRedis(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	replayed, skipped, err := a.newQueue(client).ReplayDeadLetters(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "replayed %d dead letters (%d malformed left in place)\n", replayed, skipped)
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func truncate(v string, n int) string {
	if len(v) <= n {
		return v
	}
	return v[:n] + "..."
}
