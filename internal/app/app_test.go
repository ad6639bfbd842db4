package app

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-alerts/internal/config"
	"token-alerts/internal/notify"
	"token-alerts/internal/storage"
)

func hourlyStats(n int) []storage.IngestionStat {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	stats := make([]storage.IngestionStat, n)
	for i := range stats {
		stats[i] = storage.IngestionStat{
			Bucket: start.Add(time.Duration(i) * time.Hour),
			Total:  int64(i + 1),
			Scams:  int64(i % 3),
			Risky:  int64(i % 2),
		}
	}
	return stats
}

func TestDownsampleStats(t *testing.T) {
	stats := hourlyStats(10)

	assert.Len(t, downsampleStats(stats, 0), 10)
	assert.Len(t, downsampleStats(stats, 20), 10)

	one := downsampleStats(stats, 1)
	require.Len(t, one, 1)
	assert.Equal(t, stats[0], one[0])

	four := downsampleStats(stats, 4)
	require.Len(t, four, 4)
	assert.Equal(t, stats[0], four[0])
	assert.Equal(t, stats[9], four[3], "last bucket is always kept")
}

func TestWriteStatsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stats.csv")
	require.NoError(t, writeStatsCSV(path, hourlyStats(2)))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"bucket_ts", "total", "scams", "risky"}, records[0])
	assert.Equal(t, []string{"2024-05-01T01:00:00Z", "2", "1", "1"}, records[2])
}

func TestNewSenderWithoutBotTokenOnlyLogs(t *testing.T) {
	a := NewApp(&config.Config{}, zerolog.Nop())

	sender := a.newSender(nil)
	_, ok := sender.(*logSender)
	require.True(t, ok)
	assert.NoError(t, sender.Send(context.Background(), "42", "<b>hello</b>"))
}

func TestNewLimiterHonoursConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Notify.RatePerSecond = 30
	cfg.Notify.Limiter = "local"
	a := NewApp(cfg, zerolog.Nop())

	_, ok := a.newLimiter(nil).(*notify.WindowLimiter)
	assert.True(t, ok)

	cfg.Notify.Limiter = "redis"
	_, ok = a.newLimiter(nil).(*notify.RedisLimiter)
	assert.True(t, ok)
}

func TestSanitizeAndTruncate(t *testing.T) {
	assert.Equal(t, "a b c", sanitizeInline("a\nb\rc"))
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}

func TestNotifierSchedules(t *testing.T) {
	cfg := &config.Config{}
	cfg.Notify.CacheRefresh = 10 * time.Minute
	cfg.Notify.CacheStartupDelay = 3 * time.Second
	cfg.Notify.StateLogInterval = 5 * time.Minute
	a := NewApp(cfg, zerolog.Nop())

	refresh := a.cacheRefreshSchedule()
	assert.Equal(t, 10*time.Minute, refresh.Interval)
	assert.Equal(t, 3*time.Second, refresh.StartupDelay)
	assert.True(t, refresh.RunAtStart)
	assert.False(t, refresh.AlignToStart)

	state := a.stateLogSchedule()
	assert.Equal(t, 5*time.Minute, state.Interval)
	assert.True(t, state.AlignToStart)
	assert.False(t, state.RunAtStart)
}
