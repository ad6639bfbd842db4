package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-alerts/internal/domain"
	"token-alerts/internal/storage"
)

func ptr[T any](v T) *T {
	return &v
}

func baseToken() domain.Token {
	return domain.Token{
		Address:          "0x1111111111111111111111111111111111111111",
		Blockchain:       "Ethereum",
		ChainID:          "0x1",
		Name:             "Test",
		Symbol:           "TST",
		Decimals:         ptr(uint8(18)),
		ContractVerified: ptr(true),
		SourceCode:       "contract T {}",
		Socials:          domain.Socials{Telegram: "https://t.me/test"},
		RiskLevel:        domain.RiskLow,
		Audit:            &domain.Audit{RiskLevel: domain.RiskLow},
	}
}

func TestUpsertCreatesChildIDsOnce(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	first, err := s.UpsertToken(ctx, baseToken())
	require.NoError(t, err)
	require.NotNil(t, first.SourceCodeID)
	require.NotNil(t, first.AuditID)
	require.NotNil(t, first.InformationID)

	second, err := s.UpsertToken(ctx, baseToken())
	require.NoError(t, err)
	assert.Equal(t, *first.SourceCodeID, *second.SourceCodeID)
	assert.Equal(t, *first.AuditID, *second.AuditID)
	assert.Equal(t, *first.InformationID, *second.InformationID)
}

func TestUpsertNeverOverwritesWithBlanks(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_, err := s.UpsertToken(ctx, baseToken())
	require.NoError(t, err)

	lp := decimal.NewFromInt(80)
	partial := domain.Token{
		Address:    "0x1111111111111111111111111111111111111111",
		Blockchain: "Ethereum",
		DexPair:    "0x2222222222222222222222222222222222222222",
		LockedLP:   &lp,
	}
	merged, err := s.UpsertToken(ctx, partial)
	require.NoError(t, err)
	assert.Equal(t, "Test", merged.Name)
	assert.Equal(t, domain.RiskLow, merged.RiskLevel)
	assert.True(t, merged.Verified())
	assert.Equal(t, "https://t.me/test", merged.Socials.Telegram)
	assert.Equal(t, "80", merged.LockedLP.String())

	byPair, err := s.GetTokenByPair(ctx, "0X2222222222222222222222222222222222222222", "Ethereum")
	require.NoError(t, err)
	assert.Equal(t, merged.Address, byPair.Address)

	_, err = s.GetTokenByPair(ctx, "0x2222222222222222222222222222222222222222", "Sepolia Testnet")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScamIsTerminal(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	scam := baseToken()
	scam.IsScam = true
	_, err := s.UpsertToken(ctx, scam)
	require.NoError(t, err)

	_, err = s.UpsertToken(ctx, baseToken())
	assert.ErrorIs(t, err, storage.ErrScamTerminal)

	err = s.MarkRenounced(ctx, scam.Key())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	stored, err := s.GetToken(ctx, scam.Key())
	require.NoError(t, err)
	assert.True(t, stored.IsScam)
	assert.False(t, stored.IsRenounced)
}

func TestMarkRenouncedIsSticky(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	err := s.MarkRenounced(ctx, domain.TokenKey{Address: "0xabc", Blockchain: "Ethereum"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	tok := baseToken()
	_, err = s.UpsertToken(ctx, tok)
	require.NoError(t, err)
	require.NoError(t, s.MarkRenounced(ctx, tok.Key()))

	merged, err := s.UpsertToken(ctx, tok)
	require.NoError(t, err)
	assert.True(t, merged.IsRenounced)
}

func TestIngestionStatsBuckets(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	at := time.Date(2026, 5, 1, 10, 15, 0, 0, time.UTC)

	require.NoError(t, s.RecordIngestion(ctx, at, domain.RiskHigh))
	require.NoError(t, s.RecordIngestion(ctx, at.Add(10*time.Minute), domain.RiskMedium))
	require.NoError(t, s.RecordIngestion(ctx, at.Add(time.Hour), domain.RiskSafe))

	stats, err := s.ListIngestionStats(ctx, at.Add(-time.Hour), at.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), stats[0].Bucket)
	assert.Equal(t, int64(2), stats[0].Total)
	assert.Equal(t, int64(1), stats[0].Scams)
	assert.Equal(t, int64(1), stats[0].Risky)
	assert.Equal(t, int64(1), stats[1].Total)
}

func TestAdvisoryLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	unlock, ok, err := s.TryAdvisoryLock(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = s.TryAdvisoryLock(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	unlock()
	unlock()
	_, ok, err = s.TryAdvisoryLock(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)
}
