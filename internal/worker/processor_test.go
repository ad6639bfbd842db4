package worker

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-alerts/internal/chain"
	"token-alerts/internal/domain"
	"token-alerts/internal/enrich"
	"token-alerts/internal/storage"
	"token-alerts/internal/storage/memory"
)

const (
	testToken = "0x1111111111111111111111111111111111111111"
	testPair  = "0x2222222222222222222222222222222222222222"
	deadAddr  = "0x000000000000000000000000000000000000dEaD"
)

var testKey = domain.TokenKey{Address: testToken, Blockchain: "Ethereum"}

type fakeInspector struct {
	info  *chain.TokenInfo
	err   error
	panic bool
	calls int
}

func (f *fakeInspector) TokenInfo(context.Context, string, string) (*chain.TokenInfo, error) {
	f.calls++
	if f.panic {
		panic("rpc exploded")
	}
	return f.info, f.err
}

type fakeSource struct {
	info  enrich.SourceInfo
	err   error
	calls int
}

func (f *fakeSource) SourceCode(context.Context, string, string) (enrich.SourceInfo, error) {
	f.calls++
	return f.info, f.err
}

type fakeAuditor struct {
	audit *domain.Audit
	// errs are returned in order before audit is
	errs  []error
	calls int
}

func (f *fakeAuditor) Audit(context.Context, string, string, bool) (*domain.Audit, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.audit, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []domain.NotificationMessage
	err  error
}

func (f *fakeNotifier) PushNotification(_ context.Context, msg domain.NotificationMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

// countingStore counts writes that reach the token store.
type countingStore struct {
	*memory.Store
	writes int
}

func (c *countingStore) UpsertToken(ctx context.Context, t domain.Token) (domain.Token, error) {
	c.writes++
	return c.Store.UpsertToken(ctx, t)
}

func (c *countingStore) MarkRenounced(ctx context.Context, key domain.TokenKey) error {
	c.writes++
	return c.Store.MarkRenounced(ctx, key)
}

type harness struct {
	inspector *fakeInspector
	source    *fakeSource
	auditor   *fakeAuditor
	notifier  *fakeNotifier
	mem       *memory.Store
	store     *countingStore
	opts      Options
}

func newHarness() *harness {
	mem := memory.NewStore()
	lpSupply := decimal.NewFromInt(1000)
	return &harness{
		inspector: &fakeInspector{info: &chain.TokenInfo{
			Name:        "Pepe Frog",
			Symbol:      "PEPE",
			Decimals:    18,
			TotalSupply: big.NewInt(1_000_000),
		}},
		source: &fakeSource{info: enrich.SourceInfo{
			Verified: true,
			SourceCode: `// https://t.me/pepefrog
contract Pepe {}`,
		}},
		auditor: &fakeAuditor{audit: &domain.Audit{
			RiskLevel:     domain.RiskLow,
			OwnerAddress:  "0x4444444444444444444444444444444444444444",
			LPTotalSupply: &lpSupply,
		}},
		notifier: &fakeNotifier{},
		mem:      mem,
		store:    &countingStore{Store: mem},
		opts: Options{
			BurnAddresses: []string{"0x0000000000000000000000000000000000000000", deadAddr},
			Sleep:         func(context.Context, time.Duration) error { return nil },
		},
	}
}

func (h *harness) processor() *Processor {
	return NewProcessor(Deps{
		Inspector:  h.inspector,
		Source:     h.source,
		Auditor:    h.auditor,
		Classifier: enrich.NewKeywordClassifier(),
		Tokens:     h.store,
		Stats:      h.mem,
		Notifier:   h.notifier,
	}, h.opts, zerolog.Nop())
}

func (h *harness) seed(t *testing.T, tok domain.Token) {
	t.Helper()
	_, err := h.mem.UpsertToken(context.Background(), tok)
	require.NoError(t, err)
}

func job(eventType domain.EventType) domain.Job {
	return domain.Job{
		EventID:      "evt-1",
		EventType:    eventType,
		ChainID:      "0x1",
		BlockNumber:  "0x10",
		TokenAddress: testToken,
	}
}

func ptr[T any](v T) *T {
	return &v
}

func TestNewTokenStoresAndNotifies(t *testing.T) {
	h := newHarness()
	res := h.processor().Process(context.Background(), job(domain.EventNewToken))
	require.Equal(t, StatusProcessed, res.Status, res.Reason)

	stored, err := h.mem.GetToken(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, "Pepe Frog", stored.Name)
	assert.Equal(t, "1000000", stored.TotalSupply)
	assert.True(t, stored.Verified())
	assert.Equal(t, "https://t.me/pepefrog", stored.Socials.Telegram)
	assert.Equal(t, enrich.CategoryMemecoins, stored.Classification)
	assert.Equal(t, domain.RiskLow, stored.RiskLevel)
	assert.Nil(t, stored.LockedLP, "no LP exists for a fresh token")

	require.Len(t, h.notifier.msgs, 1)
	assert.Equal(t, domain.EventNewToken, h.notifier.msgs[0].EventType)
	assert.Equal(t, testToken, h.notifier.msgs[0].Token.Address)

	stats, err := h.mem.ListIngestionStats(context.Background(), time.Now().Add(-2*time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.EqualValues(t, 1, stats[0].Total)
}

func TestNewTokenNotAnERC20IsSkipped(t *testing.T) {
	h := newHarness()
	h.inspector.info = nil

	res := h.processor().Process(context.Background(), job(domain.EventNewToken))
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Zero(t, h.store.writes)
	assert.Empty(t, h.notifier.msgs)
}

func TestNewTokenUnsupportedChainIsSkipped(t *testing.T) {
	h := newHarness()
	j := job(domain.EventNewToken)
	j.ChainID = "0x38"

	res := h.processor().Process(context.Background(), j)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Zero(t, h.inspector.calls)
}

func TestNewTokenScamIsStoredButNotNotified(t *testing.T) {
	h := newHarness()
	h.auditor.audit = &domain.Audit{RiskLevel: domain.RiskHigh, IsScam: true}

	res := h.processor().Process(context.Background(), job(domain.EventNewToken))
	require.Equal(t, StatusProcessed, res.Status)

	stored, err := h.mem.GetToken(context.Background(), testKey)
	require.NoError(t, err)
	assert.True(t, stored.IsScam)
	assert.Empty(t, h.notifier.msgs)
}

func TestNewPairOnScamTokenMakesNoWritesAndNoNotifications(t *testing.T) {
	h := newHarness()
	h.seed(t, domain.Token{Address: testToken, Blockchain: "Ethereum", IsScam: true, RiskLevel: domain.RiskHigh})

	j := job(domain.EventNewPair)
	j.PairAddress = testPair
	res := h.processor().Process(context.Background(), j)

	assert.Equal(t, StatusSkipped, res.Status)
	assert.NotEqual(t, StatusFailed, res.Status)
	assert.Zero(t, h.store.writes)
	assert.Empty(t, h.notifier.msgs)
	assert.Zero(t, h.auditor.calls)
}

func TestNewPairForUnknownTokenRunsDiscovery(t *testing.T) {
	h := newHarness()
	h.auditor.audit.OwnerAddress = deadAddr
	h.auditor.audit.LPHolders = []domain.LPHolder{
		{Address: "0x5555555555555555555555555555555555555555", Percent: decimal.RequireFromString("0.4"), Locked: true},
		{Address: "0x6666666666666666666666666666666666666666", Percent: decimal.RequireFromString("0.6")},
	}

	j := job(domain.EventNewPair)
	j.PairAddress = testPair
	res := h.processor().Process(context.Background(), j)
	require.Equal(t, StatusProcessed, res.Status, res.Reason)

	stored, err := h.mem.GetToken(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, testPair, stored.DexPair)
	assert.True(t, stored.IsRenounced)
	require.NotNil(t, stored.LockedLP)
	assert.True(t, decimal.NewFromInt(40).Equal(*stored.LockedLP), stored.LockedLP.String())
	assert.Equal(t, 1, h.inspector.calls)

	require.Len(t, h.notifier.msgs, 1)
	assert.Equal(t, domain.EventNewPair, h.notifier.msgs[0].EventType)
}

func TestNewPairIsIdempotent(t *testing.T) {
	h := newHarness()
	h.seed(t, domain.Token{
		Address:          testToken,
		Blockchain:       "Ethereum",
		Name:             "Pepe Frog",
		Symbol:           "PEPE",
		ContractVerified: ptr(true),
	})

	j := job(domain.EventNewPair)
	j.PairAddress = testPair
	p := h.processor()

	require.Equal(t, StatusProcessed, p.Process(context.Background(), j).Status)
	first, err := h.mem.GetToken(context.Background(), testKey)
	require.NoError(t, err)

	require.Equal(t, StatusProcessed, p.Process(context.Background(), j).Status)
	second, err := h.mem.GetToken(context.Background(), testKey)
	require.NoError(t, err)

	first.UpdatedAt, second.UpdatedAt = time.Time{}, time.Time{}
	assert.Equal(t, first, second)
	assert.Zero(t, h.inspector.calls, "existing tokens are not re-inspected")
	assert.Zero(t, h.source.calls, "verified tokens are not re-verified")
}

func TestReverifyPolicy(t *testing.T) {
	unverified := domain.Token{Address: testToken, Blockchain: "Ethereum", ContractVerified: ptr(false)}

	t.Run("default re-verifies on new_pair", func(t *testing.T) {
		h := newHarness()
		h.seed(t, unverified)
		j := job(domain.EventNewPair)
		j.PairAddress = testPair

		require.Equal(t, StatusProcessed, h.processor().Process(context.Background(), j).Status)
		assert.Equal(t, 1, h.source.calls)

		stored, err := h.mem.GetToken(context.Background(), testKey)
		require.NoError(t, err)
		assert.True(t, stored.Verified())
	})

	t.Run("empty policy never re-verifies", func(t *testing.T) {
		h := newHarness()
		h.seed(t, unverified)
		h.opts.Reverify = ReverifyPolicy{}
		j := job(domain.EventNewPair)
		j.PairAddress = testPair

		require.Equal(t, StatusProcessed, h.processor().Process(context.Background(), j).Status)
		assert.Zero(t, h.source.calls)
	})

	t.Run("parse", func(t *testing.T) {
		p, err := NewReverifyPolicy([]string{"lock_lp", " new_token "})
		require.NoError(t, err)
		assert.True(t, p.Applies(domain.EventNewToken, unverified))
		assert.False(t, p.Applies(domain.EventNewPair, unverified))
		assert.False(t, p.Applies(domain.EventLockLP, domain.Token{ContractVerified: ptr(true)}))

		_, err = NewReverifyPolicy([]string{"bogus"})
		assert.Error(t, err)
	})
}

func TestLockLP(t *testing.T) {
	t.Run("untracked pair is skipped", func(t *testing.T) {
		h := newHarness()
		j := domain.Job{EventID: "lock", EventType: domain.EventLockLP, ChainID: "0x1",
			Lock: &domain.LockDetails{LPToken: testPair, Amount: decimal.NewFromInt(250)}}

		res := h.processor().Process(context.Background(), j)
		assert.Equal(t, StatusSkipped, res.Status)
		assert.Zero(t, h.store.writes)
	})

	t.Run("tracked pair gets the lock share", func(t *testing.T) {
		h := newHarness()
		h.seed(t, domain.Token{Address: testToken, Blockchain: "Ethereum", DexPair: testPair, ContractVerified: ptr(true)})
		j := domain.Job{EventID: "lock", EventType: domain.EventLockLP, ChainID: "0x1",
			Lock: &domain.LockDetails{LPToken: testPair, Amount: decimal.NewFromInt(250)}}

		res := h.processor().Process(context.Background(), j)
		require.Equal(t, StatusProcessed, res.Status, res.Reason)

		stored, err := h.mem.GetToken(context.Background(), testKey)
		require.NoError(t, err)
		require.NotNil(t, stored.LockedLP)
		assert.True(t, decimal.NewFromInt(25).Equal(*stored.LockedLP), stored.LockedLP.String())
		require.Len(t, h.notifier.msgs, 1)
		assert.Equal(t, domain.EventLockLP, h.notifier.msgs[0].EventType)
	})
}

func TestRenounced(t *testing.T) {
	h := newHarness()
	j := job(domain.EventOwnershipRenounced)

	assert.Equal(t, StatusSkipped, h.processor().Process(context.Background(), j).Status)

	h.seed(t, domain.Token{Address: testToken, Blockchain: "Ethereum"})
	assert.Equal(t, StatusProcessed, h.processor().Process(context.Background(), j).Status)

	stored, err := h.mem.GetToken(context.Background(), testKey)
	require.NoError(t, err)
	assert.True(t, stored.IsRenounced)
	assert.Empty(t, h.notifier.msgs)
}

func TestRateLimitedAuditIsRetriedInline(t *testing.T) {
	h := newHarness()
	h.auditor.errs = []error{enrich.ErrRateLimited, enrich.ErrRateLimited}

	res := h.processor().Process(context.Background(), job(domain.EventNewToken))
	require.Equal(t, StatusProcessed, res.Status, res.Reason)
	assert.Equal(t, 3, h.auditor.calls)
}

func TestCollaboratorFailuresFailTheJob(t *testing.T) {
	t.Run("rate limit exhausted", func(t *testing.T) {
		h := newHarness()
		h.auditor.errs = []error{enrich.ErrRateLimited, enrich.ErrRateLimited, enrich.ErrRateLimited}

		res := h.processor().Process(context.Background(), job(domain.EventNewToken))
		require.Equal(t, StatusFailed, res.Status)
		assert.ErrorIs(t, res.Err, enrich.ErrRateLimited)
		assert.Equal(t, 3, h.auditor.calls)
		assert.Zero(t, h.store.writes)
	})

	t.Run("other errors are not retried inline", func(t *testing.T) {
		h := newHarness()
		h.source.err = errors.New("etherscan: 502")

		res := h.processor().Process(context.Background(), job(domain.EventNewToken))
		require.Equal(t, StatusFailed, res.Status)
		assert.Equal(t, 1, h.source.calls)
	})

	t.Run("notification push", func(t *testing.T) {
		h := newHarness()
		h.notifier.err = errors.New("redis down")

		res := h.processor().Process(context.Background(), job(domain.EventNewToken))
		assert.Equal(t, StatusFailed, res.Status)
	})

	t.Run("panic", func(t *testing.T) {
		h := newHarness()
		h.inspector.panic = true

		res := h.processor().Process(context.Background(), job(domain.EventNewToken))
		require.Equal(t, StatusFailed, res.Status)
		assert.Contains(t, res.Reason, "rpc exploded")
	})
}

func TestScamTerminalOnUpsertIsSkipped(t *testing.T) {
	h := newHarness()
	// marked as scam between the read and the write
	h.seed(t, domain.Token{Address: testToken, Blockchain: "Ethereum", IsScam: true})
	p := h.processor()

	res := p.store(context.Background(), job(domain.EventNewToken), domain.Token{Address: testToken, Blockchain: "Ethereum"}, false)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Empty(t, h.notifier.msgs)

	_, err := h.mem.UpsertToken(context.Background(), domain.Token{Address: testToken, Blockchain: "Ethereum"})
	assert.ErrorIs(t, err, storage.ErrScamTerminal)
}

func TestSumLockedLP(t *testing.T) {
	supply := decimal.NewFromInt(1000)
	holders := []domain.LPHolder{
		{Percent: decimal.RequireFromString("0.3"), Locked: true},
		{Percent: decimal.RequireFromString("0.05"), Locked: true},
		{Percent: decimal.RequireFromString("0.65")},
	}

	cases := []struct {
		name  string
		audit *domain.Audit
		lock  *domain.LockDetails
		want  string
	}{
		{name: "no audit", audit: nil, lock: &domain.LockDetails{Amount: decimal.NewFromInt(10)}, want: "0"},
		{name: "nothing usable", audit: &domain.Audit{}, want: "0"},
		{name: "holders only", audit: &domain.Audit{LPHolders: holders}, want: "35"},
		{name: "lock wins", audit: &domain.Audit{LPHolders: holders, LPTotalSupply: &supply},
			lock: &domain.LockDetails{Amount: decimal.NewFromInt(500)}, want: "50"},
		{name: "holders win", audit: &domain.Audit{LPHolders: holders, LPTotalSupply: &supply},
			lock: &domain.LockDetails{Amount: decimal.NewFromInt(100)}, want: "35"},
		{name: "zero supply ignored", audit: &domain.Audit{LPTotalSupply: ptr(decimal.Zero)},
			lock: &domain.LockDetails{Amount: decimal.NewFromInt(100)}, want: "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SumLockedLP(tc.audit, tc.lock)
			assert.True(t, decimal.RequireFromString(tc.want).Equal(got), "got %s", got)
		})
	}
}
