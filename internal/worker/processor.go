package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"token-alerts/internal/chain"
	"token-alerts/internal/domain"
	"token-alerts/internal/enrich"
	"token-alerts/internal/retry"
	"token-alerts/internal/storage"
)

// Notifier hands a stored token to the notification stage.
type Notifier interface {
	PushNotification(ctx context.Context, msg domain.NotificationMessage) error
}

// Deps are the collaborators a Processor needs. Stats is optional.
type Deps struct {
	Inspector  chain.Inspector
	Source     enrich.SourceVerifier
	Auditor    enrich.Auditor
	Classifier enrich.Classifier
	Tokens     storage.TokenStore
	Stats      storage.StatsStore
	Notifier   Notifier
}

// Options tune a Processor.
type Options struct {
	Reverify           ReverifyPolicy
	BurnAddresses      []string
	RateLimitAttempts  int
	RateLimitBaseDelay time.Duration
	Now                func() time.Time

	// Sleep overrides the wait between rate-limited attempts.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Processor runs the enrichment state machine for one job at a time.
type Processor struct {
	deps      Deps
	reverify  ReverifyPolicy
	burn      map[string]struct{}
	rateLimit retry.Policy
	now       func() time.Time
	logger    zerolog.Logger
}

// NewProcessor constructs a Processor.
func NewProcessor(deps Deps, opts Options, logger zerolog.Logger) *Processor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Reverify == nil {
		opts.Reverify, _ = NewReverifyPolicy(DefaultReverifyOn)
	}
	if opts.RateLimitAttempts <= 0 {
		opts.RateLimitAttempts = 3
	}
	if opts.RateLimitBaseDelay <= 0 {
		opts.RateLimitBaseDelay = time.Second
	}
	burn := make(map[string]struct{}, len(opts.BurnAddresses))
	for _, addr := range opts.BurnAddresses {
		burn[strings.ToLower(strings.TrimSpace(addr))] = struct{}{}
	}

	p := &Processor{
		deps:     deps,
		reverify: opts.Reverify,
		burn:     burn,
		now:      opts.Now,
		logger:   logger.With().Str("component", "processor").Logger(),
	}
	p.rateLimit = retry.Policy{
		MaxAttempts: opts.RateLimitAttempts,
		BaseDelay:   opts.RateLimitBaseDelay,
		Classify:    retry.OnlyOn(enrich.ErrRateLimited),
		Sleep:       opts.Sleep,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			p.logger.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("collaborator rate limited, backing off")
		},
	}
	return p
}

// Process handles one job. It never panics; a panic becomes a Failed result.
func (p *Processor) Process(ctx context.Context, job domain.Job) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = failed(fmt.Errorf("panic while processing %s: %v", job.EventID, r))
		}
	}()

	switch job.EventType {
	case domain.EventNewToken:
		return p.processNewToken(ctx, job)
	case domain.EventNewPair:
		return p.processNewPair(ctx, job)
	case domain.EventLockLP:
		return p.processLockLP(ctx, job)
	case domain.EventOwnershipRenounced:
		return p.processRenounced(ctx, job)
	default:
		return skipped(fmt.Sprintf("unknown event type %q", job.EventType))
	}
}

func (p *Processor) processNewToken(ctx context.Context, job domain.Job) Result {
	key, res, ok := p.resolveKey(job, job.Target())
	if !ok {
		return res
	}

	existing, err := p.deps.Tokens.GetToken(ctx, key)
	created := errors.Is(err, storage.ErrNotFound)
	switch {
	case err == nil && existing.IsScam:
		return skipped("token flagged as scam")
	case err != nil && !created:
		return failed(fmt.Errorf("load token: %w", err))
	}

	tok, res, ok := p.discover(ctx, job, key)
	if !ok {
		return res
	}
	return p.store(ctx, job, tok, created)
}

func (p *Processor) processNewPair(ctx context.Context, job domain.Job) Result {
	key, res, ok := p.resolveKey(job, job.Target())
	if !ok {
		return res
	}
	pair, _ := chain.ChecksumAddress(job.Pair())

	existing, err := p.deps.Tokens.GetToken(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		tok, res, ok := p.discover(ctx, job, key)
		if !ok {
			return res
		}
		tok.DexPair = pair
		p.applyLiquidity(&tok, tok.Audit, nil)
		return p.store(ctx, job, tok, true)
	case err != nil:
		return failed(fmt.Errorf("load token: %w", err))
	case existing.IsScam:
		return skipped("token flagged as scam")
	}

	tok, err := p.refresh(ctx, job, existing, nil)
	if err != nil {
		return failed(err)
	}
	tok.DexPair = pair
	return p.store(ctx, job, tok, false)
}

func (p *Processor) processLockLP(ctx context.Context, job domain.Job) Result {
	blockchain, ok := domain.BlockchainForChain(job.ChainID)
	if !ok {
		return skipped(fmt.Sprintf("unsupported chain %q", job.ChainID))
	}
	pair, ok := chain.ChecksumAddress(job.Pair())
	if !ok {
		return skipped("invalid lp token address")
	}

	existing, err := p.deps.Tokens.GetTokenByPair(ctx, pair, blockchain)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return skipped("lp token is not tracked")
	case err != nil:
		return failed(fmt.Errorf("load token by pair: %w", err))
	case existing.IsScam:
		return skipped("token flagged as scam")
	}

	tok, err := p.refresh(ctx, job, existing, job.Lock)
	if err != nil {
		return failed(err)
	}
	return p.store(ctx, job, tok, false)
}

func (p *Processor) processRenounced(ctx context.Context, job domain.Job) Result {
	key, res, ok := p.resolveKey(job, job.Target())
	if !ok {
		return res
	}
	err := p.deps.Tokens.MarkRenounced(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return skipped("token is not tracked")
	case err != nil:
		return failed(fmt.Errorf("mark renounced: %w", err))
	}
	return processed("ownership renounced")
}

func (p *Processor) resolveKey(job domain.Job, address string) (domain.TokenKey, Result, bool) {
	blockchain, ok := domain.BlockchainForChain(job.ChainID)
	if !ok {
		return domain.TokenKey{}, skipped(fmt.Sprintf("unsupported chain %q", job.ChainID)), false
	}
	checksummed, ok := chain.ChecksumAddress(address)
	if !ok {
		return domain.TokenKey{}, skipped(fmt.Sprintf("invalid address %q", address)), false
	}
	return domain.TokenKey{Address: checksummed, Blockchain: blockchain}, Result{}, true
}

// discover runs the full first-sighting enrichment for key.
func (p *Processor) discover(ctx context.Context, job domain.Job, key domain.TokenKey) (domain.Token, Result, bool) {
	info, err := retry.Value(ctx, p.rateLimit, func(ctx context.Context) (*chain.TokenInfo, error) {
		return p.deps.Inspector.TokenInfo(ctx, job.ChainID, key.Address)
	})
	if err != nil {
		return domain.Token{}, failed(fmt.Errorf("inspect token: %w", err)), false
	}
	if info == nil {
		return domain.Token{}, skipped("not an erc20 token"), false
	}

	decimals := info.Decimals
	tok := domain.Token{
		Address:     key.Address,
		Blockchain:  key.Blockchain,
		ChainID:     job.ChainID,
		BlockNumber: job.BlockNumber,
		Name:        info.Name,
		Symbol:      info.Symbol,
		Decimals:    &decimals,
	}
	if info.TotalSupply != nil {
		tok.TotalSupply = info.TotalSupply.String()
	}

	if err := p.verify(ctx, &tok); err != nil {
		return domain.Token{}, failed(err), false
	}
	if _, err := p.audit(ctx, &tok, tok.Verified()); err != nil {
		return domain.Token{}, failed(err), false
	}

	c := p.deps.Classifier.Classify(tok.Name, tok.Symbol)
	tok.Classification = c.Category
	certainty := c.Certainty
	tok.ClassificationCertainty = &certainty
	return tok, Result{}, true
}

// refresh re-audits a stored token and recomputes its renounced and locked-LP fields.
func (p *Processor) refresh(ctx context.Context, job domain.Job, stored domain.Token, lock *domain.LockDetails) (domain.Token, error) {
	tok := domain.Token{
		Address:     stored.Address,
		Blockchain:  stored.Blockchain,
		ChainID:     job.ChainID,
		BlockNumber: job.BlockNumber,
	}

	verified := stored.Verified()
	if p.reverify.Applies(job.EventType, stored) {
		if err := p.verify(ctx, &tok); err != nil {
			return domain.Token{}, err
		}
		verified = tok.Verified()
	}

	audit, err := p.audit(ctx, &tok, verified)
	if err != nil {
		return domain.Token{}, err
	}
	p.applyLiquidity(&tok, audit, lock)
	return tok, nil
}

func (p *Processor) verify(ctx context.Context, tok *domain.Token) error {
	src, err := retry.Value(ctx, p.rateLimit, func(ctx context.Context) (enrich.SourceInfo, error) {
		return p.deps.Source.SourceCode(ctx, tok.ChainID, tok.Address)
	})
	if err != nil {
		return fmt.Errorf("verify source: %w", err)
	}
	verified := src.Verified
	tok.ContractVerified = &verified
	if verified {
		tok.SourceCode = src.SourceCode
		tok.Socials = enrich.HarvestSocials(src.SourceCode)
	}
	return nil
}

func (p *Processor) audit(ctx context.Context, tok *domain.Token, verified bool) (*domain.Audit, error) {
	a, err := retry.Value(ctx, p.rateLimit, func(ctx context.Context) (*domain.Audit, error) {
		return p.deps.Auditor.Audit(ctx, tok.ChainID, tok.Address, verified)
	})
	if err != nil {
		return nil, fmt.Errorf("audit token: %w", err)
	}
	tok.ApplyAudit(a)
	return a, nil
}

// applyLiquidity sets the renounced flag and the locked LP share. Both need an audit.
func (p *Processor) applyLiquidity(tok *domain.Token, audit *domain.Audit, lock *domain.LockDetails) {
	if audit == nil {
		return
	}
	if p.isBurnAddress(audit.OwnerAddress) {
		tok.IsRenounced = true
	}
	locked := SumLockedLP(audit, lock)
	tok.LockedLP = &locked
}

func (p *Processor) isBurnAddress(addr string) bool {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return false
	}
	_, ok := p.burn[addr]
	return ok
}

// store upserts tok and queues the notification unless the result is a scam.
func (p *Processor) store(ctx context.Context, job domain.Job, tok domain.Token, created bool) Result {
	stored, err := p.deps.Tokens.UpsertToken(ctx, tok)
	if errors.Is(err, storage.ErrScamTerminal) {
		return skipped("token flagged as scam")
	}
	if err != nil {
		return failed(fmt.Errorf("upsert token: %w", err))
	}

	if created && p.deps.Stats != nil {
		if err := p.deps.Stats.RecordIngestion(ctx, p.now(), stored.RiskLevel); err != nil {
			p.logger.Warn().Err(err).Str("address", stored.Address).Msg("ingestion counter not updated")
		}
	}

	if stored.IsScam {
		return processed("stored; scam, not notified")
	}
	msg := domain.NotificationMessage{EventType: job.EventType, Token: stored}
	if err := p.deps.Notifier.PushNotification(ctx, msg); err != nil {
		return failed(fmt.Errorf("queue notification: %w", err))
	}
	return processed("stored and queued for notification")
}
