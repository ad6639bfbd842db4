package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"token-alerts/internal/domain"
)

const (
	tokenColumns = `t.address,
        t.blockchain,
        COALESCE(t.chain_id, ''),
        COALESCE(t.block_number, ''),
        COALESCE(t.name, ''),
        COALESCE(t.symbol, ''),
        t.decimals,
        COALESCE(t.total_supply::text, ''),
        t.contract_verified,
        COALESCE(t.risk_level, ''),
        t.buy_tax::text,
        t.sell_tax::text,
        COALESCE(t.creator_address, ''),
        t.creator_percent::text,
        t.is_scam,
        t.is_renounced,
        COALESCE(t.classification, ''),
        t.classification_certainty::text,
        COALESCE(t.dex_pair, ''),
        t.locked_lp::text,
        t.source_code_id,
        t.audit_id,
        t.token_information_id,
        COALESCE(ti.website, ''),
        COALESCE(ti.twitter, ''),
        COALESCE(ti.telegram, ''),
        COALESCE(ti.discord, ''),
        t.created_at,
        t.updated_at`

	getTokenSQL = `SELECT ` + tokenColumns + `
    FROM tokens t
    LEFT JOIN token_information ti ON ti.id = t.token_information_id
    WHERE t.address = $1
      AND t.blockchain = $2;`

	getTokenByPairSQL = `SELECT ` + tokenColumns + `
    FROM tokens t
    LEFT JOIN token_information ti ON ti.id = t.token_information_id
    WHERE lower(t.dex_pair) = lower($1)
      AND t.blockchain = $2
    ORDER BY t.updated_at DESC
    LIMIT 1;`

	lockTokenSQL = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0));`

	existingTokenSQL = `SELECT is_scam, source_code_id, audit_id, token_information_id
    FROM tokens
    WHERE address = $1
      AND blockchain = $2;`

	insertSourceCodeSQL = `INSERT INTO source_code (token_address, blockchain, source_code)
    VALUES ($1, $2, $3)
    RETURNING id;`

	insertTokenInformationSQL = `INSERT INTO token_information (token_address, blockchain, website, twitter, telegram, discord)
    VALUES ($1, $2, $3, $4, $5, $6)
    RETURNING id;`

	updateTokenInformationSQL = `UPDATE token_information
    SET website    = COALESCE($2, website),
        twitter    = COALESCE($3, twitter),
        telegram   = COALESCE($4, telegram),
        discord    = COALESCE($5, discord),
        updated_at = now()
    WHERE id = $1;`

	insertAuditSQL = `INSERT INTO audits (token_address, blockchain, risk_level, flags, owner_address, lp_total_supply, raw)
    VALUES ($1, $2, $3, $4, $5, $6, $7)
    RETURNING id;`

	updateAuditSQL = `UPDATE audits
    SET risk_level      = $2,
        flags           = $3,
        owner_address   = $4,
        lp_total_supply = $5,
        raw             = $6,
        updated_at      = now()
    WHERE id = $1;`

	upsertTokenSQL = `INSERT INTO tokens AS t (
        address,
        blockchain,
        chain_id,
        block_number,
        name,
        symbol,
        decimals,
        total_supply,
        contract_verified,
        risk_level,
        buy_tax,
        sell_tax,
        creator_address,
        creator_percent,
        is_scam,
        is_renounced,
        classification,
        classification_certainty,
        dex_pair,
        locked_lp,
        source_code_id,
        audit_id,
        token_information_id
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23
    )
    ON CONFLICT (address, blockchain) DO UPDATE
    SET
        chain_id                 = COALESCE(EXCLUDED.chain_id, t.chain_id),
        block_number             = COALESCE(EXCLUDED.block_number, t.block_number),
        name                     = COALESCE(EXCLUDED.name, t.name),
        symbol                   = COALESCE(EXCLUDED.symbol, t.symbol),
        decimals                 = COALESCE(EXCLUDED.decimals, t.decimals),
        total_supply             = COALESCE(EXCLUDED.total_supply, t.total_supply),
        contract_verified        = COALESCE(EXCLUDED.contract_verified, t.contract_verified),
        risk_level               = COALESCE(EXCLUDED.risk_level, t.risk_level),
        buy_tax                  = COALESCE(EXCLUDED.buy_tax, t.buy_tax),
        sell_tax                 = COALESCE(EXCLUDED.sell_tax, t.sell_tax),
        creator_address          = COALESCE(EXCLUDED.creator_address, t.creator_address),
        creator_percent          = COALESCE(EXCLUDED.creator_percent, t.creator_percent),
        is_scam                  = t.is_scam OR EXCLUDED.is_scam,
        is_renounced             = t.is_renounced OR EXCLUDED.is_renounced,
        classification           = COALESCE(EXCLUDED.classification, t.classification),
        classification_certainty = COALESCE(EXCLUDED.classification_certainty, t.classification_certainty),
        dex_pair                 = COALESCE(EXCLUDED.dex_pair, t.dex_pair),
        locked_lp                = COALESCE(EXCLUDED.locked_lp, t.locked_lp),
        source_code_id           = COALESCE(t.source_code_id, EXCLUDED.source_code_id),
        audit_id                 = COALESCE(t.audit_id, EXCLUDED.audit_id),
        token_information_id     = COALESCE(t.token_information_id, EXCLUDED.token_information_id),
        updated_at               = now()
    WHERE NOT t.is_scam;`

	markRenouncedSQL = `UPDATE tokens
    SET is_renounced = TRUE,
        updated_at   = now()
    WHERE address = $1
      AND blockchain = $2
      AND NOT is_scam;`
)

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetToken loads a token by natural key.
func (s *Store) GetToken(ctx context.Context, key domain.TokenKey) (domain.Token, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Token{}, err
	}
	return getToken(ctx, pool, getTokenSQL, key.Address, key.Blockchain)
}

// GetTokenByPair loads the token whose dex pair matches, case-insensitively.
func (s *Store) GetTokenByPair(ctx context.Context, pair, blockchain string) (domain.Token, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Token{}, err
	}
	return getToken(ctx, pool, getTokenByPairSQL, pair, blockchain)
}

// UpsertToken writes the token and its child records in one transaction.
// Concurrent upserts of the same key serialise on a transaction-scoped advisory
// lock so child rows are created at most once. A token already flagged as a
// scam is never written again.
func (s *Store) UpsertToken(ctx context.Context, t domain.Token) (domain.Token, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Token{}, err
	}
	if t.Address == "" || t.Blockchain == "" {
		return domain.Token{}, fmt.Errorf("upsert token: address and blockchain are required")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return domain.Token{}, fmt.Errorf("begin upsert token: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, lockTokenSQL, strings.ToLower(t.Address)+":"+t.Blockchain); err != nil {
		return domain.Token{}, fmt.Errorf("lock token: %w", err)
	}

	var (
		isScam                    bool
		sourceID, auditID, infoID *int64
	)
	exists := true
	err = tx.QueryRow(ctx, existingTokenSQL, t.Address, t.Blockchain).Scan(&isScam, &sourceID, &auditID, &infoID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		exists = false
	case err != nil:
		return domain.Token{}, fmt.Errorf("load existing token: %w", err)
	}
	if exists && isScam {
		return domain.Token{}, ErrScamTerminal
	}

	if sourceID == nil && t.Verified() && t.SourceCode != "" {
		var id int64
		if err := tx.QueryRow(ctx, insertSourceCodeSQL, t.Address, t.Blockchain, t.SourceCode).Scan(&id); err != nil {
			return domain.Token{}, fmt.Errorf("insert source code: %w", err)
		}
		sourceID = &id
	}

	if t.Socials.Any() {
		so := t.Socials
		if infoID != nil {
			if _, err := tx.Exec(ctx, updateTokenInformationSQL, *infoID,
				textArg(so.Website), textArg(so.Twitter), textArg(so.Telegram), textArg(so.Discord)); err != nil {
				return domain.Token{}, fmt.Errorf("update token information: %w", err)
			}
		} else {
			var id int64
			if err := tx.QueryRow(ctx, insertTokenInformationSQL, t.Address, t.Blockchain,
				textArg(so.Website), textArg(so.Twitter), textArg(so.Telegram), textArg(so.Discord)).Scan(&id); err != nil {
				return domain.Token{}, fmt.Errorf("insert token information: %w", err)
			}
			infoID = &id
		}
	}

	if a := t.Audit; a != nil {
		flags := a.Flags
		if flags == nil {
			flags = []string{}
		}
		var raw any
		if len(a.Raw) > 0 {
			raw = []byte(a.Raw)
		}
		if auditID != nil {
			if _, err := tx.Exec(ctx, updateAuditSQL, *auditID,
				textArg(string(a.RiskLevel)), flags, textArg(a.OwnerAddress), decimalArg(a.LPTotalSupply), raw); err != nil {
				return domain.Token{}, fmt.Errorf("update audit: %w", err)
			}
		} else {
			var id int64
			if err := tx.QueryRow(ctx, insertAuditSQL, t.Address, t.Blockchain,
				textArg(string(a.RiskLevel)), flags, textArg(a.OwnerAddress), decimalArg(a.LPTotalSupply), raw).Scan(&id); err != nil {
				return domain.Token{}, fmt.Errorf("insert audit: %w", err)
			}
			auditID = &id
		}
	}

	var decimals any
	if t.Decimals != nil {
		decimals = int16(*t.Decimals)
	}
	var verified any
	if t.ContractVerified != nil {
		verified = *t.ContractVerified
	}

	tag, err := tx.Exec(ctx, upsertTokenSQL,
		t.Address,
		t.Blockchain,
		textArg(t.ChainID),
		textArg(t.BlockNumber),
		textArg(t.Name),
		textArg(t.Symbol),
		decimals,
		textArg(t.TotalSupply),
		verified,
		textArg(string(t.RiskLevel)),
		decimalArg(t.BuyTax),
		decimalArg(t.SellTax),
		textArg(t.CreatorAddress),
		decimalArg(t.CreatorPercent),
		t.IsScam,
		t.IsRenounced,
		textArg(t.Classification),
		decimalArg(t.ClassificationCertainty),
		textArg(t.DexPair),
		decimalArg(t.LockedLP),
		sourceID,
		auditID,
		infoID,
	)
	if err != nil {
		return domain.Token{}, fmt.Errorf("upsert token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Token{}, ErrScamTerminal
	}

	stored, err := getToken(ctx, tx, getTokenSQL, t.Address, t.Blockchain)
	if err != nil {
		return domain.Token{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Token{}, fmt.Errorf("commit upsert token: %w", err)
	}
	stored.Audit = t.Audit
	stored.SourceCode = t.SourceCode
	return stored, nil
}

// MarkRenounced sets the sticky renounced flag. Scam tokens are left alone.
func (s *Store) MarkRenounced(ctx context.Context, key domain.TokenKey) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, markRenouncedSQL, key.Address, key.Blockchain)
	if err != nil {
		return fmt.Errorf("mark renounced: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func getToken(ctx context.Context, q queryRower, query string, args ...any) (domain.Token, error) {
	var (
		t                           domain.Token
		decimals                    *int16
		buyTax, sellTax, creatorPct *string
		certainty, lockedLP         *string
		risk                        string
		createdAt, updatedAt        time.Time
	)
	err := q.QueryRow(ctx, query, args...).Scan(
		&t.Address,
		&t.Blockchain,
		&t.ChainID,
		&t.BlockNumber,
		&t.Name,
		&t.Symbol,
		&decimals,
		&t.TotalSupply,
		&t.ContractVerified,
		&risk,
		&buyTax,
		&sellTax,
		&t.CreatorAddress,
		&creatorPct,
		&t.IsScam,
		&t.IsRenounced,
		&t.Classification,
		&certainty,
		&t.DexPair,
		&lockedLP,
		&t.SourceCodeID,
		&t.AuditID,
		&t.InformationID,
		&t.Socials.Website,
		&t.Socials.Twitter,
		&t.Socials.Telegram,
		&t.Socials.Discord,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Token{}, ErrNotFound
	}
	if err != nil {
		return domain.Token{}, fmt.Errorf("scan token: %w", err)
	}

	if decimals != nil {
		d := uint8(*decimals)
		t.Decimals = &d
	}
	t.RiskLevel = domain.RiskLevel(risk)
	t.CreatedAt = createdAt
	t.UpdatedAt = updatedAt

	for _, f := range []struct {
		dst **decimal.Decimal
		raw *string
	}{
		{&t.BuyTax, buyTax},
		{&t.SellTax, sellTax},
		{&t.CreatorPercent, creatorPct},
		{&t.ClassificationCertainty, certainty},
		{&t.LockedLP, lockedLP},
	} {
		if f.raw == nil {
			continue
		}
		d, err := decimal.NewFromString(*f.raw)
		if err != nil {
			return domain.Token{}, fmt.Errorf("parse numeric column: %w", err)
		}
		*f.dst = &d
	}
	return t, nil
}

func textArg(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func decimalArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}
