package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EtherscanOptions parameterise the source verifier.
type EtherscanOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Etherscan looks up verified source through the Etherscan v2 multichain API.
type Etherscan struct {
	opts    EtherscanOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewEtherscan constructs a source verifier.
func NewEtherscan(opts EtherscanOptions, logger zerolog.Logger) *Etherscan {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.etherscan.io/v2/api"
	}
	return &Etherscan{
		opts:    opts,
		logger:  logger.With().Str("component", "etherscan").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type etherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type etherscanSource struct {
	SourceCode      string `json:"SourceCode"`
	ContractName    string `json:"ContractName"`
	CompilerVersion string `json:"CompilerVersion"`
}

// SourceCode implements SourceVerifier. An unverified contract is not an error.
func (e *Etherscan) SourceCode(ctx context.Context, chainID, address string) (SourceInfo, error) {
	chain, err := decimalChainID(chainID)
	if err != nil {
		return SourceInfo{}, err
	}

	q := url.Values{}
	q.Set("chainid", chain)
	q.Set("module", "contract")
	q.Set("action", "getsourcecode")
	q.Set("address", address)
	if e.opts.APIKey != "" {
		q.Set("apikey", e.opts.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return SourceInfo{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return SourceInfo{}, fmt.Errorf("etherscan request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return SourceInfo{}, fmt.Errorf("read etherscan response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return SourceInfo{}, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return SourceInfo{}, fmt.Errorf("etherscan status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var parsed etherscanResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return SourceInfo{}, fmt.Errorf("decode etherscan response: %w", err)
	}

	// Errors come back with status "0" and a string result.
	if parsed.Status != "1" {
		var msg string
		_ = json.Unmarshal(parsed.Result, &msg)
		if strings.Contains(strings.ToLower(msg), "rate limit") {
			return SourceInfo{}, ErrRateLimited
		}
		return SourceInfo{}, fmt.Errorf("etherscan error: %s %s", parsed.Message, msg)
	}

	var sources []etherscanSource
	if err := json.Unmarshal(parsed.Result, &sources); err != nil {
		return SourceInfo{}, fmt.Errorf("decode etherscan result: %w", err)
	}
	if len(sources) == 0 {
		return SourceInfo{}, errors.New("etherscan returned no source entry")
	}

	src := sources[0]
	info := SourceInfo{
		Verified:     strings.TrimSpace(src.SourceCode) != "",
		SourceCode:   src.SourceCode,
		ContractName: src.ContractName,
		Compiler:     src.CompilerVersion,
	}
	e.logger.Debug().Str("address", address).Bool("verified", info.Verified).Msg("source lookup finished")
	return info, nil
}

func truncate(body []byte, n int) string {
	if len(body) > n {
		return string(body[:n]) + "..."
	}
	return string(body)
}

var _ SourceVerifier = (*Etherscan)(nil)
