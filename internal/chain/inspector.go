package chain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

const erc20ABIJSON = `[
{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var (
	erc20ABI abi.ABI

	// some early tokens (MKR, SAI) return bytes32 for name/symbol
	bytes32Output abi.Arguments
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("failed to parse ERC-20 ABI: " + err.Error())
	}
	erc20ABI = parsed

	typ, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		panic("failed to build bytes32 type: " + err.Error())
	}
	bytes32Output = abi.Arguments{{Type: typ}}
}

var ErrUnknownChain = errors.New("chain: no rpc endpoint for chain")

// TokenInfo is the ERC-20 metadata read from the contract.
type TokenInfo struct {
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply *big.Int
}

// Inspector reads token metadata from a chain. A nil info with a nil error
// means the address is not an ERC-20 token.
type Inspector interface {
	TokenInfo(ctx context.Context, chainID, address string) (*TokenInfo, error)
}

// RPCOptions parameterise the RPC inspector.
type RPCOptions struct {
	URLs    map[string]string
	Timeout time.Duration
}

// RPCInspector implements Inspector over JSON-RPC, one lazily dialled client per chain.
type RPCInspector struct {
	urls    map[string]string
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

// NewRPCInspector builds an inspector. Chain ids may be hex or decimal.
func NewRPCInspector(opts RPCOptions, logger zerolog.Logger) *RPCInspector {
	urls := make(map[string]string, len(opts.URLs))
	for id, url := range opts.URLs {
		if key, ok := NormalizeChainID(id); ok && url != "" {
			urls[key] = url
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RPCInspector{
		urls:    urls,
		timeout: timeout,
		logger:  logger.With().Str("component", "chain_inspector").Logger(),
		clients: make(map[string]*ethclient.Client),
	}
}

// TokenInfo implements Inspector.
func (r *RPCInspector) TokenInfo(ctx context.Context, chainID, address string) (*TokenInfo, error) {
	if !common.IsHexAddress(address) {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	client, err := r.getClient(ctx, chainID)
	if err != nil {
		return nil, err
	}
	addr := common.HexToAddress(address)

	code, err := client.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("get code %s: %w", addr.Hex(), err)
	}
	if len(code) == 0 {
		return nil, nil
	}

	info := &TokenInfo{}
	var ok bool
	if info.Name, ok, err = r.callString(ctx, client, addr, "name"); err != nil || !ok {
		return nil, err
	}
	if info.Symbol, ok, err = r.callString(ctx, client, addr, "symbol"); err != nil || !ok {
		return nil, err
	}

	out, ok, err := r.call(ctx, client, addr, "decimals")
	if err != nil || !ok {
		return nil, err
	}
	if info.Decimals, ok = out[0].(uint8); !ok {
		return nil, nil
	}

	out, ok, err = r.call(ctx, client, addr, "totalSupply")
	if err != nil || !ok {
		return nil, err
	}
	if info.TotalSupply, ok = out[0].(*big.Int); !ok {
		return nil, nil
	}
	return info, nil
}

// call returns ok=false when the contract does not answer the method like an ERC-20.
func (r *RPCInspector) call(ctx context.Context, client *ethclient.Client, addr common.Address, method string) ([]any, bool, error) {
	raw, ok, err := r.rawCall(ctx, client, addr, method)
	if err != nil || !ok {
		return nil, ok, err
	}
	out, err := erc20ABI.Unpack(method, raw)
	if err != nil || len(out) != 1 {
		r.logger.Debug().Str("address", addr.Hex()).Str("method", method).Msg("unexpected erc20 output")
		return nil, false, nil
	}
	return out, true, nil
}

func (r *RPCInspector) callString(ctx context.Context, client *ethclient.Client, addr common.Address, method string) (string, bool, error) {
	raw, ok, err := r.rawCall(ctx, client, addr, method)
	if err != nil || !ok {
		return "", ok, err
	}
	if out, err := erc20ABI.Unpack(method, raw); err == nil && len(out) == 1 {
		if s, ok := out[0].(string); ok {
			return s, true, nil
		}
	}
	if out, err := bytes32Output.Unpack(raw); err == nil && len(out) == 1 {
		if b, ok := out[0].([32]byte); ok {
			return string(bytes.TrimRight(b[:], "\x00")), true, nil
		}
	}
	return "", false, nil
}

func (r *RPCInspector) rawCall(ctx context.Context, client *ethclient.Client, addr common.Address, method string) ([]byte, bool, error) {
	payload, err := erc20ABI.Pack(method)
	if err != nil {
		return nil, false, err
	}
	raw, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		if isRevert(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("call %s on %s: %w", method, addr.Hex(), err)
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	return raw, true, nil
}

func isRevert(err error) bool {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

func (r *RPCInspector) getClient(ctx context.Context, chainID string) (*ethclient.Client, error) {
	key, ok := NormalizeChainID(chainID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChain, chainID)
	}
	url, ok := r.urls[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[key]; ok {
		return client, nil
	}
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial chain %s: %w", key, err)
	}
	r.clients[key] = client
	return client, nil
}

// Close releases all RPC clients.
func (r *RPCInspector) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, client := range r.clients {
		client.Close()
		delete(r.clients, key)
	}
}

// NormalizeChainID renders a hex or decimal chain id as lower-case hex ("0x1").
func NormalizeChainID(id string) (string, bool) {
	n, err := strconv.ParseUint(strings.ToLower(strings.TrimSpace(id)), 0, 64)
	if err != nil || n == 0 {
		return "", false
	}
	return "0x" + strconv.FormatUint(n, 16), true
}

// ChecksumAddress returns the EIP-55 form of addr.
func ChecksumAddress(addr string) (string, bool) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", false
	}
	return common.HexToAddress(addr).Hex(), true
}

var _ Inspector = (*RPCInspector)(nil)
