package webhook

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"token-alerts/internal/domain"
)

var (
	ErrNoAddresses = errors.New("webhook: no addresses found")
	ErrBadInput    = errors.New("webhook: undecodable input")
)

// Leading arguments of lockLPToken(address lpToken, uint256 amount, uint256 unlockDate, ...).
var lockArgs = mustArguments("address", "uint256", "uint256")

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, name := range types {
		typ, err := abi.NewType(name, "", nil)
		if err != nil {
			panic("invalid abi type " + name + ": " + err.Error())
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

// DecodeLockInput decodes the lock transaction input, selector included.
// Amount is the raw uint256 scaled by 1e18.
func DecodeLockInput(input string) (domain.LockDetails, error) {
	data := common.FromHex(strings.TrimSpace(input))
	if len(data) < 4+32*2 {
		return domain.LockDetails{}, fmt.Errorf("%w: lock input too short (%d bytes)", ErrBadInput, len(data))
	}
	body := data[4:]

	// unlock date is optional on truncated inputs
	args := lockArgs
	if len(body) < 32*3 {
		args = lockArgs[:2]
	}
	values, err := args.Unpack(body)
	if err != nil {
		return domain.LockDetails{}, fmt.Errorf("%w: %v", ErrBadInput, err)
	}

	lpToken, ok := values[0].(common.Address)
	if !ok {
		return domain.LockDetails{}, fmt.Errorf("%w: lp token is not an address", ErrBadInput)
	}
	amount, ok := values[1].(*big.Int)
	if !ok {
		return domain.LockDetails{}, fmt.Errorf("%w: amount is not uint256", ErrBadInput)
	}

	details := domain.LockDetails{
		LPToken:   lpToken.Hex(),
		RawAmount: amount.String(),
		Amount:    decimal.NewFromBigInt(amount, -18),
	}
	if len(values) > 2 {
		if unlock, ok := values[2].(*big.Int); ok && unlock.IsInt64() {
			details.UnlockTime = unlock.Int64()
		}
	}
	return details, nil
}

// HasSelector reports whether the input starts with the 4-byte selector.
func HasSelector(input, selector string) bool {
	in := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(input), "0x"))
	sel := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(selector), "0x"))
	return sel != "" && strings.HasPrefix(in, sel)
}

// DecodePairCreated extracts the tracked token and the pair from a PairCreated log.
// token0/token1 are indexed (topics 1 and 2); the pair is the first data word.
// The tracked token is whichever side is not a quote asset.
func DecodePairCreated(l Log, quotes map[string]struct{}) (token, pair string, err error) {
	if l.Topic1 == "" || l.Topic2 == "" {
		return "", "", fmt.Errorf("%w: pair log missing token topics", ErrBadInput)
	}
	data := common.FromHex(l.Data)
	if len(data) < 32 {
		return "", "", fmt.Errorf("%w: pair log data too short", ErrBadInput)
	}

	token0 := common.HexToAddress(l.Topic1)
	token1 := common.HexToAddress(l.Topic2)
	pairAddr := common.BytesToAddress(data[12:32])

	token = token0.Hex()
	if _, isQuote := quotes[strings.ToLower(token)]; isQuote {
		token = token1.Hex()
	}
	return token, pairAddr.Hex(), nil
}

func addressSet(addresses []string) map[string]struct{} {
	set := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		set[strings.ToLower(strings.TrimSpace(addr))] = struct{}{}
	}
	return set
}
