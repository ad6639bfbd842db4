package webhook

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Payload is the stream webhook body. Only the fields the pipeline reads are modelled.
type Payload struct {
	ID        string     `json:"id,omitempty"`
	StreamID  string     `json:"streamId,omitempty"`
	Tag       string     `json:"tag,omitempty"`
	Confirmed bool       `json:"confirmed"`
	ChainID   string     `json:"chainId"`
	Block     Block      `json:"block"`
	Logs      []Log      `json:"logs"`
	Txs       []Tx       `json:"txs"`
	ABI       []ABIEntry `json:"abi"`
}

type Block struct {
	Number    string `json:"number"`
	Hash      string `json:"hash"`
	Timestamp string `json:"timestamp"`
}

type Log struct {
	Address         string `json:"address"`
	Topic0          string `json:"topic0"`
	Topic1          string `json:"topic1"`
	Topic2          string `json:"topic2"`
	Topic3          string `json:"topic3"`
	Data            string `json:"data"`
	TransactionHash string `json:"transactionHash"`
}

type Tx struct {
	Hash        string `json:"hash"`
	FromAddress string `json:"fromAddress"`
	ToAddress   string `json:"toAddress"`
	Input       string `json:"input"`
}

type ABIEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ExtractAddresses returns the distinct emitting addresses across logs in first-seen order.
// Duplicates are detected case-insensitively; invalid addresses are dropped.
func ExtractAddresses(logs []Log) []string {
	seen := make(map[string]struct{}, len(logs))
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		addr := strings.TrimSpace(l.Address)
		if !common.IsHexAddress(addr) {
			continue
		}
		key := strings.ToLower(addr)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	return out
}

func logsFor(logs []Log, address string) []Log {
	out := make([]Log, 0, 1)
	for _, l := range logs {
		if strings.EqualFold(l.Address, address) {
			out = append(out, l)
		}
	}
	return out
}
