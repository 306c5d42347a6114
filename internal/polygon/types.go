package polygon

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Transaction is the subset of an eth_getBlockByNumber transaction object the
// scanner consumes.
type Transaction struct {
	Hash  string `json:"hash"`
	To    string `json:"to"`
	Input string `json:"input"`
}

// Block is a block with full transaction bodies.
type Block struct {
	Number       string        `json:"number"`
	Hash         string        `json:"hash"`
	Transactions []Transaction `json:"transactions"`
}

// NumberUint64 decodes the block's 0x-hex number field.
func (b *Block) NumberUint64() (uint64, error) {
	return hexutil.DecodeUint64(b.Number)
}

// Receipt is the subset of a transaction receipt the scanner consumes.
type Receipt struct {
	TransactionHash string `json:"transactionHash"`
	Status          string `json:"status"`
}

// Succeeded reports whether the receipt status decodes to 1.
func (r *Receipt) Succeeded() bool {
	if r == nil {
		return false
	}
	status, err := hexutil.DecodeUint64(r.Status)
	if err != nil {
		return false
	}
	return status == 1
}
