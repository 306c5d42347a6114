// Package domain defines the value objects shared by the scanner: decoded
// orders, attributed trade records, and their human-facing formatted view.
// All types are request-scoped values, constructed once and never mutated.
package domain

import "math/big"

// Side is the direction of an order: BUY (0) or SELL (1), matching the
// on-chain encoding.
type Side uint8

const (
	SideBuy  Side = 0
	SideSell Side = 1
)

// String returns "BUY" or "SELL".
func (s Side) String() string {
	if s == SideBuy {
		return "BUY"
	}
	return "SELL"
}

// DecodedOrder is one order parsed out of a matchOrders transaction.
// Addresses are lowercase 0x-prefixed hex; amounts and identifiers are
// *big.Int so 256-bit values never lose precision.
type DecodedOrder struct {
	Salt          *big.Int
	Maker         string
	Signer        string
	Taker         string
	TokenID       string // uint256 token id as a decimal string
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          Side
	SignatureType uint8
	Signature     []byte
}

// TradeRecord is one attributed trade: the matched order joined with the
// block and transaction it settled in. At most one TradeRecord is produced
// per transaction.
type TradeRecord struct {
	BlockNumber     uint64
	TransactionHash string
	Wallet          string // maker of the matched order
	TokenID         string
	Side            Side
	MakerAmount     *big.Int
	TakerAmount     *big.Int
}

// FormattedTrade is the human-facing view of a TradeRecord with amounts
// scaled from 1e6 base units to USDC / token counts.
type FormattedTrade struct {
	Wallet      string  `json:"wallet"`
	Side        string  `json:"side"`
	Tokens      float64 `json:"tokens"`
	Price       float64 `json:"price"`
	TotalUSDC   float64 `json:"total_usdc"`
	TxHash      string  `json:"tx_hash"`
	BlockNumber uint64  `json:"block_number"`
}
