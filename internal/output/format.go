// Package output converts trade records into their human-facing form and
// writes them to files or the terminal.
package output

import (
	"math/big"

	"github.com/alanyoungcy/polyscan/internal/domain"
)

// baseUnits is the scale of on-chain amounts: both USDC and outcome tokens
// use 6 decimals.
const baseUnits = 1_000_000

// Format converts a raw TradeRecord into a FormattedTrade. For a BUY the
// maker pays USDC and receives tokens; for a SELL the reverse. Price is
// USDC per token, 0 when no tokens moved.
func Format(trade domain.TradeRecord) domain.FormattedTrade {
	maker := bigToFloat(trade.MakerAmount) / baseUnits
	taker := bigToFloat(trade.TakerAmount) / baseUnits

	var usdc, tokens float64
	if trade.Side == domain.SideBuy {
		usdc, tokens = maker, taker
	} else {
		usdc, tokens = taker, maker
	}

	var price float64
	if tokens > 0 {
		price = usdc / tokens
	}

	return domain.FormattedTrade{
		Wallet:      trade.Wallet,
		Side:        trade.Side.String(),
		Tokens:      tokens,
		Price:       price,
		TotalUSDC:   usdc,
		TxHash:      trade.TransactionHash,
		BlockNumber: trade.BlockNumber,
	}
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
