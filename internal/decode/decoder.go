// Package decode recognizes Polymarket matchOrders transactions and parses
// their calldata into structured orders.
package decode

import (
	"encoding/hex"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyscan/internal/domain"
)

// matchOrdersSelector identifies the matchOrders call. The Fee Module and the
// NegRisk Fee Module 2 share this selector and are treated identically.
var matchOrdersSelector = [4]byte{0x22, 0x87, 0xe3, 0x50}

// KnownContracts maps the Polymarket exchange deployments to their names.
// Used for debug logging only; decoding is selector-driven.
var KnownContracts = map[string]string{
	"0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e": "CTFExchange",
	"0xc5d563a36ae78145c45a50134d48a1215220f80a": "NegRiskCTFExchange",
	"0x56c79347e95530c01a2fc76e732f9566da16e113": "NegRiskOperator",
}

// orderComponents is the 13-field Order tuple:
// (salt, maker, signer, taker, tokenId, makerAmount, takerAmount,
// expiration, nonce, feeRateBps, side, signatureType, signature).
var orderComponents = []abi.ArgumentMarshaling{
	{Name: "salt", Type: "uint256"},
	{Name: "maker", Type: "address"},
	{Name: "signer", Type: "address"},
	{Name: "taker", Type: "address"},
	{Name: "tokenId", Type: "uint256"},
	{Name: "makerAmount", Type: "uint256"},
	{Name: "takerAmount", Type: "uint256"},
	{Name: "expiration", Type: "uint256"},
	{Name: "nonce", Type: "uint256"},
	{Name: "feeRateBps", Type: "uint256"},
	{Name: "side", Type: "uint8"},
	{Name: "signatureType", Type: "uint8"},
	{Name: "signature", Type: "bytes"},
}

// matchOrdersArgs is the full parameter list of
// matchOrders(Order takerOrder, Order[] makerOrders, uint256 takerFillAmount,
// uint256 takerReceiveAmount, uint256[] makerFillAmounts,
// uint256 takerFeeAmount, uint256[] makerFeeAmounts).
// The five trailing numeric parameters are accepted by the schema but not
// retained in the output.
var matchOrdersArgs = abi.Arguments{
	{Name: "takerOrder", Type: mustNewType("tuple", orderComponents)},
	{Name: "makerOrders", Type: mustNewType("tuple[]", orderComponents)},
	{Name: "takerFillAmount", Type: mustNewType("uint256", nil)},
	{Name: "takerReceiveAmount", Type: mustNewType("uint256", nil)},
	{Name: "makerFillAmounts", Type: mustNewType("uint256[]", nil)},
	{Name: "takerFeeAmount", Type: mustNewType("uint256", nil)},
	{Name: "makerFeeAmounts", Type: mustNewType("uint256[]", nil)},
}

func mustNewType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}

// exchangeOrder mirrors the ABI tuple layout for typed unpacking. Field names
// follow the camel-cased component names the abi package derives.
type exchangeOrder struct {
	Salt          *big.Int
	Maker         common.Address
	Signer        common.Address
	Taker         common.Address
	TokenId       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          uint8
	SignatureType uint8
	Signature     []byte
}

// Decoder turns transaction input data into decoded orders.
type Decoder struct {
	logger *slog.Logger
}

// NewDecoder creates a Decoder.
func NewDecoder(logger *slog.Logger) *Decoder {
	return &Decoder{
		logger: logger.With(slog.String("component", "decoder")),
	}
}

// Decode parses 0x-prefixed transaction input data. The second return value
// is false when the transaction is not a matchOrders call: short input,
// non-hex input, a different selector, or calldata the schema cannot unpack.
// Such transactions are expected (other contracts can collide with the
// selector) and must not abort block processing.
//
// On success the taker order is element 0 and maker orders follow in their
// encoded order.
func (d *Decoder) Decode(input string) ([]domain.DecodedOrder, bool) {
	raw, err := hex.DecodeString(strings.TrimPrefix(input, "0x"))
	if err != nil {
		return nil, false
	}
	if len(raw) < 4 {
		return nil, false
	}
	if [4]byte(raw[:4]) != matchOrdersSelector {
		return nil, false
	}

	values, err := matchOrdersArgs.Unpack(raw[4:])
	if err != nil {
		// Selector collision or truncated calldata.
		return nil, false
	}
	if len(values) != len(matchOrdersArgs) {
		return nil, false
	}

	taker := abi.ConvertType(values[0], new(exchangeOrder)).(*exchangeOrder)
	makers := abi.ConvertType(values[1], new([]exchangeOrder)).(*[]exchangeOrder)

	orders := make([]domain.DecodedOrder, 0, 1+len(*makers))
	orders = append(orders, toDomainOrder(taker))
	for i := range *makers {
		orders = append(orders, toDomainOrder(&(*makers)[i]))
	}
	return orders, true
}

func toDomainOrder(o *exchangeOrder) domain.DecodedOrder {
	return domain.DecodedOrder{
		Salt:          o.Salt,
		Maker:         strings.ToLower(o.Maker.Hex()),
		Signer:        strings.ToLower(o.Signer.Hex()),
		Taker:         strings.ToLower(o.Taker.Hex()),
		TokenID:       o.TokenId.String(),
		MakerAmount:   o.MakerAmount,
		TakerAmount:   o.TakerAmount,
		Expiration:    o.Expiration,
		Nonce:         o.Nonce,
		FeeRateBps:    o.FeeRateBps,
		Side:          domain.Side(o.Side),
		SignatureType: o.SignatureType,
		Signature:     o.Signature,
	}
}
