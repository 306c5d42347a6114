package decode

import (
	"encoding/hex"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyscan/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOrder(maker string, side uint8) exchangeOrder {
	return exchangeOrder{
		Salt:          big.NewInt(12345),
		Maker:         common.HexToAddress(maker),
		Signer:        common.HexToAddress(maker),
		Taker:         common.Address{},
		TokenId:       newBig("52114319501245915516055106046884209969926127482827954674443846427813813222426"),
		MakerAmount:   big.NewInt(50_000_000),
		TakerAmount:   big.NewInt(100_000_000),
		Expiration:    big.NewInt(0),
		Nonce:         big.NewInt(0),
		FeeRateBps:    big.NewInt(0),
		Side:          side,
		SignatureType: 0,
		Signature:     []byte{0x01, 0x02},
	}
}

func newBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int literal: " + s)
	}
	return v
}

// packMatchOrders builds 0x-prefixed calldata the way the exchange contract
// expects it.
func packMatchOrders(t *testing.T, taker exchangeOrder, makers []exchangeOrder) string {
	t.Helper()
	data, err := matchOrdersArgs.Pack(
		taker, makers,
		big.NewInt(100_000_000), big.NewInt(50_000_000),
		[]*big.Int{big.NewInt(50_000_000)},
		big.NewInt(0), []*big.Int{},
	)
	if err != nil {
		t.Fatalf("pack calldata: %v", err)
	}
	return "0x" + hex.EncodeToString(append(matchOrdersSelector[:], data...))
}

func TestDecodeTakerFirstThenMakers(t *testing.T) {
	dec := NewDecoder(testLogger())

	taker := testOrder("0xAAaa00000000000000000000000000000000aaAA", 0)
	makerA := testOrder("0xBBbb00000000000000000000000000000000bbBB", 1)
	makerB := testOrder("0xCCcc00000000000000000000000000000000ccCC", 1)

	orders, ok := dec.Decode(packMatchOrders(t, taker, []exchangeOrder{makerA, makerB}))
	if !ok {
		t.Fatalf("Decode returned ok=false for valid calldata")
	}
	if len(orders) != 3 {
		t.Fatalf("got %d orders, want 3", len(orders))
	}
	if orders[0].Maker != "0xaaaa00000000000000000000000000000000aaaa" {
		t.Errorf("taker order not first: got maker %s", orders[0].Maker)
	}
	if orders[1].Maker != "0xbbbb00000000000000000000000000000000bbbb" {
		t.Errorf("first maker order out of place: got %s", orders[1].Maker)
	}
	if orders[2].Maker != "0xcccc00000000000000000000000000000000cccc" {
		t.Errorf("second maker order out of place: got %s", orders[2].Maker)
	}
}

func TestDecodeOrderFields(t *testing.T) {
	dec := NewDecoder(testLogger())

	taker := testOrder("0xAAaa00000000000000000000000000000000aaAA", 0)
	orders, ok := dec.Decode(packMatchOrders(t, taker, nil))
	if !ok {
		t.Fatalf("Decode returned ok=false for valid calldata")
	}

	got := orders[0]
	if got.Side != domain.SideBuy {
		t.Errorf("side = %v, want BUY", got.Side)
	}
	if got.TokenID != "52114319501245915516055106046884209969926127482827954674443846427813813222426" {
		t.Errorf("tokenID = %s", got.TokenID)
	}
	if got.MakerAmount.Int64() != 50_000_000 {
		t.Errorf("makerAmount = %s, want 50000000", got.MakerAmount)
	}
	if got.TakerAmount.Int64() != 100_000_000 {
		t.Errorf("takerAmount = %s, want 100000000", got.TakerAmount)
	}
	if got.Salt.Int64() != 12345 {
		t.Errorf("salt = %s, want 12345", got.Salt)
	}
}

func TestDecodeSellSide(t *testing.T) {
	dec := NewDecoder(testLogger())

	taker := testOrder("0xAAaa00000000000000000000000000000000aaAA", 1)
	orders, ok := dec.Decode(packMatchOrders(t, taker, nil))
	if !ok {
		t.Fatalf("Decode returned ok=false for valid calldata")
	}
	if orders[0].Side != domain.SideSell {
		t.Errorf("side = %v, want SELL", orders[0].Side)
	}
}

func TestDecodeRejectsNonMatchOrders(t *testing.T) {
	dec := NewDecoder(testLogger())

	cases := map[string]string{
		"empty":          "",
		"prefix only":    "0x",
		"short":          "0x2287e3",
		"non-hex":        "0xzz87e350",
		"other selector": "0xa9059cbb0000000000000000000000000000000000000000000000000000000000000001",
		"truncated args": "0x2287e350deadbeef",
	}

	for name, input := range cases {
		if _, ok := dec.Decode(input); ok {
			t.Errorf("%s: Decode accepted %q", name, input)
		}
	}
}

func TestDecodeSelectorCollision(t *testing.T) {
	dec := NewDecoder(testLogger())

	// Right selector, but the body is a lone word the schema cannot unpack
	// into seven parameters.
	input := "0x2287e3500000000000000000000000000000000000000000000000000000000000000001"
	if _, ok := dec.Decode(input); ok {
		t.Fatalf("Decode accepted calldata that does not match the schema")
	}
}
