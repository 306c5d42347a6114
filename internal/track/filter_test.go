package track

import (
	"math/big"
	"testing"

	"github.com/alanyoungcy/polyscan/internal/domain"
	"github.com/alanyoungcy/polyscan/internal/polygon"
)

func order(maker string, side domain.Side) domain.DecodedOrder {
	return domain.DecodedOrder{
		Maker:       maker,
		TokenID:     "42",
		Side:        side,
		MakerAmount: big.NewInt(50_000_000),
		TakerAmount: big.NewInt(100_000_000),
	}
}

func successReceipt() *polygon.Receipt {
	return &polygon.Receipt{TransactionHash: "0xabc", Status: "0x1"}
}

func failedReceipt() *polygon.Receipt {
	return &polygon.Receipt{TransactionHash: "0xabc", Status: "0x0"}
}

func TestFilterSelectsTrackedMaker(t *testing.T) {
	f := NewFilter([]string{"0xBBBB00000000000000000000000000000000bbbb"})

	orders := []domain.DecodedOrder{
		order("0xaaaa00000000000000000000000000000000aaaa", domain.SideBuy),
		order("0xbbbb00000000000000000000000000000000bbbb", domain.SideSell),
	}

	got := f.Select(orders, successReceipt())
	if got == nil {
		t.Fatalf("Select returned nil for a tracked maker")
	}
	if got.Maker != "0xbbbb00000000000000000000000000000000bbbb" {
		t.Errorf("selected maker %s", got.Maker)
	}
}

func TestFilterNoMatch(t *testing.T) {
	f := NewFilter([]string{"0xdddd00000000000000000000000000000000dddd"})

	orders := []domain.DecodedOrder{
		order("0xaaaa00000000000000000000000000000000aaaa", domain.SideBuy),
	}

	if got := f.Select(orders, successReceipt()); got != nil {
		t.Errorf("Select returned %v for an untracked maker", got)
	}
}

func TestFilterTrackAllReturnsTakerOrder(t *testing.T) {
	f := NewFilter(nil)
	if !f.TrackingAll() {
		t.Fatalf("empty filter should track all")
	}

	orders := []domain.DecodedOrder{
		order("0xtaker", domain.SideBuy),
		order("0xmaker", domain.SideSell),
	}

	got := f.Select(orders, successReceipt())
	if got == nil || got.Maker != "0xtaker" {
		t.Fatalf("track-all should select element 0, got %v", got)
	}
}

func TestFilterRequiresSuccessReceipt(t *testing.T) {
	f := NewFilter(nil)
	orders := []domain.DecodedOrder{order("0xaaaa", domain.SideBuy)}

	if got := f.Select(orders, failedReceipt()); got != nil {
		t.Errorf("Select returned %v for a reverted transaction", got)
	}
	if got := f.Select(orders, nil); got != nil {
		t.Errorf("Select returned %v with no receipt", got)
	}
}

func TestFilterCaseInsensitive(t *testing.T) {
	f := NewFilter([]string{"0xAAAA00000000000000000000000000000000AAAA"})

	orders := []domain.DecodedOrder{
		order("0xaaaa00000000000000000000000000000000aaaa", domain.SideBuy),
	}

	if got := f.Select(orders, successReceipt()); got == nil {
		t.Fatalf("Select should match addresses case-insensitively")
	}
}
