// Package track selects trades that belong to watched wallets: a wallet
// filter over decoded orders and a per-block processor that joins
// transactions with their receipts.
package track

import (
	"strings"

	"github.com/alanyoungcy/polyscan/internal/domain"
	"github.com/alanyoungcy/polyscan/internal/polygon"
)

// Filter selects at most one order per transaction by maker address. An
// empty target set means track-all mode: the taker order (element 0) is
// always the match.
type Filter struct {
	// wallets holds lowercase addresses; nil means track all.
	wallets map[string]struct{}
}

// NewFilter builds a Filter. Addresses are lowercased once here so lookups
// are case-insensitive.
func NewFilter(wallets []string) *Filter {
	if len(wallets) == 0 {
		return &Filter{}
	}
	set := make(map[string]struct{}, len(wallets))
	for _, w := range wallets {
		set[strings.ToLower(w)] = struct{}{}
	}
	return &Filter{wallets: set}
}

// TrackingAll reports whether no wallet filter is active.
func (f *Filter) TrackingAll() bool {
	return f.wallets == nil
}

// Select returns the first order whose maker is in the target set, or the
// taker order in track-all mode. It returns nil when the receipt is missing
// or does not indicate success, regardless of order contents.
func (f *Filter) Select(orders []domain.DecodedOrder, receipt *polygon.Receipt) *domain.DecodedOrder {
	if !receipt.Succeeded() {
		return nil
	}

	for i := range orders {
		if f.matches(&orders[i]) {
			return &orders[i]
		}
	}
	return nil
}

func (f *Filter) matches(order *domain.DecodedOrder) bool {
	if f.wallets == nil {
		return true
	}
	_, ok := f.wallets[strings.ToLower(order.Maker)]
	return ok
}
