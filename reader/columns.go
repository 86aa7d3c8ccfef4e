package reader

import "strings"

// Candidate source column names per logical field, in priority order. Header
// cells are compared after normalizeHeader.
var (
	accountColumns        = []string{"account", "account id", "address", "trader"}
	timeColumns           = []string{"timestamp", "time", "ts"}
	pnlColumns            = []string{"closed pnl", "closedpnl", "pnl", "realizedpnl"}
	sizeUSDColumns        = []string{"size usd", "size_usd", "notional"}
	sizeColumns           = []string{"size tokens", "size", "qty", "quantity"}
	sideColumns           = []string{"side", "direction"}
	leverageColumns       = []string{"leverage"}
	feeColumns            = []string{"fee"}
	sentimentDateColumns  = []string{"date", "day"}
	classificationColumns = []string{"classification", "value_classification", "sentiment"}
)

const utf8BOM = "\ufeff"

func normalizeHeader(name string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, utf8BOM)))
}

// headerIndex maps normalized header names to their first position.
type headerIndex map[string]int

func newHeaderIndex(header []string) headerIndex {
	idx := make(headerIndex, len(header))
	for i, h := range header {
		name := normalizeHeader(h)
		if _, ok := idx[name]; !ok {
			idx[name] = i
		}
	}
	return idx
}

// resolve returns the position and name of the first candidate present.
func (h headerIndex) resolve(candidates []string) (int, string, bool) {
	for _, c := range candidates {
		if i, ok := h[c]; ok {
			return i, c, true
		}
	}
	return -1, "", false
}
