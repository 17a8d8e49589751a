package extract

import (
	"strings"

	"github.com/dgnsrekt/pnl_agent/internal/layout"
)

// ResolveColumn returns the index of the first header whose text contains any
// keyword, compared case-insensitively. Without a match it returns fallback.
func ResolveColumn(headers []string, keywords []string, fallback int) int {
	for i, h := range headers {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		for _, kw := range keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(h, kw) {
				return i
			}
		}
	}
	return fallback
}

func resolve(headers []string, spec layout.ColumnSpec) int {
	return ResolveColumn(headers, spec.Keywords, spec.Fallback)
}

// TradingIndexes are the resolved column positions of the trading table.
type TradingIndexes struct {
	Sold, Bought, Completed int
}

// TransferIndexes are the resolved column positions of a transfer table.
type TransferIndexes struct {
	Amount, Fee, Completed int
}

func TradingColumns(headers []string, cols layout.TradingColumns) TradingIndexes {
	return TradingIndexes{
		Sold:      resolve(headers, cols.Sold),
		Bought:    resolve(headers, cols.Bought),
		Completed: resolve(headers, cols.Completed),
	}
}

func TransferColumns(headers []string, cols layout.TransferColumns) TransferIndexes {
	return TransferIndexes{
		Amount:    resolve(headers, cols.Amount),
		Fee:       resolve(headers, cols.Fee),
		Completed: resolve(headers, cols.Completed),
	}
}
