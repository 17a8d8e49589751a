package extract

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseCurrency reads a displayed USD amount ("$1,234.56", "-$3.10",
// "($3.10)", "1,234.56 USD"). Garbled input yields zero.
func ParseCurrency(s string) decimal.Decimal {
	return parseNumber(s)
}

// ParseQuantity reads a displayed asset quantity ("₿0.015", "0.015 BTC",
// "-0.5"). Garbled input yields zero.
func ParseQuantity(s string) decimal.Decimal {
	return parseNumber(s)
}

func parseNumber(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
	}

	var b strings.Builder
	seenDigit := false
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
			seenDigit = true
		case r == '.':
			b.WriteRune(r)
		case r == '-' || r == '−':
			if !seenDigit {
				negative = true
			}
		case r == '+', r == ',', unicode.IsSpace(r), unicode.IsLetter(r), unicode.IsSymbol(r), r == '(' || r == ')':
			// currency symbols, unit labels, separators
		default:
			return decimal.Zero
		}
	}
	if !seenDigit {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(b.String())
	if err != nil {
		return decimal.Zero
	}
	if negative {
		d = d.Neg()
	}
	return d
}

var textLayouts = []string{
	"Jan 2, 2006, 3:04:05 PM",
	"Jan 2, 2006, 3:04 PM",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006 at 3:04 PM",
	"January 2, 2006, 3:04 PM",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"01/02/2006, 15:04:05",
	"01/02/2006, 3:04:05 PM",
	"01/02/2006 15:04",
	"02 Jan 2006 15:04",
	"2 Jan 2006, 15:04",
	"Jan 2, 2006",
	"2006-01-02",
}

// ParseTime reads a completion time, preferring the machine-readable
// attribute over the displayed text. Times without a zone are taken as UTC.
func ParseTime(attr, text string) (time.Time, bool) {
	if ts, ok := parseMachineTime(strings.TrimSpace(attr)); ok {
		return ts, true
	}
	text = strings.Join(strings.Fields(text), " ")
	if ts, ok := parseMachineTime(text); ok {
		return ts, true
	}
	for _, layout := range textLayouts {
		if ts, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func parseMachineTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04:05.000Z"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	// Epoch milliseconds once past the year 2286 in seconds.
	if n > 1e10 {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}
