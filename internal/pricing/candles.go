package pricing

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

const DefaultCandlesURL = "https://api-pub.bitfinex.com/v2/candles/trade:1m:tBTCUSD/hist"

// Sample is one one-minute candle reduced to a single price.
type Sample struct {
	Time  time.Time
	Price decimal.Decimal
}

// CandleSource returns the samples in [start, end].
type CandleSource interface {
	Candles(ctx context.Context, start, end time.Time, limit int) ([]Sample, error)
}

// CandleProvider queries a 1-minute candle endpoint answering
// [[time, open, close, high, low, volume], ...].
type CandleProvider struct {
	client *http.Client
	base   string
}

func NewCandleProvider(client *http.Client, base string) *CandleProvider {
	if client == nil {
		client = http.DefaultClient
	}
	if base == "" {
		base = DefaultCandlesURL
	}
	return &CandleProvider{client: client, base: base}
}

func (p *CandleProvider) Candles(ctx context.Context, start, end time.Time, limit int) ([]Sample, error) {
	u, err := url.Parse(p.base)
	if err != nil {
		return nil, fmt.Errorf("candles url: %w", err)
	}
	q := u.Query()
	q.Set("start", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("end", strconv.FormatInt(end.UnixMilli(), 10))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sort", "1")
	u.RawQuery = q.Encode()

	var rows []json.RawMessage
	if err := getJSON(ctx, p.client, u.String(), &rows); err != nil {
		return nil, fmt.Errorf("candles: %w", err)
	}

	out := make([]Sample, 0, len(rows))
	for _, raw := range rows {
		s, ok := parseCandle(raw)
		if !ok {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// parseCandle accepts [time, open, close, ...] tuples. The price is close,
// falling back to open.
func parseCandle(raw json.RawMessage) (Sample, bool) {
	var tuple []any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&tuple); err != nil || len(tuple) < 2 {
		return Sample{}, false
	}
	ms, ok := toDecimal(tuple[0])
	if !ok {
		return Sample{}, false
	}
	var price decimal.Decimal
	if len(tuple) > 2 {
		price, ok = toDecimal(tuple[2])
	}
	if !ok || len(tuple) <= 2 || !price.IsPositive() {
		price, ok = toDecimal(tuple[1])
		if !ok || !price.IsPositive() {
			return Sample{}, false
		}
	}
	return Sample{Time: time.UnixMilli(ms.IntPart()).UTC(), Price: price}, true
}
