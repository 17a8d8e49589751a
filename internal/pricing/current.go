// Package pricing fetches current and historical BTC-USD prices and resolves
// an acquisition price for a point in time.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable reports that a provider answered without a usable price.
var ErrPriceUnavailable = errors.New("price unavailable")

const (
	DefaultQuoteURL  = "https://api.coinbase.com/v2/prices/BTC-USD/spot"
	DefaultQuotePath = "$.data.amount"
)

// CurrentProvider reads the spot price from a quote endpoint. The price sits
// at a provider-specific JSONPath.
type CurrentProvider struct {
	client *http.Client
	url    string
	path   string
}

func NewCurrentProvider(client *http.Client, url, path string) *CurrentProvider {
	if client == nil {
		client = http.DefaultClient
	}
	if url == "" {
		url = DefaultQuoteURL
	}
	if path == "" {
		path = DefaultQuotePath
	}
	return &CurrentProvider{client: client, url: url, path: path}
}

// CurrentPrice returns the latest BTC-USD price.
func (p *CurrentProvider) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	var doc any
	if err := getJSON(ctx, p.client, p.url, &doc); err != nil {
		return decimal.Zero, fmt.Errorf("quote %s: %w", p.url, err)
	}
	val, err := jsonpath.Get(p.path, doc)
	if err != nil {
		return decimal.Zero, fmt.Errorf("quote path %q: %w", p.path, ErrPriceUnavailable)
	}
	// jsonpath may hand back a one-element list for filter expressions.
	if list, ok := val.([]any); ok {
		if len(list) == 0 {
			return decimal.Zero, fmt.Errorf("quote path %q: %w", p.path, ErrPriceUnavailable)
		}
		val = list[0]
	}
	price, ok := toDecimal(val)
	if !ok || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("quote path %q value %v: %w", p.path, val, ErrPriceUnavailable)
	}
	return price, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(x), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		return d, err == nil
	case int64:
		return decimal.NewFromInt(x), true
	default:
		return decimal.Zero, false
	}
}
