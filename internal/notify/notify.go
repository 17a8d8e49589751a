// Package notify pushes a one-line portfolio summary to an ntfy topic.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dgnsrekt/pnl_agent/internal/ledger"
	"github.com/dgnsrekt/pnl_agent/internal/present"
)

// Notifier posts summaries to a fixed endpoint.
type Notifier struct {
	client   *http.Client
	endpoint string
}

// New returns nil when endpoint is empty; a nil Notifier sends nothing.
func New(client *http.Client, endpoint string) *Notifier {
	if strings.TrimSpace(endpoint) == "" {
		return nil
	}
	return &Notifier{client: client, endpoint: endpoint}
}

// Summary posts the summary line. Safe on a nil receiver.
func (n *Notifier) Summary(ctx context.Context, s ledger.Summary) error {
	if n == nil {
		return nil
	}
	return Send(ctx, n.client, n.endpoint, Message(s))
}

// Message is the text pushed for a summary.
func Message(s ledger.Summary) string {
	return fmt.Sprintf("BTC %s | basis %s | value %s | P&L %s (%s)",
		strings.TrimSuffix(present.BTC(s.HoldingsQuantity), " BTC"),
		present.USD(s.TotalBasisUSD),
		present.USD(s.CurrentValueUSD),
		present.SignedUSD(s.NetProfitUSD),
		present.Percent(s.ProfitPercent),
	)
}

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	if endpoint == "" {
		return errors.New("ntfy endpoint is empty")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Title", present.BannerTitle)

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
