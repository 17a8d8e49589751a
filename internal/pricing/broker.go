package pricing

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
)

// MsgGetBTCPrice is the only verb the broker answers.
const MsgGetBTCPrice = "GET_BTC_PRICE"

// Request is a message from the page side asking for privileged data.
type Request struct {
	Type string `json:"type" doc:"Message verb, GET_BTC_PRICE"`
}

// Response is either {price} or {error:true}.
type Response struct {
	Price *float64 `json:"price,omitempty" doc:"Current BTC-USD price"`
	Error bool     `json:"error,omitempty" doc:"Set when the price could not be fetched"`
}

// Decimal returns the price as a decimal and whether it is usable.
func (r Response) Decimal() (decimal.Decimal, bool) {
	if r.Error || r.Price == nil || *r.Price <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(*r.Price), true
}

// Quoter returns the current price.
type Quoter interface {
	CurrentPrice(ctx context.Context) (decimal.Decimal, error)
}

// Broker answers page-side price requests on behalf of the network-capable
// process. Every failure is folded into {error:true}.
type Broker struct {
	quoter Quoter
}

func NewBroker(q Quoter) *Broker {
	return &Broker{quoter: q}
}

func (b *Broker) Handle(ctx context.Context, req Request) Response {
	if req.Type != MsgGetBTCPrice {
		slog.Warn("pricing broker unknown message", "type", req.Type)
		return Response{Error: true}
	}
	price, err := b.quoter.CurrentPrice(ctx)
	if err != nil {
		slog.Warn("pricing broker current price failed", "error", err)
		return Response{Error: true}
	}
	f := price.InexactFloat64()
	return Response{Price: &f}
}
