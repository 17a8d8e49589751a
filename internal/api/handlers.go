package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"github.com/dgnsrekt/pnl_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/pnl_agent/internal/orchestrator"
	"github.com/dgnsrekt/pnl_agent/internal/pricing"
)

type healthOutput struct {
	Body struct {
		Status    string              `json:"status"`
		Tab       *cdpcontrol.TabInfo `json:"tab,omitempty"`
		Error     string              `json:"error,omitempty"`
		LastCycle *time.Time          `json:"last_cycle,omitempty"`
	}
}

func registerHealthHandlers(api huma.API, d Deps) {
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/api/v1/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			if d.Tab != nil {
				tab, err := d.Tab.Tab(ctx)
				if err != nil {
					out.Body.Status = "degraded"
					out.Body.Error = err.Error()
				} else {
					out.Body.Tab = &tab
				}
			}
			if last, ok := d.Session.Last(); ok {
				out.Body.LastCycle = &last.FinishedAt
			}
			return out, nil
		})
}

type outcomeOutput struct {
	Body orchestrator.Outcome
}

func registerCycleHandlers(api huma.API, d Deps) {
	huma.Register(api, huma.Operation{OperationID: "refresh", Method: http.MethodPost, Path: "/api/v1/refresh", Summary: "Run a refresh cycle, or join the one in flight", Tags: []string{"Cycle"}},
		func(ctx context.Context, input *struct{}) (*outcomeOutput, error) {
			outcome, err := d.Session.Refresh(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &outcomeOutput{Body: outcome}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-summary", Method: http.MethodGet, Path: "/api/v1/summary", Summary: "Most recent completed cycle", Tags: []string{"Cycle"}},
		func(ctx context.Context, input *struct{}) (*outcomeOutput, error) {
			outcome, ok := d.Session.Last()
			if !ok {
				return nil, huma.Error404NotFound("no completed cycle yet")
			}
			return &outcomeOutput{Body: outcome}, nil
		})
}

type messageInput struct {
	Body pricing.Request
}

type messageOutput struct {
	Body pricing.Response
}

type historyInput struct {
	At string `query:"at" required:"true" doc:"RFC3339 timestamp"`
}

type historyOutput struct {
	Body struct {
		At     time.Time       `json:"at"`
		Bucket int64           `json:"bucket" doc:"Minutes since the epoch"`
		Price  decimal.Decimal `json:"price"`
	}
}

func registerPriceHandlers(api huma.API, d Deps) {
	huma.Register(api, huma.Operation{OperationID: "send-message", Method: http.MethodPost, Path: "/api/v1/messages", Summary: "Price broker request", Tags: []string{"Prices"}},
		func(ctx context.Context, input *messageInput) (*messageOutput, error) {
			return &messageOutput{Body: d.Broker.Handle(ctx, input.Body)}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "price-history", Method: http.MethodGet, Path: "/api/v1/prices/history", Summary: "Historical BTC price near a timestamp", Tags: []string{"Prices"}},
		func(ctx context.Context, input *historyInput) (*historyOutput, error) {
			at, err := time.Parse(time.RFC3339, input.At)
			if err != nil {
				return nil, mapErr(cdpcontrol.NewError(cdpcontrol.CodeValidation, "at must be an RFC3339 timestamp", err))
			}
			price, ok := d.Resolver.ResolvePrice(ctx, at)
			if !ok {
				return nil, mapErr(cdpcontrol.NewError(cdpcontrol.CodeNotFound, "no price near "+at.UTC().Format(time.RFC3339), nil))
			}
			out := &historyOutput{}
			out.Body.At = at.UTC()
			out.Body.Bucket = pricing.Bucket(at)
			out.Body.Price = price
			return out, nil
		})
}
