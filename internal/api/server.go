package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/dgnsrekt/pnl_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/pnl_agent/internal/orchestrator"
	"github.com/dgnsrekt/pnl_agent/internal/pricing"
)

type Session interface {
	Refresh(ctx context.Context) (orchestrator.Outcome, error)
	Last() (orchestrator.Outcome, bool)
}

type Broker interface {
	Handle(ctx context.Context, req pricing.Request) pricing.Response
}

type Resolver interface {
	ResolvePrice(ctx context.Context, ts time.Time) (decimal.Decimal, bool)
}

type TabSource interface {
	Tab(ctx context.Context) (cdpcontrol.TabInfo, error)
}

type Deps struct {
	Session  Session
	Broker   Broker
	Resolver Resolver
	Tab      TabSource
}

func NewServer(d Deps) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("BTC P&L Controller API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	registerHealthHandlers(api, d)
	registerCycleHandlers(api, d)
	registerPriceHandlers(api, d)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, orchestrator.ErrPriceUnavailable) || errors.Is(err, pricing.ErrPriceUnavailable) {
		return huma.Error503ServiceUnavailable(err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return huma.Error504GatewayTimeout(err.Error())
	}
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdpcontrol.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case cdpcontrol.CodeTabNotFound, cdpcontrol.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case cdpcontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdpcontrol.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
