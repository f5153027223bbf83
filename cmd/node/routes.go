package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"anagolay/internal/balances"
	"anagolay/pkg/domain"
	"anagolay/pkg/platform/events"
	"anagolay/pkg/platform/httputil"
)

type balanceReader interface {
	Lookup(ctx context.Context, who domain.AccountID) (balances.Account, error)
}

type eventReader interface {
	List(ctx context.Context, account domain.AccountID) ([]events.Event, error)
}

type bestBlock interface {
	BestBlock() domain.BlockNumber
}

// registerNodeRoutes mounts the operational and read-only ledger endpoints.
func registerNodeRoutes(r chi.Router, chain bestBlock, ledger balanceReader, history eventReader) {
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"best_block": uint64(chain.BestBlock()),
		})
	})

	r.Get("/balances/{account}", func(w http.ResponseWriter, req *http.Request) {
		who, err := domain.ParseAccountID(chi.URLParam(req, "account"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		account, err := ledger.Lookup(req.Context(), who)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, account)
	})

	r.Get("/events/{account}", func(w http.ResponseWriter, req *http.Request) {
		who, err := domain.ParseAccountID(chi.URLParam(req, "account"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		found, err := history.List(req.Context(), who)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": found})
	})
}
