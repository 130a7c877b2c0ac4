package main

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/contactkeval/btc-iv-compare/internal/chain"
	"github.com/contactkeval/btc-iv-compare/internal/compare"
	"github.com/contactkeval/btc-iv-compare/internal/config"
	"github.com/contactkeval/btc-iv-compare/internal/logger"
	"github.com/contactkeval/btc-iv-compare/internal/metrics"
)

// newMux serves /run (one comparison as JSON), /health and /metrics. /run accepts
// optional etf and expiry query parameters over the configured values.
func newMux(cfg *config.Config, runner *compare.Runner, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /run", func(w http.ResponseWriter, r *http.Request) {
		logger.Infof("received /run request")

		req, err := newRequest(cfg)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if etf := r.URL.Query().Get("etf"); etf != "" {
			req.ETF = strings.ToUpper(etf)
			if !slices.Contains(config.SupportedETFs, req.ETF) {
				http.Error(w, "unsupported etf "+etf, http.StatusBadRequest)
				return
			}
		}
		if e := r.URL.Query().Get("expiry"); e != "" {
			t, err := chain.ParseExpiry(e)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			req.Expiry = t
		}

		rep, err := runner.Run(r.Context(), req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rep)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", m.Handler())

	return m.InstrumentHandler(mux)
}
