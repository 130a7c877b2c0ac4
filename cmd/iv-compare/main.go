package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contactkeval/btc-iv-compare/internal/compare"
	"github.com/contactkeval/btc-iv-compare/internal/config"
	"github.com/contactkeval/btc-iv-compare/internal/data"
	"github.com/contactkeval/btc-iv-compare/internal/logger"
	"github.com/contactkeval/btc-iv-compare/internal/metrics"
	"github.com/contactkeval/btc-iv-compare/internal/notify"
	"github.com/contactkeval/btc-iv-compare/internal/report"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		logger.Errorf("%v", err)
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("iv-compare", flag.ContinueOnError)
	fs.StringVar(&cfg.App.ETF, "etf", cfg.App.ETF, "spot bitcoin ETF (IBIT, FBTC, ARKB, BRRR, HODL)")
	fs.StringVar(&cfg.App.Expiry, "expiry", cfg.App.Expiry, "ETF expiry YYYY-MM-DD (empty: first listed)")
	fs.Float64Var(&cfg.App.Rate, "rate", cfg.App.Rate, "risk-free rate for the ETF solver")
	fs.Float64Var(&cfg.App.SpreadThreshold, "threshold", cfg.App.SpreadThreshold, "divergence threshold in IV points")
	fs.BoolVar(&cfg.App.Synthetic, "synthetic", cfg.App.Synthetic, "use synthetic data for every source")
	fs.StringVar(&cfg.App.ReportDir, "out", cfg.App.ReportDir, "report output directory")
	fs.IntVar(&cfg.App.Verbosity, "v", cfg.App.Verbosity, "verbosity: 0 error, 1 info, 2 debug, 3 trace")
	rest := fs.Bool("rest", false, "run as REST server (serve comparison runs)")
	fs.StringVar(&cfg.ServerAddr, "addr", cfg.ServerAddr, "REST server listen address")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger.SetFormat(logger.Format(cfg.App.LogFormat))
	logger.SetVerbosity(cfg.App.Verbosity)

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	runner := newRunner(cfg, m)

	alerts, err := notify.NewDiscord(cfg.Discord.Token, cfg.Discord.ChannelID)
	if err != nil {
		logger.Warnf("alerts disabled: %v", err)
		alerts = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *rest {
		return serve(ctx, cfg, runner, m)
	}

	start := time.Now()
	req, err := newRequest(cfg)
	if err != nil {
		return err
	}
	rep, err := runner.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("comparison failed: %w", err)
	}

	if err := rep.Render(os.Stdout); err != nil {
		return err
	}
	if err := report.WriteJSON(rep, cfg.App.ReportDir); err != nil {
		logger.Warnf("could not write JSON report: %v", err)
	}
	if err := report.WriteCSV(rep, cfg.App.ReportDir); err != nil {
		logger.Warnf("could not write CSV report: %v", err)
	}
	if err := alerts.Notify(ctx, rep); err != nil {
		logger.Warnf("%v", err)
	}

	logger.Infof("finished in %v, wrote %d rows to %s", time.Since(start), len(rep.Rows), cfg.App.ReportDir)
	return nil
}

// newRunner chooses the providers: synthetic data for every source when asked, otherwise
// Massive, Deribit and InvestDEFY.
func newRunner(cfg *config.Config, m *metrics.Metrics) *compare.Runner {
	r := &compare.Runner{Metrics: m}
	if cfg.App.Synthetic {
		s := data.NewSynthetic(time.Now)
		r.Chains, r.Exchange, r.Surfaces = s, s, s
		logger.Infof("synthetic providers enabled")
		return r
	}

	if cfg.Massive.APIKey == "" {
		logger.Warnf("MASSIVE_API_KEY is not set, ETF chain requests will be rejected")
	}
	r.Chains = data.NewMassiveChain(cfg.Massive.APIKey)
	r.Exchange = data.NewDeribit(cfg.Deribit.BaseURL, cfg.HTTPTimeout)
	r.Surfaces = data.NewInvestDefy(cfg.InvestDefy.BaseURL, cfg.InvestDefy.APIKey, cfg.HTTPTimeout)
	return r
}

func newRequest(cfg *config.Config) (compare.Request, error) {
	labels, err := cfg.Labels()
	if err != nil {
		return compare.Request{}, err
	}
	return compare.Request{
		ETF:         cfg.App.ETF,
		Expiry:      cfg.ExpiryDate(),
		Rate:        cfg.App.Rate,
		Buckets:     labels,
		Threshold:   cfg.App.SpreadThreshold,
		Currency:    cfg.Deribit.Currency,
		Concurrency: cfg.Deribit.Concurrency,
	}, nil
}

func serve(ctx context.Context, cfg *config.Config, runner *compare.Runner, m *metrics.Metrics) error {
	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           newMux(cfg, runner, m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("starting REST server on %s", cfg.ServerAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Infof("shutting down REST server")
		return srv.Shutdown(shutdownCtx)
	}
}
