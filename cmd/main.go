// Command movements detects FM, LM and SM price movements over exchange
// candles for a given implied volatility.
//
// Usage:
//
//	movements --pair BTC_USDT --start 2024-10-01 --end 2024-10-31 --iv 30
//	movements --config config.yaml
//	movements --setup
//	movements --serve --addr :8080
//
// Optional environment variables (klines are public data):
//
//	For Binance: BINANCE_API_KEY, BINANCE_API_SECRET
//	For Bybit: BYBIT_API_KEY, BYBIT_API_SECRET
//	For Hyperliquid: HYPERLIQUID_PRIVATE_KEY, HYPERLIQUID_API_URL
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vadiminshakov/movements/config"
	"github.com/vadiminshakov/movements/internal"
	"github.com/vadiminshakov/movements/internal/domain"
	"github.com/vadiminshakov/movements/internal/report"
	"github.com/vadiminshakov/movements/internal/setup"
	"github.com/vadiminshakov/movements/internal/web"
)

func main() {
	opts, err := config.Get(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if opts.Setup {
		if err := setup.RunTUI(opts.SetupOutput); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	analyzer := internal.NewAnalyzer(logger, credentialsFromEnv())

	if opts.Serve {
		srv := web.NewServer(opts.Addr, analyzer, logger)
		if len(opts.TLSDomains) > 0 {
			err = srv.StartWithAutoTLS(ctx, opts.TLSDomains, opts.CertCache)
		} else {
			err = srv.Start(ctx)
		}
		if err != nil {
			logger.Fatal("api server failed", zap.Error(err))
		}
		return
	}

	reqs := make([]internal.Request, 0, len(opts.Analyses))
	for _, c := range opts.Analyses {
		reqs = append(reqs, c.Request())
	}

	reports, runErr := analyzer.RunAll(ctx, reqs)
	for _, err := range multierr.Errors(runErr) {
		logger.Error("movement analysis failed", zap.Error(err))
	}

	for i, rep := range reports {
		if rep == nil {
			continue
		}
		if err := emit(opts.Analyses[i], rep); err != nil {
			logger.Fatal("failed to write report", zap.String("pair", rep.Pair), zap.Error(err))
		}
	}

	if runErr != nil {
		logger.Fatal("some analyses failed", zap.Int("failed", len(multierr.Errors(runErr))), zap.Int("total", len(reqs)))
	}
}

func emit(c config.Config, rep *domain.AnalysisReport) error {
	if c.Output == config.OutputTable {
		fmt.Println(report.RenderTable(rep, report.DefaultTableLimit))
		return nil
	}

	path, err := report.WriteFile(c.OutputDir, c.Output, rep)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s: %d events written to %s\n", rep.Platform, rep.Pair, len(rep.Movements.Events), path)
	return nil
}

// credentialsFromEnv reads optional exchange credentials per platform.
func credentialsFromEnv() map[string]internal.Credentials {
	return map[string]internal.Credentials{
		internal.PlatformBinance: {
			APIKey:    os.Getenv("BINANCE_API_KEY"),
			APISecret: os.Getenv("BINANCE_API_SECRET"),
		},
		internal.PlatformBybit: {
			APIKey:    os.Getenv("BYBIT_API_KEY"),
			APISecret: os.Getenv("BYBIT_API_SECRET"),
		},
		internal.PlatformHyperliquid: {
			PrivateKey: os.Getenv("HYPERLIQUID_PRIVATE_KEY"),
			BaseURL:    os.Getenv("HYPERLIQUID_API_URL"),
		},
	}
}
