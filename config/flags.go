package config

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// Options parsed command line.
type Options struct {
	// Setup launches the configuration wizard.
	Setup bool
	// SetupOutput file the wizard writes.
	SetupOutput string

	Serve      bool
	Addr       string
	TLSDomains []string
	CertCache  string

	// Analyses to run when not serving.
	Analyses []Config
}

// Get parses the process arguments.
func Get(args []string, stderr io.Writer) (*Options, error) {
	fs := flag.NewFlagSet("movements", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "path to yaml config with analyses")
	setup := fs.Bool("setup", false, "run the interactive configuration wizard")
	setupOut := fs.String("setup-output", "config.gen.yaml", "file the configuration wizard writes")
	serve := fs.Bool("serve", false, "serve the HTTP API instead of running analyses")
	addr := fs.String("addr", ":8080", "HTTP API listen address")
	tlsDomains := fs.String("tls-domains", "", "comma separated domains for automatic TLS, example: api.example.com")
	certCache := fs.String("cert-cache", "cert-cache", "directory for automatic TLS certificates")

	raw := ConfigTmp{}
	fs.StringVar(&raw.Pair, "pair", "", "instrument, example: BTC_USDT or BTC")
	fs.StringVar(&raw.Platform, "platform", "binance", "exchange: binance, bybit or hyperliquid")
	fs.StringVar(&raw.Market, "market", "", "market: spot or futures")
	fs.StringVar(&raw.Interval, "interval", "1m", "candle interval, example: 1m, 1h, 1d")
	fs.StringVar(&raw.VolatilityPercent, "iv", "30", "implied volatility percent, example: 30")
	fs.StringVar(&raw.StartDate, "start", "", "first day, YYYY-MM-DD")
	fs.StringVar(&raw.EndDate, "end", "", "last day, YYYY-MM-DD, defaults to --start")
	fs.StringVar(&raw.Timezone, "timezone", "Asia/Dubai", "timezone the dates are interpreted in")
	fs.StringVar(&raw.Output, "output", OutputTable, "output: table, csv or json")
	fs.StringVar(&raw.OutputDir, "output-dir", "reports", "directory for csv and json reports")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts := &Options{
		Setup:       *setup,
		SetupOutput: *setupOut,
		Serve:       *serve,
		Addr:        *addr,
		CertCache:   *certCache,
	}
	for _, d := range strings.Split(*tlsDomains, ",") {
		if d = strings.TrimSpace(d); d != "" {
			opts.TLSDomains = append(opts.TLSDomains, d)
		}
	}

	if opts.Setup || opts.Serve {
		return opts, nil
	}

	if *configPath != "" {
		configs, err := Load(*configPath)
		if err != nil {
			return nil, err
		}
		opts.Analyses = configs
		return opts, nil
	}

	cfg, err := raw.Build()
	if err != nil {
		return nil, fmt.Errorf("invalid command line analysis (use --config or --pair/--start): %w", err)
	}
	opts.Analyses = []Config{cfg}
	return opts, nil
}
