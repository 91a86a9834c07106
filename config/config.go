package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/movements/internal"
	"github.com/vadiminshakov/movements/internal/domain"
	"github.com/vadiminshakov/movements/internal/services/market/collector"
	"github.com/vadiminshakov/movements/internal/services/market/daterange"
)

// Output modes of an analysis.
const (
	OutputTable = "table"
	OutputCSV   = "csv"
	OutputJSON  = "json"
)

var validate = validator.New()

// Config single movement analysis.
type Config struct {
	Platform          string
	Market            string
	Pair              domain.Pair
	Interval          string
	VolatilityPercent decimal.Decimal
	StartDate         string
	EndDate           string
	Timezone          string
	Output            string
	OutputDir         string
}

// ConfigTmp raw YAML representation of Config.
type ConfigTmp struct {
	Platform          string `yaml:"platform" default:"binance" validate:"oneof=binance bybit hyperliquid"`
	Pair              string `yaml:"pair" validate:"required"`
	Market            string `yaml:"market,omitempty" validate:"omitempty,oneof=spot futures"`
	Interval          string `yaml:"interval" default:"1m" validate:"required"`
	VolatilityPercent string `yaml:"volatility_percent" default:"30"`
	StartDate         string `yaml:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate           string `yaml:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Timezone          string `yaml:"timezone" default:"Asia/Dubai"`
	Output            string `yaml:"output" default:"table" validate:"oneof=table csv json"`
	OutputDir         string `yaml:"output_dir,omitempty" default:"reports"`
}

// Request converts the config into an analyzer request.
func (c Config) Request() internal.Request {
	return internal.Request{
		Platform:          c.Platform,
		Market:            c.Market,
		Pair:              c.Pair,
		Interval:          c.Interval,
		VolatilityPercent: c.VolatilityPercent.InexactFloat64(),
		StartDate:         c.StartDate,
		EndDate:           c.EndDate,
		Timezone:          c.Timezone,
	}
}

// Load reads the list of analyses from a YAML file.
func Load(path string) ([]Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}

	var configsTmp []ConfigTmp
	if err := yaml.Unmarshal(f, &configsTmp); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if len(configsTmp) == 0 {
		return nil, fmt.Errorf("no analyses configured in %s", path)
	}

	configs := make([]Config, 0, len(configsTmp))
	for i, c := range configsTmp {
		cfg, err := c.Build()
		if err != nil {
			return nil, errors.Wrapf(err, "invalid analysis #%d in %s", i+1, path)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// Build applies defaults, validates the raw values and parses them.
func (c ConfigTmp) Build() (Config, error) {
	c.Platform = strings.ToLower(strings.TrimSpace(c.Platform))
	c.Market = strings.ToLower(strings.TrimSpace(c.Market))
	c.Output = strings.ToLower(strings.TrimSpace(c.Output))

	if err := defaults.Set(&c); err != nil {
		return Config{}, errors.Wrap(err, "failed to apply defaults")
	}
	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}

	pair, err := domain.PairFromString(c.Pair)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'pair' param: %s, error: %w", c.Pair, err)
	}
	iv, err := decimal.NewFromString(c.VolatilityPercent)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'volatility_percent' param (must be a decimal), error: %w", err)
	}
	if _, err := collector.ParseInterval(c.Interval); err != nil {
		return Config{}, fmt.Errorf("incorrect 'interval' param: %w", err)
	}
	if _, err := daterange.LoadLocation(c.Timezone); err != nil {
		return Config{}, fmt.Errorf("incorrect 'timezone' param: %w", err)
	}

	endDate := c.EndDate
	if endDate == "" {
		endDate = c.StartDate
	}
	if _, err := daterange.Parse(c.StartDate, endDate, nil); err != nil {
		return Config{}, err
	}

	market := c.Market
	if market == "" {
		market = internal.DefaultMarket(c.Platform)
	}
	if c.Platform == internal.PlatformHyperliquid && market != collector.MarketFutures {
		return Config{}, fmt.Errorf("hyperliquid supports only the %s market", collector.MarketFutures)
	}

	return Config{
		Platform:          c.Platform,
		Market:            market,
		Pair:              pair,
		Interval:          c.Interval,
		VolatilityPercent: iv,
		StartDate:         c.StartDate,
		EndDate:           endDate,
		Timezone:          c.Timezone,
		Output:            c.Output,
		OutputDir:         c.OutputDir,
	}, nil
}
