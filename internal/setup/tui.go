package setup

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/movements/config"
	"github.com/vadiminshakov/movements/internal/domain"
	"github.com/vadiminshakov/movements/internal/services/market/collector"
	"github.com/vadiminshakov/movements/internal/services/market/daterange"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

const title = "MOVEMENTS CONFIG WIZARD"

// answers raw values collected by the wizard.
type answers struct {
	platform  string
	market    string
	pair      string
	iv        string
	startDate string
	endDate   string
	interval  string
	timezone  string
	output    string
	outputDir string
}

func defaultAnswers(now time.Time) answers {
	yesterday := now.AddDate(0, 0, -1).Format(time.DateOnly)
	return answers{
		platform:  "binance",
		market:    collector.MarketSpot,
		pair:      "BTC_USDT",
		iv:        "30",
		startDate: yesterday,
		endDate:   yesterday,
		interval:  "1m",
		timezone:  daterange.DefaultTimezone,
		output:    config.OutputTable,
		outputDir: "reports",
	}
}

// RunTUI launches the terminal configuration wizard and writes the analysis
// config to path.
func RunTUI(path string) error {
	a := defaultAnswers(time.Now())
	var confirm bool

	// step 1: exchange
	step("STEP 1: EXCHANGE")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Movement analysis over exchange candles.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Exchange Platform").
				Options(
					huh.NewOption("Binance", "binance"),
					huh.NewOption("Bybit", "bybit"),
					huh.NewOption("Hyperliquid", "hyperliquid"),
				).
				Value(&a.platform),
			huh.NewSelect[string]().
				Title("Spot or Futures?").
				Description("Hyperliquid serves futures only").
				Options(
					huh.NewOption("Spot", collector.MarketSpot),
					huh.NewOption("Futures", collector.MarketFutures),
				).
				Value(&a.market),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 2: instrument
	step("STEP 2: INSTRUMENT")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Instrument").
				Description("BASE_QUOTE (e.g. BTC_USDT) or just the base (e.g. BTC)").
				Value(&a.pair).
				Validate(validatePair),
			huh.NewInput().
				Title("Implied volatility %").
				Description("Drives the FM threshold, e.g. 30").
				Value(&a.iv).
				Validate(validateVolatility),
			huh.NewInput().
				Title("Candle interval").
				Description("e.g. 1m, 5m, 1h, 1d").
				Value(&a.interval).
				Validate(validateInterval),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 3: dates
	step("STEP 3: DATE RANGE")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Start date").
				Description("YYYY-MM-DD").
				Value(&a.startDate).
				Validate(validateDate),
			huh.NewInput().
				Title("End date").
				Description("YYYY-MM-DD, inclusive").
				Value(&a.endDate).
				Validate(validateDate),
			huh.NewInput().
				Title("Timezone").
				Description("Zone the dates are interpreted in").
				Value(&a.timezone).
				Validate(validateTimezone),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 4: output
	step("STEP 4: OUTPUT")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Report format").
				Options(
					huh.NewOption("Terminal table", config.OutputTable),
					huh.NewOption("CSV event log", config.OutputCSV),
					huh.NewOption("JSON report", config.OutputJSON),
				).
				Value(&a.output),
			huh.NewInput().
				Title("Output directory").
				Description("Used for CSV and JSON reports").
				Value(&a.outputDir),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	step("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Platform: %s\nMarket: %s\nPair: %s\nIV: %s%%\nInterval: %s\nRange: %s .. %s (%s)\nOutput: %s\n",
		a.platform, a.market, a.pair, a.iv, a.interval, a.startDate, a.endDate, a.timezone, a.output,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	if err := writeConfig(path, a); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(
		fmt.Sprintf("\n✓ Configuration saved to %s\nRun: movements --config %s", path, path)))
	return nil
}

func step(name string) {
	fmt.Print("\033[H\033[2J") // clear screen
	fmt.Println(headerStyle.Render(title))
	fmt.Println(stepStyle.Render(name))
}

// writeConfig validates the answers and stores them as a one-entry YAML list.
func writeConfig(path string, a answers) error {
	raw := config.ConfigTmp{
		Platform:          a.platform,
		Pair:              a.pair,
		Market:            a.market,
		Interval:          a.interval,
		VolatilityPercent: a.iv,
		StartDate:         a.startDate,
		EndDate:           a.endDate,
		Timezone:          a.timezone,
		Output:            a.output,
		OutputDir:         a.outputDir,
	}
	if _, err := raw.Build(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	data, err := yaml.Marshal([]config.ConfigTmp{raw})
	if err != nil {
		return errors.Wrap(err, "failed to generate yaml")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to save config file")
	}
	return nil
}

func validatePair(s string) error {
	_, err := domain.PairFromString(s)
	return err
}

func validateVolatility(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateInterval(s string) error {
	_, err := collector.ParseInterval(s)
	return err
}

func validateDate(s string) error {
	if _, err := time.Parse(time.DateOnly, s); err != nil {
		return fmt.Errorf("must be YYYY-MM-DD")
	}
	return nil
}

func validateTimezone(s string) error {
	_, err := daterange.LoadLocation(s)
	return err
}
