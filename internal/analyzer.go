package internal

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/movements/internal/domain"
	"github.com/vadiminshakov/movements/internal/services/market/collector"
	"github.com/vadiminshakov/movements/internal/services/market/daterange"
	"github.com/vadiminshakov/movements/internal/services/movement"
)

// ErrNoCandles is returned when the exchange has no candles for the range.
var ErrNoCandles = errors.New("no candle data returned for the selected date range")

// CandleSource yields validated, time-ascending candles for one instrument.
type CandleSource interface {
	Collect(ctx context.Context, pair domain.Pair, interval string, r daterange.Range) ([]domain.Candle, error)
}

// SourceFactory creates the candle source for a platform and market.
type SourceFactory func(platform, market string) (CandleSource, error)

// Request describes one movement analysis.
type Request struct {
	Platform          string
	Market            string
	Pair              domain.Pair
	Interval          string
	VolatilityPercent float64
	StartDate         string
	EndDate           string
	// Timezone the dates are interpreted in, daterange.DefaultTimezone when empty.
	Timezone string
}

// Analyzer runs the collect, normalize and detect pipeline.
type Analyzer struct {
	newSource SourceFactory
	l         *zap.Logger

	mu      sync.Mutex
	sources map[string]CandleSource
}

// NewAnalyzer creates an analyzer backed by live exchange clients. creds is
// keyed by platform; missing entries mean anonymous access.
func NewAnalyzer(l *zap.Logger, creds map[string]Credentials) *Analyzer {
	return NewAnalyzerWithSources(l, func(platform, market string) (CandleSource, error) {
		provider, err := NewKlineProvider(platform, market, creds[platform])
		if err != nil {
			return nil, err
		}
		return collector.NewCollector(provider, l.With(zap.String("platform", platform))), nil
	})
}

// NewAnalyzerWithSources creates an analyzer over custom candle sources.
func NewAnalyzerWithSources(l *zap.Logger, newSource SourceFactory) *Analyzer {
	return &Analyzer{
		newSource: newSource,
		l:         l,
		sources:   make(map[string]CandleSource),
	}
}

// Candles returns the normalized candles of the request together with the
// resolved date range.
func (a *Analyzer) Candles(ctx context.Context, req Request) ([]domain.Candle, daterange.Range, error) {
	if _, err := collector.ParseInterval(req.Interval); err != nil {
		return nil, daterange.Range{}, err
	}

	loc, err := daterange.LoadLocation(req.Timezone)
	if err != nil {
		return nil, daterange.Range{}, err
	}
	r, err := daterange.Parse(req.StartDate, req.EndDate, loc)
	if err != nil {
		return nil, daterange.Range{}, err
	}

	src, err := a.source(req.Platform, req.Market)
	if err != nil {
		return nil, daterange.Range{}, err
	}

	candles, err := src.Collect(ctx, req.Pair, req.Interval, r)
	if err != nil {
		return nil, daterange.Range{}, err
	}
	return candles, r, nil
}

// Analyze collects the request's candles and detects movements over them.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*domain.AnalysisReport, error) {
	runID := uuid.NewString()
	l := a.l.With(
		zap.String("run_id", runID),
		zap.String("platform", req.Platform),
		zap.String("pair", req.Pair.String()),
		zap.String("interval", req.Interval),
	)

	started := time.Now()
	candles, r, err := a.Candles(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load candles for %s", req.Pair.String())
	}
	if len(candles) == 0 {
		return nil, errors.Wrapf(ErrNoCandles, "%s %s..%s", req.Pair.String(), req.StartDate, req.EndDate)
	}

	summary := movement.Detect(candles, req.VolatilityPercent)

	report := &domain.AnalysisReport{
		RunID:       runID,
		Platform:    strings.ToLower(req.Platform),
		Pair:        req.Pair.String(),
		Interval:    req.Interval,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Timezone:    r.Start.Location().String(),
		From:        r.Start,
		To:          r.End,
		CandleCount: len(candles),
		Movements:   summary,
	}
	report.SetLocation(r.Start.Location())

	l.Info("movement analysis finished",
		zap.Int("candles", len(candles)),
		zap.Int("events", len(summary.Events)),
		zap.Int("fm", summary.HitCounts.FM),
		zap.Int("lm", summary.HitCounts.LM),
		zap.Int("sm", summary.HitCounts.SM),
		zap.Duration("took", time.Since(started)),
	)
	return report, nil
}

// RunAll analyzes every request concurrently. Reports are returned in request
// order. A failed run leaves a nil report in its slot and does not stop the
// others; the failures are combined into the returned error.
func (a *Analyzer) RunAll(ctx context.Context, reqs []Request) ([]*domain.AnalysisReport, error) {
	reports := make([]*domain.AnalysisReport, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	for i, req := range reqs {
		g.Go(func() error {
			report, err := a.Analyze(ctx, req)
			if err != nil {
				errs[i] = errors.Wrap(err, req.Platform)
				return nil
			}
			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()

	return reports, multierr.Combine(errs...)
}

// source returns a cached candle source so exchange clients are shared
// between runs on the same platform.
func (a *Analyzer) source(platform, market string) (CandleSource, error) {
	platform = strings.ToLower(platform)
	market = strings.ToLower(market)
	if market == "" {
		market = DefaultMarket(platform)
	}
	key := platform + "/" + market

	a.mu.Lock()
	defer a.mu.Unlock()

	if src, ok := a.sources[key]; ok {
		return src, nil
	}
	src, err := a.newSource(platform, market)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s %s candle source", platform, market)
	}
	a.sources[key] = src
	return src, nil
}
