// Command api_load fires concurrent detection requests at POST /api/movements
// with random-walk candle batches and reports throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/movements/internal/domain"
)

type detectBody struct {
	VolatilityPercent float64         `json:"volatility_percent"`
	Candles           []domain.Candle `json:"candles"`
}

func main() {
	var (
		targetURL    string
		workers      int
		candles      int
		iv           float64
		testDuration time.Duration
	)

	flag.StringVar(&targetURL, "url", "http://localhost:8080/api/movements", "detection endpoint URL")
	flag.IntVar(&workers, "workers", 32, "number of concurrent workers")
	flag.IntVar(&candles, "candles", 1440, "candles per request, 1440 is one day of 1m candles")
	flag.Float64Var(&iv, "iv", 30, "implied volatility percent sent with every request")
	flag.DurationVar(&testDuration, "dur", 30*time.Second, "test duration")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if workers <= 0 || candles <= 0 {
		logger.Fatal("workers and candles must be positive", zap.Int("workers", workers), zap.Int("candles", candles))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, testDuration)
	defer cancel()

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: workers,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
		Timeout: 30 * time.Second,
	}

	logger.Info("starting api load",
		zap.String("url", targetURL),
		zap.Int("workers", workers),
		zap.Int("candles", candles),
		zap.Duration("duration", testDuration),
	)

	var (
		requests  atomic.Int64
		failures  atomic.Int64
		events    atomic.Int64
		latencyNS atomic.Int64
	)

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := range workers {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(int64(w) + 1))
			for ctx.Err() == nil {
				payload, err := json.Marshal(detectBody{VolatilityPercent: iv, Candles: randomWalk(rng, candles)})
				if err != nil {
					return err
				}

				began := time.Now()
				n, err := post(ctx, client, targetURL, payload)
				if ctx.Err() != nil {
					return nil
				}
				requests.Add(1)
				latencyNS.Add(int64(time.Since(began)))
				if err != nil {
					failures.Add(1)
					logger.Debug("request failed", zap.Error(err))
					continue
				}
				events.Add(int64(n))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Fatal("load run failed", zap.Error(err))
	}

	elapsed := time.Since(start)
	total := requests.Load()
	var avg time.Duration
	if total > 0 {
		avg = time.Duration(latencyNS.Load() / total)
	}

	fmt.Fprintf(os.Stdout, "done: requests=%d failures=%d events=%d elapsed=%s req/s=%.2f avg_latency=%s\n",
		total, failures.Load(), events.Load(), elapsed.Truncate(time.Millisecond),
		float64(total)/elapsed.Seconds(), avg)
}

// post sends one detection request and returns the number of events found.
func post(ctx context.Context, client *http.Client, url string, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	var out struct {
		Movements *domain.MovementSummary `json:"movements"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	if out.Movements == nil {
		return 0, nil
	}
	return len(out.Movements.Events), nil
}

// randomWalk builds n one-minute candles around 60000.
func randomWalk(rng *rand.Rand, n int) []domain.Candle {
	out := make([]domain.Candle, n)
	ts := time.Now().Add(-time.Duration(n) * time.Minute).Truncate(time.Minute).UnixMilli()
	price := 60000.0
	for i := range out {
		open := price
		price += rng.NormFloat64() * 25
		high := max(open, price) + rng.Float64()*10
		low := min(open, price) - rng.Float64()*10
		out[i] = domain.NewCandle(ts+int64(i)*60_000, open, high, low, price)
	}
	return out
}
