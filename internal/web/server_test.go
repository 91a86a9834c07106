package web

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vadiminshakov/movements/internal"
	"github.com/vadiminshakov/movements/internal/domain"
	"github.com/vadiminshakov/movements/internal/services/market/daterange"
	"github.com/vadiminshakov/movements/internal/services/movement"
)

type stubAnalyzer struct {
	candles []domain.Candle
	err     error
	last    internal.Request
	calls   int
}

func (s *stubAnalyzer) Candles(_ context.Context, req internal.Request) ([]domain.Candle, daterange.Range, error) {
	s.last = req
	s.calls++
	return s.candles, daterange.Range{}, s.err
}

func (s *stubAnalyzer) Analyze(_ context.Context, req internal.Request) (*domain.AnalysisReport, error) {
	s.last = req
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.candles) == 0 {
		return nil, errors.Wrap(internal.ErrNoCandles, "stub")
	}
	return &domain.AnalysisReport{
		RunID:       "run-1",
		Platform:    req.Platform,
		Pair:        req.Pair.String(),
		Interval:    req.Interval,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		CandleCount: len(s.candles),
		Movements:   movement.Detect(s.candles, req.VolatilityPercent),
	}, nil
}

func scenarioCandles() []domain.Candle {
	return []domain.Candle{
		domain.NewCandle(1727740800000, 100, 100, 100, 100),
		domain.NewCandle(1727740860000, 100, 102, 99, 101),
	}
}

func newTestServer(a *stubAnalyzer) http.Handler {
	return NewServer(":0", a, zap.NewNop()).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(&stubAnalyzer{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCandles(t *testing.T) {
	a := &stubAnalyzer{candles: scenarioCandles()}
	rec := do(t, newTestServer(a), http.MethodGet,
		"/api/candles?instrument_name=btc&start_date=2024-10-01&end_date=2024-10-01&resolution=1m&market=spot", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, 1727740800000.0, got[0]["timestamp"])
	assert.Equal(t, 102.0, got[1]["high"])

	assert.Equal(t, "BTC_USDT", a.last.Pair.String())
	assert.Equal(t, "binance", a.last.Platform)
	assert.Equal(t, "spot", a.last.Market)
	assert.Equal(t, "Asia/Dubai", a.last.Timezone)
}

func TestCandles_EmptyIsArray(t *testing.T) {
	rec := do(t, newTestServer(&stubAnalyzer{}), http.MethodGet,
		"/api/candles?instrument_name=BTC&start_date=2024-10-01&end_date=2024-10-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCandles_Validation(t *testing.T) {
	tests := []struct {
		name  string
		query string
		field string
	}{
		{name: "missing instrument", query: "start_date=2024-10-01&end_date=2024-10-01", field: "instrument_name"},
		{name: "bad date", query: "instrument_name=BTC&start_date=2024/10/01&end_date=2024-10-01", field: "start_date"},
		{name: "bad market", query: "instrument_name=BTC&start_date=2024-10-01&end_date=2024-10-01&market=options", field: "market"},
		{name: "bad platform", query: "instrument_name=BTC&start_date=2024-10-01&end_date=2024-10-01&platform=kraken", field: "platform"},
		{name: "bad resolution", query: "instrument_name=BTC&start_date=2024-10-01&end_date=2024-10-01&resolution=7x"},
		{name: "bad instrument", query: "instrument_name=BTC_&start_date=2024-10-01&end_date=2024-10-01"},
		{name: "bad timezone", query: "instrument_name=BTC&start_date=2024-10-01&end_date=2024-10-01&timezone=Nowhere/City"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &stubAnalyzer{}
			rec := do(t, newTestServer(a), http.MethodGet, "/api/candles?"+tt.query, "")
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, a.calls)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			if tt.field != "" {
				require.NotEmpty(t, resp.Details)
				assert.Equal(t, tt.field, resp.Details[0].Field)
			}
		})
	}
}

func TestCandles_UpstreamErrors(t *testing.T) {
	query := "/api/candles?instrument_name=BTC&start_date=2024-10-01&end_date=2024-10-01"

	rec := do(t, newTestServer(&stubAnalyzer{err: errors.New("binance down")}), http.MethodGet, query, "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "binance down")

	rec = do(t, newTestServer(&stubAnalyzer{err: errors.Wrap(daterange.ErrInvertedRange, "x")}), http.MethodGet, query, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMovements_JSON(t *testing.T) {
	a := &stubAnalyzer{candles: scenarioCandles()}
	rec := do(t, newTestServer(a), http.MethodGet,
		"/api/movements?instrument_name=BTC&start_date=2024-10-01&end_date=2024-10-01&iv=30", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got domain.AnalysisReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.Movements)
	assert.Equal(t, domain.HitCounts{FM: 1, LM: 1, SM: 1}, got.Movements.HitCounts)
	assert.Equal(t, 30.0, a.last.VolatilityPercent)
}

func TestMovements_DefaultAndZeroIV(t *testing.T) {
	a := &stubAnalyzer{candles: scenarioCandles()}
	h := newTestServer(a)

	rec := do(t, h, http.MethodGet, "/api/movements?instrument_name=BTC&start_date=2024-10-01&end_date=2024-10-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30.0, a.last.VolatilityPercent)

	rec = do(t, h, http.MethodGet, "/api/movements?instrument_name=BTC&start_date=2024-10-01&end_date=2024-10-01&iv=0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, a.last.VolatilityPercent)

	rec = do(t, h, http.MethodGet, "/api/movements?instrument_name=BTC&start_date=2024-10-01&end_date=2024-10-01&iv=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMovements_QueryDefaults(t *testing.T) {
	a := &stubAnalyzer{candles: scenarioCandles()}
	rec := do(t, newTestServer(a), http.MethodGet,
		"/api/movements?instrument_name=eth&start_date=2024-10-01&end_date=2024-10-02&iv=45", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, 1, a.calls)
	assert.Equal(t, "1m", a.last.Interval)
	assert.Equal(t, "binance", a.last.Platform)
	assert.Equal(t, "Asia/Dubai", a.last.Timezone)
	assert.Equal(t, "ETH_USDT", a.last.Pair.String())
	assert.Equal(t, "2024-10-02", a.last.EndDate)
	assert.Equal(t, 45.0, a.last.VolatilityPercent)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestMovements_ExplicitQueryWins(t *testing.T) {
	a := &stubAnalyzer{candles: scenarioCandles()}
	rec := do(t, newTestServer(a), http.MethodGet,
		"/api/movements?instrument_name=BTC&start_date=2024-10-01&end_date=2024-10-01&resolution=15m&platform=Bybit&market=futures&timezone=UTC", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "15m", a.last.Interval)
	assert.Equal(t, "bybit", a.last.Platform)
	assert.Equal(t, "futures", a.last.Market)
	assert.Equal(t, "UTC", a.last.Timezone)
}

func TestMovements_CSV(t *testing.T) {
	a := &stubAnalyzer{candles: scenarioCandles()}
	rec := do(t, newTestServer(a), http.MethodGet,
		"/api/movements?instrument_name=BTC&start_date=2024-10-01&end_date=2024-10-01&format=csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".csv")

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestMovements_NoCandles(t *testing.T) {
	rec := do(t, newTestServer(&stubAnalyzer{}), http.MethodGet,
		"/api/movements?instrument_name=BTC&start_date=2024-10-01&end_date=2024-10-01", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "No data returned")
}

func TestClientCancelled(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := NewServer(":0", &stubAnalyzer{err: errors.Wrap(context.Canceled, "fetch klines")}, zap.New(core)).Handler()

	for _, target := range []string{
		"/api/candles?instrument_name=BTC&start_date=2024-10-01&end_date=2024-10-01",
		"/api/movements?instrument_name=BTC&start_date=2024-10-01&end_date=2024-10-01",
	} {
		rec := do(t, h, http.MethodGet, target, "")
		assert.Equal(t, statusClientClosedRequest, rec.Code, target)
		assert.Empty(t, rec.Body.String())
	}

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.EqualValues(t, statusClientClosedRequest, e.ContextMap()["status"])
	}
	assert.Zero(t, logs.FilterMessage("request failed").Len())
}

func TestDetect(t *testing.T) {
	h := newTestServer(&stubAnalyzer{})

	body := `{"volatility_percent":30,"candles":[
		{"timestamp":1727740800000,"open":100,"high":100,"low":100,"close":100},
		{"timestamp":1727740860000,"open":100,"high":102,"low":99,"close":101}]}`
	rec := do(t, h, http.MethodPost, "/api/movements", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got detectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.CandleCount)
	require.NotNil(t, got.Movements)
	assert.Len(t, got.Movements.Events, 3)
}

func TestDetect_Columns(t *testing.T) {
	h := newTestServer(&stubAnalyzer{})

	body := `{"volatility_percent":30,"columns":{"t":[1,2],"o":[100,100],"h":[100,102],"l":[100,99],"c":[100,101]}}`
	rec := do(t, h, http.MethodPost, "/api/movements", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got detectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.HitCounts{FM: 1, LM: 1, SM: 1}, got.Movements.HitCounts)
}

func TestDetect_Empty(t *testing.T) {
	rec := do(t, newTestServer(&stubAnalyzer{}), http.MethodPost, "/api/movements", `{"candles":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"candle_count":0,"movements":null}`, rec.Body.String())
}

func TestDetect_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{`},
		{name: "descending", body: `{"candles":[{"timestamp":2,"close":1},{"timestamp":1,"close":1}]}`},
		{name: "missing first close", body: `{"candles":[{"timestamp":1,"high":1}]}`},
		{name: "negative price", body: `{"candles":[{"timestamp":1,"close":-1}]}`},
		{name: "column mismatch", body: `{"columns":{"t":[1,2],"c":[1]}}`},
		{name: "both shapes", body: `{"candles":[{"timestamp":1,"close":1}],"columns":{"t":[1],"c":[1]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(&stubAnalyzer{}), http.MethodPost, "/api/movements", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGzip(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	newTestServer(&stubAnalyzer{}).ServeHTTP(rec, req)

	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestMethodNotAllowed(t *testing.T) {
	rec := do(t, newTestServer(&stubAnalyzer{}), http.MethodDelete, "/api/movements", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartWithAutoTLS_NoDomains(t *testing.T) {
	err := NewServer(":0", &stubAnalyzer{}, zap.NewNop()).StartWithAutoTLS(context.Background(), nil, "")
	assert.Error(t, err)
}
