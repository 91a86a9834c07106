// Package web exposes candle retrieval and movement analysis over HTTP.
package web

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/movements/internal"
	"github.com/vadiminshakov/movements/internal/domain"
	"github.com/vadiminshakov/movements/internal/report"
	"github.com/vadiminshakov/movements/internal/services/market/collector"
	"github.com/vadiminshakov/movements/internal/services/market/daterange"
	"github.com/vadiminshakov/movements/internal/services/market/feed"
	"github.com/vadiminshakov/movements/internal/services/movement"
)

const (
	maxBodyBytes = 32 << 20

	// statusClientClosedRequest nginx convention for requests abandoned by the client.
	statusClientClosedRequest = 499
)

type analyzer interface {
	Candles(ctx context.Context, req internal.Request) ([]domain.Candle, daterange.Range, error)
	Analyze(ctx context.Context, req internal.Request) (*domain.AnalysisReport, error)
}

// Server serves the candles and movements API.
type Server struct {
	Addr     string
	analyzer analyzer
	l        *zap.Logger
}

// NewServer creates a new web server instance.
func NewServer(addr string, a analyzer, l *zap.Logger) *Server {
	return &Server{Addr: addr, analyzer: a, l: l}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/candles", s.handleCandles)
	mux.HandleFunc("GET /api/movements", s.handleMovements)
	mux.HandleFunc("POST /api/movements", s.handleDetect)
	return s.logRequests(withGzip(mux))
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("api listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS serves HTTPS with Let's Encrypt certificates for domains.
// Port 80 answers ACME challenges and redirects to HTTPS.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Error("acme server shutdown", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Error("https server shutdown", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Error("acme server", zap.Error(err))
		}
	}()

	s.l.Info("api listening with auto TLS", zap.String("addr", s.Addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// candlesQuery query of the candles endpoint.
type candlesQuery struct {
	Instrument string `query:"instrument_name" validate:"required"`
	StartDate  string `query:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate    string `query:"end_date" validate:"required,datetime=2006-01-02"`
	Resolution string `query:"resolution" default:"1m" validate:"required"`
	Market     string `query:"market" validate:"omitempty,oneof=spot futures"`
	Platform   string `query:"platform" default:"binance" validate:"oneof=binance bybit hyperliquid"`
	Timezone   string `query:"timezone" default:"Asia/Dubai"`
}

// movementsQuery query of the movements endpoint. Candles is a named field
// so defaults reach the nested query.
type movementsQuery struct {
	Candles           candlesQuery
	VolatilityPercent *float64 `query:"iv" default:"30" validate:"required"`
	Format            string   `query:"format" default:"json" validate:"oneof=json csv"`
}

// detectRequest body of POST /api/movements. Candles may come as records or
// as {t,o,h,l,c} columns.
type detectRequest struct {
	VolatilityPercent *float64              `json:"volatility_percent" default:"30" validate:"required"`
	Candles           []domain.Candle       `json:"candles"`
	Columns           *domain.CandleColumns `json:"columns"`
}

type detectResponse struct {
	CandleCount int                     `json:"candle_count"`
	Movements   *domain.MovementSummary `json:"movements"`
}

type errorResponse struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	q := readCandlesQuery(r)
	req, err := s.buildRequest(r.Context(), &q, 0)
	if err != nil {
		s.writeError(w, err)
		return
	}

	candles, _, err := s.analyzer.Candles(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if candles == nil {
		candles = []domain.Candle{}
	}
	writeJSON(w, http.StatusOK, candles)
}

func (s *Server) handleMovements(w http.ResponseWriter, r *http.Request) {
	q := movementsQuery{Candles: readCandlesQuery(r)}
	q.Format = r.URL.Query().Get("format")
	if raw := r.URL.Query().Get("iv"); raw != "" {
		iv, err := decimal.NewFromString(raw)
		if err != nil {
			s.writeError(w, badRequest("iv must be a number, got %q", raw))
			return
		}
		v := iv.InexactFloat64()
		q.VolatilityPercent = &v
	}

	if err := defaultAndValidate(r.Context(), &q); err != nil {
		s.writeError(w, err)
		return
	}
	req, err := s.buildRequest(r.Context(), &q.Candles, *q.VolatilityPercent)
	if err != nil {
		s.writeError(w, err)
		return
	}

	rep, err := s.analyzer.Analyze(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if q.Format == report.FormatCSV {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName(rep, report.FormatCSV)))
		if err := report.WriteCSV(w, rep); err != nil {
			s.l.Error("failed to write csv report", zap.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var body detectRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		s.writeError(w, badRequest("invalid JSON body: %v", err))
		return
	}
	if err := defaultAndValidate(r.Context(), &body); err != nil {
		s.writeError(w, err)
		return
	}

	candles := body.Candles
	if body.Columns != nil {
		if len(candles) > 0 {
			s.writeError(w, badRequest("send either candles or columns, not both"))
			return
		}
		var err error
		if candles, err = feed.FromColumns(*body.Columns); err != nil {
			s.writeError(w, badRequest("%v", err))
			return
		}
	} else if err := feed.Validate(candles); err != nil {
		s.writeError(w, badRequest("%v", err))
		return
	}

	writeJSON(w, http.StatusOK, detectResponse{
		CandleCount: len(candles),
		Movements:   movement.Detect(candles, *body.VolatilityPercent),
	})
}

func readCandlesQuery(r *http.Request) candlesQuery {
	v := r.URL.Query()
	return candlesQuery{
		Instrument: v.Get("instrument_name"),
		StartDate:  v.Get("start_date"),
		EndDate:    v.Get("end_date"),
		Resolution: v.Get("resolution"),
		Market:     strings.ToLower(v.Get("market")),
		Platform:   strings.ToLower(v.Get("platform")),
		Timezone:   v.Get("timezone"),
	}
}

// buildRequest validates q and converts it into an analyzer request.
func (s *Server) buildRequest(ctx context.Context, q *candlesQuery, iv float64) (internal.Request, error) {
	if err := defaultAndValidate(ctx, q); err != nil {
		return internal.Request{}, err
	}

	pair, err := domain.PairFromString(q.Instrument)
	if err != nil {
		return internal.Request{}, badRequest("invalid instrument_name: %v", err)
	}
	if _, err := collector.ParseInterval(q.Resolution); err != nil {
		return internal.Request{}, badRequest("invalid resolution: %v", err)
	}
	if _, err := daterange.LoadLocation(q.Timezone); err != nil {
		return internal.Request{}, badRequest("invalid timezone: %v", err)
	}

	return internal.Request{
		Platform:          q.Platform,
		Market:            q.Market,
		Pair:              pair,
		Interval:          q.Resolution,
		VolatilityPercent: iv,
		StartDate:         q.StartDate,
		EndDate:           q.EndDate,
		Timezone:          q.Timezone,
	}, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: reqErr.msg, Details: reqErr.fields})
	case errors.Is(err, daterange.ErrInvertedRange):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, internal.ErrNoCandles):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "No data returned for selected date range."})
	case errors.Is(err, context.Canceled):
		s.l.Debug("request cancelled by client", zap.Error(err))
		w.WriteHeader(statusClientClosedRequest)
	default:
		s.l.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "failed to fetch market data", Details: []FieldError{{
			Code:    "ERR_UPSTREAM",
			Message: err.Error(),
		}}})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.l.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(started)),
		)
	})
}

// withGzip compresses responses for clients that accept gzip.
func withGzip(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		w.Header().Del("Content-Length")

		gz := gzip.NewWriter(w)
		defer gz.Close()

		next.ServeHTTP(&gzipResponseWriter{ResponseWriter: w, writer: gz}, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	writer *gzip.Writer
}

func (w *gzipResponseWriter) WriteHeader(statusCode int) {
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	return w.writer.Write(b)
}
