package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pairs-systemv1/internal/logger"
	"pairs-systemv1/internal/model"
	"pairs-systemv1/internal/pairs"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   s.service,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
}

// GET /analytics/pairs?symbol_x=&symbol_y=&timeframe=&window=&hedge_min_samples=&adf_min_samples=&since=
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	req, err := s.parsePairRequest(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.svc.Analyze(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAnalyticsResponse(b))
}

// GET /backtest/pairs takes the analytics parameters plus entry, exit and position_size.
func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := s.parsePairRequest(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p := s.defaults.Backtest
	if p.EntryThreshold, err = queryFloat(q, "entry", p.EntryThreshold); err != nil {
		writeError(w, r, err)
		return
	}
	if p.ExitThreshold, err = queryFloat(q, "exit", p.ExitThreshold); err != nil {
		writeError(w, r, err)
		return
	}
	if p.PositionSize, err = queryFloat(q, "position_size", p.PositionSize); err != nil {
		writeError(w, r, err)
		return
	}
	req.Backtest = &p

	b, err := s.svc.Analyze(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBacktestResponse(b))
}

// GET /bars/{timeframe}?symbol=&since=
func (s *Server) handleBars(w http.ResponseWriter, r *http.Request) {
	tf, err := model.ParseTimeframe(chi.URLParam(r, "timeframe"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	symbol := model.NormalizeSymbol(q.Get("symbol"))
	if symbol == "" {
		writeError(w, r, fmt.Errorf("%w: symbol is required", pairs.ErrInvalidRequest))
		return
	}
	since, err := querySince(q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	bars, err := s.bars.ReadBars(r.Context(), symbol, tf, since)
	if err != nil {
		writeError(w, r, fmt.Errorf("read bars %s: %w", symbol, err))
		return
	}
	if bars == nil {
		bars = []model.Bar{}
	}
	writeJSON(w, http.StatusOK, bars)
}

// GET /symbols
func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := s.bars.ReadSymbols(r.Context())
	if err != nil {
		writeError(w, r, fmt.Errorf("read symbols: %w", err))
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbols": symbols})
}

// parsePairRequest fills a pairs.Request from the query string and the
// server defaults. Semantic validation is left to Request.Validate.
func (s *Server) parsePairRequest(q url.Values) (pairs.Request, error) {
	req := pairs.Request{
		SymbolX:   q.Get("symbol_x"),
		SymbolY:   q.Get("symbol_y"),
		Timeframe: s.defaults.Timeframe,
	}
	if tf := q.Get("timeframe"); tf != "" {
		req.Timeframe = model.Timeframe(tf)
	}

	var err error
	if req.Window, err = queryInt(q, "window", s.defaults.Window); err != nil {
		return req, err
	}
	if req.HedgeMinSamples, err = queryInt(q, "hedge_min_samples", s.defaults.HedgeMinSamples); err != nil {
		return req, err
	}
	if req.ADFMinSamples, err = queryInt(q, "adf_min_samples", s.defaults.ADFMinSamples); err != nil {
		return req, err
	}
	if req.Since, err = querySince(q); err != nil {
		return req, err
	}
	return req, nil
}

func queryInt(q url.Values, key string, def int) (int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", pairs.ErrInvalidRequest, key, raw)
	}
	return v, nil
}

func queryFloat(q url.Values, key string, def float64) (float64, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number, got %q", pairs.ErrInvalidRequest, key, raw)
	}
	return v, nil
}

// querySince accepts RFC 3339 or epoch milliseconds. Absent means full history.
func querySince(q url.Values) (time.Time, error) {
	raw := strings.TrimSpace(q.Get("since"))
	if raw == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: since must be RFC3339 or epoch ms, got %q", pairs.ErrInvalidRequest, raw)
	}
	return t.UTC(), nil
}

// statusFor maps an error to an HTTP status: client mistakes are 400,
// deadline overruns 504, everything else 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pairs.ErrInvalidRequest), errors.Is(err, model.ErrUnknownTimeframe):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code >= 500 {
		slog.Error("request failed", append(logger.LogWithTrace(r.Context()),
			slog.String("path", r.URL.Path),
			slog.String("error", msg),
		)...)
		if code == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	writeJSON(w, code, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", slog.String("error", err.Error()))
	}
}
