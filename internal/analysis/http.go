package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"studentmonitor/internal/config"
	"studentmonitor/internal/metrics"
	"studentmonitor/pkg/interfaces"
	"studentmonitor/pkg/types"
)

// maxResponseBytes caps how much of an analyzer reply is read
const maxResponseBytes = 1 << 20

// HTTPAnalyzer posts frames to a remote vision service.
// Consecutive failures trip a circuit breaker; while open, Analyze fails fast
// with an error wrapping interfaces.ErrAnalyzerUnavailable.
type HTTPAnalyzer struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
	clock   clockwork.Clock
}

// NewHTTPAnalyzer creates an analyzer for cfg.URL. m and clock may be nil.
func NewHTTPAnalyzer(cfg *config.AnalyzerConfig, m *metrics.Metrics, clock clockwork.Clock) *HTTPAnalyzer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	a := &HTTPAnalyzer{
		url:     cfg.URL,
		client:  &http.Client{Timeout: cfg.Timeout},
		metrics: m,
		clock:   clock,
	}

	threshold := uint32(cfg.FailureThreshold)
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "analyzer",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller giving up says nothing about the analyzer's health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("Analyzer circuit breaker %s: %s -> %s", name, from, to)
			if a.metrics != nil {
				a.metrics.AnalyzerBreakerState.Set(breakerStateValue(to))
			}
		},
	})

	return a
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// State reports the breaker state
func (a *HTTPAnalyzer) State() gobreaker.State {
	return a.breaker.State()
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, frame *types.Frame) (types.AnalysisRecord, error) {
	if frame == nil {
		return nil, ErrNilFrame
	}

	start := time.Now()
	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.post(ctx, frame)
	})
	if a.metrics != nil {
		a.metrics.AnalyzerDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", interfaces.ErrAnalyzerUnavailable, err)
		}
		return nil, err
	}

	return result.(types.AnalysisRecord), nil
}

func (a *HTTPAnalyzer) post(ctx context.Context, frame *types.Frame) (types.AnalysisRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(frame.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to build analyzer request: %w", err)
	}
	req.Header.Set("Content-Type", "image/"+frame.Format)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyzer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("%w: %d", ErrAnalyzerStatus, resp.StatusCode)
	}

	var record types.AnalysisRecord
	decoder := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	decoder.UseNumber()
	if err := decoder.Decode(&record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalyzerPayload, err)
	}
	normalizeNumbers(record)

	if err := types.ValidateRecord(record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalyzerPayload, err)
	}

	if _, ok := record["timestamp"]; !ok {
		record["timestamp"] = unixSeconds(a.clock.Now())
	}
	return record, nil
}

// normalizeNumbers converts top-level json.Number values to int64 when
// integral and float64 otherwise, so face_count round-trips as an integer.
func normalizeNumbers(record types.AnalysisRecord) {
	for k, v := range record {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			record[k] = i
		} else if f, err := n.Float64(); err == nil {
			record[k] = f
		}
	}
}
