package resilient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hive-corporation/threatpulse/pkg/log"
)

func noRetryConfig() Config {
	return Config{
		Timeout:         5 * time.Second,
		MaxRetries:      0,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     50 * time.Millisecond,
	}
}

func TestNew(t *testing.T) {
	client := New("test", DefaultConfig(), log.NewNop())

	if client.client == nil {
		t.Error("HTTP client is nil")
	}
	if client.breaker == nil {
		t.Error("Circuit breaker is nil when enabled")
	}
	if client.State() != "closed" {
		t.Errorf("Expected closed breaker, got %s", client.State())
	}
}

func TestClient_RetriesAndReplaysBody(t *testing.T) {
	var attempts int32
	var lastBody atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		lastBody.Store(string(body))
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	config := noRetryConfig()
	config.MaxRetries = 3
	client := New("test", config, log.NewNop())

	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{"id":"r1"}`))
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed after retries: %v", err)
	}
	resp.Body.Close()

	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
	if got, _ := lastBody.Load().(string); got != `{"id":"r1"}` {
		t.Errorf("Expected body to be replayed, got %q", got)
	}
}

func TestClient_NoRetryOn4xx(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	config := noRetryConfig()
	config.MaxRetries = 3
	client := New("test", config, log.NewNop())

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	if _, err := client.Do(req); err == nil {
		t.Fatal("Expected error for 400 status")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("Expected 1 attempt, got %d (4xx should not be retried)", got)
	}
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	config := noRetryConfig()
	config.EnableCircuitBreaker = true
	config.MaxFailures = 3
	config.CircuitTimeout = time.Minute
	client := New("test", config, log.NewNop())

	var lastErr error
	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		_, lastErr = client.Do(req)
	}

	if lastErr == nil || !strings.Contains(lastErr.Error(), "circuit breaker is open") {
		t.Errorf("Expected circuit breaker open error, got %v", lastErr)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("Expected 3 attempts to reach the server, got %d", got)
	}
	if client.State() != "open" {
		t.Errorf("Expected open breaker, got %s", client.State())
	}
}

func TestClient_DisabledCircuitBreaker(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New("test", noRetryConfig(), log.NewNop())
	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		client.Do(req)
	}

	if got := atomic.LoadInt32(&attempts); got != 5 {
		t.Errorf("Expected 5 attempts, got %d", got)
	}
	if client.State() != "disabled" {
		t.Errorf("Expected disabled breaker, got %s", client.State())
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New("test", noRetryConfig(), log.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)

	_, err := client.Do(req)
	if err == nil {
		t.Fatal("Expected error due to context cancellation")
	}
	if !strings.Contains(err.Error(), "context") && !strings.Contains(err.Error(), "deadline") {
		t.Errorf("Expected context/deadline error, got: %v", err)
	}
}

func TestShouldRetry(t *testing.T) {
	client := New("test", DefaultConfig(), log.NewNop())

	tests := []struct {
		name       string
		err        error
		statusCode int
		want       bool
	}{
		{"500 error", nil, http.StatusInternalServerError, true},
		{"502 error", nil, http.StatusBadGateway, true},
		{"503 error", nil, http.StatusServiceUnavailable, true},
		{"504 error", nil, http.StatusGatewayTimeout, true},
		{"429 error", nil, http.StatusTooManyRequests, true},
		{"400 error", nil, http.StatusBadRequest, false},
		{"401 error", nil, http.StatusUnauthorized, false},
		{"404 error", nil, http.StatusNotFound, false},
		{"200 success", nil, http.StatusOK, false},
		{"context deadline", context.DeadlineExceeded, 0, true},
		{"context canceled", context.Canceled, 0, false},
		{"connection refused", fmt.Errorf("connection refused"), 0, true},
		{"EOF error", fmt.Errorf("EOF"), 0, true},
		{"unknown error", fmt.Errorf("unknown error"), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.statusCode > 0 {
				resp = &http.Response{StatusCode: tt.statusCode}
			}
			if got := client.shouldRetry(tt.err, resp); got != tt.want {
				t.Errorf("shouldRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}
