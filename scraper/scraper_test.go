package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const samplePayload = `{"unit":"wh","reads":[{"startTime":"2021-08-29T00:30:00-04:00","endTime":"2021-08-29T00:45:00-04:00","value":110.5}]}`

func newTestFetcher(url string, timeout time.Duration) *HTTPFetcher {
	f := New(Options{
		BaseURL:     url,
		AccountID:   "acct-1",
		Meter:       "42",
		AccessToken: "secret-token",
		Timeout:     timeout,
	}, zap.NewNop())
	f.backoff = 10 * time.Millisecond
	return f
}

func TestUsageURL(t *testing.T) {
	got := UsageURL(DefaultBaseURL+"/", "abc 123", "7")
	want := DefaultBaseURL + "/accounts/abc%20123/meters/7/usage"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestFetchRawUsage_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/acct-1/meters/42/usage" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("Unexpected Authorization header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(samplePayload))
	}))
	defer server.Close()

	payload, err := newTestFetcher(server.URL, 5*time.Second).FetchRawUsage(context.Background())
	if err != nil {
		t.Fatalf("Expected successful fetch, got error: %v", err)
	}

	if payload != samplePayload {
		t.Errorf("Unexpected payload: %s", payload)
	}

	readings, err := DecodeUsage(payload)
	if err != nil {
		t.Fatalf("Failed to decode fetched payload: %v", err)
	}
	if len(readings) != 1 {
		t.Errorf("Expected 1 reading, got %d", len(readings))
	}
}

func TestFetchRawUsage_RetryLogic(t *testing.T) {
	attemptCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		if attemptCount < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(samplePayload))
	}))
	defer server.Close()

	payload, err := newTestFetcher(server.URL, 5*time.Second).FetchRawUsage(context.Background())
	if err != nil {
		t.Fatalf("Expected successful fetch after retries, got error: %v", err)
	}

	if attemptCount != 3 {
		t.Errorf("Expected 3 attempts, got %d", attemptCount)
	}
	if payload != samplePayload {
		t.Errorf("Unexpected payload: %s", payload)
	}
}

func TestFetchRawUsage_ExhaustedRetries(t *testing.T) {
	attemptCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestFetcher(server.URL, 5*time.Second).FetchRawUsage(context.Background())
	if err == nil {
		t.Error("Expected error after exhausted retries, got nil")
	}

	if attemptCount != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", attemptCount)
	}
}

func TestFetchRawUsage_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := newTestFetcher(server.URL, 50*time.Millisecond).FetchRawUsage(context.Background())
	if err == nil {
		t.Error("Expected timeout error, got nil")
	}
}

func TestFetchRawUsage_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher(server.URL, 5*time.Second).FetchRawUsage(ctx)
	if err == nil {
		t.Error("Expected context cancellation error, got nil")
	}
}

func TestFileFetcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	if err := os.WriteFile(path, []byte(samplePayload), 0644); err != nil {
		t.Fatalf("Failed to write payload: %v", err)
	}

	payload, err := NewFileFetcher(path).FetchRawUsage(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if payload != samplePayload {
		t.Errorf("Unexpected payload: %s", payload)
	}

	if _, err := NewFileFetcher(filepath.Join(t.TempDir(), "missing.json")).FetchRawUsage(context.Background()); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestFetchRawUsage_CircuitOpens(t *testing.T) {
	attemptCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	f := newTestFetcher(server.URL, 5*time.Second)
	for j := 0; j < 2; j++ {
		if _, err := f.FetchRawUsage(context.Background()); err == nil {
			t.Fatal("Expected error, got nil")
		}
	}

	_, err := f.FetchRawUsage(context.Background())
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Expected open circuit error, got: %v", err)
	}
	if attemptCount != 2*maxAttempts {
		t.Errorf("Expected %d attempts before the circuit opened, got %d", 2*maxAttempts, attemptCount)
	}
}
