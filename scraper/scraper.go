package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// DefaultBaseURL is the Opower real-time usage API used by Con Edison
const DefaultBaseURL = "https://cned.opower.com/ei/edge/apis/cws-real-time-ami-v1/cws/cned"

const maxAttempts = 3

// Fetcher returns the raw usage payload of an authenticated session
type Fetcher interface {
	FetchRawUsage(ctx context.Context) (string, error)
}

// HTTPFetcher fetches the usage payload straight from the Opower API using
// the access token of an already authenticated session
type HTTPFetcher struct {
	client      *http.Client
	usageURL    string
	accessToken string
	logger      *zap.Logger
	// opens after repeated failed attempts
	circuit *gobreaker.CircuitBreaker
	// initial delay between attempts, doubled after each failure
	backoff time.Duration
}

// Options configures an HTTPFetcher
type Options struct {
	BaseURL     string
	AccountID   string
	Meter       string
	AccessToken string
	Timeout     time.Duration
}

// New creates a new HTTPFetcher
func New(opts Options, logger *zap.Logger) *HTTPFetcher {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: otelhttp.NewTransport(
				http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
					return "opower.usage"
				}),
			),
		},
		usageURL:    UsageURL(baseURL, opts.AccountID, opts.Meter),
		accessToken: opts.AccessToken,
		logger:      logger,
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "opower",
			Timeout: 5 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 2*maxAttempts
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Usage fetch circuit changed state",
					zap.String("circuit", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to))
			},
		}),
		backoff: time.Second,
	}
}

// UsageURL builds the usage endpoint of one meter
func UsageURL(baseURL, accountID, meter string) string {
	return fmt.Sprintf("%s/accounts/%s/meters/%s/usage",
		strings.TrimSuffix(baseURL, "/"), url.PathEscape(accountID), url.PathEscape(meter))
}

// FetchRawUsage fetches the usage payload, retrying failed attempts with
// exponential backoff
func (f *HTTPFetcher) FetchRawUsage(ctx context.Context) (string, error) {
	var lastErr error
	backoff := f.backoff

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
			f.logger.Info("Retrying usage fetch", zap.Int("attempt", attempt+1), zap.Int("maxAttempts", maxAttempts))
		}

		result, err := f.circuit.Execute(func() (interface{}, error) {
			return f.fetchOnce(ctx)
		})
		if err == nil {
			return result.(string), nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("usage fetch suspended: %w", err)
		}

		lastErr = err
		f.logger.Warn("Usage fetch attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("all retry attempts exhausted: %w", lastErr)
}

// fetchOnce performs a single fetch attempt
func (f *HTTPFetcher) fetchOnce(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.usageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+f.accessToken)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	return string(body), nil
}

// FileFetcher replays a usage payload saved to disk
type FileFetcher struct {
	path string
}

// NewFileFetcher creates a FileFetcher reading from path
func NewFileFetcher(path string) *FileFetcher {
	return &FileFetcher{path: path}
}

// FetchRawUsage reads the payload file
func (f *FileFetcher) FetchRawUsage(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("failed to read usage payload: %w", err)
	}
	return string(data), nil
}
