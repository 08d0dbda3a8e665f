package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mjasion/balena-home/coned_rtu/reading"
	"github.com/mjasion/balena-home/coned_rtu/recorder"
)

// Recorder is the read side of recorder.Recorder served over HTTP
type Recorder interface {
	Readings() []reading.Reading
	ReadingsForDate(day time.Time) []reading.Reading
	Len() int
	LastScrape() recorder.ScrapeStatus
}

// Queue reports how many readings wait for remote write
type Queue interface {
	Size() int
}

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status           string    `json:"status"`
	LastScrapeTime   time.Time `json:"lastScrapeTime"`
	LastScrapeResult string    `json:"lastScrapeResult,omitempty"`
	LastSuccessTime  time.Time `json:"lastSuccessTime"`
	StoredReadings   int       `json:"storedReadings"`
	BufferedSamples  int       `json:"bufferedSamples"`
}

// ReadingView is the JSON form of a reading
type ReadingView struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationSeconds float64   `json:"durationSeconds"`
	EnergyWh        float64   `json:"energyWh"`
}

// Server serves health and reading queries
type Server struct {
	recorder       Recorder
	queue          Queue
	scrapeInterval time.Duration
	limiter        *rate.Limiter
	server         *http.Server
	logger         *zap.Logger
}

// Request rate allowed across all clients
const (
	requestsPerSecond = 5
	requestBurst      = 10
)

// NewServer creates a Server listening on port. queue may be nil.
func NewServer(rec Recorder, queue Queue, scrapeInterval time.Duration, port int, logger *zap.Logger) *Server {
	s := &Server{
		recorder:       rec,
		queue:          queue,
		scrapeInterval: scrapeInterval,
		limiter:        rate.NewLimiter(requestsPerSecond, requestBurst),
		logger:         logger,
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      otelhttp.NewHandler(s.Handler(), "api"),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	return s
}

// Handler returns the routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /readings", s.handleReadings)
	return s.rateLimit(mux)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Stop shuts the server down
func (s *Server) Stop() error {
	return s.server.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	last := s.recorder.LastScrape()

	status := HealthStatus{
		Status:           "healthy",
		LastScrapeTime:   last.Time,
		LastScrapeResult: last.Outcome,
		LastSuccessTime:  last.LastSuccess,
		StoredReadings:   s.recorder.Len(),
	}
	if s.queue != nil {
		status.BufferedSamples = s.queue.Size()
	}

	code := http.StatusOK
	// stale when nothing succeeded for three scrape intervals
	if !last.LastSuccess.IsZero() && time.Since(last.LastSuccess) > 3*s.scrapeInterval {
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, status)
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	var readings []reading.Reading

	if date := r.URL.Query().Get("date"); date != "" {
		day, err := time.Parse(reading.BucketLayout, date)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date),
			})
			return
		}
		readings = s.recorder.ReadingsForDate(day)
	} else {
		readings = s.recorder.Readings()
	}

	views := make([]ReadingView, 0, len(readings))
	for _, rd := range readings {
		views = append(views, ReadingView{
			Start:           rd.Start(),
			End:             rd.End(),
			DurationSeconds: rd.Duration().Seconds(),
			EnergyWh:        rd.EnergyWh(),
		})
	}

	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", zap.Error(err))
	}
}
