package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aezizhu/CellGen/internal/llm"
	"github.com/aezizhu/CellGen/internal/logging"
)

const (
	recentLimit   = 100
	promptPreview = 100
	saveInterval  = 30 * time.Second
)

// Request is one recorded dispatch.
type Request struct {
	Time     time.Time     `json:"time"`
	Provider string        `json:"provider"`
	Prompt   string        `json:"prompt"`
	Duration time.Duration `json:"duration"`
	Kind     string        `json:"kind,omitempty"` // empty on success
}

// Metrics aggregates dispatch outcomes.
type Metrics struct {
	TotalRequests   int64            `json:"total_requests"`
	SuccessfulRuns  int64            `json:"successful_runs"`
	FailedRuns      int64            `json:"failed_runs"`
	TotalDuration   time.Duration    `json:"total_duration"`
	AverageDuration time.Duration    `json:"average_duration"`
	ProviderUsage   map[string]int64 `json:"provider_usage"`
	ErrorKinds      map[string]int64 `json:"error_kinds"`
	RecentRequests  []Request        `json:"recent_requests"`
}

// Summary is the short form shown by -stats and the panel.
type Summary struct {
	TotalRequests   int64         `json:"total_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TopProvider     string        `json:"top_provider"`
	TopErrorKind    string        `json:"top_error_kind,omitempty"`
	AverageDuration time.Duration `json:"average_duration"`
}

// Collector records dispatches as Prometheus series for the running process
// and as cumulative counters that, when given a file path, persist across
// runs for -stats.
type Collector struct {
	mu       sync.Mutex
	metrics  *Metrics
	filePath string

	registry   *prometheus.Registry
	dispatches *prometheus.CounterVec
	durations  *prometheus.HistogramVec

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newMetrics() *Metrics {
	return &Metrics{
		ProviderUsage: make(map[string]int64),
		ErrorKinds:    make(map[string]int64),
	}
}

// NewCollector returns a collector. A non-empty path is loaded if present and
// saved every 30 seconds until Stop. An unreadable or corrupt file is an error
// so it is never overwritten.
func NewCollector(path string) (*Collector, error) {
	c := &Collector{
		metrics:  newMetrics(),
		filePath: path,
		registry: prometheus.NewRegistry(),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cellgen_dispatch_total",
			Help: "Total number of provider dispatches by outcome",
		}, []string{"provider", "kind"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cellgen_dispatch_duration_seconds",
			Help:    "Provider dispatch latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, col := range []prometheus.Collector{c.dispatches, c.durations} {
		if err := c.registry.Register(col); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	if path != "" {
		if err := c.Load(); err != nil {
			return nil, err
		}
	}
	go c.periodicSave()
	return c, nil
}

// Registry holds the process-lifetime dispatch series.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Observe matches llm.Observer.
func (c *Collector) Observe(provider, prompt string, elapsed time.Duration, err error) {
	c.RecordDispatch(provider, prompt, elapsed, err)
}

// RecordDispatch adds one outcome.
func (c *Collector) RecordDispatch(provider, prompt string, elapsed time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.metrics
	m.TotalRequests++
	m.TotalDuration += elapsed
	m.AverageDuration = m.TotalDuration / time.Duration(m.TotalRequests)
	m.ProviderUsage[provider]++

	kind := ""
	if err != nil {
		m.FailedRuns++
		kind = llm.KindOf(err).String()
		m.ErrorKinds[kind]++
	} else {
		m.SuccessfulRuns++
	}
	label := kind
	if label == "" {
		label = "ok"
	}
	c.dispatches.WithLabelValues(provider, label).Inc()
	c.durations.WithLabelValues(provider).Observe(elapsed.Seconds())

	m.RecentRequests = append(m.RecentRequests, Request{
		Time:     time.Now(),
		Provider: provider,
		Prompt:   logging.Truncate(prompt, promptPreview),
		Duration: elapsed,
		Kind:     kind,
	})
	if len(m.RecentRequests) > recentLimit {
		m.RecentRequests = m.RecentRequests[len(m.RecentRequests)-recentLimit:]
	}
}

// GetMetrics returns a copy of the current metrics.
func (c *Collector) GetMetrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := *c.metrics
	out.ProviderUsage = make(map[string]int64, len(c.metrics.ProviderUsage))
	for k, v := range c.metrics.ProviderUsage {
		out.ProviderUsage[k] = v
	}
	out.ErrorKinds = make(map[string]int64, len(c.metrics.ErrorKinds))
	for k, v := range c.metrics.ErrorKinds {
		out.ErrorKinds[k] = v
	}
	out.RecentRequests = append([]Request(nil), c.metrics.RecentRequests...)
	return out
}

func (c *Collector) GetSummary() Summary {
	m := c.GetMetrics()
	s := Summary{
		TotalRequests:   m.TotalRequests,
		TopProvider:     top(m.ProviderUsage),
		TopErrorKind:    top(m.ErrorKinds),
		AverageDuration: m.AverageDuration,
	}
	if m.TotalRequests > 0 {
		s.SuccessRate = float64(m.SuccessfulRuns) / float64(m.TotalRequests) * 100
	}
	return s
}

// top returns the key with the highest count, ties broken by name.
func top(counts map[string]int64) string {
	best, bestN := "", int64(0)
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

// Save writes the metrics file. Without a path it does nothing.
func (c *Collector) Save() error {
	if c.filePath == "" {
		return nil
	}
	c.mu.Lock()
	data, err := json.MarshalIndent(c.metrics, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.filePath), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := os.WriteFile(c.filePath, data, 0o644); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// Load replaces the in-memory metrics with the file contents. A missing file
// is not an error.
func (c *Collector) Load() error {
	data, err := os.ReadFile(c.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read metrics: %w", err)
	}
	m := newMetrics()
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("parse metrics: %w", err)
	}
	if m.ProviderUsage == nil {
		m.ProviderUsage = make(map[string]int64)
	}
	if m.ErrorKinds == nil {
		m.ErrorKinds = make(map[string]int64)
	}
	c.mu.Lock()
	c.metrics = m
	c.mu.Unlock()
	return nil
}

// Stop ends periodic saving and saves once more.
func (c *Collector) Stop() {
	c.once.Do(func() {
		close(c.stop)
		<-c.done
		_ = c.Save()
	})
}

func (c *Collector) periodicSave() {
	defer close(c.done)
	if c.filePath == "" {
		<-c.stop
		return
	}
	ticker := time.NewTicker(saveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = c.Save()
		case <-c.stop:
			return
		}
	}
}
