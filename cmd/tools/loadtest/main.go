// main.go - Load testing tool for the metrics submission API
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"funnelmetrics/internal/entities"
	api "funnelmetrics/internal/http"
	"funnelmetrics/internal/metrics"
)

// LoadConfig holds the configuration for a load test
type LoadConfig struct {
	BaseURL     string
	Entities    []entities.Ref
	Anchors     []string
	Mode        string
	Concurrency int
	Duration    time.Duration
	Timeout     time.Duration
}

// Result captures the result of a single request
type Result struct {
	Duration   time.Duration
	StatusCode int
	Error      error
}

// LoadStats aggregates request results. It is only touched by the collector.
type LoadStats struct {
	Total       int64
	Successful  int64
	Failed      int64
	StoreBusy   int64
	StatusCodes map[int]int64
	Latencies   []time.Duration
	StartTime   time.Time
	EndTime     time.Time
}

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "Base URL of the API")
	refs := flag.String("entities", "creative:1", "comma separated entities to submit for, as type:id")
	anchors := flag.String("anchors", time.Now().UTC().Format("2006-01-02"), "comma separated anchor dates")
	mode := flag.String("mode", "week", "period mode of every submission")
	concurrency := flag.Int("c", 10, "Number of concurrent clients")
	duration := flag.Duration("d", 30*time.Second, "Duration of the test")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	out := flag.String("out", "loadtest_results.json", "file to write the JSON summary to")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := newConfig(*baseURL, *refs, *anchors, *mode, *concurrency, *duration, *timeout)
	if err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(2)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	go func() {
		sig := <-sigChan
		fmt.Printf("Received signal %v, shutting down...\n", sig)
		cancel()
	}()

	fmt.Printf("Submitting to %s/api/metrics with %d clients for %v\n", cfg.BaseURL, cfg.Concurrency, cfg.Duration)
	fmt.Printf("Entities: %d, anchors: %d (%s mode), so every request collides with others on the same records\n",
		len(cfg.Entities), len(cfg.Anchors), cfg.Mode)

	stats := &LoadStats{StatusCodes: make(map[int]int64), StartTime: time.Now()}
	client := &http.Client{Timeout: cfg.Timeout}
	for result := range runTest(ctx, cfg, client) {
		stats.Add(result)
	}
	stats.EndTime = time.Now()

	printResults(os.Stdout, stats)
	if err := exportResults(*out, stats); err != nil {
		logger.Error("Failed to export results", slog.Any("error", err))
	}
}

func newConfig(baseURL, refs, anchors, mode string, concurrency int, duration, timeout time.Duration) (*LoadConfig, error) {
	cfg := &LoadConfig{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Mode:        mode,
		Concurrency: concurrency,
		Duration:    duration,
		Timeout:     timeout,
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1")
	}
	for _, raw := range strings.Split(refs, ",") {
		ref, err := entities.ParseRef(strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		cfg.Entities = append(cfg.Entities, ref)
	}
	for _, raw := range strings.Split(anchors, ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			cfg.Anchors = append(cfg.Anchors, raw)
		}
	}
	if len(cfg.Anchors) == 0 {
		return nil, fmt.Errorf("at least one anchor is required")
	}
	return cfg, nil
}

// runTest starts the workers and returns a channel of results that closes
// once every worker has stopped.
func runTest(ctx context.Context, cfg *LoadConfig, client *http.Client) <-chan Result {
	results := make(chan Result, cfg.Concurrency*10)
	var wg sync.WaitGroup

	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(workerID)))
			for ctx.Err() == nil {
				results <- sendRequest(ctx, client, cfg.BaseURL, randomSubmission(rng, cfg))
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

// randomSubmission picks an entity and anchor and generates plausible totals.
func randomSubmission(rng *rand.Rand, cfg *LoadConfig) api.SubmitMetricsRequest {
	ref := cfg.Entities[rng.IntN(len(cfg.Entities))]
	impressions := 1000 + rng.Int64N(9000)
	clicks := impressions / (10 + rng.Int64N(40))
	leads := clicks / (2 + rng.Int64N(8))
	sales := leads / (3 + rng.Int64N(10))

	return api.SubmitMetricsRequest{
		EntityType: string(ref.Type),
		EntityID:   ref.ID,
		Mode:       cfg.Mode,
		Anchor:     cfg.Anchors[rng.IntN(len(cfg.Anchors))],
		Counters: metrics.Counters{
			Reach:       impressions * 8 / 10,
			Impressions: impressions,
			Clicks:      clicks,
			PageViews:   clicks,
			Leads:       leads,
			Checkouts:   sales * 2,
			Sales:       sales,
			Spend:       decimal.New(10000+rng.Int64N(90000), -2),
			Revenue:     decimal.New(sales*4990, -2),
		},
	}
}

func sendRequest(ctx context.Context, client *http.Client, baseURL string, body api.SubmitMetricsRequest) Result {
	payload, err := json.Marshal(body)
	if err != nil {
		return Result{Error: fmt.Errorf("failed to marshal JSON: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/metrics", bytes.NewReader(payload))
	if err != nil {
		return Result{Error: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", baseURL)
	req.Header.Set("Sec-Fetch-Site", "same-origin")

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return Result{Duration: elapsed, Error: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return Result{Duration: elapsed, StatusCode: resp.StatusCode}
}

// Add records one result.
func (s *LoadStats) Add(r Result) {
	if r.Error != nil {
		// Requests cut off by the end of the test are not counted.
		if errors.Is(r.Error, context.DeadlineExceeded) || errors.Is(r.Error, context.Canceled) {
			return
		}
		s.Total++
		s.Failed++
		return
	}

	s.Total++

	s.StatusCodes[r.StatusCode]++
	s.Latencies = append(s.Latencies, r.Duration)
	switch {
	case r.StatusCode == http.StatusOK:
		s.Successful++
	case r.StatusCode == http.StatusServiceUnavailable:
		s.StoreBusy++
		s.Failed++
	default:
		s.Failed++
	}
}

// Percentile returns the latency at quantile q in [0, 1].
func (s *LoadStats) Percentile(q float64) time.Duration {
	if len(s.Latencies) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), s.Latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * q)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func (s *LoadStats) rate(n int64) float64 {
	if s.Total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(s.Total)
}

// printResults displays the test results as aligned tables
func printResults(w io.Writer, s *LoadStats) {
	elapsed := s.EndTime.Sub(s.StartTime)
	rps := 0.0
	if elapsed > 0 {
		rps = float64(s.Total) / elapsed.Seconds()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "\n%s\t%s\n", "METRIC", "VALUE")
	fmt.Fprintf(tw, "%s\t%s\n", "------", "-----")
	fmt.Fprintf(tw, "Duration\t%v\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(tw, "Requests Per Second\t%.2f\n", rps)
	fmt.Fprintf(tw, "Total Requests\t%d\n", s.Total)
	fmt.Fprintf(tw, "Successful Requests\t%d (%.2f%%)\n", s.Successful, s.rate(s.Successful))
	fmt.Fprintf(tw, "Failed Requests\t%d (%.2f%%)\n", s.Failed, s.rate(s.Failed))
	if s.StoreBusy > 0 {
		fmt.Fprintf(tw, "Store Unavailable\t%d (%.2f%%)\n", s.StoreBusy, s.rate(s.StoreBusy))
	}
	fmt.Fprintf(tw, "p50 Latency\t%v\n", s.Percentile(0.5))
	fmt.Fprintf(tw, "p95 Latency\t%v\n", s.Percentile(0.95))
	fmt.Fprintf(tw, "p99 Latency\t%v\n", s.Percentile(0.99))
	tw.Flush()

	if len(s.StatusCodes) == 0 {
		return
	}
	codes := make([]int, 0, len(s.StatusCodes))
	for code := range s.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	fmt.Fprintln(w, "\nStatus Code Distribution:")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\n", "STATUS CODE", "COUNT", "PERCENTAGE")
	for _, code := range codes {
		fmt.Fprintf(tw, "%d\t%d\t%.2f%%\n", code, s.StatusCodes[code], s.rate(s.StatusCodes[code]))
	}
	tw.Flush()
}

// exportResults saves a JSON summary for external tooling
func exportResults(path string, s *LoadStats) error {
	summary := map[string]any{
		"totalRequests":      s.Total,
		"successfulRequests": s.Successful,
		"failedRequests":     s.Failed,
		"storeUnavailable":   s.StoreBusy,
		"p50LatencyMs":       s.Percentile(0.5).Milliseconds(),
		"p95LatencyMs":       s.Percentile(0.95).Milliseconds(),
		"p99LatencyMs":       s.Percentile(0.99).Milliseconds(),
		"startTime":          s.StartTime.Format(time.RFC3339),
		"endTime":            s.EndTime.Format(time.RFC3339),
		"statusCodes":        s.StatusCodes,
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
