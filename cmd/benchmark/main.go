// Benchmark tool for load-testing a running GeoBeat server.
//
// Usage:
//
//	go run ./cmd/benchmark -url http://localhost:8080 -snapshots 50 -nodes 2000
//
// This tool:
//  1. Generates seeded clustered snapshots
//  2. Posts each one to POST /scores, then posts them again
//  3. Reports latency percentiles and the cache hit ratio of the second pass
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/api"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/ingest"
)

// Metrics tracks benchmark results for one pass.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64
	CacheHits      int64
	CacheMisses    int64

	mu        sync.Mutex
	latencies []time.Duration
	gdi       map[string]float64
}

func (m *Metrics) record(network string, d time.Duration, gdi float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, d)
	m.gdi[network] = gdi
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "GeoBeat base URL")
	snapshots := flag.Int("snapshots", 20, "Number of distinct snapshots")
	nodes := flag.Int("nodes", 1000, "Nodes per snapshot")
	workers := flag.Int("workers", 4, "Number of concurrent workers")
	policy := flag.String("policy", "gdi-v0-absolute", "Scoring policy ID")
	seed := flag.Uint64("seed", 7, "Generator seed")
	verbose := flag.Bool("verbose", false, "Print each result")
	flag.Parse()

	if *snapshots <= 0 || *nodes <= 0 || *workers <= 0 {
		fmt.Println("snapshots, nodes and workers must be positive")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("GEOBEAT BENCHMARK - synthetic clustered snapshots")
	fmt.Printf("\nGeoBeat URL: %s\n", *baseURL)
	fmt.Printf("Snapshots:   %d x %d nodes\n", *snapshots, *nodes)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Policy:      %s\n", *policy)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: GeoBeat not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure GeoBeat is running:")
		fmt.Println("  go run ./cmd/geobeat serve")
		os.Exit(1)
	}
	fmt.Println("GeoBeat is healthy")

	gen := ingest.NewGenerator(*seed)
	capturedAt := time.Now().UTC().Truncate(time.Second)
	requests := make([]*api.ScoreRequest, 0, *snapshots)
	for i := 0; i < *snapshots; i++ {
		s := gen.Clustered(fmt.Sprintf("bench-%d", i), *nodes, capturedAt)
		requests = append(requests, &api.ScoreRequest{
			Network:    s.Network,
			CapturedAt: &s.CapturedAt,
			Policy:     *policy,
			Nodes:      s.Nodes,
		})
	}

	fmt.Printf("\nCold pass...\n")
	start := time.Now()
	cold := runBenchmark(requests, *baseURL, *workers, *verbose)
	printResults("COLD", cold, time.Since(start))

	fmt.Printf("\nWarm pass...\n")
	start = time.Now()
	warm := runBenchmark(requests, *baseURL, *workers, *verbose)
	printResults("WARM", warm, time.Since(start))

	for network, g := range cold.gdi {
		if w, ok := warm.gdi[network]; ok && w != g {
			fmt.Printf("\nWARNING: %s scored %.4f then %.4f\n", network, g, w)
		}
	}
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func runBenchmark(requests []*api.ScoreRequest, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{gdi: make(map[string]float64)}

	work := make(chan *api.ScoreRequest, len(requests))
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 5 * time.Minute}

			for req := range work {
				start := time.Now()
				score, cacheStatus, err := scoreSnapshot(client, baseURL, req)
				elapsed := time.Since(start)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", req.Network, err)
					}
					continue
				}
				if cacheStatus == "HIT" {
					atomic.AddInt64(&metrics.CacheHits, 1)
				} else {
					atomic.AddInt64(&metrics.CacheMisses, 1)
				}
				metrics.record(req.Network, elapsed, score.GDI)

				if verbose {
					fmt.Printf("%-10s | GDI %6.2f (PDI %6.2f JDI %6.2f IHI %6.2f) | %-4s | %v\n",
						req.Network, score.GDI,
						score.Physical.Score, score.Jurisdictional.Score, score.Infrastructure.Score,
						cacheStatus, elapsed.Round(time.Millisecond))
				}
			}
		}()
	}

	for _, req := range requests {
		work <- req
	}
	close(work)
	wg.Wait()

	return metrics
}

func scoreSnapshot(client *http.Client, baseURL string, req *api.ScoreRequest) (*domain.CompositeScore, string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, "", err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/scores", bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var score domain.CompositeScore
	if err := json.NewDecoder(resp.Body).Decode(&score); err != nil {
		return nil, "", err
	}
	return &score, resp.Header.Get(api.CacheHeader), nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func printResults(label string, m *Metrics, duration time.Duration) {
	sort.Slice(m.latencies, func(i, j int) bool { return m.latencies[i] < m.latencies[j] })

	fmt.Printf("\n%s RESULTS\n", label)
	fmt.Printf("   Processed:   %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:      %d\n", m.TotalErrors)
	fmt.Printf("   Cache hits:  %d\n", m.CacheHits)
	fmt.Printf("   Cache miss:  %d\n", m.CacheMisses)
	fmt.Printf("   Duration:    %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		fmt.Printf("   Throughput:  %.2f snapshots/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}
	fmt.Printf("   Latency p50: %v\n", percentile(m.latencies, 0.50).Round(time.Millisecond))
	fmt.Printf("   Latency p95: %v\n", percentile(m.latencies, 0.95).Round(time.Millisecond))
	fmt.Printf("   Latency max: %v\n", percentile(m.latencies, 1).Round(time.Millisecond))
}
