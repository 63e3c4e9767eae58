// Command ordkv-bench is the only executable this module ships. It is not
// a server for the engine itself — pkg/db.Engine has no listener of its
// own, per spec §1's "library, not a server" boundary — it is a driver a
// host process's own tooling can imitate: one subcommand exercises the
// write path with an in-process load generator, one exercises a bounded
// range scan, and the last mounts the introspection HTTP endpoint
// (Prometheus metrics) a host process would otherwise wire up itself,
// structured the way the teacher's cmd/main.go wires up its own HTTP
// server and signal-driven shutdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"ordkv/pkg/db"
	"ordkv/pkg/metrics/prom"
	"ordkv/pkg/types"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "ordkv-bench",
		Short: "load generator and introspection endpoint for the ordkv write path",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the engine config file")

	root.AddCommand(newBenchCmd())
	root.AddCommand(newScanCmd())
	root.AddCommand(newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openEngine() (*db.Engine, error) {
	cfg, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}
	initLogger(cfg)

	engine := db.Open(cfg, uint64(cfg.ArenaBlockSize)*16, nil)
	engine.SetMetrics(prom.New())
	return engine, nil
}

// benchResult mirrors the shape of the teacher's own BenchmarkResult, down
// to which fields it reports.
type benchResult struct {
	TotalOps      int
	SuccessfulOps int
	FailedOps     int
	Duration      time.Duration
	OpsPerSec     float64
	AvgLatency    time.Duration
	MinLatency    time.Duration
	MaxLatency    time.Duration
}

func newBenchCmd() *cobra.Command {
	var (
		keys        int
		concurrency int
		valueSize   int
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "drive concurrent Put/Get traffic against an in-process engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			fmt.Println("=== ordkv write-path benchmark ===")
			fmt.Printf("keys=%d concurrency=%d value_size=%d\n\n", keys, concurrency, valueSize)

			writeResult := benchmarkPuts(engine, keys, concurrency, valueSize)
			printResult("Puts", writeResult)

			readResult := benchmarkGets(engine, keys, concurrency)
			printResult("Gets", readResult)

			return nil
		},
	}
	cmd.Flags().IntVar(&keys, "keys", 10_000, "number of keys to write and read back")
	cmd.Flags().IntVar(&concurrency, "concurrency", 8, "number of concurrent goroutines")
	cmd.Flags().IntVar(&valueSize, "value-size", 128, "size in bytes of each value")
	return cmd
}

func newScanCmd() *cobra.Command {
	var (
		keys  int
		start string
		end   string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "seed keys and print a bounded range scan over an in-process engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx := context.Background()
			for i := 0; i < keys; i++ {
				key := types.Key(fmt.Sprintf("scan_key_%05d", i))
				value := types.Value(fmt.Sprintf("scan_value_%05d", i))
				if err := engine.Put(ctx, key, value, db.WriteOptions{}); err != nil {
					return err
				}
			}

			var startKey, endKey types.Key
			if start != "" {
				startKey = types.Key(start)
			}
			if end != "" {
				endKey = types.Key(end)
			}

			fmt.Printf("=== scanning [%q, %q) limit=%d ===\n", start, end, limit)
			count := 0
			err = engine.Search(ctx, startKey, endKey, db.SearchOptions{Limit: limit}, func(r db.SearchResult) error {
				fmt.Printf("%s = %s\n", r.Key, r.Value)
				count++
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Printf("=== %d results ===\n", count)
			return nil
		},
	}
	cmd.Flags().IntVar(&keys, "keys", 20, "number of sequential keys to seed before scanning")
	cmd.Flags().StringVar(&start, "start", "", "inclusive lower bound (empty = from the first key)")
	cmd.Flags().StringVar(&end, "end", "", "exclusive upper bound (empty = to the last key)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results (0 = unbounded)")
	return cmd
}

func benchmarkPuts(engine *db.Engine, totalOps, concurrency, valueSize int) benchResult {
	ctx := context.Background()
	value := make([]byte, valueSize)
	rand.New(rand.NewSource(1)).Read(value)

	start := time.Now()
	var wg sync.WaitGroup
	var mu sync.Mutex
	var successful, failed int
	latencies := make([]time.Duration, 0, totalOps)

	opsPer, remainder := totalOps/concurrency, totalOps%concurrency
	for g := 0; g < concurrency; g++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()
			ops := opsPer
			if goroutineID < remainder {
				ops++
			}
			for j := 0; j < ops; j++ {
				key := types.Key(fmt.Sprintf("bench_key_%d_%d", goroutineID, j))
				opStart := time.Now()
				err := engine.Put(ctx, key, value, db.WriteOptions{})
				latency := time.Since(opStart)

				mu.Lock()
				if err == nil {
					successful++
				} else {
					failed++
				}
				latencies = append(latencies, latency)
				mu.Unlock()
			}
		}(g)
	}
	wg.Wait()
	return summarize(totalOps, successful, failed, time.Since(start), latencies)
}

func benchmarkGets(engine *db.Engine, totalOps, concurrency int) benchResult {
	ctx := context.Background()
	start := time.Now()
	var wg sync.WaitGroup
	var mu sync.Mutex
	var successful, failed int
	latencies := make([]time.Duration, 0, totalOps)

	opsPer, remainder := totalOps/concurrency, totalOps%concurrency
	for g := 0; g < concurrency; g++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()
			ops := opsPer
			if goroutineID < remainder {
				ops++
			}
			for j := 0; j < ops; j++ {
				key := types.Key(fmt.Sprintf("bench_key_%d_%d", goroutineID, j))
				opStart := time.Now()
				_, err := engine.Get(ctx, key, db.ReadOptions{})
				latency := time.Since(opStart)

				mu.Lock()
				if err == nil {
					successful++
				} else {
					failed++
				}
				latencies = append(latencies, latency)
				mu.Unlock()
			}
		}(g)
	}
	wg.Wait()
	return summarize(totalOps, successful, failed, time.Since(start), latencies)
}

func summarize(totalOps, successful, failed int, duration time.Duration, latencies []time.Duration) benchResult {
	var min, max, sum time.Duration
	if len(latencies) > 0 {
		min, max = latencies[0], latencies[0]
		for _, lat := range latencies {
			if lat < min {
				min = lat
			}
			if lat > max {
				max = lat
			}
			sum += lat
		}
	}
	var avg time.Duration
	if len(latencies) > 0 {
		avg = sum / time.Duration(len(latencies))
	}
	return benchResult{
		TotalOps:      totalOps,
		SuccessfulOps: successful,
		FailedOps:     failed,
		Duration:      duration,
		OpsPerSec:     float64(successful) / duration.Seconds(),
		AvgLatency:    avg,
		MinLatency:    min,
		MaxLatency:    max,
	}
}

func printResult(name string, r benchResult) {
	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total Operations: %d\n", r.TotalOps)
	fmt.Printf("  Successful: %d\n", r.SuccessfulOps)
	fmt.Printf("  Failed: %d\n", r.FailedOps)
	fmt.Printf("  Duration: %v\n", r.Duration)
	fmt.Printf("  Operations/sec: %.2f\n", r.OpsPerSec)
	fmt.Printf("  Avg Latency: %v\n", r.AvgLatency)
	fmt.Printf("  Min Latency: %v\n", r.MinLatency)
	fmt.Printf("  Max Latency: %v\n\n", r.MaxLatency)
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "mount a Prometheus /metrics endpoint over a running engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			r := chi.NewRouter()
			r.Handle("/metrics", promhttp.Handler())
			r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			server := &http.Server{Addr: addr, Handler: r}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			go func() {
				slog.Info("metrics endpoint listening", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("metrics endpoint stopped", "err", err)
				}
			}()

			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "address the metrics endpoint listens on")
	return cmd
}
