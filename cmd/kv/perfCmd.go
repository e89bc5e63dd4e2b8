package kv

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/docKV/cmd/util"
	"github.com/ValentinKolb/docKV/lib/store"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for document stores",
		Long:    "",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfOps              = 10000
	perfSkip             = make([]string, 0)
)

// perfSampleSize is the number of latencies kept per test for the percentiles
const perfSampleSize = 100_000

// perfPercentiles are reported for every test
var perfPercentiles = []float64{0.5, 0.95, 0.99}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of concurrent workers to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "ops"
	perfTestCmd.Flags().Int(key, 10000, util.WrapString("Number of operations per test (split across all workers)"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfOps = max(viper.GetInt("ops"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// --------------------------------------------------------------------------
// Benchmarks
// --------------------------------------------------------------------------

// perfResult is the outcome of one benchmark
type perfResult struct {
	name    string
	skipped bool
	elapsed time.Duration
	timer   gometrics.Timer
	errors  gometrics.Counter
}

// opsPerSec returns the throughput over the wall time of the test
func (r perfResult) opsPerSec() float64 {
	if r.elapsed <= 0 {
		return 0
	}
	return float64(r.timer.Count()) / r.elapsed.Seconds()
}

// perfTest describes a benchmark. prepare runs before the clock starts, op is called
// perfOps times in total across perfNumThreads workers.
type perfTest struct {
	name    string
	prepare func(ctx context.Context, keys []string) error
	op      func(ctx context.Context, worker, i int, key string) error
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for document stores")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Engine: %s", viper.GetString("engine"))
	config, err := util.GetStoreConfig()
	if err != nil {
		return err
	}
	fmt.Println(config.String())
	fmt.Printf("Threads: %d, Ops per test: %d, Keys: %d\n", perfNumThreads, perfOps, perfKeySpread)
	fmt.Println()

	fmt.Println("starting tests...")

	largeValue := strings.Repeat("x", perfLargeValueSizeKB*1024)
	fill := func(ctx context.Context, keys []string) error {
		for _, k := range keys {
			if err := kvStore.Set(ctx, k, "test").Err(); err != nil {
				return err
			}
		}
		return nil
	}

	tests := []perfTest{
		{
			name: "set",
			op: func(ctx context.Context, _, _ int, key string) error {
				return kvStore.Set(ctx, key, "test").Err()
			},
		},
		{
			name: "set-large",
			op: func(ctx context.Context, _, _ int, key string) error {
				return kvStore.Set(ctx, key, largeValue).Err()
			},
		},
		{
			name:    "get",
			prepare: fill,
			op: func(ctx context.Context, _, _ int, key string) error {
				return kvStore.Get(ctx, key).Err()
			},
		},
		{
			name: "get-miss",
			op: func(ctx context.Context, _, i int, _ string) error {
				return kvStore.Get(ctx, fmt.Sprintf("%s/get-miss-%d", perfKeyPrefix, i%100)).Err()
			},
		},
		{
			name:    "remove",
			prepare: fill,
			op: func(ctx context.Context, _, _ int, key string) error {
				return kvStore.Remove(ctx, key).Err()
			},
		},
		{
			name: "count",
			op: func(ctx context.Context, _, _ int, _ string) error {
				return kvStore.Count(ctx).Err()
			},
		},
		{
			name:    "mixed",
			prepare: fill,
			op: func(ctx context.Context, _, i int, key string) error {
				switch i % 4 {
				case 0:
					return kvStore.Set(ctx, key, "test").Err()
				case 1:
					return kvStore.Get(ctx, key).Err()
				case 2:
					return kvStore.Remove(ctx, key).Err()
				default:
					return kvStore.Count(ctx).Err()
				}
			},
		},
	}

	registry := gometrics.NewRegistry()
	results := make([]perfResult, 0, len(tests))
	for _, test := range tests {
		res, err := runPerfTest(registry, test)
		if err != nil {
			return fmt.Errorf("(%s) - %w", test.name, err)
		}
		results = append(results, res)
		printResult(res)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, config); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// runPerfTest executes one benchmark and records every operation in a timer of registry
func runPerfTest(registry gometrics.Registry, test perfTest) (perfResult, error) {
	res := perfResult{
		name:   test.name,
		timer:  gometrics.NewCustomTimer(gometrics.NewHistogram(gometrics.NewUniformSample(perfSampleSize)), gometrics.NewMeter()),
		errors: gometrics.NewCounter(),
	}
	if shouldSkip(test.name) {
		res.skipped = true
		return res, nil
	}
	if err := registry.Register(test.name+".latency", res.timer); err != nil {
		return res, err
	}
	if err := registry.Register(test.name+".errors", res.errors); err != nil {
		return res, err
	}

	ctx := context.Background()
	keys := getKeys(test.name)

	// cleanup
	defer removeKeys(ctx, test.name, keys)

	if test.prepare != nil {
		if err := test.prepare(ctx, keys); err != nil {
			return res, fmt.Errorf("preparing keys failed: %w", err)
		}
	}

	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < perfNumThreads; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := worker; i < perfOps; i += perfNumThreads {
				opStart := time.Now()
				err := test.op(ctx, worker, i, keys[i%len(keys)])
				res.timer.UpdateSince(opStart)
				if err != nil {
					res.errors.Inc(1)
					Logger.Warningf("(%s) - operation failed: %v", test.name, err)
				}
			}
		}(w)
	}
	wg.Wait()
	res.elapsed = time.Since(start)

	return res, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// getKeys creates the test keys of one benchmark
func getKeys(prefix string) []string {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}
	return keys
}

// removeKeys deletes every record of keys. Concurrent sets of one key may have
// inserted it more than once, so each key is removed until it is gone.
func removeKeys(ctx context.Context, test string, keys []string) {
	for _, k := range keys {
		for attempt := 0; attempt <= perfNumThreads; attempt++ {
			v, err := kvStore.Get(ctx, k).Result()
			if err != nil {
				Logger.Warningf("(%s) - error reading key during cleanup: %v", test, err)
				break
			}
			if v == nil {
				break
			}
			if err := kvStore.Remove(ctx, k).Err(); err != nil {
				Logger.Warningf("(%s) - error deleting key: %v", test, err)
				break
			}
		}
	}
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(res perfResult) {
	if res.skipped {
		fmt.Printf("%-12sskipped\n", res.name)
		return
	}

	ps := res.timer.Percentiles(perfPercentiles)
	fmt.Printf("%-12s%8.0f ops/sec\tmean %-10s p50 %-10s p95 %-10s p99 %-10s errors %d\n",
		res.name,
		res.opsPerSec(),
		time.Duration(res.timer.Mean()),
		time.Duration(ps[0]),
		time.Duration(ps[1]),
		time.Duration(ps[2]),
		res.errors.Count(),
	)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []perfResult, config store.Config) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "Skipped", "Ops", "Errors", "OpsPerSec",
		"MeanNs", "MinNs", "MaxNs", "P50Ns", "P95Ns", "P99Ns",
		"Engine", "Host", "Database", "Namespace",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for _, res := range results {
		ps := res.timer.Percentiles(perfPercentiles)
		row := []string{
			res.name,
			strconv.FormatBool(res.skipped),
			strconv.FormatInt(res.timer.Count(), 10),
			strconv.FormatInt(res.errors.Count(), 10),
			fmt.Sprintf("%.0f", res.opsPerSec()),
			fmt.Sprintf("%.0f", res.timer.Mean()),
			strconv.FormatInt(res.timer.Min(), 10),
			strconv.FormatInt(res.timer.Max(), 10),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			fmt.Sprintf("%.0f", ps[2]),
			viper.GetString("engine"),
			config.ResolvedHost(),
			config.ResolvedDatabase(),
			config.ResolvedTableName(),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", res.name, err)
		}
	}

	return nil
}
