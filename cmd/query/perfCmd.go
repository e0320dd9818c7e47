package query

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/sqc/cmd/util"
	"github.com/ValentinKolb/sqc/lib/codec"
	"github.com/ValentinKolb/sqc/rpc/common"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Latency testing tool for query servers",
		Long:    "Runs read-only commands against the server and reports latency percentiles. Commands are answered one after the other, so the throughput is bounded by the round trip time and flood control.",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfNumOps     = 200
	perfNumThreads = 4
	perfSkip       = make([]string, 0)
)

// perfTest is one benchmark, built fresh for every operation
type perfTest struct {
	name    string
	command func(i int) *codec.Command
}

var perfTests = []perfTest{
	{"whoami", func(int) *codec.Command { return codec.NewCommand("whoami") }},
	{"version", func(int) *codec.Command { return codec.NewCommand("version") }},
	{"hostinfo", func(int) *codec.Command { return codec.NewCommand("hostinfo") }},
	{"mixed", func(i int) *codec.Command {
		switch i % 3 {
		case 0:
			return codec.NewCommand("whoami")
		case 1:
			return codec.NewCommand("version")
		default:
			return codec.NewCommand("serverlist")
		}
	}},
}

// perfResult summarizes one benchmark
type perfResult struct {
	test    string
	skipped bool
	errors  int64
	elapsed time.Duration
	timer   metrics.Timer
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. whoami,mixed)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 4, util.WrapString("Number of goroutines submitting commands concurrently"))
	key = "ops"
	perfTestCmd.Flags().Int(key, 200, util.WrapString("Number of commands per benchmark"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfNumOps = viper.GetInt("ops")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	if perfNumOps <= 0 || perfNumThreads <= 0 {
		return fmt.Errorf("ops and threads must be positive")
	}
	return nil
}

func run(cmd *cobra.Command, _ []string) error {
	fmt.Println("Latency testing tool for query servers")

	config, err := util.GetClientConfig()
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Threads: %d, Operations: %d\n", perfNumThreads, perfNumOps)
	fmt.Println()

	fmt.Println("starting tests...")

	results := make([]perfResult, 0, len(perfTests))
	for _, test := range perfTests {
		result := runTest(cmd.Context(), test)
		results = append(results, result)
		printResult(result)
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

// runTest executes perfNumOps commands from perfNumThreads goroutines
func runTest(ctx context.Context, test perfTest) perfResult {
	result := perfResult{test: test.name, timer: metrics.NewTimer()}
	if shouldSkip(test.name) {
		result.skipped = true
		return result
	}
	errCount := metrics.NewCounter()

	ops := make(chan int)
	var wg sync.WaitGroup
	start := time.Now()
	for t := 0; t < perfNumThreads; t++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range ops {
				begin := time.Now()
				_, err := sqClient.Execute(ctx, test.command(i))
				result.timer.UpdateSince(begin)
				if err != nil {
					errCount.Inc(1)
					fmt.Fprintf(os.Stderr, "(%s) - error executing command: %v\n", test.name, err)
				}
			}
		}()
	}
	for i := 0; i < perfNumOps; i++ {
		ops <- i
	}
	close(ops)
	wg.Wait()

	result.elapsed = time.Since(start)
	result.errors = errCount.Count()
	return result
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

func opsPerSec(r perfResult) float64 {
	if r.elapsed <= 0 {
		return 0
	}
	return float64(r.timer.Count()) / r.elapsed.Seconds()
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(r perfResult) {
	if r.skipped {
		fmt.Printf("%-12sskipped\n", r.test)
		return
	}
	s := r.timer.Snapshot()
	ps := s.Percentiles([]float64{0.5, 0.95, 0.99})
	fmt.Printf("%-12smean %s\tp50 %s\tp95 %s\tp99 %s\t%.0f ops/sec\t%d errors\n",
		r.test,
		time.Duration(s.Mean()),
		time.Duration(ps[0]),
		time.Duration(ps[1]),
		time.Duration(ps[2]),
		opsPerSec(r),
		r.errors,
	)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []perfResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "Skipped", "Count", "Errors", "MeanNs", "P50Ns", "P95Ns", "P99Ns", "OpsPerSec",
		"Protocol", "Endpoint", "Threads",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, r := range results {
		s := r.timer.Snapshot()
		ps := s.Percentiles([]float64{0.5, 0.95, 0.99})
		row := []string{
			r.test,
			strconv.FormatBool(r.skipped),
			strconv.FormatInt(s.Count(), 10),
			strconv.FormatInt(r.errors, 10),
			fmt.Sprintf("%.0f", s.Mean()),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			fmt.Sprintf("%.0f", ps[2]),
			fmt.Sprintf("%.0f", opsPerSec(r)),
			string(config.Transport.Protocol),
			config.Transport.Endpoint(),
			strconv.Itoa(perfNumThreads),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", r.test, err)
		}
	}
	return nil
}
