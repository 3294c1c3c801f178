package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MasterHesse/Crab-Cage/cmd/util"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for Crab Cage servers",
		Long:    "",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix  = "__test"
	perfNumThreads = 10
	perfNumOps     = 10000
	perfKeySpread  = 100
	perfSkip       = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "ops"
	perfTestCmd.Flags().Int(key, 10000, util.WrapString("Number of operations per benchmark"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumThreads = viper.GetInt("threads")
	perfNumOps = viper.GetInt("ops")
	perfKeySpread = viper.GetInt("keys")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for Crab Cage servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Operations: %d\n", perfNumOps)
	fmt.Println()

	fmt.Println("starting tests...")

	// Create results map
	results := make(map[string]metrics.Timer)

	setTimer := runBenchmark("set", func(counter int) error {
		_, err := kvClient.Do("SET", testKey("set", counter), "test")
		return err
	})
	results["set"] = setTimer
	printResult("set", setTimer)

	getTimer := runBenchmark("get", func(counter int) error {
		_, err := kvClient.Do("GET", testKey("get", counter))
		return err
	})
	results["get"] = getTimer
	printResult("get", getTimer)

	incrTimer := runBenchmark("incr", func(counter int) error {
		_, err := kvClient.Do("INCR", testKey("incr", counter))
		return err
	})
	results["incr"] = incrTimer
	printResult("incr", incrTimer)

	delTimer := runBenchmark("del", func(counter int) error {
		_, err := kvClient.Do("DEL", testKey("del", counter))
		return err
	})
	results["del"] = delTimer
	printResult("del", delTimer)

	mixedTimer := runBenchmark("mixed", func(counter int) error {
		key := testKey("mixed", counter)
		var err error
		switch counter % 4 {
		case 0: // set
			_, err = kvClient.Do("SET", key, "test")
		case 1: // get
			_, err = kvClient.Do("GET", key)
		case 2: // exists
			_, err = kvClient.Do("EXISTS", key)
		case 3: // del
			_, err = kvClient.Do("DEL", key)
		}
		return err
	})
	results["mixed"] = mixedTimer
	printResult("mixed", mixedTimer)

	// cleanup the key space
	for _, prefix := range []string{"set", "get", "incr", "del", "mixed"} {
		for i := 0; i < perfKeySpread; i++ {
			_, _ = kvClient.Do("DEL", testKey(prefix, i))
		}
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// testKey maps a counter onto the configured key spread
func testKey(prefix string, counter int) string {
	return fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, counter%perfKeySpread)
}

// runBenchmark spreads perfNumOps calls of op over perfNumThreads
// workers and collects the latencies in a timer
func runBenchmark(test string, op func(counter int) error) metrics.Timer {
	timer := metrics.NewTimer()
	if shouldSkip(test) {
		return timer
	}

	var wg sync.WaitGroup
	opsPerThread := perfNumOps / perfNumThreads

	for t := 0; t < perfNumThreads; t++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := 0; i < opsPerThread; i++ {
				counter := offset + i
				start := time.Now()
				if err := op(counter); err != nil {
					log.Printf("(%s) - error: %v\n", test, err)
					continue
				}
				timer.UpdateSince(start)
			}
		}(t * opsPerThread)
	}

	wg.Wait()
	return timer
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, timer metrics.Timer) {
	if timer.Count() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	mean := time.Duration(int64(timer.Mean()))
	p99 := time.Duration(int64(timer.Percentile(0.99)))

	// Print the formatted result
	fmt.Printf("%-20s%s/op (p99 %s)\t%.0f ops/sec\n", test, mean, p99, timer.RateMean())
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]metrics.Timer) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	config := util.GetClientConfig()

	// Write header
	header := []string{
		"Test", "Count", "MeanNs", "P99Ns", "OpsPerSec", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"Threads", "Ops", "Keys",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, timer := range results {
		skipped := "false"
		if timer.Count() == 0 {
			skipped = "true"
		}

		row := []string{
			test,
			strconv.FormatInt(timer.Count(), 10),
			fmt.Sprintf("%.0f", timer.Mean()),
			fmt.Sprintf("%.0f", timer.Percentile(0.99)),
			fmt.Sprintf("%.0f", timer.RateMean()),
			skipped,
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.Itoa(config.ConnectionsPerEndpoint),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfNumOps),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
