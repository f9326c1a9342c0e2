package conn

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/lwtnt/cmd/util"
	"github.com/ValentinKolb/lwtnt/rpc/client"
	"github.com/ValentinKolb/lwtnt/rpc/common"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfCmd = &cobra.Command{
		Use:     "perf [function] [args...]",
		Short:   "Performance testing tool for tarantool servers",
		Long:    util.WrapString("Calls the function the configured number of times from several connections and reports throughput and latency percentiles."),
		Args:    cobra.MinimumNArgs(1),
		PreRunE: processPerfConfig,
		RunE:    runPerf,
	}
	perfRequests = 10000
	perfThreads  = 10
	perfPipeline = 1
)

var perfPercentiles = []float64{0.5, 0.95, 0.99}

func init() {
	// add flags
	key := "requests"
	perfCmd.Flags().Int(key, 10000, util.WrapString("Total number of calls to send"))
	key = "threads"
	perfCmd.Flags().Int(key, 10, util.WrapString("Number of connections calling in parallel"))
	key = "pipeline"
	perfCmd.Flags().Int(key, 1, util.WrapString("Number of calls each connection dispatches before waiting for the responses"))
	key = "csv"
	perfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfRequests = viper.GetInt("requests")
	perfThreads = viper.GetInt("threads")
	perfPipeline = viper.GetInt("pipeline")

	if perfRequests <= 0 || perfThreads <= 0 || perfPipeline <= 0 {
		return fmt.Errorf("requests, threads and pipeline must be positive")
	}
	return nil
}

// perfResult holds the measurements of one run
type perfResult struct {
	function string
	duration time.Duration
	latency  metrics.Timer
	failed   metrics.Counter
}

func runPerf(_ *cobra.Command, args []string) error {
	callArgs, err := util.ParseArgs(args[1:])
	if err != nil {
		return err
	}
	config := util.GetClientConfig()

	fmt.Println("Performance testing tool for tarantool servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Requests: %d, Threads: %d, Pipeline: %d\n", perfRequests, perfThreads, perfPipeline)
	fmt.Println()

	// one connection per thread, a connection serializes its readers
	conns := make([]*client.Connection, perfThreads)
	defer func() {
		for _, conn := range conns {
			if conn != nil {
				conn.Disconnect()
			}
		}
	}()
	for i := range conns {
		if conns[i], err = client.New(config); err != nil {
			return err
		}
	}

	registry := metrics.NewRegistry()
	result := &perfResult{
		function: args[0],
		latency:  metrics.GetOrRegisterTimer("perf.latency", registry),
		failed:   metrics.GetOrRegisterCounter("perf.failed", registry),
	}
	defer result.latency.Stop()

	fmt.Println("starting test...")

	var remaining atomic.Int64
	remaining.Store(int64(perfRequests))

	var wg sync.WaitGroup
	start := time.Now()
	for _, conn := range conns {
		wg.Add(1)
		go func(conn *client.Connection) {
			defer wg.Done()
			runPerfWorker(conn, result, callArgs, &remaining)
		}(conn)
	}
	wg.Wait()
	result.duration = time.Since(start)

	printPerfResult(result)

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writePerfCSV(csvPath, result, config); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// runPerfWorker claims batches of calls until none are left. A batch is
// dispatched completely before its responses are awaited.
func runPerfWorker(conn *client.Connection, result *perfResult, args []interface{}, remaining *atomic.Int64) {
	requests := make([]*client.Request, 0, perfPipeline)
	starts := make([]time.Time, 0, perfPipeline)

	for {
		n := int64(perfPipeline)
		left := remaining.Add(-n)
		if left <= -n {
			return
		}
		if left < 0 {
			n += left
		}

		requests, starts = requests[:0], starts[:0]
		for i := int64(0); i < n; i++ {
			start := time.Now()
			req, err := conn.Call(result.function, args)
			if err != nil {
				util.Logger.Warningf("(perf) - error calling %s: %v", result.function, err)
				result.failed.Inc(1)
				continue
			}
			requests = append(requests, req)
			starts = append(starts, start)
		}

		for i, req := range requests {
			if err := req.Wait(); err != nil {
				util.Logger.Warningf("(perf) - error reading response: %v", err)
				result.failed.Inc(1)
				continue
			}
			if msg, failed, _ := req.ErrorMessage(); failed {
				util.Logger.Debugf("(perf) - call failed: %s", msg)
				result.failed.Inc(1)
				continue
			}
			result.latency.UpdateSince(starts[i])
		}
	}
}

// printPerfResult prints the result of a run in a formatted way
func printPerfResult(r *perfResult) {
	snapshot := r.latency.Snapshot()
	ps := snapshot.Percentiles(perfPercentiles)
	opsPerSec := float64(snapshot.Count()) / r.duration.Seconds()

	fmt.Printf("%-20s%d ok, %d failed in %s\n", r.function, snapshot.Count(), r.failed.Count(), r.duration.Round(time.Millisecond))
	fmt.Printf("%-20s%.0f ops/sec\n", "throughput", opsPerSec)
	fmt.Printf("%-20smean %s, p50 %s, p95 %s, p99 %s, max %s\n", "latency",
		time.Duration(snapshot.Mean()), time.Duration(ps[0]), time.Duration(ps[1]),
		time.Duration(ps[2]), time.Duration(snapshot.Max()))
}

// writePerfCSV writes the result of a run to a CSV file
func writePerfCSV(csvPath string, r *perfResult, config common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Function", "Requests", "Threads", "Pipeline", "Ok", "Failed",
		"DurationNs", "OpsPerSec", "MeanNs", "P50Ns", "P95Ns", "P99Ns", "MaxNs",
		"URL", "TCPNoDelay", "SendBufSize", "RecvBufSize",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	snapshot := r.latency.Snapshot()
	ps := snapshot.Percentiles(perfPercentiles)
	row := []string{
		r.function,
		strconv.Itoa(perfRequests),
		strconv.Itoa(perfThreads),
		strconv.Itoa(perfPipeline),
		strconv.FormatInt(snapshot.Count(), 10),
		strconv.FormatInt(r.failed.Count(), 10),
		strconv.FormatInt(r.duration.Nanoseconds(), 10),
		fmt.Sprintf("%.0f", float64(snapshot.Count())/r.duration.Seconds()),
		fmt.Sprintf("%.0f", snapshot.Mean()),
		fmt.Sprintf("%.0f", ps[0]),
		fmt.Sprintf("%.0f", ps[1]),
		fmt.Sprintf("%.0f", ps[2]),
		strconv.FormatInt(snapshot.Max(), 10),
		common.RedactURL(config.URL),
		strconv.FormatBool(config.TCPNoDelay),
		strconv.Itoa(config.SendBufSize),
		strconv.Itoa(config.GetRecvBufSize()),
	}
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("failed to write CSV row: %v", err)
	}
	return nil
}
