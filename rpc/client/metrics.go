package client

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// Client metrics, shared by all connections of the process
var (
	callsTotal            = metrics.GetOrCreateCounter("lwtnt_calls_total")
	callRetriesTotal      = metrics.GetOrCreateCounter("lwtnt_call_retries_total")
	readsTotal            = metrics.GetOrCreateCounter("lwtnt_reads_total")
	requestsCanceledTotal = metrics.GetOrCreateCounter("lwtnt_requests_canceled_total")
	syncErrorsTotal       = metrics.GetOrCreateCounter("lwtnt_sync_errors_total")
	connectsTotal         = metrics.GetOrCreateCounter("lwtnt_connects_total")
	callDuration          = metrics.GetOrCreateHistogram("lwtnt_call_duration_seconds")
)

// WriteMetrics writes all client metrics in Prometheus text format to w
func WriteMetrics(w io.Writer) {
	metrics.WritePrometheus(w, false)
}
