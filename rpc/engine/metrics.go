package engine

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/sqc/lib/sqerr"
)

// pendingTotal counts queued commands across all engines of the process
var pendingTotal atomic.Int64

var (
	commandsSent  = metrics.NewCounter("sqc_commands_sent_total")
	floodRetries  = metrics.NewCounter("sqc_flood_retries_total")
	keepAlives    = metrics.NewCounter("sqc_keepalives_sent_total")
	unexpected    = metrics.NewCounter("sqc_unexpected_lines_total")
	commandTiming = metrics.NewHistogram("sqc_command_duration_seconds")
	_             = metrics.NewGauge("sqc_pending_commands", func() float64 {
		return float64(pendingTotal.Load())
	})
)

func observeProtocolError(id sqerr.ID) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`sqc_protocol_errors_total{id="%d"}`, id)).Inc()
}

// observeEvent counts notifications. Unknown names share one label so a
// server cannot grow the label set without bound.
func observeEvent(name string) {
	if !IsKnownNotification(name) {
		name = "other"
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`sqc_events_total{name=%q}`, name)).Inc()
}

func observeDuration(submitted time.Time) {
	commandTiming.UpdateDuration(submitted)
}
