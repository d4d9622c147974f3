// Package metrics exposes searchsync's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Aman-CERP/searchsync/pkg/signals"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "searchsync_build_info",
		Help: "Build information of searchsync",
	}, []string{"version", "commit", "date"})

	Flushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "searchsync_flushes_total", Help: "Total buffer flushes sent to the index backend.",
	}, []string{"trigger"})
	FlushedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "searchsync_flushed_records_total", Help: "Total records sent to the index backend by flushes.",
	})
	FlushErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "searchsync_flush_errors_total", Help: "Total flushes the index backend rejected.",
	}, []string{"trigger"})

	Deletes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "searchsync_deletes_total", Help: "Total synchronous index deletes.",
	}, []string{"result"})

	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "searchsync_mutations_total", Help: "Total mutations dispatched to the event bus.",
	}, []string{"op"})
)

const (
	resultOK    = "ok"
	resultError = "error"
)

// Observer records processor activity in the package collectors.
type Observer struct{}

// Flushed implements signals.Observer.
func (Observer) Flushed(_ signals.RecordType, trigger signals.Trigger, n int, err error) {
	Flushes.WithLabelValues(string(trigger)).Inc()
	if err != nil {
		FlushErrors.WithLabelValues(string(trigger)).Inc()
		return
	}
	FlushedRecords.Add(float64(n))
}

// Deleted implements signals.Observer.
func (Observer) Deleted(_ signals.RecordType, err error) {
	if err != nil {
		Deletes.WithLabelValues(resultError).Inc()
		return
	}
	Deletes.WithLabelValues(resultOK).Inc()
}

var _ signals.Observer = Observer{}
