// Package metrics exposes Prometheus instruments for API calls, refresh
// cycles, the contract registry and designation changes.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "tariffwatch_"

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "api_requests_total",
			Help: "Remote catalog API requests by operation and result",
		},
		[]string{"op", "result"},
	)
	refreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "refresh_total",
			Help: "Refresh cycles by kind and result",
		},
		[]string{"kind", "result"},
	)
	refreshLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "refresh_duration_seconds",
			Help:    "Refresh cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	registryContracts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: metricPrefix + "registry_contracts",
			Help: "Known contracts per configuration entry",
		},
		[]string{"entry"},
	)
	designationChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "designation_changes_total",
			Help: "Current contract designation changes per configuration entry",
		},
		[]string{"entry"},
	)
)

// Register adds all collectors to reg. Collectors already registered are
// left in place.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{apiRequests, refreshTotal, refreshLatency, registryContracts, designationChanges}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// ObserveAPIRequest counts one API call.
func ObserveAPIRequest(op string, err error) {
	apiRequests.WithLabelValues(op, result(err)).Inc()
}

// ObserveRefresh records one refresh cycle of kind started at start.
func ObserveRefresh(kind string, start time.Time, err error) {
	refreshTotal.WithLabelValues(kind, result(err)).Inc()
	refreshLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// SetRegistrySize sets the number of known contracts of an entry.
func SetRegistrySize(entryID string, n int) {
	registryContracts.WithLabelValues(entryID).Set(float64(n))
}

// IncDesignationChange counts a designation change for an entry.
func IncDesignationChange(entryID string) {
	designationChanges.WithLabelValues(entryID).Inc()
}
