package license

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	licenseValidDesc = prometheus.NewDesc(
		"lockbox_license_valid",
		"Returns 1 if the stored license currently verifies.",
		nil, nil)
	licenseTrialDesc = prometheus.NewDesc(
		"lockbox_license_trial",
		"Returns 1 if the stored license is a trial license.",
		nil, nil)
	licenseExpiresDesc = prometheus.NewDesc(
		"lockbox_license_expires_timestamp_seconds",
		"Unix time at which the stored license expires, grace period included.",
		nil, nil)
	licenseSeatsDesc = prometheus.NewDesc(
		"lockbox_license_seats",
		"Seat limit asserted by the stored license.",
		nil, nil)
)

// VerifyFunc reports whether a stored license currently verifies.
type VerifyFunc func(*OrganizationLicense, time.Time) bool

// MetricsCollector exposes the stored license's state to Prometheus.
type MetricsCollector struct {
	store  *Store
	verify VerifyFunc
}

var _ prometheus.Collector = (*MetricsCollector)(nil)

// NewMetricsCollector builds a collector over the store; verify decides the
// lockbox_license_valid gauge.
func NewMetricsCollector(store *Store, verify VerifyFunc) *MetricsCollector {
	return &MetricsCollector{store: store, verify: verify}
}

func (*MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- licenseValidDesc
	ch <- licenseTrialDesc
	ch <- licenseExpiresDesc
	ch <- licenseSeatsDesc
}

func (mc *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	l, err := mc.store.Load(context.Background())
	if err != nil {
		ch <- prometheus.MustNewConstMetric(licenseValidDesc, prometheus.GaugeValue, 0)
		return
	}

	var valid float64
	if mc.verify != nil && mc.verify(l, time.Now()) {
		valid = 1
	}
	ch <- prometheus.MustNewConstMetric(licenseValidDesc, prometheus.GaugeValue, valid)

	var trial float64
	if l.Trial {
		trial = 1
	}
	ch <- prometheus.MustNewConstMetric(licenseTrialDesc, prometheus.GaugeValue, trial)
	ch <- prometheus.MustNewConstMetric(licenseExpiresDesc, prometheus.GaugeValue, float64(l.Expires.Unix()))

	if l.Seats != nil {
		ch <- prometheus.MustNewConstMetric(licenseSeatsDesc, prometheus.GaugeValue, float64(*l.Seats))
	}
}
