package monitor

import "github.com/prometheus/client_golang/prometheus"

// Collector exports the monitor's latest snapshot as Prometheus gauges,
// additive instrumentation over the snapshot the monitor already
// maintains internally.
type Collector struct {
	mon *Monitor

	mean, std, max, min, p95, p99 *prometheus.Desc
	mtie1s, mtie10s, mtie30s, mtie60s *prometheus.Desc
	tdev01s, tdev1s, tdev10s *prometheus.Desc
	sampleCount *prometheus.Desc
}

// NewCollector wraps mon so it can be registered with a Prometheus
// registry.
func NewCollector(mon *Monitor) *Collector {
	ns := "swclock"
	return &Collector{
		mon:         mon,
		mean:        prometheus.NewDesc(ns+"_te_mean_ns", "Mean time error, nanoseconds", nil, nil),
		std:         prometheus.NewDesc(ns+"_te_std_ns", "Time error standard deviation, nanoseconds", nil, nil),
		max:         prometheus.NewDesc(ns+"_te_max_ns", "Maximum observed time error, nanoseconds", nil, nil),
		min:         prometheus.NewDesc(ns+"_te_min_ns", "Minimum observed time error, nanoseconds", nil, nil),
		p95:         prometheus.NewDesc(ns+"_te_p95_ns", "95th percentile time error, nanoseconds", nil, nil),
		p99:         prometheus.NewDesc(ns+"_te_p99_ns", "99th percentile time error, nanoseconds", nil, nil),
		mtie1s:      prometheus.NewDesc(ns+"_mtie_1s_ns", "MTIE at 1s observation interval, nanoseconds", nil, nil),
		mtie10s:     prometheus.NewDesc(ns+"_mtie_10s_ns", "MTIE at 10s observation interval, nanoseconds", nil, nil),
		mtie30s:     prometheus.NewDesc(ns+"_mtie_30s_ns", "MTIE at 30s observation interval, nanoseconds", nil, nil),
		mtie60s:     prometheus.NewDesc(ns+"_mtie_60s_ns", "MTIE at 60s observation interval, nanoseconds", nil, nil),
		tdev01s:     prometheus.NewDesc(ns+"_tdev_0_1s_ns", "TDEV at 0.1s observation interval, nanoseconds", nil, nil),
		tdev1s:      prometheus.NewDesc(ns+"_tdev_1s_ns", "TDEV at 1s observation interval, nanoseconds", nil, nil),
		tdev10s:     prometheus.NewDesc(ns+"_tdev_10s_ns", "TDEV at 10s observation interval, nanoseconds", nil, nil),
		sampleCount: prometheus.NewDesc(ns+"_monitor_sample_count", "Samples backing the latest snapshot", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.mean
	ch <- c.std
	ch <- c.max
	ch <- c.min
	ch <- c.p95
	ch <- c.p99
	ch <- c.mtie1s
	ch <- c.mtie10s
	ch <- c.mtie30s
	ch <- c.mtie60s
	ch <- c.tdev01s
	ch <- c.tdev1s
	ch <- c.tdev10s
	ch <- c.sampleCount
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap, ok := c.mon.Metrics()
	if !ok {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.mean, prometheus.GaugeValue, snap.MeanTeNs)
	ch <- prometheus.MustNewConstMetric(c.std, prometheus.GaugeValue, snap.StdTeNs)
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, snap.MaxTeNs)
	ch <- prometheus.MustNewConstMetric(c.min, prometheus.GaugeValue, snap.MinTeNs)
	ch <- prometheus.MustNewConstMetric(c.p95, prometheus.GaugeValue, snap.P95TeNs)
	ch <- prometheus.MustNewConstMetric(c.p99, prometheus.GaugeValue, snap.P99TeNs)
	ch <- prometheus.MustNewConstMetric(c.mtie1s, prometheus.GaugeValue, snap.Mtie1sNs)
	ch <- prometheus.MustNewConstMetric(c.mtie10s, prometheus.GaugeValue, snap.Mtie10sNs)
	ch <- prometheus.MustNewConstMetric(c.mtie30s, prometheus.GaugeValue, snap.Mtie30sNs)
	ch <- prometheus.MustNewConstMetric(c.mtie60s, prometheus.GaugeValue, snap.Mtie60sNs)
	ch <- prometheus.MustNewConstMetric(c.tdev01s, prometheus.GaugeValue, snap.Tdev01sNs)
	ch <- prometheus.MustNewConstMetric(c.tdev1s, prometheus.GaugeValue, snap.Tdev1sNs)
	ch <- prometheus.MustNewConstMetric(c.tdev10s, prometheus.GaugeValue, snap.Tdev10sNs)
	ch <- prometheus.MustNewConstMetric(c.sampleCount, prometheus.GaugeValue, float64(snap.SampleCount))
}
