// Package metrics defines the gateway's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Conversion outcomes.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Gateway counts uploads and conversions. A nil *Gateway records nothing.
type Gateway struct {
	uploads     *prometheus.CounterVec
	conversions *prometheus.CounterVec
	uploadBytes prometheus.Histogram
}

// NewGateway creates the collectors and registers them with reg.
func NewGateway(reg prometheus.Registerer) (*Gateway, error) {
	g := &Gateway{
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mesh_uploads_total",
				Help: "Total number of stored mesh uploads by format.",
			},
			[]string{"format"},
		),
		conversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mesh_conversions_total",
				Help: "Total number of mesh conversions by source format, target format and result.",
			},
			[]string{"from", "to", "result"},
		),
		uploadBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mesh_upload_bytes",
				Help:    "Size of stored mesh uploads in bytes.",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8), // 1 KiB .. 16 MiB
			},
		),
	}

	for _, c := range []prometheus.Collector{g.uploads, g.conversions, g.uploadBytes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ObserveUpload records one stored upload.
func (g *Gateway) ObserveUpload(format string, size int64) {
	if g == nil {
		return
	}
	g.uploads.WithLabelValues(format).Inc()
	g.uploadBytes.Observe(float64(size))
}

// ObserveConversion records one conversion attempt.
func (g *Gateway) ObserveConversion(from, to, result string) {
	if g == nil {
		return
	}
	g.conversions.WithLabelValues(from, to, result).Inc()
}
