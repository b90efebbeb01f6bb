// Package metrics holds the prometheus collectors of the decoder.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fd = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lrwphy_frames_decoded_total",
		Help: "The number of decoded PHYPayloads (per message type).",
	}, []string{"m_type"})
	de = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lrwphy_decode_errors_total",
		Help: "The number of decode errors (per error kind).",
	}, []string{"kind"})
	mc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lrwphy_mac_commands_total",
		Help: "The number of decoded MAC commands (per command name).",
	}, []string{"name"})
	dd = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lrwphy_decode_duration_seconds",
		Help:    "The time spent decoding one frame.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
	})
	nm = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lrwphy_nats_messages_total",
		Help: "The number of gateway messages received over NATS (per result).",
	}, []string{"result"})
)

// FrameDecoded returns the counter for the given message type
func FrameDecoded(mType string) prometheus.Counter {
	return fd.With(prometheus.Labels{"m_type": mType})
}

// DecodeError returns the counter for the given error kind
func DecodeError(kind string) prometheus.Counter {
	return de.With(prometheus.Labels{"kind": kind})
}

// MACCommand returns the counter for the given command name
func MACCommand(name string) prometheus.Counter {
	return mc.With(prometheus.Labels{"name": name})
}

// DecodeDuration returns the decode latency histogram
func DecodeDuration() prometheus.Observer {
	return dd
}

// NATSMessage returns the counter for a NATS message outcome
func NATSMessage(result string) prometheus.Counter {
	return nm.With(prometheus.Labels{"result": result})
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
