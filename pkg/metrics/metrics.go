// Package metrics exposes transport and document-state metrics for the
// docchat CLI as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/otherjamesbrown/docchat-cli/client"
	"github.com/otherjamesbrown/docchat-cli/pkg/documents"
)

// StatsSource yields a point-in-time snapshot of transport counters.
type StatsSource interface {
	Stats() client.StreamStats
}

// TransportCollector collects streaming transport statistics as Prometheus
// metrics. It implements prometheus.Collector and reads the snapshot from
// the stream client on each scrape, ensuring up-to-date values.
type TransportCollector struct {
	source StatsSource

	connects        *prometheus.Desc
	disconnects     *prometheus.Desc
	tokensReceived  *prometheus.Desc
	turnsCompleted  *prometheus.Desc
	remoteErrors    *prometheus.Desc
	malformedFrames *prometheus.Desc
}

// NewTransportCollector creates a collector over the given stream client.
// documentID is attached as a label so per-conversation clients stay
// distinguishable.
func NewTransportCollector(source StatsSource, namespace, documentID string) *TransportCollector {
	constLabels := prometheus.Labels{"document_id": documentID}

	return &TransportCollector{
		source: source,
		connects: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "stream", "connects_total"),
			"Number of WebSocket connections dialed",
			nil,
			constLabels,
		),
		disconnects: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "stream", "disconnects_total"),
			"Number of WebSocket connections torn down",
			nil,
			constLabels,
		),
		tokensReceived: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "stream", "tokens_received_total"),
			"Number of answer tokens received",
			nil,
			constLabels,
		),
		turnsCompleted: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "stream", "turns_completed_total"),
			"Number of streaming turns that reached a terminal frame",
			nil,
			constLabels,
		),
		remoteErrors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "stream", "remote_errors_total"),
			"Number of server error frames received",
			nil,
			constLabels,
		),
		malformedFrames: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "stream", "malformed_frames_total"),
			"Number of inbound frames dropped as unparseable",
			nil,
			constLabels,
		),
	}
}

// Describe sends all metric descriptors to the channel.
func (c *TransportCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connects
	ch <- c.disconnects
	ch <- c.tokensReceived
	ch <- c.turnsCompleted
	ch <- c.remoteErrors
	ch <- c.malformedFrames
}

// Collect gathers the current transport snapshot and sends it as metrics.
func (c *TransportCollector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}
	stats := c.source.Stats()

	ch <- prometheus.MustNewConstMetric(c.connects, prometheus.CounterValue, float64(stats.Connects))
	ch <- prometheus.MustNewConstMetric(c.disconnects, prometheus.CounterValue, float64(stats.Disconnects))
	ch <- prometheus.MustNewConstMetric(c.tokensReceived, prometheus.CounterValue, float64(stats.TokensReceived))
	ch <- prometheus.MustNewConstMetric(c.turnsCompleted, prometheus.CounterValue, float64(stats.TurnsCompleted))
	ch <- prometheus.MustNewConstMetric(c.remoteErrors, prometheus.CounterValue, float64(stats.RemoteErrors))
	ch <- prometheus.MustNewConstMetric(c.malformedFrames, prometheus.CounterValue, float64(stats.MalformedFrames))
}

// DocumentsCollector reports collection state: how many documents are known
// and how many still await processing.
type DocumentsCollector struct {
	collection *documents.Collection

	known       *prometheus.Desc
	unprocessed *prometheus.Desc
}

// NewDocumentsCollector creates a collector over the document collection.
func NewDocumentsCollector(collection *documents.Collection, namespace string) *DocumentsCollector {
	return &DocumentsCollector{
		collection: collection,
		known: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "documents", "known"),
			"Number of documents in the collection",
			nil, nil,
		),
		unprocessed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "documents", "unprocessed"),
			"Number of documents awaiting processing",
			nil, nil,
		),
	}
}

// Describe sends all metric descriptors to the channel.
func (c *DocumentsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.known
	ch <- c.unprocessed
}

// Collect reads the collection and sends its gauges.
func (c *DocumentsCollector) Collect(ch chan<- prometheus.Metric) {
	if c.collection == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.known, prometheus.GaugeValue, float64(len(c.collection.All())))
	ch <- prometheus.MustNewConstMetric(c.unprocessed, prometheus.GaugeValue, float64(len(c.collection.Unprocessed())))
}
