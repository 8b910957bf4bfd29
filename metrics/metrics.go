// Package metrics exposes node counters and gauges to Prometheus. Each node
// owns its registry so several nodes can run in one process.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "peerledger"

type Metrics struct {
	registry *prometheus.Registry

	nodeUpUnixSeconds prometheus.Gauge
	chainHeight       prometheus.Gauge
	mempoolSize       prometheus.Gauge
	peerCount         prometheus.Gauge
	acceptedBlocks    *prometheus.CounterVec
	rejectedBlocks    *prometheus.CounterVec
	acceptedTxs       *prometheus.CounterVec
	rejectedTxs       *prometheus.CounterVec
	chainReplacements prometheus.Counter
	droppedMessages   *prometheus.CounterVec
	miningDuration    prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		nodeUpUnixSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "node_up_timestamp_unix_seconds",
			Help:      "Unix timestamp at which the node started",
		}),
		chainHeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_height",
			Help:      "Number of blocks in the local chain, genesis included",
		}),
		mempoolSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mempool_size",
			Help:      "Pending transactions waiting to be mined",
		}),
		peerCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peer_count",
			Help:      "Open peer connections",
		}),
		acceptedBlocks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_accepted_total",
			Help:      "Blocks appended to the local chain",
		}, []string{"source"}),
		rejectedBlocks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_rejected_total",
			Help:      "Blocks rejected by validation",
		}, []string{"reason"}),
		acceptedTxs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_accepted_total",
			Help:      "Transactions added to the pool",
		}, []string{"source"}),
		rejectedTxs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_rejected_total",
			Help:      "Transactions rejected by validation or the pool",
		}, []string{"reason"}),
		chainReplacements: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_replacements_total",
			Help:      "Times the local chain was replaced by a longer peer chain",
		}),
		droppedMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_messages_dropped_total",
			Help:      "Peer messages dropped before handling",
		}, []string{"reason"}),
		miningDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mining_duration_seconds",
			Help:      "Time spent searching for a nonce",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}

	m.nodeUpUnixSeconds.SetToCurrentTime()
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) SetChainHeight(height int) { m.chainHeight.Set(float64(height)) }

func (m *Metrics) SetMempoolSize(size int) { m.mempoolSize.Set(float64(size)) }

func (m *Metrics) SetPeerCount(peers int) { m.peerCount.Set(float64(peers)) }

func (m *Metrics) BlockAccepted(source string) { m.acceptedBlocks.WithLabelValues(source).Inc() }

func (m *Metrics) BlockRejected(reason string) { m.rejectedBlocks.WithLabelValues(reason).Inc() }

func (m *Metrics) TransactionAccepted(source string) { m.acceptedTxs.WithLabelValues(source).Inc() }

func (m *Metrics) TransactionRejected(reason string) { m.rejectedTxs.WithLabelValues(reason).Inc() }

func (m *Metrics) ChainReplaced() { m.chainReplacements.Inc() }

func (m *Metrics) MessageDropped(reason string) { m.droppedMessages.WithLabelValues(reason).Inc() }

func (m *Metrics) ObserveMining(d time.Duration) { m.miningDuration.Observe(d.Seconds()) }
