// Package metrics exposes Prometheus collectors for the placement engine.
package metrics

import (
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	engineOnce     sync.Once
	engineRegistry *EngineMetrics
)

// EngineMetrics wraps collectors tracking placement cascades. A nil
// *EngineMetrics is valid and records nothing.
type EngineMetrics struct {
	fills        *prometheus.CounterVec
	payouts      *prometheus.CounterVec
	payoutAmount *prometheus.CounterVec
	freezes      *prometheus.CounterVec
	cycles       *prometheus.CounterVec
	upgrades     *prometheus.CounterVec
	cascadeHops  prometheus.Histogram
	failures     *prometheus.CounterVec
	intake       *prometheus.CounterVec
}

// Engine returns the process-wide collectors, registering them on first use.
func Engine() *EngineMetrics {
	engineOnce.Do(func() {
		engineRegistry = newEngineMetrics()
		prometheus.MustRegister(engineRegistry.collectors()...)
	})
	return engineRegistry
}

// NewUnregistered builds collectors without touching the default registry.
func NewUnregistered() *EngineMetrics {
	return newEngineMetrics()
}

func newEngineMetrics() *EngineMetrics {
	return &EngineMetrics{
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrix",
			Subsystem: "engine",
			Name:      "slot_fills_total",
			Help:      "Slots filled segmented by tier, slot index and fill origin.",
		}, []string{"tier", "slot", "origin"}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrix",
			Subsystem: "engine",
			Name:      "payouts_total",
			Help:      "Ledger credits written segmented by tier and payout kind.",
		}, []string{"tier", "kind"}),
		payoutAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrix",
			Subsystem: "engine",
			Name:      "payout_cents_total",
			Help:      "Net amount credited in minor units segmented by tier.",
		}, []string{"tier"}),
		freezes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrix",
			Subsystem: "engine",
			Name:      "freezes_total",
			Help:      "Slot-2 amounts held pending release.",
		}, []string{"tier"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrix",
			Subsystem: "engine",
			Name:      "cycles_total",
			Help:      "Tables reset after their fourth slot filled.",
		}, []string{"tier"}),
		upgrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrix",
			Subsystem: "engine",
			Name:      "auto_upgrades_total",
			Help:      "Auto-upgrade evaluations segmented by tier and outcome.",
		}, []string{"tier", "outcome"}),
		cascadeHops: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "matrix",
			Subsystem: "engine",
			Name:      "cascade_hops",
			Help:      "Placement hops executed per purchase cascade.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512},
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrix",
			Subsystem: "engine",
			Name:      "failures_total",
			Help:      "Aborted cascades segmented by reason.",
		}, []string{"reason"}),
		intake: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrix",
			Subsystem: "intake",
			Name:      "events_total",
			Help:      "Purchase events consumed segmented by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *EngineMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.fills, m.payouts, m.payoutAmount, m.freezes, m.cycles,
		m.upgrades, m.cascadeHops, m.failures, m.intake,
	}
}

func tierLabel(tier int) string {
	return strconv.Itoa(tier)
}

func (m *EngineMetrics) RecordFill(tier, slot int, origin string) {
	if m == nil {
		return
	}
	m.fills.WithLabelValues(tierLabel(tier), strconv.Itoa(slot), origin).Inc()
}

func (m *EngineMetrics) RecordPayout(tier int, kind string, cents int64) {
	if m == nil {
		return
	}
	m.payouts.WithLabelValues(tierLabel(tier), kind).Inc()
	m.payoutAmount.WithLabelValues(tierLabel(tier)).Add(float64(cents))
}

func (m *EngineMetrics) RecordFreeze(tier int) {
	if m == nil {
		return
	}
	m.freezes.WithLabelValues(tierLabel(tier)).Inc()
}

func (m *EngineMetrics) RecordCycle(tier int) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(tierLabel(tier)).Inc()
}

// RecordUpgrade counts an auto-upgrade evaluation; outcome is "activated" or "unaffordable".
func (m *EngineMetrics) RecordUpgrade(tier int, outcome string) {
	if m == nil {
		return
	}
	m.upgrades.WithLabelValues(tierLabel(tier), outcome).Inc()
}

func (m *EngineMetrics) ObserveCascade(hops int) {
	if m == nil {
		return
	}
	m.cascadeHops.Observe(float64(hops))
}

func (m *EngineMetrics) RecordFailure(reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.failures.WithLabelValues(reason).Inc()
}

func (m *EngineMetrics) RecordIntake(outcome string) {
	if m == nil {
		return
	}
	m.intake.WithLabelValues(outcome).Inc()
}
