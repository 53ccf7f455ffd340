package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	ledgerTransactions *prometheus.CounterVec
	apiCallsLogged     *prometheus.CounterVec
	resolutionsLogged  *prometheus.CounterVec
	snapshotRebuilds   *prometheus.CounterVec
	auditRecords       *prometheus.CounterVec
	retentionPurged    *prometheus.CounterVec
	retentionRefused   prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		ledgerTransactions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citeledger",
			Name:      "ledger_transactions_total",
			Help:      "Credit ledger transactions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		apiCallsLogged: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citeledger",
			Name:      "api_calls_logged_total",
			Help:      "Metered API call events recorded, by provider.",
		}, []string{"provider"}),
		resolutionsLogged: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citeledger",
			Name:      "resolutions_logged_total",
			Help:      "Citation resolution events recorded, by outcome.",
		}, []string{"outcome"}),
		snapshotRebuilds: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citeledger",
			Name:      "snapshot_rebuilds_total",
			Help:      "Daily snapshot rebuilds by result.",
		}, []string{"result"}),
		auditRecords: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citeledger",
			Name:      "audit_records_total",
			Help:      "Audit records written, by outcome.",
		}, []string{"outcome"}),
		retentionPurged: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citeledger",
			Name:      "retention_records_purged_total",
			Help:      "Records removed by the retention sweep, by category.",
		}, []string{"category"}),
		retentionRefused: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "citeledger",
			Name:      "retention_purges_refused_total",
			Help:      "Purge attempts refused because the retention window had not elapsed.",
		}),
	}
}

func (m *Metrics) RecordLedgerTransaction(kind, outcome string) {
	if m == nil {
		return
	}
	m.ledgerTransactions.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RecordAPICall(provider string) {
	if m == nil {
		return
	}
	m.apiCallsLogged.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordResolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutionsLogged.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordSnapshotRebuild(result string) {
	if m == nil {
		return
	}
	m.snapshotRebuilds.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordAuditRecord(outcome string) {
	if m == nil {
		return
	}
	m.auditRecords.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordRetentionPurge(category string, count int64) {
	if m == nil {
		return
	}
	m.retentionPurged.WithLabelValues(category).Add(float64(count))
}

func (m *Metrics) RecordRetentionRefusal() {
	if m == nil {
		return
	}
	m.retentionRefused.Inc()
}

var Module = fx.Module("observability.metrics",
	fx.Provide(New),
)
