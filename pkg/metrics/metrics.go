package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BranchesStarted counts XA branches opened, by backend dialect
var BranchesStarted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sqltx_xa_branches_started_total",
		Help: "Total number of XA transaction branches started",
	},
	[]string{"dialect"},
)

// BranchesCommitted counts committed branches; mode is "two_phase" or "one_phase"
var BranchesCommitted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sqltx_xa_branches_committed_total",
		Help: "Total number of XA transaction branches committed",
	},
	[]string{"dialect", "mode"},
)

// BranchesRolledBack counts rolled back branches
var BranchesRolledBack = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sqltx_xa_branches_rolled_back_total",
		Help: "Total number of XA transaction branches rolled back",
	},
	[]string{"dialect"},
)

// CommitLatency records latency distribution of terminal XA operations
var CommitLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "sqltx_xa_commit_latency_seconds",
		Help:    "Latency in seconds of XA commit and rollback statements",
		Buckets: prometheus.DefBuckets,
	},
)

// Recovery sweep metrics
var (
	RecoveryScans = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqltx_xa_recovery_scans_total",
			Help: "Total number of XA RECOVER scans issued",
		},
	)

	StaleBranchesSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqltx_xa_stale_branches_swept_total",
			Help: "Total number of prepared branches rolled back by the stale sweep",
		},
	)
)

// RetryAttempts counts attempts made by the retrying transaction manager,
// by final outcome ("committed", "exhausted", "fatal")
var RetryAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sqltx_retry_attempts_total",
		Help: "Total transaction attempts made by the retrying manager",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(BranchesStarted, BranchesCommitted, BranchesRolledBack, CommitLatency)
	prometheus.MustRegister(RecoveryScans, StaleBranchesSwept)
	prometheus.MustRegister(RetryAttempts)
}
