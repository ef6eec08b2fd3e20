package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgvault_backups_total",
			Help: "Backup runs by final status",
		},
		[]string{"status"},
	)

	BackupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pgvault_backup_duration_seconds",
			Help:    "Wall clock duration of backup runs in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	RestoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgvault_restores_total",
			Help: "Restore jobs by final status",
		},
		[]string{"status"},
	)

	RestoresBlockedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pgvault_restores_blocked_total",
			Help: "Restore requests refused by the environment policy",
		},
	)

	RetentionDeletionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pgvault_retention_deletions_total",
			Help: "Backup artifacts removed by retention cleanup",
		},
	)

	ScheduledRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pgvault_scheduled_runs_total",
			Help: "Backup runs started by the scheduler",
		},
	)
)
