package settings

// DB config keys and defaults.
const (
	// SweepIntervalSecondsKey controls the reconciliation sweep interval in seconds.
	SweepIntervalSecondsKey = "RECONCILE_SWEEP_INTERVAL_SECONDS"
	// SweepMaxConcurrencyKey controls the max concurrent provider queries per sweep.
	SweepMaxConcurrencyKey = "RECONCILE_SWEEP_MAX_CONCURRENCY"
	// RetentionDaysKey controls how long webhook event journal rows are kept.
	RetentionDaysKey = "WEBHOOK_EVENT_RETENTION_DAYS"

	// DefaultSweepIntervalSeconds is the fallback sweep interval (seconds).
	DefaultSweepIntervalSeconds = 300
	// DefaultSweepMaxConcurrency is the fallback sweep concurrency.
	DefaultSweepMaxConcurrency = 5
	// DefaultRetentionDays is the fallback journal retention period.
	DefaultRetentionDays = 90
)
