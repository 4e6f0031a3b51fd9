package authcore

import "sync/atomic"

// MetricID indexes one in-process counter.
type MetricID int

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginChallengeIssued
	MetricTokenIssued
	MetricTokenRefreshed
	MetricRefreshRejected
	MetricTokenRevoked
	MetricPersistenceDegraded
	MetricSecondFactorSuccess
	MetricSecondFactorFailure
	MetricBackupCodeUsed
	MetricDeviceBypass
	MetricDeviceRejected

	metricCount
)

var metricNames = [metricCount]string{
	MetricLoginSuccess:         "login_success",
	MetricLoginFailure:         "login_failure",
	MetricLoginChallengeIssued: "login_challenge_issued",
	MetricTokenIssued:          "token_issued",
	MetricTokenRefreshed:       "token_refreshed",
	MetricRefreshRejected:      "refresh_rejected",
	MetricTokenRevoked:         "token_revoked",
	MetricPersistenceDegraded:  "persistence_degraded",
	MetricSecondFactorSuccess:  "second_factor_success",
	MetricSecondFactorFailure:  "second_factor_failure",
	MetricBackupCodeUsed:       "backup_code_used",
	MetricDeviceBypass:         "device_bypass",
	MetricDeviceRejected:       "device_rejected",
}

// String returns the metric's snapshot key.
func (id MetricID) String() string {
	if id < 0 || id >= metricCount {
		return "unknown"
	}
	return metricNames[id]
}

// metrics is a fixed set of lock-free counters. A nil *metrics is a
// valid no-op receiver, used when counters are disabled.
type metrics struct {
	counters [metricCount]atomic.Uint64
}

func newMetrics(cfg MetricsConfig) *metrics {
	if !cfg.Enabled {
		return nil
	}
	return &metrics{}
}

func (m *metrics) inc(id MetricID) {
	if m == nil || id < 0 || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot returns the current counter values keyed by metric name.
func (m *metrics) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, metricCount)
	if m == nil {
		return out
	}
	for id := MetricID(0); id < metricCount; id++ {
		out[metricNames[id]] = m.counters[id].Load()
	}
	return out
}
