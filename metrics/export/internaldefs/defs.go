package internaldefs

import (
	"github.com/lernio/gatekeeper"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   gatekeeper.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   gatekeeper.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: gatekeeper.MetricSessionCreated, Name: "gatekeeper_session_created_total", Help: "Created sessions."},
	{ID: gatekeeper.MetricSessionLimitExceeded, Name: "gatekeeper_session_limit_exceeded_total", Help: "Session creations refused because the role limit was reached."},
	{ID: gatekeeper.MetricSessionInvalidated, Name: "gatekeeper_session_invalidated_total", Help: "Single-session invalidations."},
	{ID: gatekeeper.MetricSessionInvalidatedAll, Name: "gatekeeper_session_invalidated_all_total", Help: "Invalidate-all operations."},
	{ID: gatekeeper.MetricRateLimitAllowed, Name: "gatekeeper_rate_limit_allowed_total", Help: "Requests admitted by the rate limiter."},
	{ID: gatekeeper.MetricRateLimitDenied, Name: "gatekeeper_rate_limit_denied_total", Help: "Requests denied by the rate limiter."},
	{ID: gatekeeper.MetricRateLimitStoreError, Name: "gatekeeper_rate_limit_store_error_total", Help: "Rate limit checks that failed on the counter store."},
	{ID: gatekeeper.MetricTokenIssued, Name: "gatekeeper_token_issued_total", Help: "Issued bearer tokens."},
	{ID: gatekeeper.MetricTokenRejected, Name: "gatekeeper_token_rejected_total", Help: "Bearer tokens rejected during verification or authentication."},
	{ID: gatekeeper.MetricLoginSuccess, Name: "gatekeeper_login_success_total", Help: "Successful logins."},
	{ID: gatekeeper.MetricLoginFailure, Name: "gatekeeper_login_failure_total", Help: "Failed logins."},
	{ID: gatekeeper.MetricPasswordResetRequest, Name: "gatekeeper_password_reset_request_total", Help: "Password reset requests."},
	{ID: gatekeeper.MetricPasswordResetConfirmSuccess, Name: "gatekeeper_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: gatekeeper.MetricPasswordResetConfirmFailure, Name: "gatekeeper_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: gatekeeper.MetricAdminRequestSubmitted, Name: "gatekeeper_admin_request_submitted_total", Help: "Submitted admin access requests."},
	{ID: gatekeeper.MetricAdminRequestApproved, Name: "gatekeeper_admin_request_approved_total", Help: "Approved admin access requests."},
	{ID: gatekeeper.MetricAdminRequestRejected, Name: "gatekeeper_admin_request_rejected_total", Help: "Rejected admin access requests."},
	{ID: gatekeeper.MetricAdminRequestConflict, Name: "gatekeeper_admin_request_conflict_total", Help: "Admin access submissions refused as duplicates."},
	{ID: gatekeeper.MetricNotificationEnqueued, Name: "gatekeeper_notification_enqueued_total", Help: "Emails accepted by the notification queue."},
	{ID: gatekeeper.MetricNotificationDelivered, Name: "gatekeeper_notification_delivered_total", Help: "Emails delivered by the notification workers."},
	{ID: gatekeeper.MetricNotificationFailed, Name: "gatekeeper_notification_failed_total", Help: "Emails that failed after every retry."},
	{ID: gatekeeper.MetricNotificationDropped, Name: "gatekeeper_notification_dropped_total", Help: "Emails the queue refused."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: gatekeeper.MetricAuthenticateLatency, Name: "gatekeeper_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// Source is what both exporters read from. *gatekeeper.Engine satisfies it.
type Source interface {
	MetricsSnapshot() gatekeeper.MetricsSnapshot
	AuditDropped() uint64
	NotificationsPending() int
}

// Kind tells an exporter how to publish an engine-level value.
type Kind int

const (
	KindCounter Kind = iota
	KindGauge
)

// ExtraDef is a value read from the engine itself rather than from the
// metrics snapshot.
type ExtraDef struct {
	Name string
	Help string
	Kind Kind
	Read func(Source) uint64
}

const (
	AuditDroppedName = "gatekeeper_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

	NotificationQueueDepthName = "gatekeeper_notification_queue_depth"
	NotificationQueueDepthHelp = "Emails waiting for a notification worker."
)

// ExtraDefs lists the engine-level values in render order.
var ExtraDefs = []ExtraDef{
	{
		Name: AuditDroppedName,
		Help: AuditDroppedHelp,
		Kind: KindCounter,
		Read: func(s Source) uint64 { return s.AuditDropped() },
	},
	{
		Name: NotificationQueueDepthName,
		Help: NotificationQueueDepthHelp,
		Kind: KindGauge,
		Read: func(s Source) uint64 {
			if n := s.NotificationsPending(); n > 0 {
				return uint64(n)
			}
			return 0
		},
	},
}

// Idle reports whether src has nothing worth exporting, which is the case
// when metrics are disabled and no engine-level value has moved.
func Idle(src Source, snapshot gatekeeper.MetricsSnapshot) bool {
	if len(snapshot.Counters) > 0 || len(snapshot.Histograms) > 0 {
		return false
	}
	for _, def := range ExtraDefs {
		if def.Read(src) != 0 {
			return false
		}
	}
	return true
}

// HistogramBounds are the Prometheus le labels of the eight buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in a form usable inside
// instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array; missing
// buckets are zero.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
