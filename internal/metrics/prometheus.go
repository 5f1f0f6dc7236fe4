package metrics

import "github.com/prometheus/client_golang/prometheus"

var FlowOperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tagflow_flow_operations_total",
		Help: "Approval flow operations by operation and outcome",
	},
	[]string{"operation", "outcome"},
)

var FlowStepDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "tagflow_flow_step_duration_seconds",
		Help:    "Duration of each approval flow step",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"step"},
)

var TagOperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tagflow_tag_operations_total",
		Help: "Cloud tag operations by operation, backend and outcome",
	},
	[]string{"operation", "backend", "outcome"},
)

var ResourceTagMissesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "tagflow_resource_tag_misses_total",
		Help: "Delete-tag lookups that found no active resource tag record",
	},
)

var NotificationsAttemptedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tagflow_notifications_attempted_total",
		Help: "Notification deliveries by channel and status",
	},
	[]string{"channel", "status"},
)

var RecordAPIDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "tagflow_record_api_duration_seconds",
		Help:    "Duration of record API calls",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "status"},
)

var HTTPRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tagflow_http_requests_total",
		Help: "Requests served by the record API",
	},
	[]string{"method", "status"},
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		FlowOperationsTotal,
		FlowStepDuration,
		TagOperationsTotal,
		ResourceTagMissesTotal,
		NotificationsAttemptedTotal,
		RecordAPIDuration,
		HTTPRequestsTotal,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}
