package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "warden_event_duration_sec",
	Help: "Total duration of event processing, including classification and dispatch",
}, []string{"type"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_event_processed",
	Help: "Number of events processed",
}, []string{"type"})

var eventErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_event_errors",
	Help: "Number of events which failed processing",
}, []string{"type"})

var actionEmittedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_new_actions",
	Help: "Number of actions handed to the dispatcher, by kind",
}, []string{"kind"})

var quotaDowngradeCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_quota_downgrades",
	Help: "Number of sanctions downgraded to review flags by daily quotas, by kind",
}, []string{"kind"})

var dispatchErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_dispatch_errors",
	Help: "Number of dispatcher failures",
})
