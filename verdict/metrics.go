package verdict

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var classifierAPIDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "warden_classifier_api_duration_sec",
	Help: "Duration of remote classifier API calls",
})

var classifierAPICount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_classifier_api_count",
	Help: "Number of remote classifier API calls, by HTTP status code",
}, []string{"status"})

var verdictCacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_verdict_cache_hits",
	Help: "Number of verdict lookups served from cache",
})

var verdictCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_verdict_cache_misses",
	Help: "Number of verdict lookups that fell through to the source",
})
