package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	GatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of model gateway requests by task and outcome",
		},
		[]string{"task", "model", "outcome"},
	)
	GatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Model gateway request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"task", "model"},
	)
	GatewayCascadeAdvanceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cascade_advance_total",
			Help: "Times a request advanced to a fallback model",
		},
		[]string{"task"},
	)
	CredentialCooldownsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_credential_cooldowns_total",
			Help: "Times a credential entered cooldown after a rate limit",
		},
	)

	EvidenceRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evidence_rejections_total",
			Help: "Score rejections by violated evidence rule",
		},
		[]string{"rule"},
	)
	UnverifiableScoresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "unverifiable_scores_total",
			Help: "Turns stored with the unverifiable sentinel",
		},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "interview_sessions_active",
			Help: "Number of sessions not yet complete or failed",
		},
	)
	SessionsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_sessions_completed_total",
			Help: "Sessions reaching a terminal phase",
		},
		[]string{"phase"},
	)
	FollowUpsIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "interview_followups_issued_total",
			Help: "Follow-up questions issued",
		},
	)

	// Outcome distributions
	MatchScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gap_match_score",
			Help:    "Distribution of gap analysis match scores [0,100]",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)
	TurnMeanHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "turn_mean_score",
			Help:    "Distribution of per-turn mean scores [0,5]",
			Buckets: []float64{0, 0.5, 1, 1.5, 2, 2.5, 3, 3.5, 4, 4.5, 5},
		},
	)
)

// InitMetrics registers all collectors; call once per process.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(GatewayRequestsTotal)
	prometheus.MustRegister(GatewayRequestDuration)
	prometheus.MustRegister(GatewayCascadeAdvanceTotal)
	prometheus.MustRegister(CredentialCooldownsTotal)
	prometheus.MustRegister(EvidenceRejectionsTotal)
	prometheus.MustRegister(UnverifiableScoresTotal)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(SessionsCompletedTotal)
	prometheus.MustRegister(FollowUpsIssuedTotal)
	prometheus.MustRegister(MatchScoreHistogram)
	prometheus.MustRegister(TurnMeanHistogram)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}
