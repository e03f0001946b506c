package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 推荐
	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexttrack_recommendations_total",
			Help: "Total number of recommendation requests",
		},
		[]string{"signal", "outcome"}, // outcome: "success", "empty", "error"
	)

	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexttrack_fallbacks_total",
			Help: "Total number of recommendations served by a fallback path",
		},
		[]string{"signal"},
	)

	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexttrack_recommendation_duration_seconds",
			Help:    "Duration of recommendation scoring in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"signal"},
	)

	// 曲库
	CatalogRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexttrack_catalog_requests_total",
			Help: "Total number of catalog API requests",
		},
		[]string{"status"}, // status: HTTP状态码、"error"、"rejected"
	)

	CatalogRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nexttrack_catalog_request_duration_seconds",
			Help:    "Duration of catalog API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// 熔断器
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nexttrack_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexttrack_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexttrack_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexttrack_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// WebSocket
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexttrack_websocket_connections_active",
			Help: "Number of open queue WebSocket connections",
		},
	)

	WebSocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexttrack_websocket_messages_total",
			Help: "Total number of queue WebSocket messages",
		},
		[]string{"direction", "type"},
	)

	CatalogCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexttrack_catalog_cache_total",
			Help: "Candidate cache lookups by result",
		},
		[]string{"result"},
	)

	// 播放列表
	PlaylistOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexttrack_playlist_operations_total",
			Help: "Total number of playlist store operations",
		},
		[]string{"operation", "result"},
	)
)

// RecordRecommendation 记录一次推荐结果
func RecordRecommendation(signal, outcome string, fallback bool, duration time.Duration) {
	RecommendationsTotal.WithLabelValues(signal, outcome).Inc()
	RecommendationDuration.WithLabelValues(signal).Observe(duration.Seconds())
	if fallback {
		FallbacksTotal.WithLabelValues(signal).Inc()
	}
}

// RecordCatalogRequest 记录曲库请求，statusCode为0表示传输失败
func RecordCatalogRequest(statusCode int, duration time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	CatalogRequestsTotal.WithLabelValues(status).Inc()
	CatalogRequestDuration.Observe(duration.Seconds())
}

// RecordCatalogRejected 记录被熔断或限流拒绝的请求
func RecordCatalogRejected() {
	CatalogRequestsTotal.WithLabelValues("rejected").Inc()
}

// RecordCatalogCache 记录候选缓存命中(hit)、未命中(miss)或驱逐(eviction)
func RecordCatalogCache(result string) {
	CatalogCacheTotal.WithLabelValues(result).Inc()
}

// RecordCircuitBreakerTransition 记录熔断器状态变化
func RecordCircuitBreakerTransition(name, from, to string, state float64) {
	CircuitBreakerState.WithLabelValues(name).Set(state)
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}

// RecordHTTPRequest 记录HTTP请求
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackWebSocketConnection 增减活跃连接数
func TrackWebSocketConnection(open bool) {
	if open {
		WebSocketConnectionsActive.Inc()
	} else {
		WebSocketConnectionsActive.Dec()
	}
}

// RecordWebSocketMessage 记录收发的消息，direction为"in"或"out"
func RecordWebSocketMessage(direction, messageType string) {
	WebSocketMessagesTotal.WithLabelValues(direction, messageType).Inc()
}

// RecordPlaylistOperation 记录播放列表存储操作
func RecordPlaylistOperation(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	PlaylistOperationsTotal.WithLabelValues(operation, result).Inc()
}
