package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const namespace = "community_chat"

// Collectors register on the default registry, which /metrics serves.
var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "http", Name: "requests_total",
		Help: "REST requests by method, route and status.",
	}, []string{"method", "route", "status"})
	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
		Help:    "REST request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	grpcHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "grpc", Name: "handled_total",
		Help: "Unary gRPC calls by service, method and code.",
	}, []string{"grpc_service", "grpc_method", "grpc_code"})

	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "ws", Name: "active_connections",
		Help: "Open websocket connections.",
	})
	wsEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "ws", Name: "events_total",
		Help: "Websocket events by outcome.",
	}, []string{"event", "outcome"})
	wsEventLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "ws", Name: "event_duration_seconds",
		Help:    "Time spent handling one inbound websocket event.",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"event"})
	wsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "ws", Name: "dropped_clients_total",
		Help: "Connections closed because their send buffer was full.",
	})

	presenceOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "presence", Name: "online_users",
		Help: "Distinct users holding at least one connection.",
	})
	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "messages", Name: "sent_total",
		Help: "Messages persisted and broadcast, by room kind.",
	}, []string{"room_kind"})
	readReceipts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "messages", Name: "read_receipts_total",
		Help: "Read receipts appended.",
	})
	amqpPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "amqp", Name: "publish_errors_total",
		Help: "Events the broker refused or never received.",
	})
)

// HTTPMetricsMiddleware records count and latency per matched route.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		service, method := splitFullMethod(info.FullMethod)
		grpcHandled.WithLabelValues(service, method, status.Code(err).String()).Inc()
		return resp, err
	}
}

// splitFullMethod turns "/pkg.Service/Method" into its service and method.
func splitFullMethod(fullMethod string) (string, string) {
	service, method, ok := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	if !ok || service == "" || method == "" {
		return "unknown", "unknown"
	}
	return service, method
}

func IncWSActive() { wsConnections.Inc() }

func DecWSActive() { wsConnections.Dec() }

// IncWSEvent counts an inbound event; outcome is "ok" or an error code.
func IncWSEvent(event, outcome string) {
	wsEvents.WithLabelValues(event, outcome).Inc()
}

// ObserveWSEvent records how long handling event took since start.
func ObserveWSEvent(event string, start time.Time) {
	wsEventLatency.WithLabelValues(event).Observe(time.Since(start).Seconds())
}

func IncWSDroppedClient() { wsDropped.Inc() }

func SetOnlineUsers(n int) { presenceOnline.Set(float64(n)) }

func IncMessageSent(roomKind string) {
	messagesSent.WithLabelValues(roomKind).Inc()
}

func IncReadReceipt() { readReceipts.Inc() }

func IncAMQPPublishError() { amqpPublishErrors.Inc() }
