package grpc

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	ggrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"community-chat/internal/observability"
)

// Probe reports whether a dependency is usable.
type Probe func(ctx context.Context) error

// HealthServer publishes the standard gRPC health service, one entry per
// probed dependency plus the overall "" entry.
type HealthServer struct {
	health   *health.Server
	probes   map[string]Probe
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	failed map[string]string
}

// NewHealthServer builds a HealthServer. Every service starts NOT_SERVING
// until the first Check.
func NewHealthServer(probes map[string]Probe, interval time.Duration, log *slog.Logger) *HealthServer {
	h := &HealthServer{
		health:   health.NewServer(),
		probes:   probes,
		interval: interval,
		timeout:  interval / 2,
		log:      log,
		failed:   make(map[string]string),
	}
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	for name := range probes {
		h.health.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return h
}

// NewServer builds a gRPC server with tracing and metrics interceptors.
func NewServer() *ggrpc.Server {
	return ggrpc.NewServer(
		ggrpc.StatsHandler(otelgrpc.NewServerHandler()),
		ggrpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
}

// Register mounts the health service on s.
func (h *HealthServer) Register(s *ggrpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
}

// Check runs every probe once and updates the served statuses. It returns
// the failing dependencies with their errors.
func (h *HealthServer) Check(ctx context.Context) map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()

	failed := make(map[string]string)
	for name, probe := range h.probes {
		pctx, cancel := context.WithTimeout(ctx, h.timeout)
		err := probe(pctx)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			failed[name] = err.Error()
			if _, seen := h.failed[name]; !seen {
				h.log.Warn("dependency unhealthy", "dependency", name, "error", err)
			}
		} else if _, was := h.failed[name]; was {
			h.log.Info("dependency recovered", "dependency", name)
		}
		h.health.SetServingStatus(name, status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if len(failed) > 0 {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", overall)
	h.failed = failed
	return failed
}

// Failing returns the names of the dependencies that failed the last check.
func (h *HealthServer) Failing() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.failed))
	for name := range h.failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run checks the probes every interval until ctx is done.
func (h *HealthServer) Run(ctx context.Context) {
	h.Check(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING so clients drain away.
func (h *HealthServer) Shutdown() {
	h.health.Shutdown()
}
