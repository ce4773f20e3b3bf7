package grpc

import (
	"context"
	"log/slog"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported by the health service alongside the
// overall "" status.
const ServiceName = "barbershop.Booking"

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthMonitor keeps the gRPC health status in line with database
// reachability.
type HealthMonitor struct {
	server   *health.Server
	probe    Pinger
	interval time.Duration
	log      *slog.Logger
}

func NewHealthMonitor(probe Pinger, interval time.Duration, log *slog.Logger) *HealthMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &HealthMonitor{
		server:   health.NewServer(),
		probe:    probe,
		interval: interval,
		log:      log.With(slog.String("component", "grpc_health")),
	}
}

func (m *HealthMonitor) Register(s *gogrpc.Server) {
	healthpb.RegisterHealthServer(s, m.server)
}

// Check probes once and publishes the result.
func (m *HealthMonitor) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := m.probe.Ping(ctx); err != nil {
		m.log.Warn("database probe failed", slog.Any("err", err))
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	m.server.SetServingStatus("", st)
	m.server.SetServingStatus(ServiceName, st)
	return st
}

// Run probes until ctx is done, then marks every service as not serving.
func (m *HealthMonitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.server.Shutdown()
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

func NewServer(requestTimeout time.Duration, monitor *HealthMonitor) *gogrpc.Server {
	s := gogrpc.NewServer(
		gogrpc.UnaryInterceptor(RequestTimeoutInterceptor(requestTimeout)),
	)
	monitor.Register(s)
	return s
}

// RequestTimeoutInterceptor applies timeout to calls that arrive without a
// deadline.
func RequestTimeoutInterceptor(timeout time.Duration) gogrpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *gogrpc.UnaryServerInfo, handler gogrpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}
