package observability

import (
	"context"
	"net"

	"github.com/signalsfoundry/decay-simulator/internal/logging"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// FleetServiceName is the service name reported by the health server while
// the simulation loop is running.
const FleetServiceName = "decaysim.Fleet"

// HealthServer is a gRPC server exposing grpc.health.v1.Health for the
// simulator process.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	log    logging.Logger
}

// NewHealthServer builds the gRPC server with otel stats handling and the
// request-id, tracing and metrics interceptors chained in that order.
// collector may be nil.
func NewHealthServer(collector *DecayCollector, log logging.Logger) *HealthServer {
	if log == nil {
		log = logging.Noop()
	}

	interceptors := []grpc.UnaryServerInterceptor{
		requestScope(log),
		rpcSpan(),
	}
	if collector != nil {
		interceptors = append(interceptors, collector.UnaryServerInterceptor())
	}

	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(FleetServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &HealthServer{server: srv, health: hs, log: log}
}

// SetServing flips the fleet service status. The overall ("") status stays
// SERVING for as long as the process is up.
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(FleetServiceName, status)
	h.log.Debug(context.Background(), "health status changed",
		logging.String("service", FleetServiceName),
		logging.String("status", status.String()),
	)
}

// Serve blocks accepting connections on lis.
func (h *HealthServer) Serve(lis net.Listener) error {
	h.log.Info(context.Background(), "starting gRPC health server", logging.String("addr", lis.Addr().String()))
	return h.server.Serve(lis)
}

// GracefulStop marks every service NOT_SERVING and drains in-flight calls.
func (h *HealthServer) GracefulStop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
