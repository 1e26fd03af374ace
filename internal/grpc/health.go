package grpc

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"chat-engine/internal/observability"
)

// ServiceName is the health entry reported alongside the overall status.
const ServiceName = "chat.Engine"

// Pinger is satisfied by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewServer builds the internal gRPC server with tracing, metrics and the
// standard health service registered.
func NewServer() (*grpclib.Server, *health.Server) {
	srv := grpclib.NewServer(
		grpclib.StatsHandler(otelgrpc.NewServerHandler()),
		grpclib.UnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// MonitorDatabase flips the health status whenever the database stops or
// resumes answering pings. It returns when ctx is done.
func MonitorDatabase(ctx context.Context, hs *health.Server, db Pinger, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	serving := true
	for {
		check(ctx, hs, db, &serving, log)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func check(ctx context.Context, hs *health.Server, db Pinger, serving *bool, log *zap.Logger) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err := db.PingContext(pingCtx)
	if ctx.Err() != nil {
		return
	}
	up := err == nil
	if up == *serving {
		return
	}
	*serving = up

	status := healthpb.HealthCheckResponse_SERVING
	if !up {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		log.Warn("database ping failed, reporting not serving", zap.Error(err))
	} else {
		log.Info("database reachable again, reporting serving")
	}
	hs.SetServingStatus("", status)
	hs.SetServingStatus(ServiceName, status)
}
