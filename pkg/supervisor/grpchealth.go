package supervisor

import (
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealthServer registers the standard grpc_health_v1.Health service
// on a grpc.Server, so the supervisor is probeable the same way other
// services in the corpus expose gRPC health without any hand-generated
// protobuf stubs of its own.
type GRPCHealthServer struct {
	server     *grpc.Server
	healthSrv  *health.Server
	listenAddr string
	logger     zerolog.Logger
}

// NewGRPCHealthServer builds a gRPC server with only the health service
// registered. Callers change the reported status with
// SetServingStatus.
func NewGRPCHealthServer(listenAddr string, logger zerolog.Logger) *GRPCHealthServer {
	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	return &GRPCHealthServer{
		server:     grpcServer,
		healthSrv:  healthSrv,
		listenAddr: listenAddr,
		logger:     logger.With().Str("component", "GRPCHealthServer").Logger(),
	}
}

// Start listens and serves in the background.
func (s *GRPCHealthServer) Start() error {
	listener, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return err
	}
	s.healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	go func() {
		if err := s.server.Serve(listener); err != nil {
			s.logger.Error().Err(err).Msg("gRPC health server stopped serving.")
		}
	}()
	return nil
}

// SetServingStatus lets the supervisor flip overall health (e.g. to
// NOT_SERVING while every connection is down) without tearing the
// listener down.
func (s *GRPCHealthServer) SetServingStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.healthSrv.SetServingStatus("", status)
}

// Stop gracefully stops the gRPC server.
func (s *GRPCHealthServer) Stop() {
	s.server.GracefulStop()
}
