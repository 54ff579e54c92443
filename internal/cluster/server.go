package cluster

import (
	"context"
	"log/slog"
	"net"
	"path/filepath"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sterope-gsa/sterope/internal/executor"
	"github.com/sterope-gsa/sterope/pkg/config"
	"github.com/sterope-gsa/sterope/pkg/logger"
)

// Server is a simulation worker. It runs at most slots commands at once;
// further requests wait for a free slot.
type Server struct {
	workdir string
	slots   chan struct{}
	health  *health.Server
	logger  *slog.Logger
}

// NewServer creates a worker resolving relative directories against workdir
func NewServer(workdir string, slots int) *Server {
	if slots < 1 {
		slots = 1
	}
	return &Server{
		workdir: workdir,
		slots:   make(chan struct{}, slots),
		health:  health.NewServer(),
		logger:  logger.Component("worker"),
	}
}

// Register adds the worker and health services to a gRPC server
func (s *Server) Register(g *grpc.Server) {
	RegisterWorkerServer(g, s)
	healthpb.RegisterHealthServer(g, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}

// Run executes one command
func (s *Server) Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	taskID, cmd, err := decodeCommand(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if !filepath.IsAbs(cmd.Dir) {
		cmd.Dir = filepath.Join(s.workdir, cmd.Dir)
	}
	// the simulator path may be relative to this worker's home
	cmd.Argv[0] = config.ExpandHome(cmd.Argv[0])

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
	defer func() { <-s.slots }()

	s.logger.Debug("Task started", "task_id", taskID, "label", cmd.Label, "dir", cmd.Dir)
	res, err := executor.RunCommand(ctx, cmd)
	if err != nil {
		s.logger.Warn("Task could not run", "task_id", taskID, "label", cmd.Label, "error", err)
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	s.logger.Info("Task finished",
		"task_id", taskID,
		"label", cmd.Label,
		"exit_code", res.ExitCode,
		"duration", res.Duration)

	out, err := encodeResult(taskID, res)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Serve runs a gRPC server on lis until ctx is done
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	g := grpc.NewServer()
	s.Register(g)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Worker listening", "addr", lis.Addr().String(), "slots", cap(s.slots), "workdir", s.workdir)
		errCh <- g.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("Worker shutdown requested")
		s.health.Shutdown()
		g.GracefulStop()
		<-errCh
		return nil
	}
}
