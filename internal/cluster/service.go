package cluster

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sterope-gsa/sterope/internal/executor"
)

// ServiceName is the gRPC service a simulation worker exposes
const ServiceName = "sterope.worker.v1.Worker"

const runMethod = "/" + ServiceName + "/Run"

// WorkerServer runs simulation commands on behalf of a coordinator.
// Messages are structpb.Struct values:
//
//	request:  {task_id, label, argv: [...], dir}
//	response: {task_id, exit_code, stdout, stderr, duration_ms}
type WorkerServer interface {
	Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: runMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorkerServer).Run(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var workerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WorkerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sterope/worker/v1/worker.proto",
}

// RegisterWorkerServer registers the worker service on s
func RegisterWorkerServer(s grpc.ServiceRegistrar, srv WorkerServer) {
	s.RegisterService(&workerServiceDesc, srv)
}

func encodeCommand(taskID string, c executor.Command) (*structpb.Struct, error) {
	argv := make([]any, len(c.Argv))
	for i, a := range c.Argv {
		argv[i] = a
	}
	return structpb.NewStruct(map[string]any{
		"task_id": taskID,
		"label":   c.Label,
		"argv":    argv,
		"dir":     c.Dir,
	})
}

func decodeCommand(s *structpb.Struct) (string, executor.Command, error) {
	fields := s.GetFields()
	cmd := executor.Command{
		Label: fields["label"].GetStringValue(),
		Dir:   fields["dir"].GetStringValue(),
	}
	for _, v := range fields["argv"].GetListValue().GetValues() {
		str, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return "", cmd, fmt.Errorf("argv entries must be strings")
		}
		cmd.Argv = append(cmd.Argv, str.StringValue)
	}
	if len(cmd.Argv) == 0 {
		return "", cmd, fmt.Errorf("argv is required")
	}
	return fields["task_id"].GetStringValue(), cmd, nil
}

func encodeResult(taskID string, r executor.Result) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"task_id":     taskID,
		"exit_code":   r.ExitCode,
		"stdout":      r.Stdout,
		"stderr":      r.Stderr,
		"duration_ms": r.Duration.Milliseconds(),
	})
}

func decodeResult(label string, s *structpb.Struct) executor.Result {
	fields := s.GetFields()
	return executor.Result{
		Label:    label,
		ExitCode: int(fields["exit_code"].GetNumberValue()),
		Stdout:   fields["stdout"].GetStringValue(),
		Stderr:   fields["stderr"].GetStringValue(),
		Duration: time.Duration(fields["duration_ms"].GetNumberValue()) * time.Millisecond,
	}
}
