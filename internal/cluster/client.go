package cluster

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sterope-gsa/sterope/internal/executor"
	"github.com/sterope-gsa/sterope/pkg/utils"
)

// Client talks to one simulation worker
type Client struct {
	addr string
	conn *grpc.ClientConn
}

// Dial creates a client for the worker at addr. Connections are plaintext
// unless opts override the transport credentials.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("worker %s: %w", addr, err)
	}
	return &Client{addr: addr, conn: conn}, nil
}

// Addr returns the worker address
func (c *Client) Addr() string {
	return c.addr
}

// Check asks the worker's health service whether it is serving
func (c *Client) Check(ctx context.Context) error {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fmt.Errorf("worker %s: health check: %w", c.addr, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("worker %s: not serving (%s)", c.addr, resp.GetStatus())
	}
	return nil
}

// Run executes a command on the worker
func (c *Client) Run(ctx context.Context, cmd executor.Command) (executor.Result, error) {
	req, err := encodeCommand(utils.GenerateTaskID(), cmd)
	if err != nil {
		return executor.Result{}, fmt.Errorf("%s: %w", cmd.Label, err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, runMethod, req, out); err != nil {
		return executor.Result{}, fmt.Errorf("%s on worker %s: %w", cmd.Label, c.addr, err)
	}
	return decodeResult(cmd.Label, out), nil
}

// Close releases the connection
func (c *Client) Close() error {
	return c.conn.Close()
}
