package connectivity

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealthProbe asks a standard grpc.health.v1 endpoint whether the
// backend is serving.
type GRPCHealthProbe struct {
	conn    *grpc.ClientConn
	client  healthpb.HealthClient
	service string
}

// NewGRPCHealthProbe dials target lazily. Without options the connection
// is plaintext. service "" checks the server as a whole.
func NewGRPCHealthProbe(target, service string, opts ...grpc.DialOption) (*GRPCHealthProbe, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create health client for %s: %w", target, err)
	}
	return &GRPCHealthProbe{conn: conn, client: healthpb.NewHealthClient(conn), service: service}, nil
}

func (p *GRPCHealthProbe) Probe(ctx context.Context) error {
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("backend is %s", resp.GetStatus())
	}
	return nil
}

func (p *GRPCHealthProbe) Close() error {
	return p.conn.Close()
}
