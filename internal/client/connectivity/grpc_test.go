package connectivity

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startHealthServer(t *testing.T) (*health.Server, *bufconn.Listener) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		srv.Stop()
		_ = lis.Close()
	})
	return hs, lis
}

func TestGRPCHealthProbe(t *testing.T) {
	hs, lis := startHealthServer(t)

	probe, err := NewGRPCHealthProbe("passthrough:///bufnet", "",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = probe.Close() })

	require.NoError(t, probe.Probe(context.Background()))

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	require.Error(t, probe.Probe(context.Background()))

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	require.NoError(t, probe.Probe(context.Background()))
}

func TestGRPCHealthProbe_UnknownService(t *testing.T) {
	_, lis := startHealthServer(t)

	probe, err := NewGRPCHealthProbe("passthrough:///bufnet", "techtrack.Sync",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = probe.Close() })

	require.Error(t, probe.Probe(context.Background()))
}
