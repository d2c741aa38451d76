package mockapi

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"brdconsole.org/internal/store"
)

const bufSize = 1024 * 1024

type downStore struct {
	store.Store
	err error
}

func (d *downStore) Ping(context.Context) error { return d.err }

func startBufGRPC(t *testing.T, h *HealthService) healthpb.HealthClient {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	h.Register(server)

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.Dial()
	}
	conn, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}
	t.Cleanup(func() {
		server.GracefulStop()
		_ = conn.Close()
		_ = listener.Close()
	})
	return healthpb.NewHealthClient(conn)
}

func TestHealthServiceFollowsStore(t *testing.T) {
	st := &downStore{Store: store.NewMemory()}
	h := NewHealthService(ReadyCheck{Store: st}, time.Minute)
	client := startBufGRPC(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		return resp.GetStatus()
	}

	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("before refresh: %v", got)
	}
	if err := h.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("healthy store: %v", got)
	}

	st.err = errors.New("connection refused")
	if err := h.Refresh(ctx); err == nil {
		t.Fatal("expected refresh to report the store error")
	}
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("failing store: %v", got)
	}
}

func TestHealthServiceUnknownService(t *testing.T) {
	h := NewHealthService(ReadyCheck{}, time.Minute)
	client := startBufGRPC(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "ledger"}); err == nil {
		t.Fatal("expected NotFound for an unregistered service")
	}
}
