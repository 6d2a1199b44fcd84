package grpcserver

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"chronozoom/internal/cache"
	"chronozoom/internal/store/memstore"
	"chronozoom/internal/timeline"
)

type pinger struct{ err error }

func (p *pinger) Ping(context.Context) error { return p.err }

func dial(t *testing.T, register func(*grpc.Server)) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	g := grpc.NewServer()
	register(g)
	go func() { _ = g.Serve(lis) }()
	t.Cleanup(g.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	return cc
}

func TestTimelineService(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	c := cache.New(time.Minute)
	mut := timeline.NewMutationEngine(st, c, zerolog.Nop())
	require.NoError(t, mut.EnsureSandbox(ctx))
	q := timeline.NewQueryEngine(st, c, 0, nil, zerolog.Nop())

	client := NewClient(dial(t, func(g *grpc.Server) { Register(g, NewServer(q)) }))
	sandbox := CollectionName{SuperCollection: timeline.SandboxTitle, Collection: timeline.SandboxTitle}

	resp, err := client.GetTimelines(ctx, &GetTimelinesRequest{CollectionName: sandbox})
	require.NoError(t, err)
	require.NotNil(t, resp.Timeline)
	assert.Equal(t, timeline.RootTimelineTitle, resp.Timeline.Title)

	found, err := client.Search(ctx, &SearchRequest{CollectionName: sandbox, Term: "cosmos"})
	require.NoError(t, err)
	assert.Len(t, found.Results, 1)

	tours, err := client.GetTours(ctx, &GetToursRequest{CollectionName: sandbox})
	require.NoError(t, err)
	assert.Empty(t, tours.Tours)

	_, err = client.GetTimelines(ctx, &GetTimelinesRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestToStatus(t *testing.T) {
	assert.Equal(t, codes.Internal, status.Code(toStatus(errors.New("disk"))))
}

func TestHealth_FollowsStore(t *testing.T) {
	ctx := context.Background()
	p := &pinger{}
	h := NewHealth(p, zerolog.Nop())
	client := healthpb.NewHealthClient(dial(t, func(g *grpc.Server) { healthpb.RegisterHealthServer(g, h.Server) }))

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, h.Probe(ctx))
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	p.err = errors.New("store down")
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, h.Probe(ctx))
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}
