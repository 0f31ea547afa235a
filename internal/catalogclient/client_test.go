package catalogclient

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"carrental/internal/api"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeCatalog struct {
	listCalls atomic.Int32
	lastKey   atomic.Value
}

func (f *fakeCatalog) CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok && len(md.Get("x-api-key")) > 0 {
		f.lastKey.Store(md.Get("x-api-key")[0])
	}
	if req.GetFields()["pickupLocation"].GetStringValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "pickup location is required")
	}
	return structpb.NewStruct(map[string]any{
		"success": true,
		"availableCars": []any{
			map[string]any{"id": 1, "brand": "Fiat", "model": "Panda", "location": "Belgrade", "price_per_day": 25},
		},
	})
}

func (f *fakeCatalog) ListCars(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f.listCalls.Add(1)
	return structpb.NewStruct(map[string]any{
		"success": true,
		"cars": []any{
			map[string]any{"id": 1, "brand": "Fiat", "location": req.GetFields()["location"].GetStringValue()},
			map[string]any{"id": 2, "brand": "Skoda", "location": req.GetFields()["location"].GetStringValue()},
		},
	})
}

func (f *fakeCatalog) GetCar(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req.GetFields()["id"].GetNumberValue() != 7 {
		return nil, status.Error(codes.NotFound, "not found")
	}
	return structpb.NewStruct(map[string]any{
		"success": true,
		"car":     map[string]any{"id": 7, "brand": "Toyota", "model": "RAV4", "is_available": true},
	})
}

func newClient(t *testing.T) (*Client, *fakeCatalog) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	fake := &fakeCatalog{}
	api.RegisterCatalogServer(srv, fake)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return New(conn, "partner-key", "extra"), fake
}

func TestClient_CheckAvailability(t *testing.T) {
	client, fake := newClient(t)
	ctx := context.Background()

	cars, err := client.CheckAvailability(ctx, "Belgrade", "2026-03-01", "2026-03-04")
	require.NoError(t, err)
	require.Len(t, cars, 1)
	assert.Equal(t, int64(1), cars[0].ID)
	assert.Equal(t, "Panda", cars[0].Model)
	assert.InDelta(t, 25.0, cars[0].PricePerDay, 0.001)
	assert.Equal(t, "partner-key", fake.lastKey.Load())

	_, err = client.CheckAvailability(ctx, "", "2026-03-01", "2026-03-04")
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestClient_GetCar(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()

	car, err := client.GetCar(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Toyota", car.Brand)
	assert.True(t, car.IsAvailable)

	_, err = client.GetCar(ctx, 8)
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.GetCar(ctx, 0)
	assert.Error(t, err)
}

func TestClient_ListCarsCache(t *testing.T) {
	client, fake := newClient(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	client.UseRedisCache(rdb, time.Minute)

	cars, err := client.ListCars(ctx, "Belgrade", "")
	require.NoError(t, err)
	require.Len(t, cars, 2)

	cars, err = client.ListCars(ctx, "Belgrade", "")
	require.NoError(t, err)
	require.Len(t, cars, 2)
	assert.Equal(t, int32(1), fake.listCalls.Load())

	mr.FastForward(2 * time.Minute)
	_, err = client.ListCars(ctx, "Belgrade", "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.listCalls.Load())

	_, err = client.ListCars(ctx, "Novi Sad", "")
	require.NoError(t, err)
	assert.Equal(t, int32(3), fake.listCalls.Load())
}
