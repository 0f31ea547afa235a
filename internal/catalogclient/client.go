// Package catalogclient is a Go client for the partner catalog RPC service.
package catalogclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carrental/internal/models"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "carrental.catalog.v1.CatalogService"

const (
	checkAvailabilityMethod = "/" + serviceName + "/CheckAvailability"
	listCarsMethod          = "/" + serviceName + "/ListCars"
	getCarMethod            = "/" + serviceName + "/GetCar"
)

// Client calls the catalog service with partner credentials attached.
type Client struct {
	conn     grpc.ClientConnInterface
	apiKey   string
	apiExtra string

	redis    *redis.Client
	cacheTTL time.Duration
}

func New(conn grpc.ClientConnInterface, apiKey, apiExtra string) *Client {
	return &Client{conn: conn, apiKey: apiKey, apiExtra: apiExtra}
}

// UseRedisCache caches car reads. Availability is never cached.
func (c *Client) UseRedisCache(client *redis.Client, ttl time.Duration) {
	c.redis = client
	c.cacheTTL = ttl
}

func (c *Client) CheckAvailability(ctx context.Context, location, pickupDate, returnDate string) ([]*models.Car, error) {
	var out struct {
		AvailableCars []*models.Car `json:"availableCars"`
	}
	req := map[string]any{
		"pickupLocation": location,
		"pickupDate":     pickupDate,
		"returnDate":     returnDate,
	}
	if err := c.invoke(ctx, checkAvailabilityMethod, req, &out); err != nil {
		return nil, err
	}
	return out.AvailableCars, nil
}

func (c *Client) ListCars(ctx context.Context, location, category string) ([]*models.Car, error) {
	cacheKey := fmt.Sprintf("catalog:cars:%s:%s", location, category)
	var out struct {
		Cars []*models.Car `json:"cars"`
	}
	if c.readCache(ctx, cacheKey, &out.Cars) {
		return out.Cars, nil
	}

	req := map[string]any{"location": location, "category": category}
	if err := c.invoke(ctx, listCarsMethod, req, &out); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, out.Cars)
	return out.Cars, nil
}

func (c *Client) GetCar(ctx context.Context, id int64) (*models.Car, error) {
	if id <= 0 {
		return nil, errors.New("car id must be positive")
	}
	cacheKey := fmt.Sprintf("catalog:car:%d", id)
	var out struct {
		Car *models.Car `json:"car"`
	}
	if c.readCache(ctx, cacheKey, &out.Car) {
		return out.Car, nil
	}

	if err := c.invoke(ctx, getCarMethod, map[string]any{"id": id}, &out); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, out.Car)
	return out.Car, nil
}

func (c *Client) invoke(ctx context.Context, method string, req map[string]any, out any) error {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	if c.apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-api-key", c.apiKey)
	}
	if c.apiExtra != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-api-extra", c.apiExtra)
	}

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, resp); err != nil {
		return err
	}

	raw, err := resp.MarshalJSON()
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}
