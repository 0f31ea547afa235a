package api

import (
	"context"
	"crypto/subtle"
	"strings"

	"carrental/internal/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	permReadAvailability = "read:availability"
	permReadCars         = "read:cars"
	clientKeyUnknown     = "unknown"
)

// methodPermissions lists the permission a partner key needs per RPC.
var methodPermissions = map[string]string{
	methodCheckAvailability: permReadAvailability,
	methodListCars:          permReadCars,
	methodGetCar:            permReadCars,
}

// PartnerAuth checks partner API keys and applies the per-client rate limit on
// the gRPC surface.
type PartnerAuth struct {
	enabled     bool
	keyHeader   string
	extraHeader string
	keys        map[string]config.APIClientKey
	limiter     *rateLimiter
}

func NewPartnerAuth(cfg config.APIConfig) *PartnerAuth {
	keys := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		keys[k.Key] = k
	}
	return &PartnerAuth{
		enabled:     cfg.Auth.Enabled,
		keyHeader:   headerName(cfg.Auth.HeaderAPIKey, "x-api-key"),
		extraHeader: headerName(cfg.Auth.HeaderExtra, "x-api-extra"),
		keys:        keys,
		limiter:     newRateLimiter(cfg.RateLimit),
	}
}

func headerName(configured, fallback string) string {
	if h := strings.ToLower(strings.TrimSpace(configured)); h != "" {
		return h
	}
	return fallback
}

func (a *PartnerAuth) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)

		if a.enabled {
			client, err := a.authenticate(md)
			if err != nil {
				return nil, err
			}
			if !client.allows(methodPermissions[info.FullMethod]) {
				return nil, status.Error(codes.PermissionDenied, "permission denied")
			}
		}

		if !a.limiter.allow(a.clientKey(ctx, md)) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

type partnerKey config.APIClientKey

// allows treats an empty permission list as allow-all.
func (k partnerKey) allows(required string) bool {
	if required == "" || len(k.Permissions) == 0 {
		return true
	}
	for _, p := range k.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

func (a *PartnerAuth) authenticate(md metadata.MD) (partnerKey, error) {
	apiKey := firstValue(md, a.keyHeader)
	extra := firstValue(md, a.extraHeader)
	if apiKey == "" || extra == "" {
		return partnerKey{}, status.Error(codes.Unauthenticated, "missing api key headers")
	}

	client, ok := a.keys[apiKey]
	if !ok {
		return partnerKey{}, status.Error(codes.Unauthenticated, "invalid api key")
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return partnerKey{}, status.Error(codes.Unauthenticated, "invalid extra header")
	}
	return partnerKey(client), nil
}

func (a *PartnerAuth) clientKey(ctx context.Context, md metadata.MD) string {
	if apiKey := firstValue(md, a.keyHeader); apiKey != "" {
		return apiKey
	}
	return peerAddr(ctx)
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func firstValue(md metadata.MD, key string) string {
	vals := md.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
