package api

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"

	"carrental/internal/config"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/reflection"
)

// GRPCServer serves the partner catalog API.
type GRPCServer struct {
	server   *grpc.Server
	listener net.Listener
	log      zerolog.Logger
}

func NewGRPCServer(cfg config.APIConfig, catalog CatalogServer, logger *zerolog.Logger) (*GRPCServer, error) {
	srv, err := newGRPCServer(cfg, catalog, logger)
	if err != nil {
		return nil, err
	}

	addr := fmt.Sprintf(":%d", cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}

	serverLogger := zerolog.Nop()
	if logger != nil {
		serverLogger = logger.With().Str("component", "grpc").Logger()
	}
	return &GRPCServer{server: srv, listener: lis, log: serverLogger}, nil
}

func newGRPCServer(cfg config.APIConfig, catalog CatalogServer, logger *zerolog.Logger) (*grpc.Server, error) {
	unary := ChainUnaryInterceptors(
		LoggingUnaryInterceptor(logger),
		NewPartnerAuth(cfg).Unary(),
	)

	opts := []grpc.ServerOption{grpc.UnaryInterceptor(unary)}
	if cfg.GRPC.TLS.Enabled {
		tlsCfg, err := buildTLSConfig(cfg.GRPC.TLS)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsCfg)))
	}

	srv := grpc.NewServer(opts...)
	RegisterCatalogServer(srv, catalog)
	if cfg.GRPC.Reflection {
		reflection.Register(srv)
	}
	return srv, nil
}

// buildTLSConfig loads the server key pair and, for mutual TLS, the pool of
// partner CAs.
func buildTLSConfig(cfg config.APITLSConfig) (*tls.Config, error) {
	switch {
	case cfg.CertFile == "", cfg.KeyFile == "":
		return nil, errors.New("tls: cert and key files are required")
	case cfg.RequireClientCert && cfg.ClientCAFile == "":
		return nil, errors.New("tls: client CA file is required for client certificates")
	}

	pair, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("tls: key pair: %w", err)
	}
	out := &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{pair}}

	if cfg.RequireClientCert {
		cas, err := loadCertPool(cfg.ClientCAFile)
		if err != nil {
			return nil, err
		}
		out.ClientCAs = cas
		out.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return out, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tls: client CA: %w", err)
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(pem); !ok {
		return nil, fmt.Errorf("tls: no certificates in %s", path)
	}
	return pool, nil
}

func (s *GRPCServer) Addr() string {
	return s.listener.Addr().String()
}

func (s *GRPCServer) Serve() error {
	s.log.Info().Str("addr", s.Addr()).Msg("partner gRPC listening")
	return s.server.Serve(s.listener)
}

// Shutdown drains in-flight calls and forces a stop when ctx expires.
func (s *GRPCServer) Shutdown(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		s.server.GracefulStop()
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.log.Warn().Err(ctx.Err()).Msg("partner gRPC drain interrupted, stopping")
		s.server.Stop()
		<-stopped
	}
}
