// Package grpc serves the credential issuer over gRPC: a single unary
// method, remotestorage.Credentials/Issue, carried with the JSON codec.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/remotestorage/internal/logging"
	"google.golang.org/grpc"
)

// Issuer answers credential requests with an HTTP-like status and a
// JSON-encodable body.
type Issuer interface {
	Issue(ctx context.Context, subject, kind string, query map[string]string) (int, any)
}

type GRPCServer struct {
	address   string
	issuer    Issuer
	logger    logging.Logger
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, issuer Issuer, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		issuer:    issuer,
		jwtSecret: []byte(secretKey),
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on listen until ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))

	srv.RegisterService(&credentialsServiceDesc, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
