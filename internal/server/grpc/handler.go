package grpc

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/remotestorage/internal/transport"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type credentialsServer interface {
	Issue(ctx context.Context, in *transport.IssueRequest) (*transport.IssueResponse, error)
}

// credentialsServiceDesc is written by hand: requests and responses are
// plain structs marshalled by the JSON codec registered in transport.
var credentialsServiceDesc = grpc.ServiceDesc{
	ServiceName: transport.CredentialsService,
	HandlerType: (*credentialsServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Issue",
			Handler:    issueHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "remotestorage/credentials",
}

func issueHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(transport.IssueRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(credentialsServer).Issue(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: transport.IssueMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(credentialsServer).Issue(ctx, req.(*transport.IssueRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Issue forwards the request to the issuer. Application failures travel in
// the response status code.
func (s *GRPCServer) Issue(ctx context.Context, in *transport.IssueRequest) (*transport.IssueResponse, error) {
	if in.Kind == "" {
		return nil, status.Error(codes.InvalidArgument, "kind is required")
	}

	code, body := s.issuer.Issue(ctx, subjectFromContext(ctx), in.Kind, in.Query)

	b, err := json.Marshal(body)
	if err != nil {
		s.logger.Error(ctx, "encode response", "error", err)
		return nil, status.Error(codes.Internal, "cannot encode response")
	}

	return &transport.IssueResponse{StatusCode: code, Body: b}, nil
}
