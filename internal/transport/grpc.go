package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/remotestorage/internal/common"
	"github.com/dmitrijs2005/remotestorage/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Credentials service wire contract, shared with the server side.
const (
	CredentialsService = "remotestorage.Credentials"
	IssueMethod        = "/" + CredentialsService + "/Issue"
	CodecName          = "json"
)

// IssueRequest asks the issuer for credentials of the given kind.
type IssueRequest struct {
	Kind  string            `json:"kind"`
	Path  string            `json:"path"`
	Query map[string]string `json:"query,omitempty"`
}

// IssueResponse mirrors an HTTP response: application failures travel in
// StatusCode, only transport and auth failures use gRPC status codes.
type IssueResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

func withAuthorization(ctx context.Context, value string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AuthorizationHeaderName)
	if value != "" {
		md.Set(common.AuthorizationHeaderName, value)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

// GRPCChannel sends requests as unary calls to the credentials service.
type GRPCChannel struct {
	conn    *grpc.ClientConn
	sink    Sink
	timeout time.Duration
	logger  logging.Logger
}

// DialGRPC prepares a channel to addr. The connection is established lazily.
func DialGRPC(addr string, timeout time.Duration, sink Sink, logger logging.Logger) (*GRPCChannel, error) {
	c := &GRPCChannel{sink: sink, timeout: timeout, logger: logger.With("module", "grpc_channel")}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
		grpc.WithUnaryInterceptor(c.loggingInterceptor),
	)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func (c *GRPCChannel) Close() error {
	return c.conn.Close()
}

func (c *GRPCChannel) loggingInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	started := time.Now()
	err := invoker(ctx, method, req, reply, cc, opts...)
	c.logger.Debug(ctx, "grpc call", "method", method, "code", status.Code(err).String(), "elapsed", time.Since(started))
	return err
}

// Send dispatches req; the Endpoint field is ignored since the connection
// already targets the issuer.
func (c *GRPCChannel) Send(ctx context.Context, req Request) error {
	callCtx := withAuthorization(context.WithoutCancel(ctx), req.Headers[common.AuthorizationHeaderName])

	go func() {
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, c.timeout)
			defer cancel()
		}

		in := &IssueRequest{Kind: kindName(req.Path), Path: req.Path, Query: req.Query}
		out := &IssueResponse{}
		resp := Response{Kind: req.Kind, CorrelationID: req.CorrelationID}

		if err := c.conn.Invoke(callCtx, IssueMethod, in, out); err != nil {
			resp.StatusCode, resp.Err = mapError(err)
		} else {
			resp.StatusCode = out.StatusCode
			resp.Body = out.Body
		}

		c.sink.Deliver(resp)
	}()

	return nil
}

// kindName derives the credential kind from the center path: its last segment.
func kindName(path string) string {
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// mapError turns a gRPC status into an HTTP-like status code, or into a
// transport error when no application answer was received.
func mapError(err error) (int, error) {
	st, ok := status.FromError(err)
	if !ok {
		return 0, err
	}

	switch st.Code() {
	case codes.Unauthenticated:
		return http.StatusUnauthorized, nil
	case codes.PermissionDenied:
		return http.StatusForbidden, nil
	case codes.NotFound:
		return http.StatusNotFound, nil
	case codes.InvalidArgument:
		return http.StatusBadRequest, nil
	case codes.ResourceExhausted:
		return http.StatusRequestEntityTooLarge, nil
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return 0, err
	default:
		return http.StatusInternalServerError, nil
	}
}
