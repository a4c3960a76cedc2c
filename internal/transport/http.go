package transport

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/remotestorage/internal/logging"
	"github.com/dmitrijs2005/remotestorage/internal/netx"
)

// HTTPChannel sends requests as REST GETs against Endpoint+Path.
type HTTPChannel struct {
	client *http.Client
	sink   Sink
	logger logging.Logger
}

func NewHTTPChannel(client *http.Client, sink Sink, logger logging.Logger) *HTTPChannel {
	return &HTTPChannel{client: client, sink: sink, logger: logger.With("module", "http_channel")}
}

// Send validates and dispatches req; the response goes to the sink.
// The exchange outlives ctx cancellation only up to the client timeout.
func (c *HTTPChannel) Send(ctx context.Context, req Request) error {
	u, err := netx.JoinURL(req.Endpoint, req.Path, req.Query)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	go func() {
		resp := Response{Kind: req.Kind, CorrelationID: req.CorrelationID}

		res, err := netx.Do(c.client, httpReq, netx.MaxResponseSize)
		if err != nil {
			c.logger.Warn(ctx, "request failed", "kind", req.Kind, "path", req.Path, "error", err)
			resp.Err = err
		} else {
			resp.StatusCode = res.StatusCode
			resp.Body = res.Body
		}

		c.sink.Deliver(resp)
	}()

	return nil
}
