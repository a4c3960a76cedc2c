// Package transport is the shared, multiplexed channel the remote storage
// subsystem uses for credential negotiation.
//
// A caller registers a response Handler per request Kind on a Mux, stores its
// per-call state with Mux.Track (getting back a correlation id), and sends a
// Request through a Channel. Send returns as soon as the request is
// dispatched; the response is delivered later to the Mux, which looks the
// state up by correlation id and hands both to the Kind's handler.
//
// Two channels are provided: HTTPChannel issues REST GETs, GRPCChannel makes
// a unary gRPC call with a JSON codec.
package transport
