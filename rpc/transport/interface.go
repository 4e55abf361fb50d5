package transport

import (
	"github.com/cbergmann/permafrost/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// RequestHandler processes one decoded request and produces the
// response bytes. The dbid selects the logical database the request
// targets; the payload is an opaque serialized Message. A handler may
// block (admin commands defer their reply until a background operation
// completes), so transports must not assume it returns promptly.
type RequestHandler func(dbid uint64, req []byte) (resp []byte)

// IRPCServerTransport accepts connections and feeds every incoming
// request through a RequestHandler. There is no separate registration
// step: the handler is bound at serve time, so a transport can never be
// listening without one.
type IRPCServerTransport interface {
	// Serve starts the transport and blocks, dispatching each request
	// to handler. It returns only on a fatal listener error.
	Serve(config common.ServerConfig, handler RequestHandler) error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response
	Send(dbid uint64, req []byte) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}
