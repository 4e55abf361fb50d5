// Package transport defines the interfaces for the RPC transport layer.
//
// A server transport accepts connections, reads framed requests and
// hands them to a registered handler; a client transport sends framed
// requests and matches responses back to callers. Both sides carry
// opaque byte payloads, so any serializer can ride on any transport.
//
// Implementations:
//   - tcp: framed protocol over TCP sockets
//   - unix: framed protocol over Unix domain sockets
//   - http: one POST request per message
//
// Stream frames are length-prefixed with a compact varint header
// carrying the logical database index and a request ID, which lets the
// stream transports pipeline multiple in-flight requests over one
// connection.
package transport
