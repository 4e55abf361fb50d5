// Package rpc and its subpackages implement the network surface of
// permafrost: message protocol and configuration (common), wire
// encodings (serializer), pluggable transports (transport/...), the
// server binding the spillover store to a transport (server), and the
// client-side adapter (client).
package rpc
