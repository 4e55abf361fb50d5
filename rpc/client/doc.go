// Package client provides the client-side adapter for talking to a
// permafrost server over any of the RPC transports. A client is bound
// to one logical database; admin commands go through the same
// connection and block until the server's deferred reply arrives.
package client
