// Package unix provides the Unix domain socket implementation of the
// RPC transport. Preferred when client and server share a host.
package unix
