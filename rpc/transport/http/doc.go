// Package http provides the HTTP implementation of the RPC transport.
// Each message is one POST to /{dbid}. Slower than the stream
// transports but trivially debuggable and proxy-friendly.
package http
