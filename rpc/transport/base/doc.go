// Package base implements the shared machinery of the stream
// transports: frame encoding, the accept loop with a per-connection
// worker pool on the server side, and connection pooling with
// round-robin selection, retries and response demultiplexing on the
// client side. The tcp and unix packages plug their dial/listen
// specifics in through the connector interfaces.
package base
