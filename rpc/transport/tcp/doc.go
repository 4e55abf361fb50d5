// Package tcp provides the TCP implementation of the RPC transport,
// with socket tuning (Nagle, buffers, keep-alive, linger) driven by the
// transport configuration.
package tcp
