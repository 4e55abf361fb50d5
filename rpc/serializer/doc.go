// Package serializer provides the wire encodings for RPC messages.
//
// Three implementations are available:
//   - JSON: human-readable, interoperable, the default
//   - GOB: Go-native binary encoding
//   - Binary: a hand-rolled flag-based format optimized for speed and size
//
// All implementations are stateless and safe for concurrent use. The
// server and client must agree on the serializer in use; the transport
// carries opaque bytes and does not care.
package serializer
