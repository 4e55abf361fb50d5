// Package server wires the spillover store to a transport: it decodes
// incoming messages, routes key commands to the logical database named
// in the frame, and bridges the NDS admin commands' deferred replies
// onto the request/response transports.
//
// The server also owns the cron loop that reaps completed background
// operations and triggers autonomous flushes, and the optional metrics
// side server.
package server
