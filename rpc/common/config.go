package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Shared transport configuration structs
// --------------------------------------------------------------------------

// SocketConf holds socket buffer settings shared by the stream transports.
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP-specific tuning knobs.
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerTransportConfig configures the server side of a transport.
type ServerTransportConfig struct {
	SocketConf
	TCPConf

	// MaxWorkersPerConn limits concurrent request workers per connection.
	MaxWorkersPerConn int
}

// ServerConfig holds all configuration parameters for the permafrost server.
type ServerConfig struct {
	// Endpoint is the address the transport listens on
	// (e.g. 0.0.0.0:8080 or /tmp/permafrost.sock).
	Endpoint string

	// Request handling timeout
	TimeoutSecond int64

	// Spillover store parameters
	NumDBs           int
	DataDir          string
	SnapshotDir      string
	FlushIntervalSec int

	// MetricsEndpoint is the optional HTTP listen address for the
	// Prometheus metrics and pprof side server ("" = disabled).
	MetricsEndpoint string

	// Logging configuration
	LogLevel string

	// Transport tuning
	Transport ServerTransportConfig
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	addSection("Spillover Store")
	addField("Logical Databases", strconv.Itoa(c.NumDBs))
	addField("Data Directory", c.DataDir)
	addField("Snapshot Directory", c.SnapshotDir)
	if c.FlushIntervalSec > 0 {
		addField("Flush Interval", fmt.Sprintf("%d sec", c.FlushIntervalSec))
	} else {
		addField("Flush Interval", "disabled")
	}

	addSection("Observability")
	if c.MetricsEndpoint != "" {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	} else {
		addField("Metrics Endpoint", "disabled")
	}
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig configures the client side of a transport.
type ClientTransportConfig struct {
	SocketConf
	TCPConf

	Endpoints              []string
	ConnectionsPerEndpoint int
	RetryCount             int
}

type ClientConfig struct {
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(max(1, c.Transport.ConnectionsPerEndpoint)))

	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
