package serve

import (
	"fmt"
	"strings"

	cmdUtil "github.com/cbergmann/permafrost/cmd/util"
	"github.com/cbergmann/permafrost/rpc/common"
	"github.com/cbergmann/permafrost/rpc/serializer"
	"github.com/cbergmann/permafrost/rpc/server"
	"github.com/cbergmann/permafrost/rpc/transport"
	"github.com/cbergmann/permafrost/rpc/transport/http"
	"github.com/cbergmann/permafrost/rpc/transport/tcp"
	"github.com/cbergmann/permafrost/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the permafrost server",
		Long:    `Start the permafrost server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is PERMAFROST_<flag> (e.g. PERMAFROST_TIMEOUT=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/permafrost.sock, ...)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Request timeout in seconds"))

	key = "databases"
	ServeCmd.PersistentFlags().Int(key, 16, cmdUtil.WrapString("Number of logical databases"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("Directory for the freezer environment"))

	key = "snapshot-dir"
	ServeCmd.PersistentFlags().String(key, "./snapshot", cmdUtil.WrapString("Directory the SNAPSHOT command copies the freezer environment into (removed and recreated on every snapshot)"))

	key = "flush-interval"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Start a background dirty-key flush every N seconds when dirty keys exist (0 = only flush on request)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("HTTP listen address for the Prometheus metrics and pprof side server (empty = disabled)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.NumDBs = viper.GetInt("databases")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.SnapshotDir = viper.GetString("snapshot-dir")
	serveCmdConfig.FlushIntervalSec = viper.GetInt("flush-interval")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.NumDBs < 1 {
		return fmt.Errorf("databases must be at least 1")
	}

	return nil
}

// run starts the permafrost server
func run(_ *cobra.Command, _ []string) error {

	// parse the serializer
	var s serializer.IRPCSerializer
	switch viper.GetString("serializer") {
	case "json":
		s = serializer.NewJSONSerializer()
	case "gob":
		s = serializer.NewGOBSerializer()
	case "binary":
		s = serializer.NewBinarySerializer()
	default:
		return fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}

	// Parse the transport
	var t transport.IRPCServerTransport
	switch viper.GetString("transport") {
	case "http":
		t = http.NewHttpServerTransport()
	case "tcp":
		t = tcp.NewTCPDefaultServerTransport()
	case "unix":
		t = unix.NewUnixDefaultServerTransport()
	default:
		return fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	return serv.Serve()
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("permafrost")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
