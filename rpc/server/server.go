package server

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	vmetrics "github.com/VictoriaMetrics/metrics"
	"github.com/cbergmann/permafrost/lib/spill"
	"github.com/cbergmann/permafrost/rpc/common"
	"github.com/cbergmann/permafrost/rpc/serializer"
	"github.com/cbergmann/permafrost/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"

	_ "net/http/pprof"
)

var Logger = logger.GetLogger("rpc")

// checkInterval is how often the server reaps finished background
// operations, the way the original event loop polled for its child.
const checkInterval = 100 * time.Millisecond

// NewRPCServer creates a new RPC server.
// It takes a config, transport and serializer as parameters.
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPDefaultServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) rpcServer {
	return rpcServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		adapter:    NewStoreServerAdapter(),
		timers:     gometrics.NewRegistry(),
	}
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	store      *spill.Store
	adapter    IRPCServerAdapter
	timers     gometrics.Registry
}

// handleRequest is the transport.RequestHandler bound at serve time.
func (s *rpcServer) handleRequest(dbid uint64, req []byte) []byte {
	var msg common.Message
	var respMsg common.Message

	// Case logical database out of range -> error
	if dbid >= uint64(s.store.NumDBs()) {
		respMsg = common.Message{
			MsgType: common.MsgTError,
			Err:     fmt.Sprintf("logical database %d out of range", dbid),
		}
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		// Decode failure
		respMsg = common.Message{
			MsgType: common.MsgTError,
			Err:     fmt.Sprintf("failed to deserialize request: %s", err),
		}
	} else {
		// Let the adapter handle the request, timing it per
		// message type.
		start := time.Now()
		respMsg = *s.adapter.Handle(int(dbid), &msg, s.store)
		timer := gometrics.GetOrRegisterTimer("rpc."+msg.MsgType.String(), s.timers)
		timer.UpdateSince(start)
	}

	// Return result
	val, err := s.serializer.Serialize(respMsg)
	if err != nil {
		respMsg = common.Message{
			MsgType: common.MsgTError,
			Err:     fmt.Sprintf("failed to serialize response: %s", err),
		}
		val, _ = s.serializer.Serialize(respMsg)
	}
	return val
}

func (s *rpcServer) init() error {

	// Init logger
	common.InitLoggers(s.config)

	// Create the spillover store
	s.store = spill.NewStore(spill.Config{
		NumDBs:      s.config.NumDBs,
		Dir:         s.config.DataDir,
		SnapshotDir: s.config.SnapshotDir,
	})

	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())

	// Start the cron loop (background reaping, autonomous flushes)
	go s.serverCron()

	// Start the observability side server
	if s.config.MetricsEndpoint != "" {
		go s.serveMetrics()
	}

	// Periodically dump request timers at debug level
	if s.config.LogLevel == "debug" {
		go gometrics.LogScaled(s.timers, time.Minute, time.Millisecond,
			log.New(os.Stdout, "rpc-timers ", log.Ldate|log.Ltime))
	}

	Logger.Infof("permafrost setup completed successfully")

	return nil
}

// serverCron drives the time-based duties of the store: reaping
// completed background operations and, when configured, kicking off
// autonomous dirty-key flushes.
func (s *rpcServer) serverCron() {
	check := time.NewTicker(checkInterval)
	defer check.Stop()

	var flushC <-chan time.Time
	if s.config.FlushIntervalSec > 0 {
		flush := time.NewTicker(time.Duration(s.config.FlushIntervalSec) * time.Second)
		defer flush.Stop()
		flushC = flush.C
	}

	for {
		select {
		case <-check.C:
			s.store.CheckBackgroundComplete()

		case <-flushC:
			if s.store.Stats().DirtyKeys == 0 {
				continue
			}
			if err := s.store.BackgroundDirtyFlush(); err != nil {
				// Busy is normal here; an admin-triggered operation may
				// be running.
				Logger.Debugf("autonomous flush not started: %v", err)
			}
		}
	}
}

// serveMetrics exposes Prometheus metrics (and pprof, via the default
// mux) on the configured side endpoint.
func (s *rpcServer) serveMetrics() {
	http.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		vmetrics.WritePrometheus(w, true)

		st := s.store.Stats()
		fmt.Fprintf(w, "permafrost_dirty_keys %d\n", st.DirtyKeys)
		fmt.Fprintf(w, "permafrost_flushing_keys %d\n", st.FlushingKeys)
		fmt.Fprintf(w, "permafrost_last_save_timestamp_seconds %d\n", st.LastSaveUnix)
		fmt.Fprintf(w, "permafrost_preload_in_progress %d\n", boolToInt(st.PreloadInProgress))
		fmt.Fprintf(w, "permafrost_preload_complete %d\n", boolToInt(st.PreloadComplete))
	})

	Logger.Infof("Starting metrics server on %s", s.config.MetricsEndpoint)
	Logger.Errorf("%v", http.ListenAndServe(s.config.MetricsEndpoint, nil))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Serve starts the RPC server.
// This function initializes the store plus the cron loop and starts the
// transport layer with the request handler bound.
func (s *rpcServer) Serve() error {
	err := s.init()
	if err != nil {
		return err
	}
	return s.transport.Serve(s.config, s.handleRequest)
}
