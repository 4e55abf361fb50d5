package client

import (
	"github.com/cbergmann/permafrost/rpc/common"
	"github.com/cbergmann/permafrost/rpc/serializer"
	"github.com/cbergmann/permafrost/rpc/transport"
)

// IRemoteStore is the client-side view of one logical database of a
// permafrost server, plus the NDS admin surface.
type IRemoteStore interface {
	// Set inserts or updates a key-value pair.
	Set(key string, value []byte) (err error)
	// Get returns the value for a key. The boolean indicates whether
	// the key was found.
	Get(key string) (value []byte, loaded bool, err error)
	// Del deletes a key. The boolean indicates whether a key was
	// actually deleted.
	Del(key string) (ok bool, err error)
	// Exists reports whether a key exists.
	Exists(key string) (loaded bool, err error)
	// Admin runs an NDS admin subcommand (SNAPSHOT, FLUSH, CLEARSTATS,
	// PRELOAD). For FLUSH and SNAPSHOT the call returns when the
	// background operation completes.
	Admin(args ...string) (err error)
	// Close shuts down the underlying transport.
	Close() error
}

// NewRPCStore creates a new RPC store bound to one logical database.
// The function takes a database index, a config, a transport and a
// serializer as parameters.
func NewRPCStore(
	dbid uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (IRemoteStore, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	// Create a new RPC store
	s := rpcStore{
		rpcClientAdapter{
			dbid:       dbid,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	// Return the RPC store
	return &s, nil
}

type rpcStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IRemoteStore)
// --------------------------------------------------------------------------

func (i *rpcStore) Set(key string, value []byte) (err error) {
	req := common.NewSetRequest(key, value)
	_, err = invokeRPCRequest(i.dbid, req, i.transport, i.serializer)
	return err
}

func (i *rpcStore) Get(key string) (value []byte, loaded bool, err error) {
	req := common.NewGetRequest(key)
	resp, err := invokeRPCRequest(i.dbid, req, i.transport, i.serializer)
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Ok, nil
}

func (i *rpcStore) Del(key string) (ok bool, err error) {
	req := common.NewDelRequest(key)
	resp, err := invokeRPCRequest(i.dbid, req, i.transport, i.serializer)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcStore) Exists(key string) (loaded bool, err error) {
	req := common.NewExistsRequest(key)
	resp, err := invokeRPCRequest(i.dbid, req, i.transport, i.serializer)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcStore) Admin(args ...string) (err error) {
	req := common.NewAdminRequest(args...)
	_, err = invokeRPCRequest(i.dbid, req, i.transport, i.serializer)
	return err
}

func (i *rpcStore) Close() error {
	return i.transport.Close()
}
