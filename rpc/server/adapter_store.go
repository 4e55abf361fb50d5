package server

import (
	"fmt"

	"github.com/cbergmann/permafrost/lib/spill"
	"github.com/cbergmann/permafrost/rpc/common"
)

func NewStoreServerAdapter() IRPCServerAdapter {
	return &storeServerAdapterImpl{}
}

type storeServerAdapterImpl struct{}

func (adapter *storeServerAdapterImpl) Handle(dbid int, req *common.Message, store *spill.Store) *common.Message {
	// Check for nil store
	if store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTKVSet:
		err := store.Set(dbid, req.Key, req.Value)
		return common.NewSetResponse(err)
	case common.MsgTKVGet:
		value, ok, err := store.Get(dbid, req.Key)
		return common.NewGetResponse(value, ok, err)
	case common.MsgTKVDel:
		ok, err := store.Delete(dbid, req.Key)
		return common.NewDelResponse(ok, err)
	case common.MsgTKVExists:
		ok, err := store.Exists(dbid, req.Key)
		return common.NewExistsResponse(ok, err)
	case common.MsgTAdmin:
		// FLUSH and SNAPSHOT replies are deferred until the background
		// operation completes; the replier parks this worker goroutine
		// on the channel meanwhile. Immediate subcommands answer right
		// away through the same path.
		r := newChannelReplier()
		store.Dispatch(req.Args, r)
		return r.wait()
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC StoreAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}

// --------------------------------------------------------------------------
// Channel Replier
// --------------------------------------------------------------------------

// channelReplier adapts the store's deferred-reply contract to the
// request/response transport: the handling goroutine blocks on wait()
// until the store answers, which for FLUSH and SNAPSHOT happens from
// the completion handler.
type channelReplier struct {
	ch chan *common.Message
}

func newChannelReplier() *channelReplier {
	return &channelReplier{ch: make(chan *common.Message, 1)}
}

func (r *channelReplier) ReplyOK() {
	select {
	case r.ch <- common.NewAdminOKResponse():
	default:
	}
}

func (r *channelReplier) ReplyError(msg string) {
	select {
	case r.ch <- common.NewAdminErrorResponse(msg):
	default:
	}
}

func (r *channelReplier) wait() *common.Message {
	return <-r.ch
}
