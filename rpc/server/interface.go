package server

import (
	"github.com/cbergmann/permafrost/lib/spill"
	"github.com/cbergmann/permafrost/rpc/common"
)

// IRPCServerAdapter translates wire messages into operations on the
// spillover store. The dbid selects the logical database for key
// commands.
type IRPCServerAdapter interface {
	Handle(dbid int, req *common.Message, store *spill.Store) *common.Message
}
