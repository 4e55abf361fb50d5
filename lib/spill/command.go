package spill

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Replier
// --------------------------------------------------------------------------

// Replier receives the outcome of an administrative command. For FLUSH
// and SNAPSHOT the reply is deferred until the background operation
// completes; the store parks the Replier in its single requester slot
// meanwhile.
type Replier interface {
	ReplyOK()
	ReplyError(msg string)
}

// --------------------------------------------------------------------------
// NDS Admin Dispatcher
// --------------------------------------------------------------------------

// Dispatch routes an NDS admin command. Subcommands are matched
// case-insensitively; each takes no further arguments.
//
//	SNAPSHOT    start flush+snapshot, deferred reply
//	FLUSH       start flush, deferred reply
//	CLEARSTATS  zero the cache hit/miss counters, immediate reply
//	PRELOAD     load all freezer keys into memory, immediate reply
func (s *Store) Dispatch(args []string, c Replier) {
	if len(args) == 0 {
		replyError(c, "NDS subcommand must be one of: SNAPSHOT FLUSH CLEARSTATS PRELOAD")
		return
	}

	switch strings.ToUpper(args[0]) {
	case "SNAPSHOT":
		if len(args) != 1 {
			s.replyBadArity(c, args[0])
			return
		}
		Logger.Infof("NDS SNAPSHOT requested")
		// No immediate OK; that gets sent when the snapshot completes.
		s.Snapshot(c)

	case "FLUSH":
		if len(args) != 1 {
			s.replyBadArity(c, args[0])
			return
		}
		Logger.Infof("NDS FLUSH requested")
		// No immediate OK; that gets sent when the flush completes.
		s.Flush(c)

	case "CLEARSTATS":
		if len(args) != 1 {
			s.replyBadArity(c, args[0])
			return
		}
		Logger.Infof("NDS CLEARSTATS requested")
		s.ClearStats()
		if c != nil {
			c.ReplyOK()
		}

	case "PRELOAD":
		if len(args) != 1 {
			s.replyBadArity(c, args[0])
			return
		}
		Logger.Infof("NDS PRELOAD requested")
		s.Preload()
		if c != nil {
			c.ReplyOK()
		}

	default:
		replyError(c, "NDS subcommand must be one of: SNAPSHOT FLUSH CLEARSTATS PRELOAD")
	}
}

func (s *Store) replyBadArity(c Replier, sub string) {
	replyError(c, fmt.Sprintf("Wrong number of arguments for NDS %s", sub))
}
