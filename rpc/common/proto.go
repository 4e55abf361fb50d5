package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message. The logical
// database a key command targets travels in the transport frame, not in
// the message itself.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key   string   `json:"key,omitempty"`   // Used for: Set, Get, Del, Exists
	Value []byte   `json:"value,omitempty"` // Used for: Set (request), Get (response)
	Args  []string `json:"args,omitempty"`  // Used for: Admin (NDS subcommand and arguments)

	// Response only fields
	Ok  bool   `json:"ok,omitempty"`  // Used for: Get, Del, Exists, Admin responses
	Err string `json:"err,omitempty"` // Empty if no error, otherwise contains the error message
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewSetRequest creates a new Set request
func NewSetRequest(key string, value []byte) *Message {
	return &Message{
		MsgType: MsgTKVSet,
		Key:     key,
		Value:   value,
	}
}

// NewSetResponse creates a new Set response
func NewSetResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTKVSet,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewGetRequest creates a new Get request
func NewGetRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVGet,
		Key:     key,
	}
}

// NewGetResponse creates a new Get response
func NewGetResponse(value []byte, ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTKVGet,
		Ok:      ok,
		Value:   value,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewDelRequest creates a new Del request
func NewDelRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVDel,
		Key:     key,
	}
}

// NewDelResponse creates a new Del response; ok reports whether a key
// was actually deleted.
func NewDelResponse(ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTKVDel,
		Ok:      ok,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewExistsRequest creates a new Exists request
func NewExistsRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVExists,
		Key:     key,
	}
}

// NewExistsResponse creates a new Exists response
func NewExistsResponse(ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTKVExists,
		Ok:      ok,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewAdminRequest creates a new NDS admin request
func NewAdminRequest(args ...string) *Message {
	return &Message{
		MsgType: MsgTAdmin,
		Args:    args,
	}
}

// NewAdminOKResponse creates a successful NDS admin response
func NewAdminOKResponse() *Message {
	return &Message{
		MsgType: MsgTAdmin,
		Ok:      true,
	}
}

// NewAdminErrorResponse creates a failed NDS admin response
func NewAdminErrorResponse(msg string) *Message {
	return &Message{
		MsgType: MsgTAdmin,
		Err:     msg,
	}
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTKVSet:
		return "set"
	case MsgTKVGet:
		return "get"
	case MsgTKVDel:
		return "del"
	case MsgTKVExists:
		return "exists"
	case MsgTAdmin:
		return "nds"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	switch s {
	case "set":
		*t = MsgTKVSet
	case "get":
		*t = MsgTKVGet
	case "del":
		*t = MsgTKVDel
	case "exists":
		*t = MsgTKVExists
	case "nds":
		*t = MsgTAdmin
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Key commands

	MsgTKVSet    // Set a key-value pair
	MsgTKVGet    // Get a value by key
	MsgTKVDel    // Delete a key-value pair
	MsgTKVExists // Check if a key exists

	// Administrative commands

	MsgTAdmin // NDS admin dispatcher (SNAPSHOT, FLUSH, CLEARSTATS, PRELOAD)
)
