// Package session keeps one document of a ShareDB-style collaboration server
// in sync over a reconnecting websocket.
package session

import (
	"encoding/json"
	"errors"

	"github.com/dannyswat/htmlmirror"
)

var (
	// ErrProtocol is reported when the server sends an error frame.
	ErrProtocol = errors.New("server reported an error")
	// ErrReconnectLimit is reported when too many reconnects failed in a row.
	ErrReconnectLimit = errors.New("reconnect limit reached")
	ErrDestroyed      = errors.New("document destroyed")
	ErrNotSubscribed  = errors.New("document not subscribed")
	ErrNotConnected   = errors.New("not connected")
)

// TypeJSON0 is the OT type documents are created with.
const TypeJSON0 = "http://sharejs.org/types/JSONv0"

// Frame is one JSON message on the wire. Requests and replies share the
// layout; the action A selects which fields are meaningful.
type Frame struct {
	A        string          `json:"a,omitempty"`
	C        string          `json:"c,omitempty"`
	D        string          `json:"d,omitempty"`
	V        *int            `json:"v,omitempty"`
	Src      string          `json:"src,omitempty"`
	Seq      int             `json:"seq,omitempty"`
	Op       []htmlmirror.Op `json:"op,omitempty"`
	Create   *Create         `json:"create,omitempty"`
	Del      bool            `json:"del,omitempty"`
	Data     *Snapshot       `json:"data,omitempty"`
	ID       string          `json:"id,omitempty"`
	Protocol int             `json:"protocol,omitempty"`
	Error    *FrameError     `json:"error,omitempty"`
	Wa       json.RawMessage `json:"wa,omitempty"`
}

// Create is the payload of a document creation.
type Create struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Snapshot is a document as returned by subscribe and fetch. Type is empty
// when the document does not exist.
type Snapshot struct {
	V    int             `json:"v"`
	Type string          `json:"type,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Tree decodes the snapshot data as a JsonML tree. A missing document has a
// nil tree.
func (s *Snapshot) Tree() (any, error) {
	if len(s.Data) == 0 || string(s.Data) == "null" {
		return nil, nil
	}
	return htmlmirror.DecodeJSON(s.Data)
}

type FrameError struct {
	Code    any    `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *FrameError) Error() string {
	return e.Message
}

func version(v int) *int {
	return &v
}
