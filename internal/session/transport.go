package session

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is one live connection carrying whole JSON frames.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens transports. The connection redials through it after a drop.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// WebsocketDialer dials text-frame websockets.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	// MaxFrameSize limits inbound frames, 0 means no limit.
	MaxFrameSize int64
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if d.MaxFrameSize > 0 {
		ws.SetReadLimit(d.MaxFrameSize)
	}
	return &wsTransport{ws: ws}, nil
}

type wsTransport struct {
	ws *websocket.Conn
	// gorilla allows one concurrent writer
	writeMu sync.Mutex
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	for {
		messageType, message, err := t.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			return message, nil
		}
	}
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.ws.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	return t.ws.Close()
}
