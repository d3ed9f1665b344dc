package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	// StateRetrying means a redial is scheduled.
	StateRetrying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateRetrying:
		return "retrying"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type ConnectionSettings struct {
	URL            string
	ReconnectDelay time.Duration
	// MaxReconnects caps consecutive failed connections, 0 is unlimited.
	MaxReconnects int
}

func DefaultConnectionSettings(url string) *ConnectionSettings {
	return &ConnectionSettings{
		URL:            url,
		ReconnectDelay: 1 * time.Second,
	}
}

// Connection owns the transport and redials it after a drop. Events are
// delivered to observers in registration order. Message observers may return
// false to keep a frame from later observers.
type Connection struct {
	dialer   Dialer
	settings *ConnectionSettings

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	transport Transport
	timer     *time.Timer
	failures  int
	clientID  string

	openObservers    []func()
	closeObservers   []func(error)
	messageObservers []func(*Frame) bool

	fatal chan error
}

func NewConnection(dialer Dialer, settings *ConnectionSettings) *Connection {
	c := &Connection{
		dialer:   dialer,
		settings: settings,
		fatal:    make(chan error, 1),
	}
	c.OnMessage(c.filter)
	return c
}

// Open dials in the background. Observers should be registered before.
func (c *Connection) Open(ctx context.Context) {
	c.mu.Lock()
	if c.ctx != nil {
		c.mu.Unlock()
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.state = StateConnecting
	c.mu.Unlock()

	go c.dial()
}

func (c *Connection) OnOpen(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openObservers = append(c.openObservers, fn)
}

func (c *Connection) OnClose(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeObservers = append(c.closeObservers, fn)
}

func (c *Connection) OnMessage(fn func(*Frame) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messageObservers = append(c.messageObservers, fn)
}

// Fatal delivers errors the connection cannot recover from.
func (c *Connection) Fatal() <-chan error {
	return c.fatal
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ClientID is the id the server assigned in the handshake.
func (c *Connection) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// SetClientID records the handshake id. An empty id gets a random one.
func (c *Connection) SetClientID(id string) {
	if id == "" {
		id = uuid.NewString()
	}
	c.mu.Lock()
	c.clientID = id
	c.mu.Unlock()
}

// Send writes one frame on the current transport.
func (c *Connection) Send(frame *Frame) error {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	glog.V(2).Infof("[conn]-> %s\n", data)
	return t.WriteMessage(data)
}

// Close stops the connection for good. It is safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	t := c.transport
	c.transport = nil
	c.mu.Unlock()

	if t != nil {
		return t.Close()
	}
	return nil
}

func (c *Connection) dial() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	ctx := c.ctx
	c.mu.Unlock()

	glog.Infof("[conn]Connecting to %s...\n", c.settings.URL)
	t, err := c.dialer.Dial(ctx, c.settings.URL)
	if err != nil {
		glog.Infof("[conn]Connection error: %s\n", err)
		c.closed(nil, err)
		return
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		t.Close()
		return
	}
	c.transport = t
	c.state = StateOpen
	c.failures = 0
	observers := append([]func(){}, c.openObservers...)
	c.mu.Unlock()

	glog.Infof("[conn]Connected.\n")
	for _, fn := range observers {
		fn()
	}
	c.read(t)
}

func (c *Connection) read(t Transport) {
	for {
		data, err := t.ReadMessage()
		if err != nil {
			c.closed(t, err)
			return
		}
		glog.V(2).Infof("[conn]<- %s\n", data)

		frame := &Frame{}
		if err := json.Unmarshal(data, frame); err != nil {
			glog.Warningf("[conn]Dropping malformed frame: %s\n", err)
			continue
		}

		c.mu.Lock()
		observers := append([]func(*Frame) bool{}, c.messageObservers...)
		c.mu.Unlock()
		for _, fn := range observers {
			if !fn(frame) {
				break
			}
		}
	}
}

// closed handles the end of transport t (nil when the dial itself failed).
// Close observers run before the redial is scheduled, and at most one redial
// is ever pending.
func (c *Connection) closed(t Transport, cause error) {
	c.mu.Lock()
	if c.state == StateClosed || (t != nil && t != c.transport) {
		c.mu.Unlock()
		return
	}
	if c.transport != nil {
		c.transport.Close()
		c.transport = nil
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.failures++
	giveUp := c.settings.MaxReconnects > 0 && c.failures > c.settings.MaxReconnects
	c.state = StateDisconnected
	observers := append([]func(error){}, c.closeObservers...)
	c.mu.Unlock()

	glog.Infof("[conn]Connection closed: %s\n", cause)
	for _, fn := range observers {
		fn(cause)
	}

	if giveUp {
		c.fail(fmt.Errorf("%w after %d attempts: %s", ErrReconnectLimit, c.settings.MaxReconnects, cause))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateDisconnected {
		return
	}
	glog.Infof("[conn]Attempting to reconnect.\n")
	c.state = StateRetrying
	c.timer = time.AfterFunc(c.settings.ReconnectDelay, c.dial)
}

// filter runs before every other message observer. Error frames are fatal
// and wa frames are not meant for the document.
func (c *Connection) filter(frame *Frame) bool {
	if frame.Error != nil {
		glog.Errorf("[conn]Error: %s\n", frame.Error.Message)
		c.fail(fmt.Errorf("%w: %s", ErrProtocol, frame.Error.Message))
		return false
	}
	if len(frame.Wa) > 0 && string(frame.Wa) != "null" {
		return false
	}
	return true
}

func (c *Connection) fail(err error) {
	select {
	case c.fatal <- err:
	default:
	}
}
