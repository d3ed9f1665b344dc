package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/dannyswat/htmlmirror"
)

type docState int

const (
	docUnsubscribed docState = iota
	docSubscribing
	docSubscribed
	// docFetching means the local copy diverged and a fresh snapshot was requested.
	docFetching
	docDestroyed
)

// pendingOp is a local submission waiting for the server.
type pendingOp struct {
	ops    []htmlmirror.Op
	create *Create
	seq    int
}

// Doc is one document kept in sync with the server. Local submissions are
// applied immediately and sent one at a time; remote operations are applied in
// version order. On any disagreement the document is fetched again rather than
// reconciled.
type Doc struct {
	conn       *Connection
	collection string
	id         string

	mu       sync.Mutex
	state    docState
	version  int
	typ      string
	data     any
	inflight *pendingOp
	queue    []*pendingOp
	seq      int

	changeObservers []func()
}

// NewDoc attaches a document to conn. The document subscribes whenever the
// connection (re)opens.
func NewDoc(conn *Connection, collection string, id string) *Doc {
	d := &Doc{
		conn:       conn,
		collection: collection,
		id:         id,
	}
	conn.OnOpen(d.opened)
	conn.OnClose(d.closed)
	conn.OnMessage(d.handle)
	return d
}

// OnChange registers fn to run after the document content may have changed.
func (d *Doc) OnChange(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changeObservers = append(d.changeObservers, fn)
}

// Snapshot returns a copy of the current tree.
func (d *Doc) Snapshot() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return htmlmirror.Clone(d.data)
}

func (d *Doc) Version() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// Type is empty until the document exists.
func (d *Doc) Type() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.typ
}

func (d *Doc) Subscribed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == docSubscribed
}

func (d *Doc) Fatal() <-chan error {
	return d.conn.Fatal()
}

// SubmitOp applies ops locally and queues them for the server. Ops that do not
// apply to the current tree are rejected with an error wrapping
// htmlmirror.ErrInvalidOp and nothing is sent. While the document is not
// subscribed, including while a refetch is pending, it returns ErrNotSubscribed.
func (d *Doc) SubmitOp(ops []htmlmirror.Op) error {
	if len(ops) == 0 {
		return nil
	}

	d.mu.Lock()
	switch d.state {
	case docDestroyed:
		d.mu.Unlock()
		return ErrDestroyed
	case docSubscribed:
	case docFetching:
		// the fetch reply replaces the tree, so nothing queued now would survive
		d.mu.Unlock()
		return fmt.Errorf("%w: refetch pending", ErrNotSubscribed)
	default:
		d.mu.Unlock()
		return ErrNotSubscribed
	}
	if d.typ == "" {
		d.mu.Unlock()
		return fmt.Errorf("%w: document does not exist", ErrNotSubscribed)
	}

	data, err := htmlmirror.Apply(d.data, ops)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	d.data = data
	d.queue = append(d.queue, &pendingOp{ops: ops})
	d.flush()
	observers := d.observers()
	d.mu.Unlock()

	notify(observers)
	return nil
}

// Destroy unsubscribes and closes the connection. It is safe to call more
// than once.
func (d *Doc) Destroy() error {
	d.mu.Lock()
	if d.state == docDestroyed {
		d.mu.Unlock()
		return nil
	}
	wasSubscribed := d.state == docSubscribed || d.state == docFetching
	d.state = docDestroyed
	d.inflight = nil
	d.queue = nil
	d.mu.Unlock()

	if wasSubscribed {
		if err := d.conn.Send(&Frame{A: "u", C: d.collection, D: d.id}); err != nil && !errors.Is(err, ErrNotConnected) {
			glog.Infof("[doc]unsubscribe %s/%s error = %s\n", d.collection, d.id, err)
		}
	}
	return d.conn.Close()
}

func (d *Doc) opened() {
	if err := d.conn.Send(&Frame{A: "hs"}); err != nil {
		glog.Infof("[doc]handshake error = %s\n", err)
	}
}

// closed drops everything that was not acknowledged; the next subscribe brings
// a fresh snapshot.
func (d *Doc) closed(error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == docDestroyed {
		return
	}
	dropped := len(d.queue)
	if d.inflight != nil {
		dropped++
	}
	if dropped > 0 {
		glog.Infof("[doc]dropping %d unacknowledged ops\n", dropped)
	}
	d.state = docUnsubscribed
	d.inflight = nil
	d.queue = nil
}

func (d *Doc) handle(frame *Frame) bool {
	switch frame.A {
	case "hs", "init":
		d.handshake(frame)
		return false
	}
	if frame.C != d.collection || frame.D != d.id {
		return true
	}

	d.mu.Lock()
	if d.state == docDestroyed {
		d.mu.Unlock()
		return false
	}
	var changed bool
	switch frame.A {
	case "s", "f":
		changed = d.snapshot(frame)
	case "op":
		changed = d.op(frame)
	case "u":
	default:
		glog.V(2).Infof("[doc]ignoring action %q\n", frame.A)
	}
	var observers []func()
	if changed {
		observers = d.observers()
	}
	d.mu.Unlock()

	notify(observers)
	return false
}

func (d *Doc) handshake(frame *Frame) {
	d.conn.SetClientID(frame.ID)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != docUnsubscribed {
		return
	}
	d.state = docSubscribing
	if err := d.conn.Send(&Frame{A: "s", C: d.collection, D: d.id}); err != nil {
		glog.Infof("[doc]subscribe error = %s\n", err)
	}
}

// snapshot installs a subscribe or fetch reply. A document without a type does
// not exist yet and is created with the skeleton.
func (d *Doc) snapshot(frame *Frame) bool {
	if frame.Data == nil {
		glog.Warningf("[doc]%s reply without snapshot\n", frame.A)
		return false
	}
	tree, err := frame.Data.Tree()
	if err != nil {
		glog.Warningf("[doc]bad snapshot: %s\n", err)
		return false
	}

	d.state = docSubscribed
	d.version = frame.Data.V
	d.typ = frame.Data.Type
	d.data = tree
	d.inflight = nil
	d.queue = nil

	if d.typ == "" {
		glog.Infof("[doc]Document doesn't exist on server, creating it.\n")
		d.typ = TypeJSON0
		d.data = htmlmirror.Skeleton()
		d.queue = append(d.queue,
			&pendingOp{create: &Create{Type: TypeJSON0}},
			&pendingOp{ops: htmlmirror.ReplaceRoot(nil, htmlmirror.Skeleton())},
		)
	}
	d.flush()
	return true
}

func (d *Doc) op(frame *Frame) bool {
	if d.state != docSubscribed || frame.V == nil {
		return false
	}
	v := *frame.V

	if d.inflight != nil && frame.Src == d.conn.ClientID() && frame.Seq == d.inflight.seq {
		d.version = v + 1
		d.inflight = nil
		d.flush()
		return false
	}

	switch {
	case v < d.version:
		// already seen
		return false
	case v > d.version:
		d.refetch(fmt.Sprintf("version gap %d > %d", v, d.version))
		return false
	case frame.Src == d.conn.ClientID():
		d.refetch("unexpected acknowledgement")
		return false
	}

	if frame.Create != nil || frame.Del {
		d.refetch("remote create or delete")
		return false
	}

	remote := frame.Op
	if err := d.rebase(remote); err != nil {
		d.refetch(err.Error())
		return false
	}
	d.version++
	return true
}

// rebase applies a remote op on top of the local unacknowledged ops, which are
// transformed to follow it.
func (d *Doc) rebase(remote []htmlmirror.Op) error {
	local := d.queue
	if d.inflight != nil {
		local = append([]*pendingOp{d.inflight}, d.queue...)
	}

	for _, p := range local {
		if p.create != nil {
			return errors.New("remote op on a document being created")
		}
		ops, err := htmlmirror.Transform(p.ops, remote)
		if err != nil {
			return err
		}
		remote, err = htmlmirror.Transform(remote, p.ops)
		if err != nil {
			return err
		}
		p.ops = ops
	}

	data, err := htmlmirror.Apply(d.data, remote)
	if err != nil {
		return err
	}
	d.data = data
	return nil
}

func (d *Doc) refetch(reason string) {
	glog.Infof("[doc]refetching %s/%s: %s\n", d.collection, d.id, reason)
	d.state = docFetching
	d.inflight = nil
	d.queue = nil
	if err := d.conn.Send(&Frame{A: "f", C: d.collection, D: d.id}); err != nil {
		glog.Infof("[doc]fetch error = %s\n", err)
	}
}

// flush sends the next queued op when nothing is in flight.
func (d *Doc) flush() {
	if d.state != docSubscribed || d.inflight != nil || len(d.queue) == 0 {
		return
	}
	p := d.queue[0]
	d.queue = d.queue[1:]
	d.seq++
	p.seq = d.seq
	d.inflight = p

	frame := &Frame{
		A:      "op",
		C:      d.collection,
		D:      d.id,
		V:      version(d.version),
		Src:    d.conn.ClientID(),
		Seq:    p.seq,
		Op:     p.ops,
		Create: p.create,
	}
	if err := d.conn.Send(frame); err != nil {
		// the close that follows drops the inflight op
		glog.Infof("[doc]submit error = %s\n", err)
	}
}

func (d *Doc) observers() []func() {
	return append([]func(){}, d.changeObservers...)
}

func notify(observers []func()) {
	for _, fn := range observers {
		fn()
	}
}
