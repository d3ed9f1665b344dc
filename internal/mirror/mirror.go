// Package mirror keeps a local HTML file and a remote JsonML document in step.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/golang/glog"

	"github.com/dannyswat/htmlmirror"
	"github.com/dannyswat/htmlmirror/internal/config"
)

// Remote is the shared document.
type Remote interface {
	// Snapshot returns a copy of the tree, nil until the document is known.
	Snapshot() any
	SubmitOp(ops []htmlmirror.Op) error
	OnChange(fn func())
	Fatal() <-chan error
	Destroy() error
}

// Detector owns the mirror file.
type Detector interface {
	Start() error
	Stop() error
	Write(content string) (bool, error)
	Changes() <-chan string
	Errors() <-chan error
}

type Mirror struct {
	remote   Remote
	detector Detector

	path        string
	voidTags    []string
	placeholder string
	literal     string

	// remoteChanged coalesces change notifications from the remote
	remoteChanged chan struct{}
	watching      bool
}

func New(cfg *config.Config, remote Remote, detector Detector) *Mirror {
	m := &Mirror{
		remote:        remote,
		detector:      detector,
		path:          cfg.MountPoint(),
		voidTags:      cfg.Markup.VoidTags,
		placeholder:   cfg.Markup.KeyPlaceholder,
		literal:       cfg.Markup.KeyLiteral,
		remoteChanged: make(chan struct{}, 1),
	}
	remote.OnChange(m.signal)
	return m
}

func (m *Mirror) signal() {
	select {
	case m.remoteChanged <- struct{}{}:
	default:
	}
}

// Run handles remote and local changes until ctx is done or a fatal error
// occurs. A nil return means ctx was cancelled.
func (m *Mirror) Run(ctx context.Context) error {
	m.signal()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-m.remote.Fatal():
			return err
		case <-m.remoteChanged:
			if err := m.pull(); err != nil {
				return err
			}
		case content := <-m.detector.Changes():
			m.push(content)
		case err := <-m.detector.Errors():
			return fmt.Errorf("failed to read %s: %w", m.path, err)
		}
	}
}

// pull renders the remote document into the file. The watcher starts once the
// file holds the first snapshot.
func (m *Mirror) pull() error {
	tree := m.remote.Snapshot()
	if tree == nil {
		return nil
	}
	html := m.render(tree)

	written, err := m.detector.Write(html)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", m.path, err)
	}
	if written {
		glog.V(1).Infof("[mirror]wrote %s (%d bytes)\n", m.path, len(html))
	}

	if !m.watching {
		if err := m.detector.Start(); err != nil {
			return fmt.Errorf("failed to watch %s: %w", m.path, err)
		}
		m.watching = true
	}
	return nil
}

func (m *Mirror) render(tree any) string {
	tree = htmlmirror.SanitizeKeys(htmlmirror.Normalize(tree), m.placeholder, m.literal)
	return htmlmirror.Render(tree, m.voidTags)
}

// push submits a local edit. Edits the remote refuses reset the document to
// the skeleton.
func (m *Mirror) push(content string) {
	parsed, err := htmlmirror.Parse(content)
	if err != nil {
		glog.Warningf("[mirror]skipping local edit: %s\n", err)
		return
	}
	local := htmlmirror.Normalize(htmlmirror.SanitizeKeys(parsed, m.literal, m.placeholder))

	current := m.remote.Snapshot()
	ops := m.diff(current, local)
	if len(ops) == 0 {
		return
	}
	glog.V(1).Infof("[mirror]submitting %d ops\n", len(ops))

	err = m.remote.SubmitOp(ops)
	if err == nil {
		return
	}
	if !errors.Is(err, htmlmirror.ErrInvalidOp) {
		glog.Warningf("[mirror]local edit not submitted: %s\n", err)
		return
	}

	glog.Infof("[mirror]Invalid document, rebuilding: %s\n", err)
	reset := htmlmirror.ReplaceRoot(m.remote.Snapshot(), htmlmirror.Skeleton())
	if err := m.remote.SubmitOp(reset); err != nil {
		glog.Warningf("[mirror]rebuild failed: %s\n", err)
	}
}

// diff computes ops from the remote tree to local. Index paths are only
// meaningful on a normalized tree, so anything else is replaced whole.
func (m *Mirror) diff(current, local any) []htmlmirror.Op {
	if current == nil || !htmlmirror.Equal(htmlmirror.Normalize(current), current) {
		if htmlmirror.Equal(current, local) {
			return nil
		}
		return htmlmirror.ReplaceRoot(current, local)
	}
	return htmlmirror.Diff(current, local)
}

// Close destroys the remote document handle, stops watching and removes the
// mirror file.
func (m *Mirror) Close() error {
	var errs []error
	if err := m.remote.Destroy(); err != nil {
		errs = append(errs, err)
	}
	if err := m.detector.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
