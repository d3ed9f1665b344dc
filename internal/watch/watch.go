// Package watch monitors the mirror file and reports edits made by anyone but
// this process.
package watch

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
)

// Detector watches one file. Content this process wrote itself (or already
// reported) is remembered and events that merely reproduce it are dropped.
type Detector struct {
	fsWatcher *fsnotify.Watcher
	path      string
	debounce  time.Duration

	// last is the content last written or observed (the echo baseline)
	last string
	// settling holds a read that differs from last but has not been seen twice
	settling   string
	isSettling bool
	lastMu     sync.Mutex

	timer   *time.Timer
	timerMu sync.Mutex

	changes chan string
	errors  chan error

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Options tune a Detector.
type Options struct {
	// Debounce is how long the file must be quiet before it is read.
	Debounce time.Duration
}

// New creates a detector for path.
func New(path string, opts Options) (*Detector, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Detector{
		fsWatcher: fsWatcher,
		path:      absPath,
		debounce:  opts.Debounce,
		changes:   make(chan string, 16),
		errors:    make(chan error, 1),
		done:      make(chan struct{}),
	}, nil
}

// Changes returns the channel of genuine external edits (the new file content).
func (d *Detector) Changes() <-chan string {
	return d.changes
}

// Errors returns the channel of read and watch errors.
func (d *Detector) Errors() <-chan error {
	return d.errors
}

// Start begins watching. The parent directory is watched so that editors which
// save by replacing the file are still seen.
func (d *Detector) Start() error {
	if err := d.fsWatcher.Add(filepath.Dir(d.path)); err != nil {
		return err
	}
	d.wg.Add(1)
	go d.eventLoop()
	return nil
}

// Stop shuts the detector down. It is safe to call more than once.
func (d *Detector) Stop() error {
	var err error
	d.stopOnce.Do(func() {
		close(d.done)
		d.timerMu.Lock()
		if d.timer != nil {
			d.timer.Stop()
		}
		d.timerMu.Unlock()
		err = d.fsWatcher.Close()
		d.wg.Wait()
	})
	return err
}

// Write writes content to the file unless it already holds it (as far as the
// detector knows). It reports whether the file was written.
func (d *Detector) Write(content string) (bool, error) {
	d.lastMu.Lock()
	defer d.lastMu.Unlock()

	if content == d.last {
		return false, nil
	}
	d.last = content
	if err := os.WriteFile(d.path, []byte(content), 0644); err != nil {
		return false, err
	}
	return true, nil
}

// eventLoop handles fsnotify events.
func (d *Detector) eventLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.done:
			return

		case event, ok := <-d.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != d.path {
				continue
			}
			// Only writes and creates carry new content
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			glog.V(2).Infof("[watch]%s %s\n", event.Op, event.Name)
			d.schedule()

		case err, ok := <-d.fsWatcher.Errors:
			if !ok {
				return
			}
			d.fail(err)
		}
	}
}

func (d *Detector) schedule() {
	d.timerMu.Lock()
	defer d.timerMu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, d.check)
}

// check reads the file and reports it unless it is an echo. New content is
// only reported once two reads a debounce apart agree, so a save caught half
// written is not taken for an edit.
func (d *Detector) check() {
	select {
	case <-d.done:
		return
	default:
	}

	data, err := os.ReadFile(d.path)
	if err != nil {
		d.fail(err)
		return
	}
	content := string(data)

	d.lastMu.Lock()
	if content == d.last {
		d.isSettling = false
		d.lastMu.Unlock()
		glog.V(2).Infof("[watch]echo %s\n", d.path)
		return
	}
	if !d.isSettling || content != d.settling {
		d.settling = content
		d.isSettling = true
		d.lastMu.Unlock()
		d.schedule()
		return
	}
	d.isSettling = false
	d.last = content
	d.lastMu.Unlock()

	select {
	case d.changes <- content:
	case <-d.done:
	}
}

func (d *Detector) fail(err error) {
	select {
	case d.errors <- err:
	default:
	}
}
