package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"

	"github.com/dannyswat/htmlmirror/internal/config"
	"github.com/dannyswat/htmlmirror/internal/mirror"
	"github.com/dannyswat/htmlmirror/internal/session"
	"github.com/dannyswat/htmlmirror/internal/watch"
)

const HtmlMirrorVersion = "0.1.0"

func main() {
	usage := `Mirror a shared document into a local HTML file.

Edits to the file are sent to the server and remote edits are written back
to the file. The file is <dir>/<id>.html and is removed on exit.

Usage:
    htmlmirror [--id=<id>] [--host=<host>] [--dir=<dir>] [--config=<path>] [-v <level>]
    htmlmirror -h | --help
    htmlmirror --version

Options:
    -h --help          Show this screen.
    --version          Show version.
    --id=<id>          Document id [default: contenteditable].
    --host=<host>      Server host, ws:// or wss:// [default: ws://localhost:7007].
    --dir=<dir>        Directory for the mirror file [default: ./documents].
    --config=<path>    Config file (.toml, .yaml or .json).
    -v <level>         Log verbosity [default: 0].`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], HtmlMirrorVersion)
	if err != nil {
		panic(err)
	}

	flag.Set("logtostderr", "true")
	if level, err := opts.String("-v"); err == nil {
		flag.Set("v", level)
	}
	flag.CommandLine.Parse([]string{})

	code := run(opts)
	glog.Flush()
	os.Exit(code)
}

func run(opts docopt.Opts) int {
	configPath, _ := opts.String("--config")
	cfg, err := config.Load(configPath)
	if err != nil {
		glog.Errorf("%s\n", err)
		return 1
	}
	applyFlags(cfg, opts)
	if err := cfg.Validate(); err != nil {
		glog.Errorf("%s\n", err)
		return 1
	}
	if err := cfg.EnsureMountDir(); err != nil {
		glog.Errorf("%s\n", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dialer := &session.WebsocketDialer{
		HandshakeTimeout: cfg.HandshakeTimeout(),
		MaxFrameSize:     cfg.Remote.MaxFrameSize,
	}
	settings := session.DefaultConnectionSettings(cfg.URL())
	settings.ReconnectDelay = cfg.ReconnectDelay()
	settings.MaxReconnects = cfg.Remote.MaxReconnects
	conn := session.NewConnection(dialer, settings)
	doc := session.NewDoc(conn, cfg.Collection, cfg.DocumentID)

	detector, err := watch.New(cfg.MountPoint(), watch.Options{Debounce: cfg.Debounce()})
	if err != nil {
		glog.Errorf("%s\n", err)
		return 1
	}

	m := mirror.New(cfg, doc, detector)
	conn.Open(ctx)
	runErr := m.Run(ctx)

	if err := m.Close(); err != nil {
		glog.Warningf("cleanup: %s\n", err)
	}
	if runErr != nil {
		glog.Errorf("%s\n", runErr)
		return 1
	}
	return 0
}

// applyFlags lets explicit flags win over the config file. docopt fills in
// defaults, so only values that differ from the default are applied.
func applyFlags(cfg *config.Config, opts docopt.Opts) {
	defaults := config.DefaultConfig()
	if id, err := opts.String("--id"); err == nil && id != defaults.DocumentID {
		cfg.DocumentID = id
	}
	if host, err := opts.String("--host"); err == nil && host != defaults.Host {
		cfg.Host = host
	}
	if dir, err := opts.String("--dir"); err == nil && dir != defaults.MountDir {
		cfg.MountDir = dir
	}
}
