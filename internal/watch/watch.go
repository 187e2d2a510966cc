package watch

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

type Config struct {
	// Enabled turns on reloads on changes of the ecosystem file.
	// SIGHUP always triggers a reload.
	Enabled bool `conf:"enabled"`

	// Debounce is how long the file has to be quiet before a reload
	Debounce time.Duration `conf:"debounce"`
}

// ReloadFunc reloads the ecosystem.
type ReloadFunc func(ctx context.Context) error

type Options struct {
	Config Config

	// Path is the ecosystem file
	Path string

	Reload ReloadFunc

	// Signals replaces the SIGHUP subscription
	Signals <-chan os.Signal

	Log *zap.Logger
}

// Watcher triggers reloads on SIGHUP and, if enabled, on changes of the
// ecosystem file. Editors replace files on save, so the parent directory
// is watched rather than the file itself.
type Watcher struct {
	config  Config
	path    string
	reload  ReloadFunc
	signals <-chan os.Signal
	log     *zap.Logger
}

func New(opts Options) (*Watcher, error) {
	path, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, err
	}

	config := opts.Config
	if config.Debounce <= 0 {
		config.Debounce = 500 * time.Millisecond
	}

	return &Watcher{
		config:  config,
		path:    path,
		reload:  opts.Reload,
		signals: opts.Signals,
		log:     opts.Log,
	}, nil
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	signals := w.signals
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGHUP)
		defer signal.Stop(ch)
		signals = ch
	}

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)

	if w.config.Enabled {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer fsw.Close()

		if err := fsw.Add(filepath.Dir(w.path)); err != nil {
			return err
		}

		events = fsw.Events
		errs = fsw.Errors

		w.log.Info("watching ecosystem file", zap.String("path", w.path))
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != w.path {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.config.Debounce)
			fire = timer.C

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			w.log.Warn("file watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			w.log.Info("ecosystem file changed, reloading")
			w.runReload(ctx)

		case <-signals:
			w.log.Info("received SIGHUP, reloading")
			w.runReload(ctx)
		}
	}
}

func (w *Watcher) runReload(ctx context.Context) {
	if err := w.reload(ctx); err != nil {
		w.log.Error("reload failed", zap.Error(err))
	}
}
