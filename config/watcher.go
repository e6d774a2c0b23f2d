package config

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/sholes/drivers/logging"
	"github.com/sholes/drivers/utils"
)

// reloadDebounce is how long the file must stay quiet before it is re-read. Saving a file usually
// produces several events.
const reloadDebounce = 100 * time.Millisecond

// A Watcher re-reads the config file whenever it changes and re-applies the log settings. Board
// and device sections are only read at startup; edits to them are reported and otherwise ignored.
type Watcher struct {
	path     string
	logger   logging.Logger
	onChange func(ctx context.Context, cfg *Config)

	watcher   *fsnotify.Watcher
	debounced func(f func())
	reloads   chan struct{}
	workers   utils.StoppableWorkers

	mu      sync.Mutex
	current *Config
}

// NewWatcher watches the file `cfg` was read from. `onChange`, if not nil, is called with every
// config that was read and applied.
func NewWatcher(cfg *Config, logger logging.Logger, onChange func(ctx context.Context, cfg *Config)) (*Watcher, error) {
	if cfg.ConfigFilePath == "" {
		return nil, errors.New("config was not read from a file")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Editors replace the file rather than write it, so watch the directory.
	if err := fsw.Add(filepath.Dir(cfg.ConfigFilePath)); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "can't watch %q", cfg.ConfigFilePath), fsw.Close())
	}
	w := &Watcher{
		path:      filepath.Clean(cfg.ConfigFilePath),
		logger:    logger,
		onChange:  onChange,
		watcher:   fsw,
		debounced: debounce.New(reloadDebounce),
		reloads:   make(chan struct{}, 1),
		current:   cfg,
	}
	w.workers = utils.NewStoppableWorkers(w.run)
	return w, nil
}

// Current returns the config last read.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("config watcher error", "error", err)
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			w.debounced(w.requestReload)
		case <-w.reloads:
			w.reload(ctx)
		}
	}
}

func (w *Watcher) requestReload() {
	select {
	case w.reloads <- struct{}{}:
	default:
	}
}

func (w *Watcher) reload(ctx context.Context) {
	cfg, err := Read(w.path, w.logger)
	if err != nil {
		w.logger.Errorw("error reading changed config, keeping the current one", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	prev := w.current
	w.current = cfg
	w.mu.Unlock()

	if hardwareChanged(prev, cfg) {
		w.logger.Warn("board or device config changed, restart to apply it")
	}
	if err := ApplyLogConfig(cfg, w.logger); err != nil {
		w.logger.Errorw("error applying log config", "error", err)
	}
	w.logger.Infow("config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(ctx, cfg)
	}
}

// hardwareChanged compares the sections that only take effect at startup.
func hardwareChanged(prev, next *Config) bool {
	type hardware struct {
		Board   interface{}
		Devices interface{}
	}
	a, errA := json.Marshal(hardware{prev.Config, prev.Devices})
	b, errB := json.Marshal(hardware{next.Config, next.Devices})
	return errA != nil || errB != nil || string(a) != string(b)
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.workers.Stop()
	return w.watcher.Close()
}
