package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"riptide/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// LimitsWatcher re-reads the risk section of the config file on change and
// hands the new base limits to subscribers. Only the risk limits are hot;
// everything else requires a restart. Close stops the watch goroutine.
type LimitsWatcher struct {
	path string
	fw   *fsnotify.Watcher
	done chan struct{}

	mu        sync.RWMutex
	current   RiskConfig
	listeners []func(RiskConfig)
}

func NewLimitsWatcher(path string, initial RiskConfig) (*LimitsWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("limits watcher: config path cannot be empty")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("limits watcher: %w", err)
	}
	// watch the directory; editors and atomic writers replace the file
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("limits watcher: %w", err)
	}
	w := &LimitsWatcher{
		path:    path,
		fw:      fw,
		done:    make(chan struct{}),
		current: initial,
	}
	go w.watch()
	return w, nil
}

func (w *LimitsWatcher) watch() {
	defer close(w.done)
	for {
		select {
		case evt, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(w.path) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.reload(); err != nil {
				logger.Errorf("risk limits reload failed (%s): %v", w.path, err)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logger.Warnf("config watch: %v", err)
		}
	}
}

func (w *LimitsWatcher) reload() error {
	v := viper.New()
	v.SetConfigFile(w.path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return err
	}
	cfg.Risk.applyDefaults()
	if err := cfg.Risk.validate(); err != nil {
		return err
	}

	w.mu.Lock()
	changed := cfg.Risk != w.current
	w.current = cfg.Risk
	listeners := make([]func(RiskConfig), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	if !changed {
		return nil
	}
	logger.Infof("risk limits reloaded: max_position=%.3f max_daily_loss=%.3f max_drawdown=%.3f",
		cfg.Risk.MaxPositionSize, cfg.Risk.MaxDailyLoss, cfg.Risk.MaxDrawdown)
	for _, fn := range listeners {
		fn(cfg.Risk)
	}
	return nil
}

// OnChange registers a callback invoked with the new limits after a
// successful reload.
func (w *LimitsWatcher) OnChange(fn func(RiskConfig)) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// Current returns the limits from the last successful (re)load.
func (w *LimitsWatcher) Current() RiskConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops watching and waits for the watch goroutine to exit.
func (w *LimitsWatcher) Close() error {
	err := w.fw.Close()
	<-w.done
	return err
}
