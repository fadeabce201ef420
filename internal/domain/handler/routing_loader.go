package handler

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/barnabee/barnabee/internal/domain/entity"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// routingFile is the on-disk shape of routing.yaml. Entries overlay the
// built-in routing, so the file only needs to list what it changes.
//
//	routing:
//	  query: conversation
//	  emergency: action
type routingFile struct {
	Routing map[string]string `yaml:"routing"`
}

// LoadRoutingFile parses a YAML routing file into a full table: the
// built-in routing with the file's entries overlaid.
func LoadRoutingFile(path string) (RoutingTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routing file: %w", err)
	}

	var file routingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse routing file: %w", err)
	}
	if len(file.Routing) == 0 {
		return nil, fmt.Errorf("routing file %s declares no routes", path)
	}

	table := DefaultRoutingTable()
	for name, target := range file.Routing {
		intent := entity.Intent(name)
		if !intent.Valid() {
			return nil, fmt.Errorf("routing file %s: unknown intent %q", path, name)
		}
		table[intent] = target
	}
	return table, nil
}

// RoutingWatcher hot-reloads the routing file on change with
// swap-on-validate semantics: a file routing any intent to an unregistered
// handler is rejected and the active table retained.
type RoutingWatcher struct {
	path     string
	router   *Router
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	onReload func()
	logger   *zap.Logger
}

// OnReload registers a callback fired after each successful swap. Must be
// set before Start.
func (w *RoutingWatcher) OnReload(fn func()) { w.onReload = fn }

// NewRoutingWatcher creates a watcher on the routing file's directory
// (editors replace files, so watching the file inode directly misses writes).
func NewRoutingWatcher(path string, router *Router, logger *zap.Logger) (*RoutingWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	return &RoutingWatcher{
		path:    path,
		router:  router,
		watcher: fsw,
		stopCh:  make(chan struct{}),
		logger:  logger.With(zap.String("component", "routing-watcher")),
	}, nil
}

// Start blocks, applying reloads until Stop is called.
func (w *RoutingWatcher) Start() {
	w.logger.Info("Routing watcher started", zap.String("path", w.path))
	for {
		select {
		case <-w.stopCh:
			w.watcher.Close()
			w.logger.Info("Routing watcher stopped")
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Routing watcher error", zap.Error(err))
		}
	}
}

// Stop signals the watcher to shut down.
func (w *RoutingWatcher) Stop() {
	close(w.stopCh)
}

func (w *RoutingWatcher) reload() {
	table, err := LoadRoutingFile(w.path)
	if err != nil {
		w.logger.Warn("Routing reload failed, keeping active table", zap.Error(err))
		return
	}
	if err := w.router.Apply(table); err != nil {
		w.logger.Warn("Routing reload rejected, keeping active table", zap.Error(err))
		return
	}
	w.logger.Info("Routing table reloaded", zap.Int("routes", len(table)))
	if w.onReload != nil {
		w.onReload()
	}
}
