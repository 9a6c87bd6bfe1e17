package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/leapstack-labs/flowtask/internal/flow"
)

// watchDebounce absorbs the burst of events editors emit for one save.
const watchDebounce = 100 * time.Millisecond

// watchGraphFile reloads the watched graph file into the editor whenever it
// changes. The directory is watched rather than the file so that editors
// which save by rename are seen. Unparseable files are logged and skipped.
func (s *Server) watchGraphFile(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	path, err := filepath.Abs(s.watchFile)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}
	s.logger.Info("watching graph file", "path", path)

	var (
		mu            sync.Mutex
		debounceTimer *time.Timer
	)
	defer func() {
		mu.Lock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			mu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				s.reloadGraph(path)
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}

// reloadGraph replaces the editor graph with the contents of path.
func (s *Server) reloadGraph(path string) {
	g, err := flow.ReadGraphFile(path)
	if err != nil {
		s.logger.Warn("graph file not loaded", "path", path, "error", err)
		return
	}
	s.editor.Store().Restore(g)
	// Columns of an externally written graph may no longer match what was cached.
	s.editor.Resolver().Invalidate(s.editor.FlowTaskID())
	s.logger.Info("graph reloaded from file", "path", path, "nodes", len(g.Nodes), "edges", len(g.Edges))
}
