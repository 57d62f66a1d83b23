package simulate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/linnemanlabs/go-core/log"
)

// reloadOps are the events that can leave new content at the script path:
// in-place writes, and the create or rename of an atomic save.
const reloadOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename

// WatchScript reloads the replay script at path into g whenever the file
// changes, until ctx is done. The parent directory is watched so atomic
// saves that replace the file are seen. A script that fails to parse is
// logged and the previous one stays active.
func WatchScript(ctx context.Context, path string, g *Generator, logger log.Logger) error {
	if logger == nil {
		logger = log.Nop()
	}

	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("replay: watch script: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}

	L := logger.With("path", path)
	L.Info(ctx, "watching replay script for changes")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isScriptEvent(event, target) {
				continue
			}

			s, err := LoadScript(target)
			if err != nil {
				// a rename away leaves nothing to read until the next create
				L.Error(ctx, err, "replay script reload failed, keeping previous script", "op", event.Op.String())
				continue
			}

			g.SetScript(s)
			L.Info(ctx, "replay script reloaded", "name", s.Name, "batches", len(s.Batches))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			L.Error(ctx, err, "replay script watcher error")
		}
	}
}

func isScriptEvent(event fsnotify.Event, target string) bool {
	if event.Op&reloadOps == 0 {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return filepath.Clean(name) == target
}
