package config

import (
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchDisplayFile reloads the options file whenever it changes and hands the
// merged result to apply. Editors replace files on save, so removes/renames
// re-add the watch; bursts of events are debounced.
func WatchDisplayFile(path string, base Display, apply func(Display)) error {
	if path == "" {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					if err := w.Add(ev.Name); err != nil {
						slog.Error("options watch re-add", "path", ev.Name, "err", err)
					}
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					if !debounce.Stop() {
						select {
						case <-debounce.C:
						default:
						}
					}
					debounce.Reset(250 * time.Millisecond)
				}
			case <-debounce.C:
				display, err := LoadDisplayFile(path, base)
				if err != nil {
					slog.Error("options reload failed", "path", path, "err", err)
					continue
				}
				slog.Info("options reloaded", "path", path)
				apply(display)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Error("options watch error", "err", err)
			}
		}
	}()
	return nil
}
