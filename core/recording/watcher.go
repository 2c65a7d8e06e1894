package recording

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CallBox/logger"

	"github.com/fsnotify/fsnotify"
)

// Refresher is the part of Service the watcher drives.
type Refresher interface {
	Refresh(ctx context.Context, force bool) (ScanReport, error)
}

// Watcher triggers a refresh when audio files appear in, or disappear from,
// any watched directory. Bursts of events are collapsed by Debounce.
type Watcher struct {
	dirs     []string
	debounce time.Duration
	target   Refresher
}

// NewWatcher watches dirs. A debounce below 100ms is raised to 100ms.
func NewWatcher(dirs []string, debounce time.Duration, target Refresher) *Watcher {
	if debounce < 100*time.Millisecond {
		debounce = 100 * time.Millisecond
	}
	return &Watcher{dirs: dirs, debounce: debounce, target: target}
}

// Run blocks until ctx is done. It fails only when no directory could be watched.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	watched := 0
	for _, dir := range w.dirs {
		if err := fw.Add(dir); err != nil {
			logger.Warn("cannot watch recording directory", logger.String("dir", dir), logger.ErrorField(err))
			continue
		}
		watched++
	}
	if watched == 0 {
		return errors.New("no recording directory could be watched")
	}
	logger.Info("watching recording directories", logger.Int("count", watched))

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			logger.Debug("recording directory changed", logger.String("file", event.Name), logger.String("op", event.Op.String()))
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			pending = true

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("fsnotify error", logger.ErrorField(err))

		case <-timer.C:
			pending = false
			_, err := w.target.Refresh(ctx, false)
			if errors.Is(err, ErrThrottled) {
				// Try again once the throttle window has passed.
				timer.Reset(w.debounce)
				pending = true
				continue
			}
			if err != nil {
				logger.Warn("refresh after file change failed", logger.ErrorField(err))
			}
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
		return false
	}
	return IsAudioFile(event.Name)
}
