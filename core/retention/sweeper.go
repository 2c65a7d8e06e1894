// Package retention implements the "auto delete old recordings" setting.
package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"CallBox/core/recording"
	"CallBox/logger"
	"CallBox/model"
)

// SettingsSource returns the current user settings.
type SettingsSource interface {
	Get(ctx context.Context) (model.Settings, error)
}

// Library is the part of recording.Service the sweeper needs.
type Library interface {
	OlderThan(ctx context.Context, cutoff time.Time) []*model.Recording
	Delete(ctx context.Context, id string) error
}

// Sweeper deletes recordings older than the configured retention period.
type Sweeper struct {
	settings SettingsSource
	library  Library
	interval time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSweeper creates a sweeper that checks every interval once started.
func NewSweeper(settings SettingsSource, library Library, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		settings: settings,
		library:  library,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Sweep deletes every recording older than now minus the retention period.
// It does nothing when auto delete is off. Individual delete failures are
// logged; the first one is returned after the pass completes.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	st, err := s.settings.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("load settings: %w", err)
	}
	if !st.AutoDelete {
		return 0, nil
	}
	period, err := st.AutoDeleteAfter.Duration()
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-period)
	var firstErr error
	deleted := 0
	for _, r := range s.library.OlderThan(ctx, cutoff) {
		if ctx.Err() != nil {
			return deleted, ctx.Err()
		}
		if err := s.library.Delete(ctx, r.ID); err != nil {
			if errors.Is(err, recording.ErrNotFound) {
				continue
			}
			logger.Warn("自动删除录音失败", logger.String("id", r.ID), logger.ErrorField(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		deleted++
	}

	if deleted > 0 {
		logger.Info("expired recordings deleted",
			logger.Int("count", deleted),
			logger.String("period", string(st.AutoDeleteAfter)))
	}
	return deleted, firstErr
}

// Start 启动定时清理
func (s *Sweeper) Start() {
	logger.Info("retention sweeper started", logger.Duration("interval", s.interval))
	s.wg.Add(1)
	go s.loop()
}

// Stop waits for a running sweep to finish. Calling it again is a no-op.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		logger.Info("retention sweeper stopped")
	})
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case now := <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			if _, err := s.Sweep(ctx, now); err != nil {
				logger.Warn("retention sweep incomplete", logger.ErrorField(err))
			}
			cancel()
		}
	}
}
