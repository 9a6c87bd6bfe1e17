package editor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/leapstack-labs/flowtask/internal/notifier"
	"github.com/leapstack-labs/flowtask/internal/store"
)

// Autosaver saves the graph once edits have been quiet for a while.
// Every change while dirty restarts the countdown.
type Autosaver struct {
	store  *store.Store
	delay  time.Duration
	save   func(context.Context)
	logger *slog.Logger

	saves atomic.Int64
}

func newAutosaver(st *store.Store, delay time.Duration, save func(context.Context), logger *slog.Logger) *Autosaver {
	return &Autosaver{store: st, delay: delay, save: save, logger: logger}
}

// Saves returns how many times the autosaver has fired.
func (a *Autosaver) Saves() int64 {
	return a.saves.Load()
}

// Run debounces store changes until ctx is cancelled.
func (a *Autosaver) Run(ctx context.Context) {
	sub := a.store.Notifier().Subscribe(notifier.Graph | notifier.Dirty)
	defer a.store.Notifier().Unsubscribe(sub)

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
			return

		case _, ok := <-sub.C:
			if !ok {
				return
			}
			sub.Take()
			if !a.store.IsDirty() {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(a.delay)
			} else {
				timer.Reset(a.delay)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if !a.store.IsDirty() {
				continue
			}
			a.logger.Debug("autosaving")
			a.saves.Add(1)
			a.save(ctx)
		}
	}
}
