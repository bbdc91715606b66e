// Package finalizer watches for challenges that have ended but have not been
// finalized yet. Finalization itself is an external action; the watcher only
// reports which challenges are waiting for it.
package finalizer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/terra-clan/motify-engine/internal/events"
	"github.com/terra-clan/motify-engine/internal/metrics"
	"github.com/terra-clan/motify-engine/internal/models"
)

// Source lists challenges awaiting finalization
type Source interface {
	AwaitingFinalization(ctx context.Context) ([]*models.Challenge, error)
}

// Watcher periodically scans for challenges awaiting finalization
type Watcher struct {
	source   Source
	events   events.Publisher
	metrics  *metrics.Metrics
	interval time.Duration

	mu        sync.Mutex
	announced map[int64]bool
	scheduler gocron.Scheduler
}

// NewWatcher creates a new finalization watcher
func NewWatcher(source Source, publisher events.Publisher, m *metrics.Metrics, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = time.Minute
	}

	return &Watcher{
		source:    source,
		events:    publisher,
		metrics:   m,
		interval:  interval,
		announced: make(map[int64]bool),
	}
}

// Start schedules the scan, running it once immediately
func (w *Watcher) Start(ctx context.Context) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() {
			if _, err := w.RunOnce(ctx); err != nil {
				slog.Error("finalization scan failed", "error", err)
			}
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		s.Shutdown()
		return fmt.Errorf("failed to schedule finalization scan: %w", err)
	}

	w.mu.Lock()
	w.scheduler = s
	w.mu.Unlock()

	s.Start()
	slog.Info("finalization watcher started", "interval", w.interval)
	return nil
}

// Stop shuts the scheduler down, waiting for a running scan to finish
func (w *Watcher) Stop() error {
	w.mu.Lock()
	s := w.scheduler
	w.scheduler = nil
	w.mu.Unlock()

	if s == nil {
		return nil
	}
	if err := s.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	slog.Info("finalization watcher stopped")
	return nil
}

// RunOnce performs a single scan. Each pending challenge is announced once;
// the returned slice holds the challenges announced by this scan.
func (w *Watcher) RunOnce(ctx context.Context) ([]*models.Challenge, error) {
	slog.Debug("running finalization scan")

	pending, err := w.source.AwaitingFinalization(ctx)
	if err != nil {
		return nil, err
	}
	w.metrics.SetAwaitingFinalization(len(pending))

	w.mu.Lock()
	defer w.mu.Unlock()

	still := make(map[int64]bool, len(pending))
	var fresh []*models.Challenge
	for _, c := range pending {
		still[c.ID] = true
		if w.announced[c.ID] {
			continue
		}
		fresh = append(fresh, c)
	}
	// Forget finalized challenges
	w.announced = still

	for _, c := range fresh {
		slog.Info("challenge awaiting finalization",
			"challenge_id", c.ID,
			"name", c.Name,
			"ended_at", c.EndTime,
			"participants", len(c.Participants),
		)
		if w.events != nil {
			w.events.Publish(models.Event{Type: models.EventAwaitingFinalization, ChallengeID: c.ID})
		}
	}

	return fresh, nil
}
