package finalizer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/motify-engine/internal/events"
	"github.com/terra-clan/motify-engine/internal/metrics"
	"github.com/terra-clan/motify-engine/internal/models"
)

type fakeSource struct {
	mu      sync.Mutex
	pending []*models.Challenge
	err     error
	calls   int
}

func (f *fakeSource) AwaitingFinalization(ctx context.Context) ([]*models.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.pending, f.err
}

func (f *fakeSource) set(pending ...*models.Challenge) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = pending
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRunOnceAnnouncesOnce(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	hub := events.NewHub()
	sub := hub.Subscribe(0)
	defer hub.Unsubscribe(sub)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	w := NewWatcher(src, hub, m, time.Minute)

	src.set(&models.Challenge{ID: 1}, &models.Challenge{ID: 2})
	fresh, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
	assert.Len(t, sub.C, 2)

	e := <-sub.C
	assert.Equal(t, models.EventAwaitingFinalization, e.Type)
	<-sub.C

	fresh, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, fresh)
	assert.Len(t, sub.C, 0)

	// Challenge 1 got finalized, 3 ended
	src.set(&models.Challenge{ID: 2}, &models.Challenge{ID: 3})
	fresh, err = w.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, int64(3), fresh[0].ID)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AwaitingFinalizationGauge()))
}

func TestRunOnceError(t *testing.T) {
	src := &fakeSource{err: errors.New("db down")}
	w := NewWatcher(src, nil, nil, 0)

	_, err := w.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, time.Minute, w.interval)
}

func TestStartRunsImmediately(t *testing.T) {
	src := &fakeSource{}
	w := NewWatcher(src, nil, nil, time.Hour)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	assert.Eventually(t, func() bool { return src.callCount() >= 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
