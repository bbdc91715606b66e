package challenge

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
	"github.com/terra-clan/motify-engine/internal/progress"
	"github.com/terra-clan/motify-engine/internal/storage"
)

var now = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

func emptyRepo(challenges ...*models.Challenge) *storage.MemoryRepository {
	return storage.NewMemoryRepository(&storage.Seed{Challenges: challenges}, storage.MemoryConfig{})
}

func alwaysAchieved() *progress.Synthesizer {
	return progress.NewSynthesizer(progress.ActivityProviderFunc(func(ctx context.Context, q progress.Query) (float64, error) {
		return q.Goal, nil
	}))
}

func newManager(repo storage.Repository, opts ...Option) *Manager {
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	return NewManager(repo, storage.NewLocalLocker(), alwaysAchieved(), opts...)
}

func window(id int64, start, end time.Duration) *models.Challenge {
	return &models.Challenge{
		ID:           id,
		Name:         "challenge",
		Goal:         "10",
		StartTime:    now.Add(start),
		EndTime:      now.Add(end),
		ServiceType:  models.ServiceCustom,
		Participants: []models.Participant{},
	}
}

func TestJoinActiveChallenge(t *testing.T) {
	ctx := context.Background()
	m := newManager(emptyRepo(window(1, -24*time.Hour, 24*time.Hour)))

	view, err := m.Join(ctx, 1, models.JoinRequest{WalletAddress: "0xABC", AmountUSD: 0.05})
	require.NoError(t, err)
	assert.Equal(t, models.PhaseActive, view.Phase)
	assert.True(t, view.IsParticipating)
	assert.False(t, view.CanJoin)

	got, err := m.Get(ctx, 1, "0xabc")
	require.NoError(t, err)
	assert.True(t, got.IsParticipating)
	assert.Equal(t, 0.05, got.TotalStake)
	assert.Equal(t, 0.05, got.UserStake)
	assert.Equal(t, 1, got.ParticipantCount)
	assert.Equal(t, int64(1001), got.ChainID)

	series, err := m.Progress(ctx, 1, "0xAbC")
	require.NoError(t, err)
	require.NotNil(t, series)
	assert.Len(t, series.Entries, 1)
	assert.Equal(t, 10.0, series.Goal)
	assert.True(t, series.CurrentlySucceeded)
}

func TestEndedChallengeRejectsEveryone(t *testing.T) {
	ctx := context.Background()
	ended := window(1, -48*time.Hour, -time.Hour)
	ended.Participants = []models.Participant{{WalletAddress: "0xaaa", AmountUSD: 1}}
	m := newManager(emptyRepo(ended))

	for _, wallet := range []string{"0xaaa", "0xbbb", "0xCCC"} {
		view, err := m.Get(ctx, 1, wallet)
		require.NoError(t, err)
		assert.Equal(t, models.PhaseCompleted, view.Phase)
		assert.False(t, view.CanJoin, wallet)
		assert.Equal(t, "Completed", view.TimeRemaining)
	}

	_, err := m.Join(ctx, 1, models.JoinRequest{WalletAddress: "0xbbb", AmountUSD: 1})
	assert.ErrorIs(t, err, models.ErrChallengeEnded)
}

func TestDoubleJoin(t *testing.T) {
	ctx := context.Background()
	m := newManager(emptyRepo(window(1, time.Hour, 48*time.Hour)))

	_, err := m.Join(ctx, 1, models.JoinRequest{WalletAddress: "0xABC", AmountUSD: 0.05})
	require.NoError(t, err)

	_, err = m.Join(ctx, 1, models.JoinRequest{WalletAddress: "0xabc", AmountUSD: 1})
	assert.ErrorIs(t, err, models.ErrAlreadyJoined)

	view, err := m.Get(ctx, 1, "")
	require.NoError(t, err)
	assert.Equal(t, 1, view.ParticipantCount)
	assert.Equal(t, 0.05, view.TotalStake)
	assert.Empty(t, view.Viewer)
}

func TestConcurrentJoinsSameWallet(t *testing.T) {
	ctx := context.Background()
	m := newManager(emptyRepo(window(1, -time.Hour, 48*time.Hour)))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, dup int
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Join(ctx, 1, models.JoinRequest{WalletAddress: "0xABC", AmountUSD: 1})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, models.ErrAlreadyJoined):
				dup++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 15, dup)
}

func TestJoinValidation(t *testing.T) {
	ctx := context.Background()
	m := newManager(emptyRepo(window(1, -time.Hour, time.Hour)))

	_, err := m.Join(ctx, 1, models.JoinRequest{WalletAddress: "  ", AmountUSD: 1})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = m.Join(ctx, 1, models.JoinRequest{WalletAddress: "0xabc", AmountUSD: -1})
	assert.ErrorIs(t, err, models.ErrInvalidStake)

	_, err = m.Join(ctx, 99, models.JoinRequest{WalletAddress: "0xabc", AmountUSD: 1})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// failingRepo fails participant writes with a storage error
type failingRepo struct {
	*storage.MemoryRepository
}

func (r failingRepo) AddParticipant(ctx context.Context, id int64, p models.Participant) error {
	return errors.New("connection reset")
}

func TestJoinPartialFailure(t *testing.T) {
	ctx := context.Background()
	mt := metrics.New(prometheus.NewRegistry())
	m := newManager(failingRepo{emptyRepo(window(1, -time.Hour, time.Hour))}, WithMetrics(mt))

	_, err := m.Join(ctx, 1, models.JoinRequest{WalletAddress: "0xabc", AmountUSD: 1, TxHash: "0xfeed"})

	var pf *models.PartialFailureError
	require.True(t, errors.As(err, &pf))
	assert.Equal(t, "0xfeed", pf.TxHash)
	assert.Equal(t, int64(1), pf.ChallengeID)

	// Without an on-chain transaction the same failure is a plain error
	_, err = m.Join(ctx, 1, models.JoinRequest{WalletAddress: "0xabc", AmountUSD: 1})
	require.Error(t, err)
	assert.False(t, errors.As(err, &pf))

	assert.Equal(t, 1.0, testutil.ToFloat64(mt.JoinsCounter(metrics.JoinPartialFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.JoinsCounter(metrics.JoinError)))
}

func TestCreateAssignsIncreasingIDs(t *testing.T) {
	ctx := context.Background()
	hub := events.NewHub()
	sub := hub.Subscribe(0)
	defer hub.Unsubscribe(sub)

	m := newManager(emptyRepo(window(3, -time.Hour, time.Hour), window(7, -time.Hour, time.Hour)), WithPublisher(hub))

	req := models.CreateChallengeRequest{
		Name:      "  Daily walk ",
		StartTime: now.Add(time.Hour),
		EndTime:   now.Add(72 * time.Hour),
	}

	first, err := m.Create(ctx, req)
	require.NoError(t, err)
	second, err := m.Create(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, int64(8), first.ID)
	assert.Greater(t, second.ID, first.ID)
	assert.Equal(t, "Daily walk", first.Name)
	assert.Equal(t, models.ServiceCustom, first.ServiceType)
	assert.Equal(t, models.PhaseUpcoming, first.Phase)
	assert.Empty(t, first.Participants)
	assert.False(t, first.Completed)

	e := <-sub.C
	assert.Equal(t, models.EventChallengeCreated, e.Type)
	assert.Equal(t, int64(8), e.ChallengeID)
}

func TestCreateValidation(t *testing.T) {
	m := newManager(emptyRepo())

	valid := func() models.CreateChallengeRequest {
		return models.CreateChallengeRequest{
			Name:      "x",
			StartTime: now,
			EndTime:   now.Add(time.Hour),
		}
	}

	tests := []struct {
		name   string
		mutate func(*models.CreateChallengeRequest)
	}{
		{"missing name", func(r *models.CreateChallengeRequest) { r.Name = " " }},
		{"missing times", func(r *models.CreateChallengeRequest) { r.StartTime = time.Time{} }},
		{"end before start", func(r *models.CreateChallengeRequest) { r.EndTime = now.Add(-time.Minute) }},
		{"already ended", func(r *models.CreateChallengeRequest) {
			r.StartTime = now.Add(-2 * time.Hour)
			r.EndTime = now.Add(-time.Hour)
		}},
		{"unknown service", func(r *models.CreateChallengeRequest) { r.ServiceType = "fitbit" }},
		{"unknown activity", func(r *models.CreateChallengeRequest) { r.ActivityType = "swim" }},
		{"unknown provider", func(r *models.CreateChallengeRequest) { r.APIProvider = "garmin" }},
		{"charity without wallet", func(r *models.CreateChallengeRequest) { r.IsCharity = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			_, err := m.Create(context.Background(), req)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestGetByChainID(t *testing.T) {
	ctx := context.Background()
	m := newManager(emptyRepo(window(4, -time.Hour, time.Hour)))

	view, err := m.GetByChainID(ctx, 1004, "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), view.ID)

	_, err = m.GetByChainID(ctx, 4, "")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestEligibility(t *testing.T) {
	ctx := context.Background()
	c := window(1, time.Hour, 48*time.Hour)
	c.Participants = []models.Participant{{WalletAddress: "0xaaa", AmountUSD: 2}}
	m := newManager(emptyRepo(c))

	el, err := m.Eligibility(ctx, 1, "0xAAA")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseUpcoming, el.Phase)
	assert.True(t, el.IsParticipating)
	assert.Equal(t, 2.0, el.Stake)
	assert.False(t, el.CanJoin)

	el, err = m.Eligibility(ctx, 1, "0xbbb")
	require.NoError(t, err)
	assert.True(t, el.CanJoin)

	_, err = m.Eligibility(ctx, 1, "")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestProgress(t *testing.T) {
	ctx := context.Background()
	upcoming := window(1, time.Hour, 48*time.Hour)
	upcoming.Participants = []models.Participant{{WalletAddress: "0xaaa"}}
	active := window(2, -50*time.Hour, 48*time.Hour)
	active.Participants = []models.Participant{{WalletAddress: "0xaaa"}}
	m := newManager(emptyRepo(upcoming, active))

	series, err := m.Progress(ctx, 1, "0xaaa")
	require.NoError(t, err)
	assert.Nil(t, series)

	series, err = m.Progress(ctx, 2, "0xaaa")
	require.NoError(t, err)
	assert.Len(t, series.Entries, 3)
	assert.Equal(t, 5, series.TotalDays)

	_, err = m.Progress(ctx, 2, "0xbbb")
	assert.ErrorIs(t, err, models.ErrNotParticipant)
}

func TestProgressPropagatesRateLimit(t *testing.T) {
	c := window(1, -time.Hour, time.Hour)
	c.Participants = []models.Participant{{WalletAddress: "0xaaa"}}

	synth := progress.NewSynthesizer(progress.ActivityProviderFunc(func(ctx context.Context, q progress.Query) (float64, error) {
		return 0, &models.RateLimitedError{Provider: "github", RetryAfter: time.Minute}
	}))
	m := NewManager(emptyRepo(c), nil, synth, WithClock(fixedClock))

	_, err := m.Progress(context.Background(), 1, "0xaaa")
	var rl *models.RateLimitedError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, time.Minute, rl.RetryAfter)
}

func TestFinalize(t *testing.T) {
	ctx := context.Background()
	hub := events.NewHub()
	sub := hub.Subscribe(2)
	defer hub.Unsubscribe(sub)

	m := newManager(emptyRepo(
		window(1, -time.Hour, time.Hour),
		window(2, -48*time.Hour, -time.Hour),
	), WithPublisher(hub))

	_, err := m.Finalize(ctx, 1)
	assert.ErrorIs(t, err, models.ErrNotEnded)

	pending, err := m.AwaitingFinalization(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(2), pending[0].ID)

	view, err := m.Finalize(ctx, 2)
	require.NoError(t, err)
	assert.True(t, view.Completed)
	assert.Equal(t, models.EventChallengeFinalized, (<-sub.C).Type)

	// Idempotent and silent the second time
	view, err = m.Finalize(ctx, 2)
	require.NoError(t, err)
	assert.True(t, view.Completed)
	assert.Len(t, sub.C, 0)

	pending, err = m.AwaitingFinalization(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = m.Finalize(ctx, 99)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListProjectsForViewer(t *testing.T) {
	a := window(1, -time.Hour, 3*time.Hour)
	a.Participants = []models.Participant{{WalletAddress: "0xaaa", AmountUSD: 3}}
	b := window(2, 5*time.Hour, 7*time.Hour)
	m := newManager(emptyRepo(a, b))

	views, err := m.List(context.Background(), "0xAAA")
	require.NoError(t, err)
	require.Len(t, views, 2)

	assert.True(t, views[0].IsParticipating)
	assert.Equal(t, 3.0, views[0].UserStake)
	assert.False(t, views[0].CanJoin)
	assert.Equal(t, "3 hours left", views[0].TimeRemaining)

	assert.False(t, views[1].IsParticipating)
	assert.True(t, views[1].CanJoin)
	assert.Equal(t, "Starts in 5 hours", views[1].TimeRemaining)
	assert.Equal(t, "2 hours", views[1].DurationLabel)
}
