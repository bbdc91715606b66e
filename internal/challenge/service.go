// Package challenge implements challenge operations on top of the repository:
// read projections, creation, joining, progress and finalization.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/terra-clan/motify-engine/internal/chain"
	"github.com/terra-clan/motify-engine/internal/events"
	"github.com/terra-clan/motify-engine/internal/ledger"
	"github.com/terra-clan/motify-engine/internal/lifecycle"
	"github.com/terra-clan/motify-engine/internal/metrics"
	"github.com/terra-clan/motify-engine/internal/models"
	"github.com/terra-clan/motify-engine/internal/progress"
	"github.com/terra-clan/motify-engine/internal/storage"
)

// Service defines the interface for challenge management
type Service interface {
	List(ctx context.Context, viewer string) ([]*models.ChallengeView, error)
	Get(ctx context.Context, id int64, viewer string) (*models.ChallengeView, error)
	GetByChainID(ctx context.Context, chainID int64, viewer string) (*models.ChallengeView, error)
	Create(ctx context.Context, req models.CreateChallengeRequest) (*models.ChallengeView, error)
	Join(ctx context.Context, id int64, req models.JoinRequest) (*models.ChallengeView, error)
	Eligibility(ctx context.Context, id int64, wallet string) (*models.Eligibility, error)
	Progress(ctx context.Context, id int64, wallet string) (*models.ProgressSeries, error)
	Finalize(ctx context.Context, id int64) (*models.ChallengeView, error)
	AwaitingFinalization(ctx context.Context) ([]*models.Challenge, error)
	Ping(ctx context.Context) error
}

// Manager implements Service
type Manager struct {
	repo    storage.Repository
	locker  storage.JoinLocker
	synth   *progress.Synthesizer
	ids     chain.IDMapper
	events  events.Publisher
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithIDMapper sets the frontend/on-chain id mapping
func WithIDMapper(ids chain.IDMapper) Option {
	return func(m *Manager) {
		m.ids = ids
	}
}

// WithPublisher sets the event publisher
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) {
		m.events = p
	}
}

// WithMetrics sets the metrics collectors
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a new challenge manager
func NewManager(repo storage.Repository, locker storage.JoinLocker, synth *progress.Synthesizer, opts ...Option) *Manager {
	m := &Manager{
		repo:   repo,
		locker: locker,
		synth:  synth,
		ids:    chain.NewIDMapper(chain.DefaultOffset),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.locker == nil {
		m.locker = storage.NewLocalLocker()
	}
	return m
}

// Ping checks repository connectivity
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.repo.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// View projects a challenge at now for an optional viewer wallet
func (m *Manager) View(c *models.Challenge, viewer string, now time.Time) *models.ChallengeView {
	v := &models.ChallengeView{
		Challenge:        c,
		ChainID:          m.ids.ToChain(c.ID),
		Phase:            lifecycle.PhaseOf(c, now),
		TimeRemaining:    lifecycle.TimeRemaining(c.StartTime, c.EndTime, now),
		DurationLabel:    lifecycle.DurationLabel(c.StartTime, c.EndTime, now),
		TotalStake:       ledger.TotalStake(c),
		ParticipantCount: len(c.Participants),
	}

	if viewer = ledger.NormalizeAddress(viewer); viewer != "" {
		v.Viewer = viewer
		v.IsParticipating = ledger.IsParticipating(c, viewer)
		v.UserStake = ledger.StakeOf(c, viewer)
		v.CanJoin = ledger.CanJoin(c, viewer, now)
	}

	return v
}

// List returns all challenges projected for viewer
func (m *Manager) List(ctx context.Context, viewer string) ([]*models.ChallengeView, error) {
	challenges, err := m.repo.ListChallenges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}

	now := m.now()
	views := make([]*models.ChallengeView, 0, len(challenges))
	for _, c := range challenges {
		views = append(views, m.View(c, viewer, now))
	}
	return views, nil
}

func (m *Manager) load(ctx context.Context, id int64) (*models.Challenge, error) {
	c, err := m.repo.GetChallenge(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	if c == nil {
		return nil, models.ErrNotFound
	}
	return c, nil
}

// Get returns one challenge projected for viewer
func (m *Manager) Get(ctx context.Context, id int64, viewer string) (*models.ChallengeView, error) {
	c, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.View(c, viewer, m.now()), nil
}

// GetByChainID resolves an on-chain id and returns the challenge
func (m *Manager) GetByChainID(ctx context.Context, chainID int64, viewer string) (*models.ChallengeView, error) {
	id := m.ids.FromChain(chainID)
	if id <= 0 {
		return nil, models.ErrNotFound
	}
	return m.Get(ctx, id, viewer)
}

// Create validates req and stores a new challenge with no participants
func (m *Manager) Create(ctx context.Context, req models.CreateChallengeRequest) (*models.ChallengeView, error) {
	now := m.now()
	if err := validateCreate(&req, now); err != nil {
		return nil, err
	}

	c := &models.Challenge{
		Name:          req.Name,
		Description:   req.Description,
		Goal:          req.Goal,
		StartTime:     req.StartTime.UTC(),
		EndTime:       req.EndTime.UTC(),
		ServiceType:   req.ServiceType,
		ActivityType:  req.ActivityType,
		APIProvider:   req.APIProvider,
		IsCharity:     req.IsCharity,
		CharityWallet: ledger.NormalizeAddress(req.CharityWallet),
		CreatedAt:     now.UTC(),
	}

	if err := m.repo.CreateChallenge(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	slog.Info("challenge created", "challenge_id", c.ID, "name", c.Name, "service_type", c.ServiceType)
	m.metrics.ChallengeCreated()
	m.publish(models.Event{Type: models.EventChallengeCreated, ChallengeID: c.ID})

	return m.View(c, "", now), nil
}

func validateCreate(req *models.CreateChallengeRequest, now time.Time) error {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return &models.ValidationError{Field: "name", Message: "is required"}
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		return &models.ValidationError{Field: "start_time", Message: "start_time and end_time are required"}
	}
	if !req.EndTime.After(req.StartTime) {
		return &models.ValidationError{Field: "end_time", Message: "must be after start_time"}
	}
	if !req.EndTime.After(now) {
		return &models.ValidationError{Field: "end_time", Message: "must be in the future"}
	}

	if req.ServiceType == "" {
		req.ServiceType = models.ServiceCustom
	}
	if !req.ServiceType.Valid() {
		return &models.ValidationError{Field: "service_type", Message: fmt.Sprintf("unknown value %q", req.ServiceType)}
	}
	if req.ActivityType != "" && !req.ActivityType.Valid() {
		return &models.ValidationError{Field: "activity_type", Message: fmt.Sprintf("unknown value %q", req.ActivityType)}
	}
	if req.APIProvider != "" && !req.APIProvider.Valid() {
		return &models.ValidationError{Field: "api_provider", Message: fmt.Sprintf("unknown value %q", req.APIProvider)}
	}
	if req.IsCharity && strings.TrimSpace(req.CharityWallet) == "" {
		return &models.ValidationError{Field: "charity_wallet", Message: "is required for charity challenges"}
	}

	return nil
}

// Join records req.WalletAddress as a participant. Joins of the same wallet
// into the same challenge are serialized by the join locker.
func (m *Manager) Join(ctx context.Context, id int64, req models.JoinRequest) (*models.ChallengeView, error) {
	wallet := ledger.NormalizeAddress(req.WalletAddress)
	if wallet == "" {
		return nil, &models.ValidationError{Field: "wallet_address", Message: "is required"}
	}

	unlock, err := m.locker.Lock(ctx, id, wallet)
	if err != nil {
		return nil, m.joinFailure(id, req.TxHash, fmt.Errorf("failed to acquire join lock: %w", err))
	}
	defer unlock()

	c, err := m.load(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, m.joinFailure(id, req.TxHash, err)
	}

	now := m.now()
	p, err := ledger.Join(c, wallet, req.AmountUSD, now)
	if err != nil {
		m.metrics.Join(joinResult(err), 0)
		return nil, err
	}
	p.TxHash = req.TxHash

	if err := m.repo.AddParticipant(ctx, id, p); err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicateParticipant):
			m.metrics.Join(metrics.JoinAlreadyJoined, 0)
			return nil, models.ErrAlreadyJoined
		case errors.Is(err, models.ErrNotFound):
			return nil, err
		}
		return nil, m.joinFailure(id, req.TxHash, fmt.Errorf("failed to record participant: %w", err))
	}

	c.Participants[len(c.Participants)-1] = p

	slog.Info("challenge joined",
		"challenge_id", id,
		"wallet", wallet,
		"amount_usd", p.AmountUSD,
		"tx_hash", p.TxHash,
	)
	m.metrics.Join(metrics.JoinOK, p.AmountUSD)
	m.publish(models.Event{
		Type:          models.EventChallengeJoined,
		ChallengeID:   id,
		WalletAddress: wallet,
		AmountUSD:     p.AmountUSD,
	})

	return m.View(c, wallet, now), nil
}

// joinFailure wraps and counts a non-domain join error. A join that already
// has an on-chain transaction is reported as a partial failure.
func (m *Manager) joinFailure(id int64, txHash string, err error) error {
	if txHash == "" {
		m.metrics.Join(metrics.JoinError, 0)
		return err
	}
	m.metrics.Join(metrics.JoinPartialFailure, 0)
	slog.Error("on-chain join not recorded", "challenge_id", id, "tx_hash", txHash, "error", err)
	return &models.PartialFailureError{ChallengeID: id, TxHash: txHash, Err: err}
}

func joinResult(err error) string {
	switch {
	case errors.Is(err, models.ErrAlreadyJoined):
		return metrics.JoinAlreadyJoined
	case errors.Is(err, models.ErrChallengeEnded):
		return metrics.JoinChallengeEnded
	case errors.Is(err, models.ErrInvalidStake):
		return metrics.JoinInvalidStake
	default:
		return metrics.JoinError
	}
}

// Eligibility reports whether wallet may join the challenge right now
func (m *Manager) Eligibility(ctx context.Context, id int64, wallet string) (*models.Eligibility, error) {
	wallet = ledger.NormalizeAddress(wallet)
	if wallet == "" {
		return nil, &models.ValidationError{Field: "wallet", Message: "is required"}
	}

	c, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := m.now()
	return &models.Eligibility{
		ChallengeID:     c.ID,
		WalletAddress:   wallet,
		Phase:           lifecycle.PhaseOf(c, now),
		IsParticipating: ledger.IsParticipating(c, wallet),
		Stake:           ledger.StakeOf(c, wallet),
		CanJoin:         ledger.CanJoin(c, wallet, now),
	}, nil
}

// Progress returns the participant's progress series, or nil before the start
func (m *Manager) Progress(ctx context.Context, id int64, wallet string) (*models.ProgressSeries, error) {
	wallet = ledger.NormalizeAddress(wallet)
	if wallet == "" {
		return nil, &models.ValidationError{Field: "wallet", Message: "is required"}
	}

	c, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ledger.IsParticipating(c, wallet) {
		return nil, models.ErrNotParticipant
	}

	series, err := m.synth.Compute(ctx, c, wallet, progress.ParseGoal(c.Goal), m.now())
	if err != nil {
		var rl *models.RateLimitedError
		if errors.As(err, &rl) {
			m.metrics.ProviderRateLimited(rl.Provider)
		}
		return nil, err
	}
	return series, nil
}

// Finalize sets the completed flag once the challenge has temporally ended.
// Finalizing an already finalized challenge is a no-op.
func (m *Manager) Finalize(ctx context.Context, id int64) (*models.ChallengeView, error) {
	c, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := m.now()
	if c.Completed {
		return m.View(c, "", now), nil
	}
	if !lifecycle.IsCompleted(c.StartTime, c.EndTime, now) {
		return nil, models.ErrNotEnded
	}

	if err := m.repo.MarkCompleted(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to finalize challenge: %w", err)
	}
	c.Completed = true

	slog.Info("challenge finalized",
		"challenge_id", id,
		"participants", len(c.Participants),
		"total_stake", ledger.TotalStake(c),
	)
	m.metrics.ChallengeFinalized()
	m.publish(models.Event{Type: models.EventChallengeFinalized, ChallengeID: id})

	return m.View(c, "", now), nil
}

// AwaitingFinalization returns challenges past their end that are not completed
func (m *Manager) AwaitingFinalization(ctx context.Context) ([]*models.Challenge, error) {
	challenges, err := m.repo.ListChallenges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}

	now := m.now()
	var pending []*models.Challenge
	for _, c := range challenges {
		if !c.Completed && lifecycle.IsCompleted(c.StartTime, c.EndTime, now) {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

func (m *Manager) publish(e models.Event) {
	if m.events == nil {
		return
	}
	if e.At.IsZero() {
		e.At = m.now().UTC()
	}
	m.events.Publish(e)
}
