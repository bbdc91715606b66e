package storage

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/terra-clan/motify-engine/internal/ledger"
	"github.com/terra-clan/motify-engine/internal/models"
)

// MemoryConfig holds in-memory repository configuration
type MemoryConfig struct {
	// Every call waits a random duration in [LatencyMin, LatencyMax]
	LatencyMin time.Duration
	LatencyMax time.Duration
}

// MemoryRepository implements Repository in process memory. It is used for
// local development and tests and starts from a seed it can be reset to.
type MemoryRepository struct {
	cfg  MemoryConfig
	seed *Seed

	mu         sync.RWMutex
	challenges []*models.Challenge
	clients    map[string]*models.ApiClient
	nextID     int64

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewMemoryRepository creates a repository holding a copy of seed
func NewMemoryRepository(seed *Seed, cfg MemoryConfig) *MemoryRepository {
	if seed == nil {
		seed = &Seed{}
	}
	if cfg.LatencyMax < cfg.LatencyMin {
		cfg.LatencyMax = cfg.LatencyMin
	}

	r := &MemoryRepository{
		cfg:  cfg,
		seed: seed,
		rng:  rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x6d6f74696679)),
	}
	r.Reset()
	return r
}

// Reset restores the seed challenges, clients and id counter
func (r *MemoryRepository) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.challenges = make([]*models.Challenge, 0, len(r.seed.Challenges))
	var maxID int64
	for _, c := range r.seed.Challenges {
		cp := c.Clone()
		for i := range cp.Participants {
			cp.Participants[i].WalletAddress = ledger.NormalizeAddress(cp.Participants[i].WalletAddress)
		}
		r.challenges = append(r.challenges, cp)
		if c.ID > maxID {
			maxID = c.ID
		}
	}
	r.nextID = maxID + 1

	r.clients = make(map[string]*models.ApiClient, len(r.seed.Clients))
	for _, c := range r.seed.Clients {
		cp := *c
		r.clients[c.ApiKey] = &cp
	}
}

// NextID returns the id the next created challenge will get
func (r *MemoryRepository) NextID() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextID
}

// wait simulates network latency
func (r *MemoryRepository) wait(ctx context.Context) error {
	if r.cfg.LatencyMax <= 0 {
		return ctx.Err()
	}

	d := r.cfg.LatencyMin
	if spread := r.cfg.LatencyMax - r.cfg.LatencyMin; spread > 0 {
		r.rngMu.Lock()
		d += time.Duration(r.rng.Int64N(int64(spread) + 1))
		r.rngMu.Unlock()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *MemoryRepository) find(id int64) *models.Challenge {
	for _, c := range r.challenges {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// ListChallenges returns all challenges in insertion order
func (r *MemoryRepository) ListChallenges(ctx context.Context) ([]*models.Challenge, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Challenge, 0, len(r.challenges))
	for _, c := range r.challenges {
		out = append(out, c.Clone())
	}
	return out, nil
}

// GetChallenge returns a challenge by id, or nil if it does not exist
func (r *MemoryRepository) GetChallenge(ctx context.Context, id int64) (*models.Challenge, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.find(id).Clone(), nil
}

// CreateChallenge stores c under the next id and writes the id back to c
func (r *MemoryRepository) CreateChallenge(ctx context.Context, c *models.Challenge) error {
	if err := r.wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c.ID = r.nextID
	r.nextID++
	c.Participants = []models.Participant{}
	c.Completed = false
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	r.challenges = append(r.challenges, c.Clone())
	return nil
}

// AddParticipant appends p to the challenge's participant list
func (r *MemoryRepository) AddParticipant(ctx context.Context, challengeID int64, p models.Participant) error {
	if err := r.wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.find(challengeID)
	if c == nil {
		return models.ErrNotFound
	}
	if ledger.IsParticipating(c, p.WalletAddress) {
		return ErrDuplicateParticipant
	}

	p.WalletAddress = ledger.NormalizeAddress(p.WalletAddress)
	c.Participants = append(c.Participants, p)
	return nil
}

// MarkCompleted sets the completed flag of a challenge
func (r *MemoryRepository) MarkCompleted(ctx context.Context, id int64) error {
	if err := r.wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.find(id)
	if c == nil {
		return models.ErrNotFound
	}
	c.Completed = true
	return nil
}

// GetClientByApiKey retrieves an API client by its key, or nil
func (r *MemoryRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[apiKey]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// UpdateClientLastUsed records the client's last request time
func (r *MemoryRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[apiKey]; ok {
		now := time.Now().UTC()
		c.LastUsedAt = &now
	}
	return nil
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (r *MemoryRepository) Close() error {
	return nil
}
