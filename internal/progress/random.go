package progress

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// AchieveProbability is the chance a simulated day meets the goal
const AchieveProbability = 0.8

// RandomProvider simulates activity for local development. It is the
// fallback for providers without a real integration.
type RandomProvider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomProvider creates a provider seeded from the clock
func NewRandomProvider() *RandomProvider {
	return NewSeededRandomProvider(uint64(time.Now().UnixNano()))
}

// NewSeededRandomProvider creates a deterministic provider
func NewSeededRandomProvider(seed uint64) *RandomProvider {
	return &RandomProvider{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// FetchDailyActivity returns a value at or above the goal with
// AchieveProbability, otherwise a value below 90% of the goal.
func (p *RandomProvider) FetchDailyActivity(ctx context.Context, q Query) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rng.Float64() < AchieveProbability {
		return q.Goal * (1 + p.rng.Float64()*0.5), nil
	}
	return q.Goal * p.rng.Float64() * 0.9, nil
}
