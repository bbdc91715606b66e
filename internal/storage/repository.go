package storage

import (
	"context"
	"errors"

	"github.com/terra-clan/motify-engine/internal/models"
)

// ErrDuplicateParticipant is returned when a wallet is added to a challenge twice
var ErrDuplicateParticipant = errors.New("participant already exists")

// Repository defines the interface for challenge persistence
type Repository interface {
	// Challenges
	ListChallenges(ctx context.Context) ([]*models.Challenge, error)
	GetChallenge(ctx context.Context, id int64) (*models.Challenge, error)
	CreateChallenge(ctx context.Context, c *models.Challenge) error
	AddParticipant(ctx context.Context, challengeID int64, p models.Participant) error
	MarkCompleted(ctx context.Context, id int64) error

	// API Clients
	GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error)
	UpdateClientLastUsed(ctx context.Context, apiKey string) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}

// Resetter is implemented by repositories that can restore their seed state
type Resetter interface {
	Reset()
}
