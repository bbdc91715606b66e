package models

import (
	"time"
)

// ServiceType identifies where a challenge's activity is tracked
type ServiceType string

const (
	ServiceStrava ServiceType = "strava"
	ServiceGitHub ServiceType = "github"
	ServiceCustom ServiceType = "custom"
)

// Valid reports whether the service type is one of the known values
func (s ServiceType) Valid() bool {
	switch s {
	case ServiceStrava, ServiceGitHub, ServiceCustom:
		return true
	}
	return false
}

// ActivityType is the kind of activity counted towards the goal
type ActivityType string

const (
	ActivityRun          ActivityType = "run"
	ActivityWalk         ActivityType = "walk"
	ActivityRide         ActivityType = "ride"
	ActivityCommits      ActivityType = "commits"
	ActivityPullRequests ActivityType = "pull_requests"
	ActivityIssuesFixed  ActivityType = "issues_fixed"
)

// Valid reports whether the activity type is one of the known values
func (a ActivityType) Valid() bool {
	switch a {
	case ActivityRun, ActivityWalk, ActivityRide, ActivityCommits, ActivityPullRequests, ActivityIssuesFixed:
		return true
	}
	return false
}

// APIProvider is the upstream service activity data is fetched from
type APIProvider string

const (
	ProviderStrava APIProvider = "strava"
	ProviderGitHub APIProvider = "github"
)

// Valid reports whether the provider is one of the known values
func (p APIProvider) Valid() bool {
	return p == ProviderStrava || p == ProviderGitHub
}

// Phase is the temporal state of a challenge
type Phase string

const (
	PhaseUpcoming  Phase = "upcoming"
	PhaseActive    Phase = "active"
	PhaseCompleted Phase = "completed"
)

// Participant is one wallet's stake in one challenge.
// WalletAddress is always stored normalized (lower-case).
type Participant struct {
	WalletAddress string    `json:"wallet_address"`
	AmountUSD     float64   `json:"amount_usd"`
	JoinedAt      time.Time `json:"joined_at"`
	TxHash        string    `json:"tx_hash,omitempty"`
}

// Challenge is the persisted challenge record
type Challenge struct {
	ID            int64         `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Goal          string        `json:"goal"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	ServiceType   ServiceType   `json:"service_type"`
	ActivityType  ActivityType  `json:"activity_type,omitempty"`
	APIProvider   APIProvider   `json:"api_provider,omitempty"`
	IsCharity     bool          `json:"is_charity"`
	CharityWallet string        `json:"charity_wallet,omitempty"`
	Completed     bool          `json:"completed"`
	Participants  []Participant `json:"participants"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Clone returns a deep copy of the challenge
func (c *Challenge) Clone() *Challenge {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Participants = make([]Participant, len(c.Participants))
	copy(cp.Participants, c.Participants)
	return &cp
}

// ChallengeView is a read-side projection of a challenge, computed on every read
type ChallengeView struct {
	*Challenge
	ChainID          int64   `json:"chain_id"`
	Phase            Phase   `json:"phase"`
	TimeRemaining    string  `json:"time_remaining"`
	DurationLabel    string  `json:"duration_label"`
	TotalStake       float64 `json:"total_stake"`
	ParticipantCount int     `json:"participant_count"`

	// Viewer-specific fields, only set when a wallet was supplied
	Viewer          string  `json:"viewer,omitempty"`
	IsParticipating bool    `json:"is_participating"`
	UserStake       float64 `json:"user_stake"`
	CanJoin         bool    `json:"can_join"`
}

// Eligibility describes whether a wallet may join a challenge
type Eligibility struct {
	ChallengeID     int64   `json:"challenge_id"`
	WalletAddress   string  `json:"wallet_address"`
	Phase           Phase   `json:"phase"`
	IsParticipating bool    `json:"is_participating"`
	Stake           float64 `json:"stake"`
	CanJoin         bool    `json:"can_join"`
}

// CreateChallengeRequest represents a request to create a challenge
type CreateChallengeRequest struct {
	Name          string       `json:"name" yaml:"name"`
	Description   string       `json:"description" yaml:"description"`
	Goal          string       `json:"goal" yaml:"goal"`
	StartTime     time.Time    `json:"start_time" yaml:"start_time"`
	EndTime       time.Time    `json:"end_time" yaml:"end_time"`
	ServiceType   ServiceType  `json:"service_type" yaml:"service_type"`
	ActivityType  ActivityType `json:"activity_type,omitempty" yaml:"activity_type"`
	APIProvider   APIProvider  `json:"api_provider,omitempty" yaml:"api_provider"`
	IsCharity     bool         `json:"is_charity" yaml:"is_charity"`
	CharityWallet string       `json:"charity_wallet,omitempty" yaml:"charity_wallet"`
}

// JoinRequest represents a request to join a challenge
type JoinRequest struct {
	WalletAddress string  `json:"wallet_address"`
	AmountUSD     float64 `json:"amount_usd"`
	// TxHash is the on-chain join transaction, if the stake was already submitted
	TxHash string `json:"tx_hash,omitempty"`
}
