// Package ledger derives participation state from a challenge's participant list.
// Every wallet address is normalized with NormalizeAddress before it is stored
// or compared.
package ledger

import (
	"math"
	"strings"
	"time"

	"github.com/terra-clan/motify-engine/internal/lifecycle"
	"github.com/terra-clan/motify-engine/internal/models"
)

// NormalizeAddress returns the canonical form of a wallet address
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// find returns the index of the participant with the given wallet, or -1
func find(c *models.Challenge, wallet string) int {
	wallet = NormalizeAddress(wallet)
	if wallet == "" {
		return -1
	}
	for i, p := range c.Participants {
		if NormalizeAddress(p.WalletAddress) == wallet {
			return i
		}
	}
	return -1
}

// IsParticipating reports whether the wallet has joined the challenge
func IsParticipating(c *models.Challenge, wallet string) bool {
	return find(c, wallet) >= 0
}

// StakeOf returns the wallet's stake, or 0 if it has not joined
func StakeOf(c *models.Challenge, wallet string) float64 {
	if i := find(c, wallet); i >= 0 {
		return c.Participants[i].AmountUSD
	}
	return 0
}

// TotalStake sums all participants' stakes
func TotalStake(c *models.Challenge) float64 {
	var total float64
	for _, p := range c.Participants {
		total += p.AmountUSD
	}
	return total
}

// CanJoin reports whether the wallet may join the challenge at now
func CanJoin(c *models.Challenge, wallet string, now time.Time) bool {
	if c.Completed {
		return false
	}
	if IsParticipating(c, wallet) {
		return false
	}
	return !lifecycle.IsCompleted(c.StartTime, c.EndTime, now)
}

// CheckJoin validates a join without mutating the challenge
func CheckJoin(c *models.Challenge, wallet string, amount float64, now time.Time) error {
	if NormalizeAddress(wallet) == "" {
		return &models.ValidationError{Field: "wallet_address", Message: "is required"}
	}
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return models.ErrInvalidStake
	}
	if IsParticipating(c, wallet) {
		return models.ErrAlreadyJoined
	}
	if c.Completed || lifecycle.IsCompleted(c.StartTime, c.EndTime, now) {
		return models.ErrChallengeEnded
	}
	return nil
}

// Join appends the wallet to the participant list. Both upcoming and active
// challenges accept joins.
func Join(c *models.Challenge, wallet string, amount float64, now time.Time) (models.Participant, error) {
	if err := CheckJoin(c, wallet, amount, now); err != nil {
		return models.Participant{}, err
	}

	p := models.Participant{
		WalletAddress: NormalizeAddress(wallet),
		AmountUSD:     amount,
		JoinedAt:      now.UTC(),
	}
	c.Participants = append(c.Participants, p)
	return p, nil
}
