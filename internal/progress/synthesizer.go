// Package progress turns per-day activity values into a participant's
// progress series and applies the success threshold.
package progress

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/terra-clan/motify-engine/internal/ledger"
	"github.com/terra-clan/motify-engine/internal/lifecycle"
	"github.com/terra-clan/motify-engine/internal/models"
)

// SuccessThreshold is the share of achieved days required to be succeeding
const SuccessThreshold = 0.70

const day = 24 * time.Hour

// Query identifies one day of activity for one participant
type Query struct {
	ChallengeID  int64
	Provider     models.APIProvider
	ServiceType  models.ServiceType
	ActivityType models.ActivityType
	Wallet       string
	Date         time.Time
	Goal         float64
}

// ActivityProvider supplies the activity value for a single day
type ActivityProvider interface {
	FetchDailyActivity(ctx context.Context, q Query) (float64, error)
}

// ActivityProviderFunc adapts a function to ActivityProvider
type ActivityProviderFunc func(ctx context.Context, q Query) (float64, error)

// FetchDailyActivity calls f
func (f ActivityProviderFunc) FetchDailyActivity(ctx context.Context, q Query) (float64, error) {
	return f(ctx, q)
}

// Synthesizer builds progress series from an activity provider
type Synthesizer struct {
	provider ActivityProvider
}

// NewSynthesizer creates a synthesizer backed by provider
func NewSynthesizer(provider ActivityProvider) *Synthesizer {
	return &Synthesizer{provider: provider}
}

// Compute returns the progress of wallet in challenge c at now, or nil if the
// challenge has not started yet.
func (s *Synthesizer) Compute(ctx context.Context, c *models.Challenge, wallet string, goal float64, now time.Time) (*models.ProgressSeries, error) {
	if now.Before(c.StartTime) {
		return nil, nil
	}

	totalDays := lifecycle.CeilDays(c.EndTime.Sub(c.StartTime))
	daysElapsed := lifecycle.CeilDays(now.Sub(c.StartTime))
	if daysElapsed < 1 {
		daysElapsed = 1
	}
	if daysElapsed > totalDays {
		daysElapsed = totalDays
	}
	if daysElapsed < 0 {
		daysElapsed = 0
	}

	wallet = ledger.NormalizeAddress(wallet)
	series := &models.ProgressSeries{
		ChallengeID:   c.ID,
		WalletAddress: wallet,
		Goal:          goal,
		TotalDays:     totalDays,
		DaysElapsed:   daysElapsed,
		Entries:       make([]models.ProgressEntry, 0, daysElapsed),
	}

	for i := 0; i < daysElapsed; i++ {
		date := c.StartTime.Add(time.Duration(i) * day)
		value, err := s.provider.FetchDailyActivity(ctx, Query{
			ChallengeID:  c.ID,
			Provider:     c.APIProvider,
			ServiceType:  c.ServiceType,
			ActivityType: c.ActivityType,
			Wallet:       wallet,
			Date:         date,
			Goal:         goal,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch activity for day %d: %w", i+1, err)
		}

		achieved := value >= goal
		if achieved {
			series.AchievedDays++
		}
		series.Entries = append(series.Entries, models.ProgressEntry{
			Date:     date,
			Achieved: achieved,
			Value:    value,
		})
	}

	series.SuccessRate, series.CurrentlySucceeded = Evaluate(series.AchievedDays, daysElapsed)
	return series, nil
}

// Evaluate applies the success threshold to an achieved/elapsed count
func Evaluate(achieved, elapsed int) (rate float64, succeeded bool) {
	if elapsed <= 0 {
		return 0, false
	}
	rate = float64(achieved) / float64(elapsed)
	return rate, rate >= SuccessThreshold
}

// ParseGoal extracts the numeric target from a goal string like "10" or
// "5 km". Goals without a leading number count as 1.
func ParseGoal(goal string) float64 {
	fields := strings.Fields(goal)
	if len(fields) == 0 {
		return 1
	}
	numeric := strings.TrimRightFunc(fields[0], func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	v, err := strconv.ParseFloat(numeric, 64)
	if err != nil || v <= 0 {
		return 1
	}
	return v
}
