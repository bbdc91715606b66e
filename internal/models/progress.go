package models

import "time"

// ProgressEntry is one day of a participant's progress
type ProgressEntry struct {
	Date     time.Time `json:"date"`
	Achieved bool      `json:"achieved"`
	Value    float64   `json:"value"`
}

// ProgressSeries is a snapshot of a participant's progress over the elapsed days
type ProgressSeries struct {
	ChallengeID        int64           `json:"challenge_id"`
	WalletAddress      string          `json:"wallet_address"`
	Goal               float64         `json:"goal"`
	TotalDays          int             `json:"total_days"`
	DaysElapsed        int             `json:"days_elapsed"`
	AchievedDays       int             `json:"achieved_days"`
	SuccessRate        float64         `json:"success_rate"`
	CurrentlySucceeded bool            `json:"currently_succeeded"`
	Entries            []ProgressEntry `json:"entries"`
}
