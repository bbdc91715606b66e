package models

import "time"

// EventType names a challenge lifecycle event
type EventType string

const (
	EventChallengeCreated     EventType = "challenge.created"
	EventChallengeJoined      EventType = "challenge.joined"
	EventAwaitingFinalization EventType = "challenge.awaiting_finalization"
	EventChallengeFinalized   EventType = "challenge.finalized"
)

// Event is published on the event hub and streamed to websocket subscribers
type Event struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	ChallengeID   int64     `json:"challenge_id"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	AmountUSD     float64   `json:"amount_usd,omitempty"`
	At            time.Time `json:"at"`
}
