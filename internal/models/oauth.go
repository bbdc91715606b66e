package models

import "time"

// OAuthStatus is the connection state of a provider for a wallet
type OAuthStatus struct {
	Provider       string     `json:"provider"`
	WalletAddress  string     `json:"wallet_address"`
	HasCredentials bool       `json:"has_credentials"`
	Username       string     `json:"username,omitempty"`
	ConnectedAt    *time.Time `json:"connected_at,omitempty"`
}

// OAuthResult is the outcome of a disconnect call
type OAuthResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// SignedOAuthRequest carries a wallet signature over an OAuth message
type SignedOAuthRequest struct {
	WalletAddress string `json:"wallet_address"`
	Signature     string `json:"signature"`
	Timestamp     int64  `json:"timestamp"`
}

// OAuthMessage is the message a wallet must sign before connecting or disconnecting
type OAuthMessage struct {
	Provider  string `json:"provider"`
	Action    string `json:"action"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}
