// Package oauth talks to the OAuth backend that owns provider credentials
// for wallets. Signatures are produced by the wallet and passed through
// untouched; verification happens on the backend.
package oauth

import (
	"fmt"
	"time"

	"github.com/terra-clan/motify-engine/internal/ledger"
	"github.com/terra-clan/motify-engine/internal/models"
)

// Actions a wallet can sign for
const (
	ActionConnect    = "connect"
	ActionDisconnect = "disconnect"
)

// ConnectMessage is the text a wallet signs to connect a provider
func ConnectMessage(provider, wallet string, timestamp int64) string {
	return fmt.Sprintf("Connect OAuth provider %s to wallet %s at %d", provider, ledger.NormalizeAddress(wallet), timestamp)
}

// DisconnectMessage is the text a wallet signs to disconnect a provider
func DisconnectMessage(provider, wallet string, timestamp int64) string {
	return fmt.Sprintf("Disconnect OAuth provider %s from wallet %s at %d", provider, ledger.NormalizeAddress(wallet), timestamp)
}

// NewMessage builds the message for action at now
func NewMessage(action, provider, wallet string, now time.Time) (*models.OAuthMessage, error) {
	ts := now.Unix()

	var text string
	switch action {
	case ActionConnect:
		text = ConnectMessage(provider, wallet, ts)
	case ActionDisconnect:
		text = DisconnectMessage(provider, wallet, ts)
	default:
		return nil, fmt.Errorf("unknown oauth action %q", action)
	}

	return &models.OAuthMessage{
		Provider:  provider,
		Action:    action,
		Message:   text,
		Timestamp: ts,
	}, nil
}
