package models

import (
	"strings"
	"time"
)

// ApiClient represents an authenticated API client (a frontend, an indexer, an operator)
type ApiClient struct {
	ID          int               `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	ApiKey      string            `json:"-" yaml:"api_key"` // Never serialize
	IsActive    bool              `json:"is_active" yaml:"is_active"`
	CreatedAt   time.Time         `json:"created_at" yaml:"-"`
	LastUsedAt  *time.Time        `json:"last_used_at,omitempty" yaml:"-"`
	Permissions []string          `json:"permissions" yaml:"permissions"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata"`
}

// HasPermission checks if client has specific permission
// Supports wildcard permissions like "challenges:*"
func (c *ApiClient) HasPermission(required string) bool {
	if c == nil || !c.IsActive {
		return false
	}

	for _, perm := range c.Permissions {
		if perm == required || perm == "*" {
			return true
		}

		// "challenges:*" matches "challenges:read"
		if strings.HasSuffix(perm, ":*") {
			prefix := strings.TrimSuffix(perm, "*")
			if strings.HasPrefix(required, prefix) {
				return true
			}
		}
	}

	return false
}

// MaskedApiKey returns first 8 characters of API key for logging
func (c *ApiClient) MaskedApiKey() string {
	return MaskKey(c.ApiKey)
}

// MaskKey returns first 8 chars of a key for safe logging
func MaskKey(key string) string {
	if len(key) < 8 {
		return "***"
	}
	return key[:8] + "..."
}
