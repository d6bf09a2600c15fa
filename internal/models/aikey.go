package models

import (
	"time"

	"github.com/google/uuid"
)

// AIProvider names a supported text-generation backend.
type AIProvider string

const (
	ProviderOpenAI AIProvider = "openai"
	ProviderOllama AIProvider = "ollama"
)

// AIKey is an admin-managed provider API key. The secret is AES-GCM
// encrypted at rest and only decrypted for the duration of a request.
type AIKey struct {
	ID       uuid.UUID  `db:"id" json:"id"`
	Provider AIProvider `db:"provider" json:"provider"`
	Label    string     `db:"label" json:"label"`

	// EncryptedKey is the base64 AES-GCM ciphertext; never serialized.
	EncryptedKey string `db:"encrypted_key" json:"-"`

	Active bool `db:"active" json:"active"`

	// Usage accounting, incremented by the worker after each call.
	RequestCount     int64   `db:"request_count" json:"request_count"`
	TokensUsed       int64   `db:"tokens_used" json:"tokens_used"`
	EstimatedCostUSD float64 `db:"estimated_cost_usd" json:"estimated_cost_usd"`

	// Consecutive provider auth failures; the key is deactivated once
	// this crosses the service threshold.
	FailureCount int `db:"failure_count" json:"failure_count"`

	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}
