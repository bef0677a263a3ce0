package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Owner struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Account holds one owner's balance. Version starts at 1 and increases by one
// on every committed balance mutation.
type Account struct {
	ID             uuid.UUID       `json:"id"`
	OwnerID        uuid.UUID       `json:"owner_id"`
	Balance        decimal.Decimal `json:"balance"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Currency       string          `json:"currency"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Transfer is the write-once record of a completed balance movement.
type Transfer struct {
	ID                uuid.UUID       `json:"id"`
	SenderAccountID   uuid.UUID       `json:"sender_account_id"`
	ReceiverAccountID uuid.UUID       `json:"receiver_account_id"`
	Amount            decimal.Decimal `json:"amount"`
	Status            string          `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
}

type OutboxEvent struct {
	ID            uuid.UUID       `json:"id"`
	EventType     string          `json:"event_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	Payload       json.RawMessage `json:"payload"`
	Status        string          `json:"status"`
	Attempts      int32           `json:"attempts"`
	LastError     *string         `json:"last_error,omitempty"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	PublishedAt   *time.Time      `json:"published_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type AuditEntry struct {
	ID         int64           `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	Action     string          `json:"action"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AccountDrift reports an account whose balance disagrees with its transfer history.
type AccountDrift struct {
	AccountID uuid.UUID
	Balance   decimal.Decimal
	Expected  decimal.Decimal
}
