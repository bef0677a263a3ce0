package domain

// Strategy selects the concurrency control used by the transfer engine.
type Strategy string

const (
	StrategyPessimistic Strategy = "pessimistic"
	StrategyOptimistic  Strategy = "optimistic"
)

// Valid reports whether s names a supported strategy.
func (s Strategy) Valid() bool {
	return s == StrategyPessimistic || s == StrategyOptimistic
}

// ParseStrategy resolves a client-supplied strategy name, falling back to def when raw is empty.
func ParseStrategy(raw string, def Strategy) (Strategy, bool) {
	if raw == "" {
		return def, def.Valid()
	}
	s := Strategy(raw)
	return s, s.Valid()
}

// Party names the side of a transfer an account plays.
type Party string

const (
	PartySender   Party = "sender"
	PartyReceiver Party = "receiver"
)

const (
	// PENDING and FAILED are reserved for asynchronous flows; the engine only persists COMPLETED.
	TransferStatusPending   = "PENDING"
	TransferStatusCompleted = "COMPLETED"
	TransferStatusFailed    = "FAILED"

	OutboxStatusPending    = "PENDING"
	OutboxStatusProcessing = "PROCESSING"
	OutboxStatusPublished  = "PUBLISHED"
	OutboxStatusFailed     = "FAILED"

	EventTransferNotification = "transfer.notification"
	EventTransferAudit        = "transfer.audit"

	RoleUser  = "user"
	RoleAdmin = "admin"

	DefaultCurrency = "USD"
)
