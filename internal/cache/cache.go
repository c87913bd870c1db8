package cache

import "context"

// CorrelationCache maps provider message ids back to internal message
// ids so delivery callbacks skip a table scan on the hot path. The
// store remains authoritative; a miss just falls through to sqlite.
type CorrelationCache interface {
	StoreCorrelation(ctx context.Context, providerMessageID, messageID string) error
	// LookupCorrelation returns "" on miss.
	LookupCorrelation(ctx context.Context, providerMessageID string) (string, error)
}

// TriggerGuard is the fast-path duplicate filter for drip triggers.
// The unique index in the store is the real guarantee.
type TriggerGuard interface {
	// ClaimTrigger reports true when this process is the first to claim
	// the trigger id.
	ClaimTrigger(ctx context.Context, triggerID string) (bool, error)
	ReleaseTrigger(ctx context.Context, triggerID string) error
}
