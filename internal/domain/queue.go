package domain

import "time"

// EventKind enumerates the two on-chain log topics the system mirrors.
type EventKind string

const (
	EventClearV2     EventKind = "ClearV2"
	EventTakeOrderV2 EventKind = "TakeOrderV2"
)

// QueuedEvent is the durable, deduplicated representation of one
// on-chain log record. Identity is (TxHash, LogIndex).
type QueuedEvent struct {
	ID          int64
	TxHash      string
	LogIndex    uint
	BlockNumber uint64
	Kind        EventKind
	Blob        []byte // opaque, round-trip decodable serialized payload
	Processed   bool
	CreatedAt   time.Time
	ProcessedAt *time.Time
}
