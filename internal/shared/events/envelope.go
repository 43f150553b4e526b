package events

import (
	"encoding/json"
	"time"
)

// Envelope is the canonical, versioned event envelope for cross-service use.
// The shape must stay backward compatible; additions only.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	SourceService string          `json:"source_service"`
	TraceID       string          `json:"trace_id"`
	SchemaVersion int             `json:"schema_version"`
	PartitionKey  string          `json:"partition_key"`
	Data          json.RawMessage `json:"data"`
}
