package models

import "time"

// AuditEntry is an append-only record of a state-changing operation.
// ActorID 0 means the system (background job) acted.
type AuditEntry struct {
	ID        int64          `json:"id"`
	ActorID   int64          `json:"actor_id"`
	Entity    string         `json:"entity"`
	EntityID  int64          `json:"entity_id"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

type WebhookEventStatus string

const (
	WebhookReceived  WebhookEventStatus = "received"
	WebhookProcessed WebhookEventStatus = "processed"
)

// WebhookEvent deduplicates meeting-provider deliveries by content hash.
type WebhookEvent struct {
	ID          string             `json:"id"`
	ContentHash string             `json:"content_hash"`
	Signature   string             `json:"signature"`
	Timestamp   string             `json:"timestamp"`
	Body        []byte             `json:"-"`
	Status      WebhookEventStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
}
