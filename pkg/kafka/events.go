package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotEvent announces that a new index snapshot was stored. Searchers
// holding the same key reload when they see one.
type SnapshotEvent struct {
	Key         string    `json:"key"`
	Backend     string    `json:"backend"`
	Format      string    `json:"format"`
	Mode        string    `json:"mode"`
	Docs        int       `json:"docs"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	StoredAt    time.Time `json:"stored_at"`
}

// PublishSnapshot announces ev, keyed by the snapshot key so events for one
// snapshot stay ordered on a single partition.
func (p *Producer) PublishSnapshot(ctx context.Context, ev SnapshotEvent) error {
	if ev.Key == "" {
		return fmt.Errorf("snapshot event without a key")
	}
	if ev.StoredAt.IsZero() {
		ev.StoredAt = time.Now().UTC()
	}
	return p.Publish(ctx, ev.Key, ev)
}

// DecodeSnapshotEvent parses a message value written by PublishSnapshot.
func DecodeSnapshotEvent(value []byte) (SnapshotEvent, error) {
	var ev SnapshotEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return ev, fmt.Errorf("decoding snapshot event: %w", err)
	}
	if ev.Key == "" {
		return ev, fmt.Errorf("decoding snapshot event: missing key")
	}
	return ev, nil
}
