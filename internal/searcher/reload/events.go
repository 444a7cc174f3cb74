package reload

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/kafka"
)

// SnapshotHandler returns a kafka.MessageHandler that reloads when a
// snapshot stored under key is announced. Events for other keys are
// acknowledged and ignored. A failed reload is logged, not returned, so a
// bad snapshot does not stall the topic.
func SnapshotHandler(key string, r *Reloader) kafka.MessageHandler {
	logger := slog.Default().With("component", "snapshot-events", "key", key)
	return func(ctx context.Context, _ []byte, value []byte) error {
		ev, err := kafka.DecodeSnapshotEvent(value)
		if err != nil {
			logger.Warn("dropping malformed snapshot event", "error", err)
			return nil
		}
		if ev.Key != key {
			return nil
		}
		logger.Info("snapshot announced",
			"backend", ev.Backend,
			"format", ev.Format,
			"docs", ev.Docs,
			"stored_at", ev.StoredAt,
		)
		if err := r.Reload(ctx, "kafka"); err != nil {
			logger.Warn("keeping previous index", "error", err)
		}
		return nil
	}
}
