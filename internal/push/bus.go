// Package push delivers asynchronous field-change updates per loan
// application over Redis pub/sub. Delivery order is NOT guaranteed;
// consumers rely on the verification trackers' monotonic rule to drop
// anything stale.
package push

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// FieldUpdate is one pushed field change for an application.
type FieldUpdate struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

const channelPrefix = "application:updates:"

func channelFor(loanID string) string {
	return channelPrefix + loanID
}

// Bus publishes and subscribes to per-application update channels.
type Bus struct {
	rdb *redis.Client
	log *logrus.Entry
}

func NewBus(rdb *redis.Client, log *logrus.Logger) *Bus {
	return &Bus{
		rdb: rdb,
		log: log.WithField("component", "push"),
	}
}

// Publish sends a field update to everyone watching the application.
func (b *Bus) Publish(ctx context.Context, loanID string, update FieldUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelFor(loanID), payload).Err()
}

// Subscribe returns a channel of updates for one application and a cancel
// function. Cancel must be called when the flow is abandoned or completed;
// it closes the subscription and the returned channel.
func (b *Bus) Subscribe(ctx context.Context, loanID string) (<-chan FieldUpdate, func(), error) {
	sub := b.rdb.Subscribe(ctx, channelFor(loanID))

	// Force the subscription to be established before returning.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan FieldUpdate, 16)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var update FieldUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				b.log.WithError(err).WithField("loan_id", loanID).Warn("dropping malformed push update")
				continue
			}
			out <- update
		}
	}()

	cancel := func() {
		if err := sub.Close(); err != nil {
			b.log.WithError(err).WithField("loan_id", loanID).Warn("closing push subscription")
		}
	}

	return out, cancel, nil
}
