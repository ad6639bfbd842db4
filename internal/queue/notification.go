package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"token-alerts/internal/domain"
)

// PushNotification appends a message for the fanout stage.
func (q *Queue) PushNotification(ctx context.Context, msg domain.NotificationMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := q.client.RPush(ctx, q.notificationKey, payload).Err(); err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	return nil
}

// PopNotification blocks up to PopTimeout for the next message; nil, nil on timeout.
// Undecodable messages are dropped with an error log since delivery is best-effort.
func (q *Queue) PopNotification(ctx context.Context) (*domain.NotificationMessage, error) {
	res, err := q.client.BLPop(ctx, q.opts.PopTimeout, q.notificationKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("pop notification: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("pop notification: unexpected reply length %d", len(res))
	}

	var msg domain.NotificationMessage
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		q.logger.Error().Err(err).Str("payload", res[1]).Msg("dropping malformed notification")
		return nil, nil
	}
	return &msg, nil
}

// RequeueNotifications puts messages back at the head of the queue, preserving their order.
func (q *Queue) RequeueNotifications(ctx context.Context, msgs ...domain.NotificationMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		payload, err := json.Marshal(msgs[i])
		if err != nil {
			return fmt.Errorf("marshal notification: %w", err)
		}
		values = append(values, payload)
	}
	if err := q.client.LPush(ctx, q.notificationKey, values...).Err(); err != nil {
		return fmt.Errorf("requeue notifications: %w", err)
	}
	return nil
}
