package events

import (
	"context"
	"encoding/json"

	"github.com/crackzone/teams/internal/model"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// Publisher is the subset of *redis.Client the sink needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type redisSink struct {
	client  Publisher
	channel string
}

// NewRedisSink publishes each event as JSON on channel so that the
// notification service can push it to players.
func NewRedisSink(client Publisher, channel string) Sink {
	return &redisSink{client: client, channel: channel}
}

func (s *redisSink) Publish(ctx context.Context, events ...model.Event) error {
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return errors.Wrap(err, "marshal event")
		}
		if err = s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
			return errors.Wrapf(err, "publish %s", e.Type)
		}
	}
	return nil
}
