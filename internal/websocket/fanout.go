package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chat-relay/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

// Fanout delivers an encoded frame to every open connection of each
// recipient. Delivery is best effort: no acknowledgement, no retry.
type Fanout interface {
	Deliver(ctx context.Context, recipients []string, payload []byte) error
}

// LocalFanout delivers through this process's registry.
type LocalFanout struct {
	registry *Registry
	drop     func(*Client, error)
	metrics  *Metrics
	logger   *logger.Logger
}

func NewLocalFanout(registry *Registry, drop func(*Client, error), metrics *Metrics, log *logger.Logger) *LocalFanout {
	return &LocalFanout{
		registry: registry,
		drop:     drop,
		metrics:  metrics,
		logger:   log,
	}
}

// Deliver enqueues payload on every connection of every recipient. A failed
// send drops that connection and the loop moves on. The returned error
// combines all per-connection failures.
func (f *LocalFanout) Deliver(_ context.Context, recipients []string, payload []byte) error {
	start := time.Now()
	defer func() { f.metrics.FanoutDuration.Observe(time.Since(start).Seconds()) }()

	var errs error
	seen := make(map[string]struct{}, len(recipients))
	for _, identity := range recipients {
		if _, dup := seen[identity]; dup {
			continue
		}
		seen[identity] = struct{}{}

		for _, client := range f.registry.ConnectionsFor(identity) {
			if err := client.Send(payload); err != nil {
				f.metrics.Deliveries.WithLabelValues("failed").Inc()
				errs = multierr.Append(errs, fmt.Errorf("client %s (%s): %w", client.GetID(), identity, err))
				if f.drop != nil {
					f.drop(client, err)
				}
				continue
			}
			f.metrics.Deliveries.WithLabelValues("sent").Inc()
		}
	}
	return errs
}

// PubSub is the slice of the Redis service used for cross-instance fan-out.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type deliveryEnvelope struct {
	Recipients []string        `json:"recipients"`
	Payload    json.RawMessage `json:"payload"`
}

// RedisFanout publishes deliveries on a Redis channel. Every relay instance
// runs a subscriber that hands them to its LocalFanout, including the
// publishing one.
type RedisFanout struct {
	pubsub  PubSub
	local   *LocalFanout
	channel string
	logger  *logger.Logger
}

func NewRedisFanout(pubsub PubSub, local *LocalFanout, channel string, log *logger.Logger) *RedisFanout {
	return &RedisFanout{
		pubsub:  pubsub,
		local:   local,
		channel: channel,
		logger:  log,
	}
}

func (f *RedisFanout) Deliver(ctx context.Context, recipients []string, payload []byte) error {
	if len(recipients) == 0 {
		return nil
	}
	data, err := json.Marshal(deliveryEnvelope{Recipients: recipients, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal delivery: %w", err)
	}
	return f.pubsub.Publish(ctx, f.channel, data)
}

// Run subscribes and delivers until ctx is done. It returns once the
// subscription is confirmed or failed via ready.
func (f *RedisFanout) Run(ctx context.Context, ready chan<- error) error {
	ps := f.pubsub.Subscribe(ctx, f.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		err = fmt.Errorf("subscribe %s: %w", f.channel, err)
		if ready != nil {
			ready <- err
		}
		return err
	}
	if ready != nil {
		close(ready)
	}
	f.logger.Info("Redis fan-out subscriber started", "channel", f.channel)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			f.logger.Info("Redis fan-out subscriber stopped", "channel", f.channel)
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env deliveryEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				f.logger.Warn("Discarding malformed delivery", "channel", f.channel, "error", err)
				continue
			}
			if err := f.local.Deliver(ctx, env.Recipients, env.Payload); err != nil {
				f.logger.Warn("Some deliveries failed", "error", err)
			}
		}
	}
}
