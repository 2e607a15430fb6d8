package websocket

import (
	"context"
	"time"

	"chat-relay/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// Resolver turns a room into the identities that should receive its
// messages.
type Resolver struct {
	members MembershipStore
	timeout time.Duration
	group   singleflight.Group
	metrics *Metrics
	logger  *logger.Logger
}

func NewResolver(members MembershipStore, timeout time.Duration, metrics *Metrics, log *logger.Logger) *Resolver {
	return &Resolver{
		members: members,
		timeout: timeout,
		metrics: metrics,
		logger:  log,
	}
}

// ResolveRecipients never fails: a group lookup error or timeout is
// logged and yields no recipients. The sender is included.
func (r *Resolver) ResolveRecipients(ctx context.Context, room Room) []string {
	switch rm := room.(type) {
	case DirectRoom:
		return rm.Participants()
	case GroupRoom:
		return r.groupMembers(ctx, rm.ID)
	default:
		return nil
	}
}

func (r *Resolver) groupMembers(ctx context.Context, groupID string) []string {
	if r.members == nil {
		return nil
	}

	// Concurrent lookups for the same group share one query. The query
	// must outlive any single caller's cancellation.
	v, err, _ := r.group.Do(groupID, func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.members.ListMembers(qctx, groupID)
	})
	if err != nil {
		r.metrics.ResolveFailures.Inc()
		r.logger.Error("Failed to resolve group members", "groupID", groupID, "error", err)
		return nil
	}

	members := v.([]string)
	out := make([]string, len(members))
	copy(out, members)
	return out
}
