package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/triggerflow/dispatch/pkg/logger"
)

// Key layout for debug sessions. The session record and the per-subscription
// index set share one TTL, the session's listen timeout, so everything
// self-destructs once nothing can be listening anymore.
const (
	debugSessionKeyPrefix = "debug:session:"
	debugIndexKeyPrefix   = "debug:subscription:"
	debugChannelPrefix    = "debug:events:"
)

// DebugSession is the metadata of one live debugging session. A session
// exists to receive at most one forwarded event before self-terminating.
type DebugSession struct {
	SessionID      string        `json:"session_id"`
	SubscriptionID string        `json:"subscription_id"`
	WebhookURL     string        `json:"webhook_url"`
	NodeID         string        `json:"node_id"`
	AppID          string        `json:"app_id"`
	UserID         string        `json:"user_id"`
	Timeout        time.Duration `json:"timeout"`
	CreatedAt      time.Time     `json:"created_at"`
}

// DebugSessionStore keeps debug sessions in Redis and fans trigger events
// out to them over pub/sub. It is fully independent of trigger logs.
type DebugSessionStore struct {
	client *Client
	logger *logger.Logger
}

// NewDebugSessionStore creates a new DebugSessionStore.
func NewDebugSessionStore(client *Client, log *logger.Logger) *DebugSessionStore {
	return &DebugSessionStore{
		client: client,
		logger: log.With("component", "debug_session_store"),
	}
}

// CreateSession stores the session with a TTL equal to its listen timeout
// and registers it in the subscription's index set.
func (s *DebugSessionStore) CreateSession(ctx context.Context, session *DebugSession) error {
	if session.SessionID == "" || session.SubscriptionID == "" {
		return errors.New("session id and subscription id are required")
	}
	if session.Timeout <= 0 {
		return errors.New("session timeout must be positive")
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal debug session: %w", err)
	}

	rdb := s.client.client
	pipe := rdb.TxPipeline()
	pipe.Set(ctx, debugSessionKeyPrefix+session.SessionID, raw, session.Timeout)
	pipe.SAdd(ctx, debugIndexKeyPrefix+session.SubscriptionID, session.SessionID)
	pipe.Expire(ctx, debugIndexKeyPrefix+session.SubscriptionID, session.Timeout)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store debug session: %w", err)
	}

	s.logger.Debug("debug session created",
		"session_id", session.SessionID,
		"subscription_id", session.SubscriptionID,
		"timeout", session.Timeout,
	)
	return nil
}

// GetSession loads a session, or ErrSessionNotFound when it has expired or
// was never created.
func (s *DebugSessionStore) GetSession(ctx context.Context, sessionID string) (*DebugSession, error) {
	raw, err := s.client.client.Get(ctx, debugSessionKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get debug session: %w", err)
	}

	var session DebugSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal debug session: %w", err)
	}
	return &session, nil
}

// SessionExists reports whether the session record is still alive.
func (s *DebugSessionStore) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.client.Exists(ctx, debugSessionKeyPrefix+sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("debug session exists: %w", err)
	}
	return n > 0, nil
}

// DeleteSession removes the session record and its index entry.
func (s *DebugSessionStore) DeleteSession(ctx context.Context, subscriptionID, sessionID string) error {
	rdb := s.client.client
	pipe := rdb.TxPipeline()
	pipe.Del(ctx, debugSessionKeyPrefix+sessionID)
	pipe.SRem(ctx, debugIndexKeyPrefix+subscriptionID, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete debug session: %w", err)
	}
	return nil
}

// RemoveFromIndex prunes a stale session id from the subscription's set.
func (s *DebugSessionStore) RemoveFromIndex(ctx context.Context, subscriptionID, sessionID string) error {
	if err := s.client.client.SRem(ctx, debugIndexKeyPrefix+subscriptionID, sessionID).Err(); err != nil {
		return fmt.Errorf("remove debug session from index: %w", err)
	}
	return nil
}

// SessionIDs returns the session ids registered for a subscription.
func (s *DebugSessionStore) SessionIDs(ctx context.Context, subscriptionID string) ([]string, error) {
	ids, err := s.client.client.SMembers(ctx, debugIndexKeyPrefix+subscriptionID).Result()
	if err != nil {
		return nil, fmt.Errorf("list debug sessions: %w", err)
	}
	return ids, nil
}

// PublishEvent publishes an event on the session's channel and returns the
// number of live subscribers that received it.
func (s *DebugSessionStore) PublishEvent(ctx context.Context, sessionID string, payload []byte) (int64, error) {
	receivers, err := s.client.client.Publish(ctx, debugChannelPrefix+sessionID, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("publish debug event: %w", err)
	}
	return receivers, nil
}

// EventReceiver is a live subscription to one session's event channel.
type EventReceiver interface {
	Receive(ctx context.Context, wait time.Duration) ([]byte, bool, error)
	Close() error
}

// SessionSubscription is the pub/sub backed EventReceiver.
type SessionSubscription struct {
	pubsub *redis.PubSub
}

// SubscribeSession opens a subscription on the session's event channel.
// The caller must Close it.
func (s *DebugSessionStore) SubscribeSession(ctx context.Context, sessionID string) (EventReceiver, error) {
	pubsub := s.client.client.Subscribe(ctx, debugChannelPrefix+sessionID)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe debug session: %w", err)
	}
	return &SessionSubscription{pubsub: pubsub}, nil
}

// Receive blocks for at most wait and returns the next event payload.
// The second return value is false when the wait elapsed without a message.
func (sub *SessionSubscription) Receive(ctx context.Context, wait time.Duration) ([]byte, bool, error) {
	msg, err := sub.pubsub.ReceiveTimeout(ctx, wait)
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("receive debug event: %w", err)
	}

	switch m := msg.(type) {
	case *redis.Message:
		return []byte(m.Payload), true, nil
	default:
		// Subscription confirmations and pongs are not events.
		return nil, false, nil
	}
}

// Close closes the subscription.
func (sub *SessionSubscription) Close() error {
	return sub.pubsub.Close()
}
