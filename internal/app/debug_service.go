package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/triggerflow/dispatch/internal/config"
	"github.com/triggerflow/dispatch/internal/infra/redis"
	"github.com/triggerflow/dispatch/internal/metrics"
	"github.com/triggerflow/dispatch/pkg/domain/shared"
	"github.com/triggerflow/dispatch/pkg/logger"
)

// DebugStore is the session storage and pub/sub surface the debug service
// runs on. Implemented by redis.DebugSessionStore.
type DebugStore interface {
	CreateSession(ctx context.Context, session *redis.DebugSession) error
	GetSession(ctx context.Context, sessionID string) (*redis.DebugSession, error)
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	DeleteSession(ctx context.Context, subscriptionID, sessionID string) error
	RemoveFromIndex(ctx context.Context, subscriptionID, sessionID string) error
	SessionIDs(ctx context.Context, subscriptionID string) ([]string, error)
	PublishEvent(ctx context.Context, sessionID string, payload []byte) (int64, error)
	SubscribeSession(ctx context.Context, sessionID string) (redis.EventReceiver, error)
}

// DebugEvent is the envelope forwarded to listening debug sessions.
type DebugEvent struct {
	Type           string         `json:"type"`
	SubscriptionID string         `json:"subscription_id,omitempty"`
	EventName      string         `json:"event_name,omitempty"`
	Inputs         map[string]any `json:"inputs,omitempty"`
	ReceivedAt     time.Time      `json:"received_at"`
}

// Debug event envelope types.
const (
	DebugEventTriggered = "triggered"
	DebugEventHeartbeat = "heartbeat"
	DebugEventTimeout   = "timeout"
)

// CreateDebugSessionInput describes a new debug session.
type CreateDebugSessionInput struct {
	SubscriptionID string
	WebhookURL     string
	NodeID         string
	AppID          shared.ID
	UserID         shared.ID
	Timeout        time.Duration
}

// DebugService brokers live trigger debugging: short-lived sessions that
// wait for the next matching provider event and receive it over pub/sub.
// Delivery is strictly best effort and fully independent of trigger logs;
// a debug failure never blocks a dispatch.
type DebugService struct {
	store  DebugStore
	cfg    config.DebugConfig
	logger *logger.Logger
}

// NewDebugService creates a new DebugService.
func NewDebugService(store DebugStore, cfg config.DebugConfig, log *logger.Logger) *DebugService {
	return &DebugService{
		store:  store,
		cfg:    cfg,
		logger: log.With("component", "debug_service"),
	}
}

// CreateSession registers a debug session for a subscription. The session
// and its index entry share one TTL, the listen timeout, capped by the
// configured maximum.
func (s *DebugService) CreateSession(ctx context.Context, in CreateDebugSessionInput) (*redis.DebugSession, error) {
	if in.SubscriptionID == "" {
		return nil, shared.NewDomainError("VALIDATION", "subscription_id is required", shared.ErrValidation)
	}

	timeout := in.Timeout
	if timeout <= 0 || timeout > s.cfg.MaxListenTimeout {
		timeout = s.cfg.MaxListenTimeout
	}

	session := &redis.DebugSession{
		SessionID:      shared.NewID().String(),
		SubscriptionID: in.SubscriptionID,
		WebhookURL:     in.WebhookURL,
		NodeID:         in.NodeID,
		AppID:          in.AppID.String(),
		UserID:         in.UserID.String(),
		Timeout:        timeout,
		CreatedAt:      time.Now(),
	}

	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	metrics.DebugSessionsCreatedTotal.Inc()

	s.logger.Info("debug session created",
		"session_id", session.SessionID,
		"subscription_id", session.SubscriptionID,
		"timeout", timeout,
	)
	return session, nil
}

// DispatchEvent forwards a provider event to every live debug session of a
// subscription and returns the number of sessions that received it. Stale
// index entries are pruned as they are found, and sessions whose channel
// has no subscriber anymore are torn down rather than left to expire.
// Errors on individual sessions are logged and skipped.
func (s *DebugService) DispatchEvent(ctx context.Context, subscriptionID, eventName string, inputs map[string]any) (int, error) {
	sessionIDs, err := s.store.SessionIDs(ctx, subscriptionID)
	if err != nil {
		return 0, fmt.Errorf("list debug sessions for subscription %s: %w", subscriptionID, err)
	}
	if len(sessionIDs) == 0 {
		return 0, nil
	}

	payload, err := json.Marshal(DebugEvent{
		Type:           DebugEventTriggered,
		SubscriptionID: subscriptionID,
		EventName:      eventName,
		Inputs:         inputs,
		ReceivedAt:     time.Now(),
	})
	if err != nil {
		return 0, fmt.Errorf("marshal debug event: %w", err)
	}

	delivered := 0
	for _, sessionID := range sessionIDs {
		alive, err := s.store.SessionExists(ctx, sessionID)
		if err != nil {
			s.logger.Warn("debug session liveness check failed",
				"session_id", sessionID,
				"error", err,
			)
			continue
		}
		if !alive {
			if err := s.store.RemoveFromIndex(ctx, subscriptionID, sessionID); err != nil {
				s.logger.Warn("failed to prune stale debug session",
					"session_id", sessionID,
					"error", err,
				)
			}
			metrics.DebugSessionsPrunedTotal.Inc()
			continue
		}

		receivers, err := s.store.PublishEvent(ctx, sessionID, payload)
		if err != nil {
			s.logger.Warn("failed to publish debug event",
				"session_id", sessionID,
				"error", err,
			)
			continue
		}
		if receivers == 0 {
			// Session record outlived its listener; tear it down.
			if err := s.store.DeleteSession(ctx, subscriptionID, sessionID); err != nil {
				s.logger.Warn("failed to delete unlistened debug session",
					"session_id", sessionID,
					"error", err,
				)
			}
			continue
		}

		delivered++
		metrics.DebugEventsDeliveredTotal.Inc()
	}

	return delivered, nil
}

// ListenResult is the outcome of one debug listen.
type ListenResult struct {
	Payload  []byte
	TimedOut bool
}

// Listen blocks until the session receives its event, its timeout elapses,
// its record is deleted from another process or ctx is cancelled.
// heartbeat, when non-nil, is invoked at the
// configured interval while waiting; a heartbeat error aborts the listen.
// The session is removed when Listen returns, whatever the outcome: a
// session receives at most one event.
func (s *DebugService) Listen(ctx context.Context, sessionID string, heartbeat func() error) (*ListenResult, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, redis.ErrSessionNotFound) {
			return nil, ErrDebugSessionGone
		}
		return nil, err
	}

	defer func() {
		if err := s.store.DeleteSession(context.WithoutCancel(ctx), session.SubscriptionID, sessionID); err != nil {
			s.logger.Warn("failed to clean up debug session",
				"session_id", sessionID,
				"error", err,
			)
		}
	}()

	sub, err := s.store.SubscribeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	deadline := time.Now().Add(session.Timeout)
	lastHeartbeat := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if time.Now().After(deadline) {
			s.logger.Debug("debug session timed out", "session_id", sessionID)
			return &ListenResult{TimedOut: true}, nil
		}

		// Another process may have closed the session (disconnect path);
		// its record disappearing ends the listen immediately.
		alive, err := s.store.SessionExists(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if !alive {
			return nil, ErrDebugSessionGone
		}

		payload, ok, err := sub.Receive(ctx, s.cfg.PollInterval)
		if err != nil {
			return nil, err
		}
		if ok {
			return &ListenResult{Payload: payload}, nil
		}

		if heartbeat != nil && time.Since(lastHeartbeat) >= s.cfg.HeartbeatInterval {
			if err := heartbeat(); err != nil {
				return nil, fmt.Errorf("debug listen heartbeat: %w", err)
			}
			lastHeartbeat = time.Now()
		}
	}
}
