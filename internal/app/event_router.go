package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/triggerflow/dispatch/internal/metrics"
	"github.com/triggerflow/dispatch/pkg/domain/shared"
	"github.com/triggerflow/dispatch/pkg/domain/trigger"
	"github.com/triggerflow/dispatch/pkg/domain/workflow"
	"github.com/triggerflow/dispatch/pkg/logger"
)

// ProviderEvent is one event delivered by an external trigger provider.
type ProviderEvent struct {
	SubscriptionID string
	EventName      string
	PluginID       string
	Inputs         map[string]any
	IconURL        string
}

// InvokeEventResponse is a provider's resolution of one event for one
// subscriber: the trigger-node variables, or a cancelled signal when the
// provider decides this subscriber should not fire for this delivery.
type InvokeEventResponse struct {
	Cancelled bool
	Variables map[string]any
}

// TriggerProvider resolves a raw provider payload into per-subscriber
// trigger variables. Cancelled is an expected outcome, not an error.
type TriggerProvider interface {
	InvokeEvent(ctx context.Context, sub *trigger.PluginTrigger, event ProviderEvent) (*InvokeEventResponse, error)
}

// PassthroughTriggerProvider forwards the raw event payload as every
// subscriber's variables, unchanged. It stands in where no provider plugin
// performs parameter resolution.
type PassthroughTriggerProvider struct{}

// InvokeEvent returns the event inputs as-is and never cancels.
func (PassthroughTriggerProvider) InvokeEvent(_ context.Context, _ *trigger.PluginTrigger, event ProviderEvent) (*InvokeEventResponse, error) {
	return &InvokeEventResponse{Variables: event.Inputs}, nil
}

// InvokeOutcome classifies one subscriber's dispatch attempt.
type InvokeOutcome string

const (
	// InvokeDispatched means a trigger log was queued for the subscriber.
	InvokeDispatched InvokeOutcome = "dispatched"

	// InvokeCancelled means the dispatch was declined for an expected
	// reason: quota exhausted, the provider cancelled the subscriber, or
	// the app no longer has a published workflow carrying the trigger node.
	InvokeCancelled InvokeOutcome = "cancelled"

	// InvokeFailed means the dispatch hit a real error.
	InvokeFailed InvokeOutcome = "failed"
)

// SubscriberResult is the outcome of one subscriber's invoke.
type SubscriberResult struct {
	AppID        shared.ID
	TenantID     shared.ID
	Outcome      InvokeOutcome
	TriggerLogID shared.ID
	Reason       string
}

// FanOutResult summarizes the handling of one provider event.
type FanOutResult struct {
	Subscribers    int
	Dispatched     int
	Cancelled      int
	Failed         int
	DebugDelivered int
	Results        []SubscriberResult
}

// EventRouter fans provider events out to every subscribed workflow. Each
// subscriber is admitted independently: one tenant exhausting its quota or
// one broken workflow never blocks the remaining subscribers, and debug
// delivery never blocks dispatch.
type EventRouter struct {
	subscriptions trigger.SubscriptionRepository
	workflows     workflow.Repository
	provider      TriggerProvider
	admission     *AdmissionService
	debug         *DebugService
	logger        *logger.Logger
}

// NewEventRouter creates a new EventRouter.
func NewEventRouter(
	subscriptions trigger.SubscriptionRepository,
	workflows workflow.Repository,
	provider TriggerProvider,
	admission *AdmissionService,
	debug *DebugService,
	log *logger.Logger,
) *EventRouter {
	return &EventRouter{
		subscriptions: subscriptions,
		workflows:     workflows,
		provider:      provider,
		admission:     admission,
		debug:         debug,
		logger:        log.With("component", "event_router"),
	}
}

// HandleProviderEvent forwards the event to live debug sessions, then
// dispatches the latest published workflow of every subscribed app. The
// returned error covers only the routing itself; per-subscriber failures
// are recorded in the result.
func (r *EventRouter) HandleProviderEvent(ctx context.Context, event ProviderEvent) (*FanOutResult, error) {
	if event.SubscriptionID == "" || event.EventName == "" {
		return nil, shared.NewDomainError("VALIDATION", "subscription_id and event_name are required", shared.ErrValidation)
	}
	metrics.ProviderEventsTotal.WithLabelValues(event.EventName).Inc()

	result := &FanOutResult{}

	// Best effort: debugging is observability, not control flow.
	delivered, err := r.debug.DispatchEvent(ctx, event.SubscriptionID, event.EventName, event.Inputs)
	if err != nil {
		r.logger.Warn("debug dispatch failed",
			"subscription_id", event.SubscriptionID,
			"error", err,
		)
	}
	result.DebugDelivered = delivered

	subs, err := r.subscriptions.ListBySubscriptionAndEvent(ctx, event.SubscriptionID, event.EventName)
	if err != nil {
		return nil, fmt.Errorf("list subscribers for subscription %s: %w", event.SubscriptionID, err)
	}
	result.Subscribers = len(subs)
	metrics.EventFanOutSize.Observe(float64(len(subs)))
	if len(subs) == 0 {
		return result, nil
	}

	// One query for all subscribers; apps without a published workflow are
	// absent from the map and reported as cancelled below.
	appIDs := make([]shared.ID, 0, len(subs))
	for _, sub := range subs {
		appIDs = append(appIDs, sub.AppID)
	}
	published, err := r.workflows.LatestPublishedByApps(ctx, appIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve published workflows: %w", err)
	}

	for _, sub := range subs {
		sr := r.invokeSubscriber(ctx, sub, published[sub.AppID.String()], event)
		result.Results = append(result.Results, sr)
		metrics.EventInvokeOutcomesTotal.WithLabelValues(string(sr.Outcome)).Inc()

		switch sr.Outcome {
		case InvokeDispatched:
			result.Dispatched++
		case InvokeCancelled:
			result.Cancelled++
		case InvokeFailed:
			result.Failed++
		}
	}

	r.logger.Info("provider event routed",
		"subscription_id", event.SubscriptionID,
		"event_name", event.EventName,
		"subscribers", result.Subscribers,
		"dispatched", result.Dispatched,
		"cancelled", result.Cancelled,
		"failed", result.Failed,
		"debug_delivered", result.DebugDelivered,
	)
	return result, nil
}

// HandleProviderEvents routes a batch of events delivered for one
// subscription and returns the total subscriber dispatch count across the
// batch. Events are routed independently: a failure on one event name is
// logged and does not abort the remaining events.
func (r *EventRouter) HandleProviderEvents(ctx context.Context, subscriptionID string, events []ProviderEvent) (int, error) {
	if subscriptionID == "" {
		return 0, shared.NewDomainError("VALIDATION", "subscription_id is required", shared.ErrValidation)
	}

	dispatched := 0
	for _, event := range events {
		event.SubscriptionID = subscriptionID
		result, err := r.HandleProviderEvent(ctx, event)
		if err != nil {
			r.logger.Error("failed to route provider event",
				"subscription_id", subscriptionID,
				"event_name", event.EventName,
				"error", err,
			)
			continue
		}
		dispatched += result.Dispatched
	}
	return dispatched, nil
}

// invokeSubscriber dispatches one subscriber's workflow. It never returns
// an error: everything that can go wrong becomes a classified outcome so
// the caller keeps iterating.
func (r *EventRouter) invokeSubscriber(ctx context.Context, sub *trigger.PluginTrigger, wf *workflow.Workflow, event ProviderEvent) SubscriberResult {
	sr := SubscriberResult{
		AppID:    sub.AppID,
		TenantID: sub.TenantID,
	}

	if wf == nil {
		sr.Outcome = InvokeCancelled
		sr.Reason = "app has no published workflow"
		return sr
	}
	if wf.Graph == nil || wf.Graph.FindNode(sub.NodeID) == nil {
		// Subscription outlived its node; the published version changed.
		sr.Outcome = InvokeCancelled
		sr.Reason = fmt.Sprintf("trigger node %s not present in published workflow", sub.NodeID)
		return sr
	}

	resolved, err := r.provider.InvokeEvent(ctx, sub, event)
	if err != nil {
		r.logger.Error("provider event resolution failed",
			"tenant_id", sub.TenantID,
			"app_id", sub.AppID,
			"plugin_id", sub.PluginID,
			"error", err,
		)
		sr.Outcome = InvokeFailed
		sr.Reason = err.Error()
		return sr
	}
	if resolved.Cancelled {
		sr.Outcome = InvokeCancelled
		sr.Reason = "provider cancelled the event for this subscriber"
		return sr
	}

	data, err := trigger.NewData(sub.TenantID, sub.AppID, sub.NodeID, trigger.TypePlugin, resolved.Variables)
	if err != nil {
		sr.Outcome = InvokeFailed
		sr.Reason = err.Error()
		return sr
	}
	data.WorkflowID = &wf.ID
	data.PluginID = sub.PluginID
	data.EventName = event.EventName
	data.IconURL = event.IconURL

	res, err := r.admission.TriggerWorkflowAsync(ctx, data, trigger.ActorRoleEndUser, shared.ID{})
	if err != nil {
		var rle *RateLimitError
		if errors.As(err, &rle) {
			sr.Outcome = InvokeCancelled
			sr.TriggerLogID = rle.TriggerLogID
			sr.Reason = err.Error()
			return sr
		}
		if errors.Is(err, workflow.ErrNoPublishedWorkflow) {
			sr.Outcome = InvokeCancelled
			sr.Reason = err.Error()
			return sr
		}

		r.logger.Error("subscriber dispatch failed",
			"tenant_id", sub.TenantID,
			"app_id", sub.AppID,
			"error", err,
		)
		sr.Outcome = InvokeFailed
		sr.Reason = err.Error()
		var de *DispatchError
		if errors.As(err, &de) {
			sr.TriggerLogID = de.TriggerLogID
		}
		return sr
	}

	sr.Outcome = InvokeDispatched
	sr.TriggerLogID = res.TriggerLogID
	return sr
}
