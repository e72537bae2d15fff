// Package trigger contains the trigger dispatch domain: the TriggerData
// value object, the durable TriggerLog state machine and the plugin trigger
// subscription records that fan external events out to workflows.
package trigger

import (
	"encoding/json"
	"fmt"

	"github.com/triggerflow/dispatch/pkg/domain/shared"
)

// Type represents what kind of trigger caused a dispatch.
type Type string

const (
	TypePlugin  Type = "plugin"
	TypeWebhook Type = "webhook"
	TypeManual  Type = "manual"
)

// IsValid returns true if the trigger type is valid.
func (t Type) IsValid() bool {
	switch t {
	case TypePlugin, TypeWebhook, TypeManual:
		return true
	}
	return false
}

// Data is the immutable value object describing one trigger firing. It is
// serialized verbatim into the TriggerLog row so a reinvoke can rebuild the
// exact same dispatch later. Treat it as read-only once built.
type Data struct {
	TenantID shared.ID `json:"tenant_id"`
	AppID    shared.ID `json:"app_id"`

	// WorkflowID is optional; when nil the latest published workflow of the
	// app is resolved at admission time.
	WorkflowID *shared.ID `json:"workflow_id,omitempty"`

	RootNodeID  string         `json:"root_node_id"`
	TriggerType Type           `json:"trigger_type"`
	Inputs      map[string]any `json:"inputs"`

	// Provenance, informational only.
	PluginID  string `json:"plugin_id,omitempty"`
	EventName string `json:"event_name,omitempty"`
	IconURL   string `json:"icon_url,omitempty"`
}

// NewData builds a validated trigger Data value.
func NewData(tenantID, appID shared.ID, rootNodeID string, triggerType Type, inputs map[string]any) (*Data, error) {
	if tenantID.IsZero() {
		return nil, shared.NewDomainError("VALIDATION", "tenant_id is required", shared.ErrValidation)
	}
	if appID.IsZero() {
		return nil, shared.NewDomainError("VALIDATION", "app_id is required", shared.ErrValidation)
	}
	if rootNodeID == "" {
		return nil, shared.NewDomainError("VALIDATION", "root_node_id is required", shared.ErrValidation)
	}
	if !triggerType.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", fmt.Sprintf("invalid trigger type %q", triggerType), shared.ErrValidation)
	}
	if inputs == nil {
		inputs = map[string]any{}
	}
	return &Data{
		TenantID:    tenantID,
		AppID:       appID,
		RootNodeID:  rootNodeID,
		TriggerType: triggerType,
		Inputs:      inputs,
	}, nil
}

// Marshal serializes the trigger data for durable storage.
func (d *Data) Marshal() ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal trigger data: %w", err)
	}
	return raw, nil
}

// UnmarshalData reconstructs trigger data stored in a TriggerLog row.
func UnmarshalData(raw []byte) (*Data, error) {
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("unmarshal trigger data: %w", err)
	}
	return &d, nil
}
