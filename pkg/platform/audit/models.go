package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "ezweb/pkg/domain"
)

// Action names a recorded change. Values are stable because downstream
// consumers key on them.
type Action string

const (
	// Registry events
	ActionDefinitionCreated     Action = "definition_created"
	ActionDefinitionUpdated     Action = "definition_updated"
	ActionDefinitionDeactivated Action = "definition_deactivated"
	ActionDefinitionReactivated Action = "definition_reactivated"
	ActionDefinitionDeleted     Action = "definition_deleted"

	// Composition events
	ActionBindingAdded      Action = "binding_added"
	ActionBindingUpdated    Action = "binding_updated"
	ActionBindingDeleted    Action = "binding_deleted"
	ActionBindingsReordered Action = "bindings_reordered"

	// Access events
	ActionAccessDenied Action = "access_denied"
)

// Event is emitted after a mutation commits. Keep it transport-agnostic so
// sinks can fan out to memory, logs or a broker.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Action    Action            `json:"action"`
	Timestamp time.Time         `json:"timestamp"`
	ActorID   id.UserID         `json:"actor_id,omitempty"`
	SiteID    id.SiteID         `json:"site_id,omitempty"`
	Entity    string            `json:"entity,omitempty"`
	EntityID  string            `json:"entity_id,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Key returns the partitioning key for the event. Events of one site share a
// key so a broker preserves their relative order.
func (e Event) Key() string {
	if !e.SiteID.IsNil() {
		return "site:" + e.SiteID.String()
	}
	return "entity:" + e.Entity + ":" + e.EntityID
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
