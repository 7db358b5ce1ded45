package audit

import (
	"context"
	"strconv"
	"time"

	"github.com/platinummonkey/arena/pkg/contextkeys"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authorization events
	EventTypeAuthzAccessDenied     EventType = "authz.access_denied"
	EventTypeAuthzPermissionGrant  EventType = "authz.permission_grant"
	EventTypeAuthzPermissionRevoke EventType = "authz.permission_revoke"
	EventTypeAuthzRoleAssign       EventType = "authz.role_assign"
	EventTypeAuthzRoleRevoke       EventType = "authz.role_revoke"

	// Role administration
	EventTypeRoleCreate EventType = "rbac.role_create"
	EventTypeRoleUpdate EventType = "rbac.role_update"
	EventTypeRoleDelete EventType = "rbac.role_delete"

	// Event administration
	EventTypeInvitationCreate EventType = "event.invitation_create"
	EventTypeInvitationAccept EventType = "event.invitation_accept"
	EventTypeInvitationRevoke EventType = "event.invitation_revoke"
	EventTypeAdminRemove      EventType = "event.admin_remove"
	EventTypeEventDelete      EventType = "event.delete"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeRole       ResourceType = "role"
	ResourceTypePermission ResourceType = "permission"
	ResourceTypeUser       ResourceType = "user"
	ResourceTypeEvent      ResourceType = "event"
	ResourceTypeInvitation ResourceType = "invitation"
	ResourceTypeEndpoint   ResourceType = "endpoint"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        int64       `json:"id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	UserID *int64 `json:"user_id,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	RequestID string `json:"request_id,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent creates an event stamped with the current time and the request
// and user ids carried by ctx.
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *AuditEvent {
	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
	}
	if raw := contextkeys.GetUserID(ctx); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			event.UserID = &id
		}
	}
	return event
}

// On sets the resource the event refers to
func (e *AuditEvent) On(resourceType ResourceType, resourceID string) *AuditEvent {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// With adds a metadata entry
func (e *AuditEvent) With(key string, value interface{}) *AuditEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Because sets the human readable message
func (e *AuditEvent) Because(message string) *AuditEvent {
	e.Message = message
	return e
}

// Failed records err on the event
func (e *AuditEvent) Failed(err error) *AuditEvent {
	if err != nil {
		e.ErrorMessage = err.Error()
	}
	return e
}
