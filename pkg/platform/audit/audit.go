// Package audit emits dispatched-action events to downstream consumers.
//
// The action journal in the store is the system of record; audit events are
// a secondary feed for security monitoring and for modules (notifications,
// dashboards) that react to employee-file changes. Emission is best effort
// and must never fail a dispatch.
package audit

import (
	"context"
	"time"

	id "dossier/pkg/domain"
)

// Event is emitted once per applied action. Keep it transport-agnostic so
// sinks can fan out (Kafka, log, test capture).
type Event struct {
	ActionID       id.ActionID   `json:"action_id"`
	OrgID          id.OrgID      `json:"org_id"`
	EmployeeID     id.EmployeeID `json:"employee_id"`
	ActorID        id.ActorID    `json:"actor_id"`
	ActionKey      string        `json:"action_key"`
	EffectiveAt    string        `json:"effective_at"`
	IdempotencyKey string        `json:"idempotency_key"`
	RequestID      string        `json:"request_id,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

// Publisher delivers events to a sink.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Nop discards all events. Used when no audit sink is configured.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }
