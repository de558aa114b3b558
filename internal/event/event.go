package event

import (
	"time"

	"github.com/vk/flowloop/internal/node"
)

// Type names an envelope.
type Type string

// Outbound event types.
const (
	TypeNodeState             Type = "node_state"
	TypeExecutionStatus       Type = "execution_status"
	TypeContinuousUpdate      Type = "continuous_update"
	TypeWorkflowEvent         Type = "workflow_event"
	TypePong                  Type = "pong"
	TypeError                 Type = "error"
	TypeParameterUpdated      Type = "parameter_updated"
	TypeInputUpdateResponse   Type = "input_update_response"
	TypeSubscriptionConfirmed Type = "subscription_confirmed"
)

// Inbound message types.
const (
	TypeInputUpdate Type = "input_update"
	TypeGetStatus   Type = "get_status"
	TypePing        Type = "ping"
	TypeSubscribe   Type = "subscribe"
)

// Workflow lifecycle names carried by workflow_event.
const (
	ContinuousStarted = "continuous_started"
	ContinuousStopped = "continuous_stopped"
	WorkflowStarted   = "workflow_started"
	WorkflowCompleted = "workflow_completed"
	WorkflowError     = "workflow_error"
)

// Cycle status values carried by continuous_update.
const (
	StatusExecuting = "executing"
	StatusCompleted = "completed"
)

// Envelope is the unit delivered to observers.
type Envelope struct {
	Type      Type    `json:"type"`
	Timestamp float64 `json:"timestamp"`
	Data      any     `json:"data,omitempty"`
}

// New wraps data in an envelope stamped with the current time.
func New(t Type, data any) Envelope {
	return Envelope{Type: t, Timestamp: Stamp(time.Now()), Data: data}
}

// Stamp converts a time to fractional Unix seconds.
func Stamp(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

// NodeState reports a phase transition of one node.
type NodeState struct {
	NodeID    string         `json:"node_id"`
	Phase     node.Phase     `json:"phase"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	RTUpdate  any            `json:"rt_update,omitempty"`
	Cycle     int64          `json:"cycle"`
	Timestamp float64        `json:"timestamp"`
}

// NodeStateFrom builds a NodeState payload from a runtime state copy.
func NodeStateFrom(s node.RuntimeState, cycle int64, side any) NodeState {
	ns := NodeState{
		NodeID:    s.NodeID,
		Phase:     s.Phase,
		Error:     s.ErrorMessage(),
		RTUpdate:  side,
		Cycle:     cycle,
		Timestamp: Stamp(s.UpdatedAt),
	}
	if s.Phase == node.PhaseCompleted {
		ns.Result = s.LastResult
	}
	return ns
}

// ExecutionStatus is a point-in-time snapshot of the engine.
type ExecutionStatus struct {
	IsRunning         bool                      `json:"is_running"`
	HasWorkflow       bool                      `json:"has_workflow"`
	ExecutionCount    int64                     `json:"execution_count"`
	LastExecutionTime float64                   `json:"last_execution_time"`
	LoopInterval      float64                   `json:"loop_interval"`
	Results           map[string]map[string]any `json:"results"`
	Errors            map[string]string         `json:"errors,omitempty"`
	Nodes             []NodeSummary             `json:"nodes,omitempty"`
	Overrides         []OverrideSummary         `json:"overrides,omitempty"`
	Observers         int                       `json:"observers"`
	Broadcast         BroadcastStats            `json:"broadcast"`
}

// OverrideSummary is one stored input override.
type OverrideSummary struct {
	NodeID     string  `json:"node_id"`
	InputName  string  `json:"input_name"`
	Value      any     `json:"value"`
	ReceivedAt float64 `json:"received_at"`
}

// BroadcastStats reports the observer hub counters.
type BroadcastStats struct {
	Published   int64    `json:"published"`
	Evictions   int64    `json:"evictions"`
	ObserverIDs []string `json:"observer_ids"`
}

// NodeSummary is the per-node part of ExecutionStatus.
type NodeSummary struct {
	NodeID    string     `json:"node_id"`
	Type      string     `json:"type"`
	Phase     node.Phase `json:"phase"`
	UpdatedAt float64    `json:"updated_at,omitempty"`
}

// ContinuousUpdate is emitted at the start and at the end of every cycle.
type ContinuousUpdate struct {
	ExecutionCount int64                     `json:"execution_count"`
	Status         string                    `json:"status"`
	ExecutionTime  float64                   `json:"execution_time,omitempty"`
	Results        map[string]map[string]any `json:"results,omitempty"`
	Errors         map[string]string         `json:"errors,omitempty"`
}

// WorkflowEvent reports a lifecycle change of the workflow.
type WorkflowEvent struct {
	Event   string `json:"event"`
	Message string `json:"message,omitempty"`
	Name    string `json:"workflow,omitempty"`
	Error   string `json:"error,omitempty"`
	// Cycles is the number of completed cycles when the run stopped.
	Cycles int64 `json:"cycles,omitempty"`
}

// ErrorPayload describes a rejected inbound message.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ParameterUpdated announces an accepted override to every observer.
type ParameterUpdated struct {
	NodeID         string `json:"node_id"`
	ParameterName  string `json:"parameter_name"`
	ParameterValue any    `json:"parameter_value"`
	Success        bool   `json:"success"`
}

// InputUpdateResponse answers an input_update to its sender.
type InputUpdateResponse struct {
	NodeID     string `json:"node_id"`
	InputName  string `json:"input_name"`
	InputValue any    `json:"input_value"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
}

// SubscriptionConfirmed echoes the accepted event type filter.
type SubscriptionConfirmed struct {
	Events []Type `json:"events"`
}

// Pong answers a ping, echoing the client's timestamp when it sent one.
type Pong struct {
	ClientTimestamp any `json:"client_timestamp,omitempty"`
}
