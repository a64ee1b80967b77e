package entity

import "time"

// WorkflowLog is an append-only audit record of one action on an instance
type WorkflowLog struct {
	ID            int64     `json:"id"`
	InstanceID    int64     `json:"instance_id"`
	ActorID       int64     `json:"actor_id"`
	ActorUsername string    `json:"actor_username,omitempty"`
	StepOrder     int       `json:"step_order"`
	Action        string    `json:"action"`
	Comments      string    `json:"comments"`
	CreatedAt     time.Time `json:"created_at"`
}
