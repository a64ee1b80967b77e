package entity

import "time"

// WorkflowTask records who was asked to act on which step, and when.
// One row is written per hand-off; rows are never updated.
type WorkflowTask struct {
	ID         int64     `json:"id"`
	InstanceID int64     `json:"instance_id"`
	StepOrder  int       `json:"step_order"`
	AssignedTo int64     `json:"assigned_to"`
	CreatedAt  time.Time `json:"created_at"`
}
