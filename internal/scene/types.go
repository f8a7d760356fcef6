package scene

import (
	"time"

	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// Scene is a stored set of light states applied together. Actions run in
// sequential groups; an action with Parallel set joins the group of the
// action before it.
type Scene struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`

	RoomID *string `json:"room_id,omitempty"`
	Icon   *string `json:"icon,omitempty"`

	Enabled bool `json:"enabled"`

	Actions   []Action `json:"actions"`
	SortOrder int      `json:"sort_order"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Action writes one partial state to one catalogued device.
type Action struct {
	DeviceID string         `json:"device_id"`
	State    lighting.State `json:"state"`

	// DelayMS waits before the write, measured from the start of its group.
	DelayMS         int  `json:"delay_ms"`
	Parallel        bool `json:"parallel"`
	ContinueOnError bool `json:"continue_on_error"`
}

// ExecutionStatus is the outcome of one activation.
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusPartial   ExecutionStatus = "partial"
	StatusFailed    ExecutionStatus = "failed"
	StatusCancelled ExecutionStatus = "cancelled"
)

// Execution records one activation of a scene.
type Execution struct {
	ID      string          `json:"id"`
	SceneID string          `json:"scene_id"`
	Status  ExecutionStatus `json:"status"`

	// Subject is the caller that triggered the activation, if known.
	Subject string `json:"subject,omitempty"`

	ActionsTotal     int `json:"actions_total"`
	ActionsCompleted int `json:"actions_completed"`
	ActionsFailed    int `json:"actions_failed"`
	ActionsSkipped   int `json:"actions_skipped"`

	Failures []ActionFailure `json:"failures,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  int        `json:"duration_ms"`
}

// ActionFailure describes one action that did not apply.
type ActionFailure struct {
	// ActionIndex is the position in Scene.Actions.
	ActionIndex int    `json:"action_index"`
	DeviceID    string `json:"device_id"`
	Kind        string `json:"kind"`
	Message     string `json:"message"`
}

// DeepCopy returns a copy sharing no pointers or slices with s.
func (s *Scene) DeepCopy() *Scene {
	if s == nil {
		return nil
	}

	cpy := *s
	cpy.RoomID = cloneStringPtr(s.RoomID)
	cpy.Icon = cloneStringPtr(s.Icon)

	if s.Actions != nil {
		cpy.Actions = make([]Action, len(s.Actions))
		for i, a := range s.Actions {
			cpy.Actions[i] = a
			cpy.Actions[i].State = a.State.Clone()
		}
	}
	return &cpy
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
