package model

// ActionKind identifies one of the scheduler's daily actions.
type ActionKind string

const (
	ActionProcess   ActionKind = "process"
	ActionSend      ActionKind = "send"
	ActionCapture   ActionKind = "capture"
	ActionTestEmail ActionKind = "test_email"
)

// RunStatus represents the outcome of a single action run.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Trigger records whether a run was started by the tick loop or a manual command.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)
