package model

// Phase represents the lifecycle phase of a job
type Phase string

const (
	// PhaseIdle means the job was created but not started
	PhaseIdle Phase = "Idle"

	// PhaseRunning means the fetch or post-processing is in progress
	PhaseRunning Phase = "Running"

	// PhasePaused means the worker is suspended at the cooperative gate
	PhasePaused Phase = "Paused"

	// PhaseCompleted means the job finished successfully
	PhaseCompleted Phase = "Completed"

	// PhaseCancelled means the job was stopped by the user
	PhaseCancelled Phase = "Cancelled"

	// PhaseFailed means the job ended with a transfer or setup error
	PhaseFailed Phase = "Failed"
)

// String returns the string representation of Phase
func (p Phase) String() string {
	return string(p)
}

// IsActive returns true if the job is running or suspended
func (p Phase) IsActive() bool {
	return p == PhaseRunning || p == PhasePaused
}

// IsFinished returns true if the phase is terminal (completed, cancelled, or failed)
func (p Phase) IsFinished() bool {
	return p == PhaseCompleted || p == PhaseCancelled || p == PhaseFailed
}

// CanTransition reports whether the state machine allows moving from p to next.
// Paused and Running are the only reversible pair.
func (p Phase) CanTransition(next Phase) bool {
	switch p {
	case PhaseIdle:
		return next == PhaseRunning || next == PhaseFailed
	case PhaseRunning:
		return next == PhasePaused || next.IsFinished()
	case PhasePaused:
		return next == PhaseRunning || next.IsFinished()
	default:
		return false
	}
}
