// Package escalation tracks remediation of verifier failures with a
// deterministic, poll-driven state machine. Every transition is a pure
// function of the current state, the current signals, and the elapsed time,
// so the lifecycle is replayable without a real clock.
package escalation

import "time"

// State captures the lifecycle stage of an escalation: Pending, InProgress,
// CorrectiveActionApplied, AwaitingValidation, Resolved, or Rejected.
type State uint32

const (
	// Pending is the initial state of a freshly opened escalation.
	Pending State = iota
	// InProgress means the SLA elapsed without remediation.
	InProgress
	// CorrectiveActionApplied means a corrective artifact was detected.
	CorrectiveActionApplied
	// AwaitingValidation immediately follows correction detection.
	AwaitingValidation
	// Resolved is terminal: validation succeeded.
	Resolved
	// Rejected is terminal: validation failed.
	Rejected
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InProgress:
		return "in_progress"
	case CorrectiveActionApplied:
		return "corrective_action_applied"
	case AwaitingValidation:
		return "awaiting_validation"
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition may ever leave this state.
func (s State) Terminal() bool {
	return s == Resolved || s == Rejected
}

// ValidationResult is the outcome of validating an applied correction.
type ValidationResult int

const (
	// ValidationNone means validation has not run yet.
	ValidationNone ValidationResult = iota
	// ValidationSuccess resolves the escalation.
	ValidationSuccess
	// ValidationFailure rejects the escalation.
	ValidationFailure
)

// String returns the string representation of a ValidationResult.
func (v ValidationResult) String() string {
	switch v {
	case ValidationSuccess:
		return "success"
	case ValidationFailure:
		return "failure"
	default:
		return "none"
	}
}

// Signals are the externally observed facts each poll evaluates.
type Signals struct {
	// VerifierFailed is the latest verifier outcome; it opens new
	// escalations.
	VerifierFailed bool

	// CorrectionPresent reports whether a corrective artifact exists for
	// the escalation.
	CorrectionPresent bool

	// Validation is the outcome of validating the applied correction.
	Validation ValidationResult
}

// NextState computes one transition step. It returns the successor state
// and whether a transition fires. Terminal states never transition, and no
// intermediate state can be skipped: a correction detected while Pending
// has no effect until the SLA moves the escalation to InProgress.
//
//	(none)                    -> pending                    verifier failed, no open escalation
//	pending                   -> in_progress                elapsed > sla
//	in_progress               -> corrective_action_applied  correction present
//	corrective_action_applied -> awaiting_validation        automatic
//	awaiting_validation       -> resolved                   validation success
//	awaiting_validation       -> rejected                   validation failure
func NextState(s State, sig Signals, elapsed, sla time.Duration) (State, bool) {
	switch s {
	case Pending:
		if elapsed > sla {
			return InProgress, true
		}
	case InProgress:
		if sig.CorrectionPresent {
			return CorrectiveActionApplied, true
		}
	case CorrectiveActionApplied:
		return AwaitingValidation, true
	case AwaitingValidation:
		switch sig.Validation {
		case ValidationSuccess:
			return Resolved, true
		case ValidationFailure:
			return Rejected, true
		}
	}
	return s, false
}
