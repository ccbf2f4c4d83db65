package domain

// VerificationStatus is the shared status shape for the phone-OTP and
// identity-verification sub-flows.
type VerificationStatus string

const (
	VerificationNotStarted VerificationStatus = "not_started"
	VerificationPending    VerificationStatus = "pending"
	VerificationSent       VerificationStatus = "sent"
	VerificationProcessing VerificationStatus = "processing"
	VerificationVerified   VerificationStatus = "verified"
	VerificationCompleted  VerificationStatus = "completed"

	VerificationFailed         VerificationStatus = "failed"
	VerificationRequiresAction VerificationStatus = "requires_action"
	VerificationCanceled       VerificationStatus = "canceled"
)

// verificationRank fixes the total order used to reject stale updates.
// "verified" and "completed" are the same terminal rank; the phone flow
// reports the former, the identity flow the latter.
var verificationRank = map[VerificationStatus]int{
	VerificationNotStarted: 0,
	VerificationPending:    1,
	VerificationSent:       2,
	VerificationProcessing: 3,
	VerificationVerified:   4,
	VerificationCompleted:  4,
}

// IsTerminalSuccess reports whether s is the terminal success value.
func (s VerificationStatus) IsTerminalSuccess() bool {
	return s == VerificationVerified || s == VerificationCompleted
}

// IsFailure reports whether s is one of the failure/terminal-reset statuses.
func (s VerificationStatus) IsFailure() bool {
	return s == VerificationFailed || s == VerificationRequiresAction || s == VerificationCanceled
}

// Known reports whether s is a recognized status value.
func (s VerificationStatus) Known() bool {
	if _, ok := verificationRank[s]; ok {
		return true
	}
	return s.IsFailure()
}

// AllowsTransition reports whether moving from s to next is permitted.
// A new status is accepted only if it is strictly later in the fixed order,
// or it is a failure status arriving while the flow has not yet succeeded,
// or it restarts a fresh attempt after a failure. Everything else is a
// stale or regressive update and is rejected.
func (s VerificationStatus) AllowsTransition(next VerificationStatus) bool {
	if !next.Known() {
		return false
	}

	if next.IsFailure() {
		return !s.IsTerminalSuccess()
	}

	if s.IsFailure() {
		// Fresh attempt after failure starts over from the beginning.
		return verificationRank[next] <= verificationRank[VerificationSent]
	}

	return verificationRank[next] > verificationRank[s]
}
