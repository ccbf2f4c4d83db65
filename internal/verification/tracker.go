// Package verification tracks the phone-OTP and identity sub-flows.
// Both share one status shape and one ordering rule: a status update is
// accepted only if it moves the flow forward, so a late-arriving stale
// update can never regress a verification that already completed.
package verification

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lendfast/origination-engine/internal/domain"
	apperrors "github.com/lendfast/origination-engine/pkg/errors"
)

// Kind names which sub-flow a tracker owns.
type Kind string

const (
	KindPhone    Kind = "phone"
	KindIdentity Kind = "identity"
)

// Tracker is the monotonic status holder for one verification sub-flow.
// Updates arrive from several sources (provider responses, webhook pushes,
// polling) with no ordering guarantee between them.
type Tracker struct {
	mu     sync.Mutex
	kind   Kind
	status domain.VerificationStatus
	log    *logrus.Entry
}

func NewTracker(kind Kind, initial domain.VerificationStatus, log *logrus.Logger) *Tracker {
	if !initial.Known() {
		initial = domain.VerificationNotStarted
	}
	return &Tracker{
		kind:   kind,
		status: initial,
		log:    log.WithField("verification", string(kind)),
	}
}

// Status returns the current status.
func (t *Tracker) Status() domain.VerificationStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Succeeded reports whether the flow reached its terminal success value.
func (t *Tracker) Succeeded() bool {
	return t.Status().IsTerminalSuccess()
}

// Apply records a status update if the transition rule allows it. Rejected
// updates return ErrStaleVerificationStatus and leave the status unchanged.
func (t *Tracker) Apply(next domain.VerificationStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.status.AllowsTransition(next) {
		t.log.WithFields(logrus.Fields{
			"current":  string(t.status),
			"incoming": string(next),
		}).Debug("rejected stale verification status update")
		return apperrors.ErrStaleVerificationStatus
	}

	t.status = next
	return nil
}

// Restart begins a fresh attempt after a failure. It is a no-op unless the
// flow is currently in a failure status.
func (t *Tracker) Restart() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.IsFailure() {
		t.status = domain.VerificationNotStarted
	}
}
