// Package progress implements the borrower application wizard: an ordered
// sequence of steps with validation gates, two verification sub-flows, and
// best-effort persistence to a local snapshot cache and a remote store.
package progress

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/lendfast/origination-engine/internal/domain"
	"github.com/lendfast/origination-engine/internal/verification"
	apperrors "github.com/lendfast/origination-engine/pkg/errors"
)

const remoteSaveTimeout = 5 * time.Second

// Store is the remote persistence collaborator.
type Store interface {
	// Fetch returns the authoritative application snapshot.
	Fetch(ctx context.Context, loanID string) (*domain.ApplicationSnapshot, error)

	// SaveProgress writes a partial-progress snapshot. Best effort.
	SaveProgress(ctx context.Context, snap *domain.ApplicationSnapshot) error

	// Submit finalizes the application. Idempotent on ErrAlreadyCompleted.
	Submit(ctx context.Context, snap *domain.ApplicationSnapshot) error
}

// Cache is the local ephemeral snapshot cache, scoped to one application.
type Cache interface {
	// Read returns the cached snapshot, or (nil, nil) when absent.
	Read(ctx context.Context, loanID string) (*domain.ApplicationSnapshot, error)

	Write(ctx context.Context, snap *domain.ApplicationSnapshot) error
	Clear(ctx context.Context, loanID string) error
}

// Machine drives one borrower's application through the wizard steps.
type Machine struct {
	mu sync.Mutex

	loanID   string
	step     domain.Step
	answers  domain.Answers
	phone    *verification.Tracker
	identity *verification.Tracker

	phoneNumber     string
	identitySession string

	store Store
	cache Cache
	saver *debouncer

	validate *validator.Validate
	log      *logrus.Entry

	submitInFlight bool
}

// New builds a machine in the Loading pseudo-state. Call Resume before
// driving transitions.
func New(loanID string, store Store, cache Cache, saveDebounce time.Duration, log *logrus.Logger) *Machine {
	m := &Machine{
		loanID:   loanID,
		step:     domain.StepLoading,
		store:    store,
		cache:    cache,
		validate: newStepValidator(),
		log:      log.WithField("loan_id", loanID),
		phone:    verification.NewTracker(verification.KindPhone, domain.VerificationNotStarted, log),
		identity: verification.NewTracker(verification.KindIdentity, domain.VerificationNotStarted, log),
	}
	m.saver = newDebouncer(saveDebounce, m.remoteSave)
	return m
}

func newStepValidator() *validator.Validate {
	v := validator.New()
	// Report errors keyed by the wire field name, not the Go field name.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Resume loads persisted progress. Free-text answers and the step position
// are trusted from the local cache when one exists; the verification
// statuses and phone number always come from the remote store, because
// verification can complete out-of-band while no session was active.
func (m *Machine) Resume(ctx context.Context) error {
	remote, err := m.store.Fetch(ctx, m.loanID)
	if err != nil {
		m.mu.Lock()
		m.step = domain.StepError
		m.mu.Unlock()
		return err
	}

	cached, cacheErr := m.cache.Read(ctx, m.loanID)
	if cacheErr != nil {
		// A broken cache is a transient I/O problem, not a load failure.
		m.log.WithError(cacheErr).Warn("reading progress cache")
		cached = nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case cached != nil && cached.Step.InSequence():
		m.answers = cached.Answers
		m.step = cached.Step
	case remote.Step.InSequence():
		m.answers = remote.Answers
		m.step = remote.Step
	default:
		m.step = domain.StepLanguageSelect
	}

	if remote.Status == domain.ApplicationStatusCompleted {
		m.step = domain.StepSubmitted
	}

	m.phoneNumber = remote.Phone.Number
	m.identitySession = remote.Identity.SessionID
	m.phone = verification.NewTracker(verification.KindPhone, remote.Phone.Status, m.log.Logger)
	m.identity = verification.NewTracker(verification.KindIdentity, remote.Identity.Status, m.log.Logger)

	return nil
}

// Step returns the current step index.
func (m *Machine) Step() domain.Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

// Snapshot returns a copy of the current progress state.
func (m *Machine) Snapshot() *domain.ApplicationSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() *domain.ApplicationSnapshot {
	status := domain.ApplicationStatusOpen
	if m.step == domain.StepSubmitted {
		status = domain.ApplicationStatusCompleted
	}

	answers := m.answers
	answers.References = append([]domain.Reference(nil), m.answers.References...)

	return &domain.ApplicationSnapshot{
		LoanID:  m.loanID,
		Status:  status,
		Step:    m.step,
		Answers: answers,
		Phone: domain.PhoneDetails{
			Number: m.phoneNumber,
			Status: m.phone.Status(),
		},
		Identity: domain.IdentityDetails{
			SessionID: m.identitySession,
			Status:    m.identity.Status(),
		},
		UpdatedAt: time.Now(),
	}
}

// Next advances one step. When the current step's validation gate fails it
// returns the field-level errors and leaves the index unchanged.
func (m *Machine) Next(ctx context.Context) (apperrors.FieldErrors, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.step.InSequence() || m.step == domain.StepSubmitted {
		return nil, apperrors.NewBusinessError(apperrors.ErrCodeValidationError,
			"cannot advance from step "+m.step.String(), nil)
	}
	if m.step == domain.StepReview {
		return apperrors.FieldErrors{"submit": "the application must be submitted from the review step"}, nil
	}

	if fields := m.gateLocked(); len(fields) > 0 {
		return fields, nil
	}

	m.step++
	m.persistLocked(ctx, true)
	return nil, nil
}

// Prev retreats one step unconditionally. In-progress field edits are kept.
func (m *Machine) Prev(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.step <= domain.StepLanguageSelect || m.step == domain.StepSubmitted {
		return nil
	}

	m.step--
	m.persistLocked(ctx, true)
	return nil
}

// gateLocked runs the step-local validation gate for the current step.
func (m *Machine) gateLocked() apperrors.FieldErrors {
	switch m.step {
	case domain.StepPhoneVerify:
		if !m.phone.Succeeded() {
			return apperrors.FieldErrors{"phone": "phone number must be verified before continuing"}
		}
	case domain.StepPersonalInfo:
		return m.validateStruct(m.answers.Personal)
	case domain.StepEmployment:
		return m.validateStruct(m.answers.Employment)
	case domain.StepIdentityVerify:
		if !m.identity.Succeeded() {
			return apperrors.FieldErrors{"identity": "identity verification must be completed before continuing"}
		}
	case domain.StepConsent:
		if !m.answers.Consent.Satisfied() {
			return apperrors.FieldErrors{"consent": "consent plus at least one contact method (text or call) is required"}
		}
	}
	return nil
}

func (m *Machine) validateStruct(s interface{}) apperrors.FieldErrors {
	err := m.validate.Struct(s)
	if err == nil {
		return nil
	}

	fields := apperrors.FieldErrors{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields["_"] = err.Error()
		return fields
	}

	for _, fe := range verrs {
		fields[fe.Field()] = messageForTag(fe)
	}
	return fields
}

func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "numeric":
		return "must be a number"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "invalid value"
	}
}

// Apply feeds a tagged event through the reducer. Status-bearing events go
// through the monotonic trackers; stale updates are dropped with a debug
// log and ErrStaleVerificationStatus.
func (m *Machine) Apply(ctx context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch e := ev.(type) {
	case LocalEdit:
		if e.Mutate != nil {
			e.Mutate(&m.answers)
		}
		m.persistLocked(ctx, false)
		return nil

	case RemotePush:
		return m.applyPushLocked(ctx, e)

	case PollResult:
		return m.identity.Apply(e.Status)

	case ProviderResult:
		switch e.Kind {
		case ProviderPhone:
			if e.PhoneNumber != "" {
				m.phoneNumber = e.PhoneNumber
			}
			return m.phone.Apply(e.Status)
		case ProviderIdentity:
			if e.SessionID != "" {
				m.identitySession = e.SessionID
			}
			if e.Status != "" {
				return m.identity.Apply(e.Status)
			}
			return nil
		}
		return nil
	}

	return nil
}

func (m *Machine) applyPushLocked(ctx context.Context, push RemotePush) error {
	switch push.Field {
	case PushPhoneStatus:
		return m.phone.Apply(domain.VerificationStatus(push.Value))
	case PushPhoneNumber:
		m.phoneNumber = push.Value
		return nil
	case PushIdentityStatus:
		return m.identity.Apply(domain.VerificationStatus(push.Value))
	case PushApplicationStatus:
		if push.Value == domain.ApplicationStatusCompleted && m.step != domain.StepSubmitted {
			m.step = domain.StepSubmitted
			m.clearCacheLocked(ctx)
		}
		return nil
	}
	return nil
}

// RestartVerification begins a fresh attempt for a failed sub-flow.
func (m *Machine) RestartVerification(kind verification.Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch kind {
	case verification.KindPhone:
		m.phone.Restart()
	case verification.KindIdentity:
		m.identity.Restart()
	}
}

// Submit finalizes the application from the review step. A second call
// while one is in flight is a no-op; a call after success is a no-op.
func (m *Machine) Submit(ctx context.Context) error {
	m.mu.Lock()
	if m.submitInFlight || m.step == domain.StepSubmitted {
		m.mu.Unlock()
		return nil
	}
	if m.step != domain.StepReview {
		m.mu.Unlock()
		return apperrors.NewBusinessError(apperrors.ErrCodeValidationError,
			"the application can only be submitted from the review step", nil)
	}
	m.submitInFlight = true
	snap := m.snapshotLocked()
	m.mu.Unlock()

	err := m.store.Submit(ctx, snap)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitInFlight = false

	switch {
	case err == nil, apperrors.IsAlreadyCompleted(err):
		// Completed server-side (possibly on an earlier attempt): success.
		m.step = domain.StepSubmitted
		m.clearCacheLocked(ctx)
		m.saver.Stop()
		return nil

	case apperrors.IsRecordInvalid(err):
		// The loan behind this application is gone. Restart from scratch
		// rather than stranding the borrower on a dead application.
		m.answers = domain.Answers{}
		m.phoneNumber = ""
		m.identitySession = ""
		m.phone = verification.NewTracker(verification.KindPhone, domain.VerificationNotStarted, m.log.Logger)
		m.identity = verification.NewTracker(verification.KindIdentity, domain.VerificationNotStarted, m.log.Logger)
		m.step = domain.StepLanguageSelect
		m.clearCacheLocked(ctx)
		return err

	default:
		// Retryable: stay on Review.
		return err
	}
}

// Close tears the machine down: pending debounced saves are cancelled so a
// discarded machine never writes again.
func (m *Machine) Close() {
	m.saver.Stop()
}

// persistLocked writes the local cache synchronously and schedules the
// remote save. flush forces the remote save immediately (step changes);
// otherwise it is debounced behind the trailing edge of rapid edits.
// Persistence failures are logged and swallowed, never surfaced.
func (m *Machine) persistLocked(ctx context.Context, flush bool) {
	snap := m.snapshotLocked()

	if err := m.cache.Write(ctx, snap); err != nil {
		m.log.WithError(err).Warn("writing progress cache")
	}

	if flush {
		m.saver.Flush(snap)
	} else {
		m.saver.Trigger(snap)
	}
}

func (m *Machine) clearCacheLocked(ctx context.Context) {
	if err := m.cache.Clear(ctx, m.loanID); err != nil {
		m.log.WithError(err).Warn("clearing progress cache")
	}
}

func (m *Machine) remoteSave(snap *domain.ApplicationSnapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), remoteSaveTimeout)
	defer cancel()

	if err := m.store.SaveProgress(ctx, snap); err != nil {
		m.log.WithError(err).Warn("saving progress to remote store")
	}
}
