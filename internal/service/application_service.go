package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lendfast/origination-engine/internal/domain"
	"github.com/lendfast/origination-engine/internal/progress"
	"github.com/lendfast/origination-engine/internal/provider"
	"github.com/lendfast/origination-engine/internal/push"
	"github.com/lendfast/origination-engine/internal/repository"
	"github.com/lendfast/origination-engine/internal/verification"
	apperrors "github.com/lendfast/origination-engine/pkg/errors"
)

// UpdateBus is the push-update channel contract. push.Bus implements it.
type UpdateBus interface {
	Publish(ctx context.Context, loanID string, update push.FieldUpdate) error
	Subscribe(ctx context.Context, loanID string) (<-chan push.FieldUpdate, func(), error)
}

// ApplicationService drives borrower application flows. It keeps one live
// progress machine per active application, resumed on first touch and torn
// down on submission, so debounced saves and push subscriptions behave the
// way a single borrower session expects.
type ApplicationService struct {
	mu       sync.Mutex
	sessions map[string]*session

	apps  repository.ApplicationRepository
	store progress.Store
	cache progress.Cache

	phone    provider.PhoneVerifier
	identity provider.IdentityVerifier
	bus      UpdateBus

	saveDebounce time.Duration
	log          *logrus.Logger
}

type session struct {
	machine     *progress.Machine
	unsubscribe func()
}

func NewApplicationService(
	apps repository.ApplicationRepository,
	loans repository.LoanRepository,
	cache progress.Cache,
	phone provider.PhoneVerifier,
	identity provider.IdentityVerifier,
	bus UpdateBus,
	saveDebounce time.Duration,
	log *logrus.Logger,
) *ApplicationService {
	return &ApplicationService{
		sessions:     make(map[string]*session),
		apps:         apps,
		store:        &snapshotStore{apps: apps, loans: loans},
		cache:        cache,
		phone:        phone,
		identity:     identity,
		bus:          bus,
		saveDebounce: saveDebounce,
		log:          log,
	}
}

// UpdateAnswersRequest is a partial edit: only the sections present are
// applied, so one step's save can never clobber another step's fields.
type UpdateAnswersRequest struct {
	Language   *string                `json:"language,omitempty"`
	Personal   *domain.PersonalInfo   `json:"personal,omitempty"`
	Employment *domain.EmploymentInfo `json:"employment,omitempty"`
	References *[]domain.Reference    `json:"references,omitempty"`
	Consent    *domain.Consent        `json:"consent,omitempty"`
}

// State returns the current progress snapshot, resuming the machine if
// this is the first touch.
func (s *ApplicationService) State(ctx context.Context, loanID string) (*domain.ApplicationSnapshot, error) {
	sess, err := s.session(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return sess.machine.Snapshot(), nil
}

// UpdateAnswers applies a partial field edit.
func (s *ApplicationService) UpdateAnswers(ctx context.Context, loanID string, req *UpdateAnswersRequest) error {
	sess, err := s.session(ctx, loanID)
	if err != nil {
		return err
	}

	return sess.machine.Apply(ctx, progress.LocalEdit{Mutate: func(a *domain.Answers) {
		if req.Language != nil {
			a.Language = *req.Language
		}
		if req.Personal != nil {
			a.Personal = *req.Personal
		}
		if req.Employment != nil {
			a.Employment = *req.Employment
		}
		if req.References != nil {
			a.References = *req.References
		}
		if req.Consent != nil {
			a.Consent = *req.Consent
		}
	}})
}

// Next advances the wizard one step, or returns field errors.
func (s *ApplicationService) Next(ctx context.Context, loanID string) (domain.Step, apperrors.FieldErrors, error) {
	sess, err := s.session(ctx, loanID)
	if err != nil {
		return domain.StepError, nil, err
	}

	fields, err := sess.machine.Next(ctx)
	return sess.machine.Step(), fields, err
}

// Prev retreats the wizard one step.
func (s *ApplicationService) Prev(ctx context.Context, loanID string) (domain.Step, error) {
	sess, err := s.session(ctx, loanID)
	if err != nil {
		return domain.StepError, err
	}

	if err := sess.machine.Prev(ctx); err != nil {
		return sess.machine.Step(), err
	}
	return sess.machine.Step(), nil
}

// Submit finalizes the application. On success the live session is torn
// down; the machine lands on Submitted and the local cache is cleared.
func (s *ApplicationService) Submit(ctx context.Context, loanID string) error {
	sess, err := s.session(ctx, loanID)
	if err != nil {
		return err
	}

	if err := sess.machine.Submit(ctx); err != nil {
		return err
	}

	s.closeSession(loanID)
	return nil
}

// SendPhoneCode asks the OTP provider to text the borrower and records the
// resulting status on the phone sub-flow.
func (s *ApplicationService) SendPhoneCode(ctx context.Context, loanID, phoneNumber string) (domain.VerificationStatus, error) {
	sess, err := s.session(ctx, loanID)
	if err != nil {
		return domain.VerificationNotStarted, err
	}

	sess.machine.RestartVerification(verification.KindPhone)

	status, err := s.phone.Send(ctx, phoneNumber, loanID)
	if err != nil {
		return domain.VerificationFailed, err
	}

	s.applyProviderResult(ctx, sess, progress.ProviderResult{
		Kind:        progress.ProviderPhone,
		Status:      status,
		PhoneNumber: phoneNumber,
	})
	return status, nil
}

// VerifyPhoneCode checks an OTP the borrower typed in.
func (s *ApplicationService) VerifyPhoneCode(ctx context.Context, loanID, phoneNumber, code string) (bool, domain.VerificationStatus, error) {
	sess, err := s.session(ctx, loanID)
	if err != nil {
		return false, domain.VerificationNotStarted, err
	}

	ok, status, err := s.phone.Verify(ctx, phoneNumber, code, loanID)
	if err != nil {
		return false, domain.VerificationFailed, err
	}

	s.applyProviderResult(ctx, sess, progress.ProviderResult{
		Kind:        progress.ProviderPhone,
		Status:      status,
		PhoneNumber: phoneNumber,
	})
	return ok, status, nil
}

// StartIdentitySession opens a provider-hosted verification session. The
// client secret goes back to the borrower's device; we keep the session id.
func (s *ApplicationService) StartIdentitySession(ctx context.Context, loanID string) (*provider.IdentitySession, error) {
	sess, err := s.session(ctx, loanID)
	if err != nil {
		return nil, err
	}

	sess.machine.RestartVerification(verification.KindIdentity)

	identitySession, err := s.identity.CreateSession(ctx, loanID)
	if err != nil {
		return nil, err
	}

	s.applyProviderResult(ctx, sess, progress.ProviderResult{
		Kind:      progress.ProviderIdentity,
		Status:    domain.VerificationPending,
		SessionID: identitySession.SessionID,
	})
	return identitySession, nil
}

// PollIdentityStatus reads the provider's status-by-session endpoint and
// feeds it through the reducer.
func (s *ApplicationService) PollIdentityStatus(ctx context.Context, loanID string) (domain.VerificationStatus, error) {
	sess, err := s.session(ctx, loanID)
	if err != nil {
		return domain.VerificationNotStarted, err
	}

	sessionID := sess.machine.Snapshot().Identity.SessionID
	if sessionID == "" {
		return domain.VerificationNotStarted, nil
	}

	status, err := s.identity.SessionStatus(ctx, sessionID)
	if err != nil {
		return domain.VerificationNotStarted, err
	}

	if applyErr := sess.machine.Apply(ctx, progress.PollResult{Status: status}); applyErr != nil {
		// Stale poll results are dropped; the recorded status stands.
		return sess.machine.Snapshot().Identity.Status, nil
	}
	return status, nil
}

// IngestIdentityWebhook records a provider callback and fans it out on the
// push channel. The webhook may arrive while no session is live, so the
// remote store is updated directly, guarded by the same transition rule.
func (s *ApplicationService) IngestIdentityWebhook(ctx context.Context, loanID string, status domain.VerificationStatus) error {
	snap, err := s.apps.Get(ctx, loanID)
	if err != nil && !errors.Is(err, apperrors.ErrApplicationNotFound) {
		return err
	}

	if snap != nil && snap.Identity.Status.AllowsTransition(status) {
		snap.Identity.Status = status
		if err := s.apps.Upsert(ctx, snap); err != nil {
			return err
		}
	}

	return s.bus.Publish(ctx, loanID, push.FieldUpdate{
		Field: string(progress.PushIdentityStatus),
		Value: string(status),
	})
}

// IngestPhoneWebhook records an out-of-band phone status change.
func (s *ApplicationService) IngestPhoneWebhook(ctx context.Context, loanID, phoneNumber string, status domain.VerificationStatus) error {
	snap, err := s.apps.Get(ctx, loanID)
	if err != nil && !errors.Is(err, apperrors.ErrApplicationNotFound) {
		return err
	}

	if snap != nil && snap.Phone.Status.AllowsTransition(status) {
		snap.Phone.Status = status
		if phoneNumber != "" {
			snap.Phone.Number = phoneNumber
		}
		if err := s.apps.Upsert(ctx, snap); err != nil {
			return err
		}
	}

	if phoneNumber != "" {
		if err := s.bus.Publish(ctx, loanID, push.FieldUpdate{
			Field: string(progress.PushPhoneNumber),
			Value: phoneNumber,
		}); err != nil {
			return err
		}
	}

	return s.bus.Publish(ctx, loanID, push.FieldUpdate{
		Field: string(progress.PushPhoneStatus),
		Value: string(status),
	})
}

// CloseAll tears down every live session. Called on shutdown.
func (s *ApplicationService) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for loanID, sess := range s.sessions {
		sess.teardown()
		delete(s.sessions, loanID)
	}
}

func (s *ApplicationService) applyProviderResult(ctx context.Context, sess *session, result progress.ProviderResult) {
	if err := sess.machine.Apply(ctx, result); err != nil {
		s.log.WithError(err).Debug("provider result dropped by transition rule")
	}
}

// session returns the live session for the loan, creating and resuming one
// if needed.
func (s *ApplicationService) session(ctx context.Context, loanID string) (*session, error) {
	s.mu.Lock()
	if sess, ok := s.sessions[loanID]; ok {
		s.mu.Unlock()
		return sess, nil
	}
	s.mu.Unlock()

	machine := progress.New(loanID, s.store, s.cache, s.saveDebounce, s.log)
	if err := machine.Resume(ctx); err != nil {
		machine.Close()
		return nil, err
	}

	// The subscription outlives the request that created the session.
	updates, unsubscribe, err := s.bus.Subscribe(context.Background(), loanID)
	if err != nil {
		s.log.WithError(err).WithField("loan_id", loanID).Warn("push subscription unavailable; continuing without live updates")
		updates, unsubscribe = nil, func() {}
	}

	sess := &session{machine: machine, unsubscribe: unsubscribe}

	if updates != nil {
		go func() {
			for update := range updates {
				err := machine.Apply(context.Background(), progress.RemotePush{
					Field: progress.PushField(update.Field),
					Value: update.Value,
				})
				if err != nil {
					s.log.WithField("loan_id", loanID).WithError(err).Debug("push update dropped")
				}
			}
		}()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[loanID]; ok {
		// Lost the race; keep the first session.
		sess.teardown()
		return existing, nil
	}
	s.sessions[loanID] = sess
	return sess, nil
}

func (s *ApplicationService) closeSession(loanID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[loanID]; ok {
		sess.teardown()
		delete(s.sessions, loanID)
	}
}

func (sess *session) teardown() {
	sess.unsubscribe()
	sess.machine.Close()
}

// snapshotStore adapts the repositories to the progress machine's Store
// contract and owns the typed submit errors.
type snapshotStore struct {
	apps  repository.ApplicationRepository
	loans repository.LoanRepository
}

func (st *snapshotStore) Fetch(ctx context.Context, loanID string) (*domain.ApplicationSnapshot, error) {
	snap, err := st.apps.Get(ctx, loanID)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, apperrors.ErrApplicationNotFound) {
		return nil, err
	}

	// First visit: the application link is only valid for a real loan.
	if _, lerr := st.loans.GetByLoanID(ctx, loanID); lerr != nil {
		if errors.Is(lerr, sql.ErrNoRows) {
			return nil, apperrors.WrapLoanNotFound(loanID)
		}
		return nil, apperrors.WrapDatabaseError(lerr)
	}

	return domain.NewSnapshot(loanID), nil
}

func (st *snapshotStore) SaveProgress(ctx context.Context, snap *domain.ApplicationSnapshot) error {
	return st.apps.Upsert(ctx, snap)
}

func (st *snapshotStore) Submit(ctx context.Context, snap *domain.ApplicationSnapshot) error {
	if _, err := st.loans.GetByLoanID(ctx, snap.LoanID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.WrapLoanNotFound(snap.LoanID)
		}
		return apperrors.WrapDatabaseError(err)
	}

	current, err := st.apps.Get(ctx, snap.LoanID)
	if err != nil && !errors.Is(err, apperrors.ErrApplicationNotFound) {
		return err
	}
	if current != nil && current.Status == domain.ApplicationStatusCompleted {
		return apperrors.WrapAlreadyCompleted(snap.LoanID)
	}

	if err := st.apps.Upsert(ctx, snap); err != nil {
		return err
	}
	return st.apps.Complete(ctx, snap.LoanID)
}
