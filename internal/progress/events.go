package progress

import "github.com/lendfast/origination-engine/internal/domain"

// Event is a tagged state update. Every mutation of machine state outside
// the step transitions enters through Machine.Apply, so the monotonic
// verification-order rule is enforced in exactly one place instead of
// being scattered across callbacks.
type Event interface {
	event()
}

// LocalEdit is a borrower-initiated field edit. It writes to the local
// cache synchronously and schedules a debounced remote save.
type LocalEdit struct {
	Mutate func(*domain.Answers)
}

// PushField names the fields a push update can carry.
type PushField string

const (
	PushPhoneStatus       PushField = "phone_status"
	PushPhoneNumber       PushField = "phone_number"
	PushIdentityStatus    PushField = "identity_status"
	PushApplicationStatus PushField = "application_status"
)

// RemotePush is an asynchronous field-change update delivered over the
// push channel. Delivery order is not guaranteed.
type RemotePush struct {
	Field PushField
	Value string
}

// PollResult is an identity status read back from the provider's
// status-by-session endpoint.
type PollResult struct {
	Status domain.VerificationStatus
}

// ProviderResult is the synchronous outcome of a provider call made on the
// borrower's behalf (OTP send/verify, identity session creation).
type ProviderResult struct {
	Kind        ProviderKind
	Status      domain.VerificationStatus
	PhoneNumber string
	SessionID   string
}

type ProviderKind string

const (
	ProviderPhone    ProviderKind = "phone"
	ProviderIdentity ProviderKind = "identity"
)

func (LocalEdit) event()      {}
func (RemotePush) event()     {}
func (PollResult) event()     {}
func (ProviderResult) event() {}
