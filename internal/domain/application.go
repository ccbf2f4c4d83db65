package domain

import "time"

// Step is the borrower's position in the application wizard. Steps are
// integer-indexed and ordered; Loading and Error sit outside the sequence.
type Step int

const (
	StepError   Step = -1
	StepLoading Step = 0

	StepLanguageSelect Step = 1
	StepWelcome        Step = 2
	StepPhoneVerify    Step = 3
	StepPersonalInfo   Step = 4
	StepEmployment     Step = 5
	StepReferences     Step = 6
	StepIdentityVerify Step = 7
	StepConsent        Step = 8
	StepReview         Step = 9
	StepSubmitted      Step = 10
)

var stepNames = map[Step]string{
	StepError:          "error",
	StepLoading:        "loading",
	StepLanguageSelect: "language_select",
	StepWelcome:        "welcome",
	StepPhoneVerify:    "phone_verify",
	StepPersonalInfo:   "personal_info",
	StepEmployment:     "employment",
	StepReferences:     "references",
	StepIdentityVerify: "identity_verify",
	StepConsent:        "consent",
	StepReview:         "review",
	StepSubmitted:      "submitted",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "unknown"
}

// InSequence reports whether s is one of the ordered wizard steps.
func (s Step) InSequence() bool {
	return s >= StepLanguageSelect && s <= StepSubmitted
}

// Application status values recorded server-side.
const (
	ApplicationStatusOpen      = "open"
	ApplicationStatusCompleted = "completed"
)

// PersonalInfo holds the borrower's identity fields collected at the
// personal-info step.
type PersonalInfo struct {
	FirstName   string `json:"first_name" db:"first_name" validate:"required"`
	LastName    string `json:"last_name" db:"last_name" validate:"required"`
	DateOfBirth string `json:"date_of_birth" db:"date_of_birth" validate:"required,datetime=2006-01-02"`
	Email       string `json:"email" db:"email" validate:"required,email"`
	Street      string `json:"street" db:"street" validate:"required"`
	City        string `json:"city" db:"city" validate:"required"`
	State       string `json:"state" db:"state" validate:"required"`
	ZipCode     string `json:"zip_code" db:"zip_code" validate:"required,len=5,numeric"`
}

// EmploymentInfo holds the employment step's fields.
type EmploymentInfo struct {
	EmploymentStatus string `json:"employment_status" db:"employment_status" validate:"required,oneof=employed self_employed retired unemployed"`
	EmployerName     string `json:"employer_name" db:"employer_name" validate:"required_if=EmploymentStatus employed"`
	MonthlyIncome    string `json:"monthly_income" db:"monthly_income" validate:"required,numeric"`
}

// Reference is one personal reference supplied by the borrower.
type Reference struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
}

// Consent holds the consent-step flags. The primary flag plus at least one
// of text/call is required to advance.
type Consent struct {
	Primary      bool `json:"primary" db:"consent_primary"`
	TextMessages bool `json:"text_messages" db:"consent_text"`
	PhoneCalls   bool `json:"phone_calls" db:"consent_call"`
}

// Satisfied reports whether the consent gate passes.
func (c Consent) Satisfied() bool {
	return c.Primary && (c.TextMessages || c.PhoneCalls)
}

// PhoneDetails tracks the phone sub-flow: the number under verification and
// its status.
type PhoneDetails struct {
	Number string             `json:"number" db:"phone_number"`
	Status VerificationStatus `json:"status" db:"phone_status"`
}

// IdentityDetails tracks the identity sub-flow: the provider session and
// its status.
type IdentityDetails struct {
	SessionID string             `json:"session_id" db:"identity_session_id"`
	Status    VerificationStatus `json:"status" db:"identity_status"`
}

// Answers groups every field the borrower types in, one sub-struct per step.
// Fields are merged into a snapshot only at save time so steps cannot
// collide on field names.
type Answers struct {
	Language   string         `json:"language"`
	Personal   PersonalInfo   `json:"personal"`
	Employment EmploymentInfo `json:"employment"`
	References []Reference    `json:"references"`
	Consent    Consent        `json:"consent"`
}

// ApplicationSnapshot is the persisted progress record: the borrower's
// answers, step position, and the state of both verification sub-flows.
type ApplicationSnapshot struct {
	LoanID    string          `json:"loan_id"`
	Status    string          `json:"status"`
	Step      Step            `json:"step"`
	Answers   Answers         `json:"answers"`
	Phone     PhoneDetails    `json:"phone"`
	Identity  IdentityDetails `json:"identity"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewSnapshot returns an empty open application at the first wizard step.
func NewSnapshot(loanID string) *ApplicationSnapshot {
	return &ApplicationSnapshot{
		LoanID: loanID,
		Status: ApplicationStatusOpen,
		Step:   StepLanguageSelect,
		Phone: PhoneDetails{
			Status: VerificationNotStarted,
		},
		Identity: IdentityDetails{
			Status: VerificationNotStarted,
		},
	}
}
