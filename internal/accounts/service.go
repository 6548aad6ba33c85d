// Package accounts implements the clinic account-identity and approval
// subsystem: registration across the three account roles, the global
// uniqueness invariant on email/national-ID/credential, the specialist
// approval flag, and credential authentication.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clinica-online/accounts/internal/assets"
	"github.com/clinica-online/accounts/internal/domain"
	"github.com/clinica-online/accounts/internal/pkg/ctxlog"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

const defaultStoreTimeout = 5 * time.Second

// verificationTokenTTL bounds how long an emailed verification link stays
// valid.
const verificationTokenTTL = 24 * time.Hour

// Notifier is informed of account lifecycle outcomes. It never influences
// control flow: failures are logged and swallowed.
type Notifier interface {
	AccountRegistered(ctx context.Context, account *domain.Account, verificationToken string) error
	VerificationRequested(ctx context.Context, account *domain.Account, verificationToken string) error
	ApprovalChanged(ctx context.Context, account *domain.Account) error
}

// Service implements the registration workflow, the approval state
// machine, and account administration.
type Service struct {
	repo         Repository
	assetStore   assets.Store
	notifier     Notifier
	validate     *validator.Validate
	fold         cases.Caser
	bcryptCost   int
	storeTimeout time.Duration
}

// Config tunes the service. Zero values fall back to sane defaults.
type Config struct {
	BcryptCost   int
	StoreTimeout time.Duration
}

// NewService creates an account service. The notifier may be nil.
func NewService(repo Repository, assetStore assets.Store, notifier Notifier, cfg Config) *Service {
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	return &Service{
		repo:         repo,
		assetStore:   assetStore,
		notifier:     notifier,
		validate:     validator.New(),
		fold:         cases.Fold(),
		bcryptCost:   cfg.BcryptCost,
		storeTimeout: cfg.StoreTimeout,
	}
}

// Asset is an uploaded file handed to the external asset store.
type Asset struct {
	Name    string
	Content []byte
}

// RegisterPatientInput holds a patient registration candidate. The form
// layer validates these client-side; the workflow re-checks because it
// may be invoked without passing through a form.
type RegisterPatientInput struct {
	Name       string `validate:"required"`
	Surname    string `validate:"required"`
	Email      string `validate:"required,email"`
	Credential string `validate:"required"`
	NationalID int64  `validate:"required,gte=10000000,lte=99999999"`
	HealthPlan string `validate:"required"`
	Photo1     *Asset `validate:"required"`
	Photo2     *Asset `validate:"required"`
}

// RegisterSpecialistInput holds a specialist registration candidate,
// used by both the self-service and the admin-initiated path. Neither
// path may submit the reserved administrator specialty.
type RegisterSpecialistInput struct {
	Name         string `validate:"required"`
	Surname      string `validate:"required"`
	Email        string `validate:"required,email"`
	Credential   string `validate:"required"`
	NationalID   int64  `validate:"required,gte=10000000,lte=99999999"`
	Specialty    string `validate:"required"`
	Age          int    `validate:"required"`
	ProfileImage *Asset `validate:"required"`
}

// CreateAdminInput holds an administrator candidate. The specialty is
// forced to the reserved literal regardless of input, and the route is
// reachable only through an already-authorized administrator session.
type CreateAdminInput struct {
	Name         string `validate:"required"`
	Surname      string `validate:"required"`
	Email        string `validate:"required,email"`
	Credential   string `validate:"required"`
	NationalID   int64  `validate:"required,gte=10000000,lte=99999999"`
	Age          int    `validate:"required"`
	ProfileImage *Asset `validate:"required"`
}

// RegisterPatient runs the registration workflow for a patient and
// returns the new surrogate id.
func (s *Service) RegisterPatient(ctx context.Context, input RegisterPatientInput) (int64, error) {
	input.Email = NormalizeEmail(input.Email)
	if err := s.validateInput(input); err != nil {
		return 0, err
	}
	if err := ValidateCredential(input.Credential); err != nil {
		return 0, err
	}

	account := &domain.Account{
		Role:       domain.RolePatient,
		Name:       strings.TrimSpace(input.Name),
		Surname:    strings.TrimSpace(input.Surname),
		Email:      input.Email,
		NationalID: input.NationalID,
		HealthPlan: strings.TrimSpace(input.HealthPlan),
	}

	if err := s.checkUniqueness(ctx, account.Email, account.NationalID, input.Credential); err != nil {
		return 0, err
	}

	url1, err := s.uploadAsset(ctx, input.Photo1)
	if err != nil {
		return 0, err
	}
	url2, err := s.uploadAsset(ctx, input.Photo2)
	if err != nil {
		return 0, err
	}
	account.PhotoURL1 = url1
	account.PhotoURL2 = url2

	return s.create(ctx, account, input.Credential)
}

// RegisterSpecialist runs the registration workflow for a specialist.
// The account is seeded unapproved; an administrator must toggle the
// approval flag before it can authenticate.
func (s *Service) RegisterSpecialist(ctx context.Context, input RegisterSpecialistInput) (int64, error) {
	input.Email = NormalizeEmail(input.Email)
	if err := s.validateInput(input); err != nil {
		return 0, err
	}
	if input.Age < 18 || input.Age > 120 {
		return 0, &ValidationError{Field: "age", Reason: "must be between 18 and 120"}
	}
	if err := ValidateCredential(input.Credential); err != nil {
		return 0, err
	}

	specialty := strings.TrimSpace(input.Specialty)
	if s.fold.String(specialty) == s.fold.String(domain.ReservedSpecialty) {
		return 0, ErrReservedSpecialty
	}

	account := &domain.Account{
		Role:       domain.RoleSpecialist,
		Name:       strings.TrimSpace(input.Name),
		Surname:    strings.TrimSpace(input.Surname),
		Email:      input.Email,
		NationalID: input.NationalID,
		Specialty:  specialty,
		Age:        input.Age,
		Approved:   false,
	}

	if err := s.checkUniqueness(ctx, account.Email, account.NationalID, input.Credential); err != nil {
		return 0, err
	}

	url, err := s.uploadAsset(ctx, input.ProfileImage)
	if err != nil {
		return 0, err
	}
	account.ProfileImageURL = url

	return s.create(ctx, account, input.Credential)
}

// CreateAdministrator creates an administrator account. Administrators
// are specialist-shaped records whose specialty is the reserved literal;
// the approval gate does not apply to them.
func (s *Service) CreateAdministrator(ctx context.Context, input CreateAdminInput) (int64, error) {
	input.Email = NormalizeEmail(input.Email)
	if err := s.validateInput(input); err != nil {
		return 0, err
	}
	if input.Age < 18 || input.Age > 120 {
		return 0, &ValidationError{Field: "age", Reason: "must be between 18 and 120"}
	}
	if err := ValidateCredential(input.Credential); err != nil {
		return 0, err
	}

	account := &domain.Account{
		Role:       domain.RoleAdmin,
		Name:       strings.TrimSpace(input.Name),
		Surname:    strings.TrimSpace(input.Surname),
		Email:      input.Email,
		NationalID: input.NationalID,
		Specialty:  domain.ReservedSpecialty,
		Age:        input.Age,
		Approved:   true,
	}

	if err := s.checkUniqueness(ctx, account.Email, account.NationalID, input.Credential); err != nil {
		return 0, err
	}

	url, err := s.uploadAsset(ctx, input.ProfileImage)
	if err != nil {
		return 0, err
	}
	account.ProfileImageURL = url

	return s.create(ctx, account, input.Credential)
}

// SetApproval transitions a specialist between the pending and approved
// states. The transition is reversible: revoking approval is allowed.
func (s *Service) SetApproval(ctx context.Context, id int64, approved bool) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	account, err := s.repo.GetByID(storeCtx, id)
	if err != nil {
		return mapStoreErr(err)
	}
	if account.Role != domain.RoleSpecialist {
		return &ValidationError{Field: "role", Reason: "approval applies to specialists only"}
	}

	if err := s.repo.SetApproved(storeCtx, id, approved); err != nil {
		return mapStoreErr(err)
	}
	account.Approved = approved

	s.notifyApprovalChanged(ctx, account)
	return nil
}

// VerifyEmail redeems an emailed verification token. Redemption marks
// the account's email as verified and consumes the token in one store
// operation, so a failed redemption never burns the token.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if _, err := s.repo.RedeemVerificationToken(storeCtx, token); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// ResendVerification issues a fresh verification token for a still
// unverified account and emails a new link. Prior tokens stay valid
// until they expire.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	var account *domain.Account
	for _, role := range []domain.Role{domain.RolePatient, domain.RoleSpecialist, domain.RoleAdmin} {
		found, err := s.repo.FindByEmail(storeCtx, role, email)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				continue
			}
			return mapStoreErr(err)
		}
		account = found
		break
	}
	if account == nil {
		return ErrAccountNotFound
	}
	if account.EmailVerified {
		return &ValidationError{Field: "email", Reason: "already verified"}
	}

	token := uuid.NewString()
	if err := s.repo.SaveVerificationToken(storeCtx, account.ID, token, time.Now().Add(verificationTokenTTL)); err != nil {
		return mapStoreErr(err)
	}

	s.notifyVerificationRequested(ctx, account, token)
	return nil
}

// GetByID returns a single account.
func (s *Service) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	account, err := s.repo.GetByID(storeCtx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return account, nil
}

// List returns all accounts of one role.
func (s *Service) List(ctx context.Context, role domain.Role) ([]*domain.Account, error) {
	if !role.IsValid() {
		return nil, &ValidationError{Field: "role", Reason: "unknown role"}
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	list, err := s.repo.List(storeCtx, role)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return list, nil
}

func (s *Service) validateInput(input any) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &ValidationError{
			Field:  strings.ToLower(verrs[0].Field()),
			Reason: verrs[0].Tag(),
		}
	}
	return &ValidationError{Field: "input", Reason: err.Error()}
}

// checkUniqueness probes email, national-ID and credential against the
// union of all collections. Only the first offending field in reporting
// order is surfaced.
func (s *Service) checkUniqueness(ctx context.Context, email string, nationalID int64, credential string) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	check, err := CheckDuplicates(storeCtx, s.repo, email, nationalID, CredentialDigest(credential))
	if err != nil {
		return mapStoreErr(err)
	}
	if field := check.FirstDuplicate(); field != "" {
		return &DuplicateFieldError{Field: field}
	}
	return nil
}

// uploadAsset hands the file to the external asset store and returns the
// durable URL. The suggested name is prefixed with a high-resolution
// timestamp to avoid collisions.
func (s *Service) uploadAsset(ctx context.Context, asset *Asset) (string, error) {
	name := fmt.Sprintf("%d-%s", time.Now().UnixNano(), strings.ReplaceAll(asset.Name, " ", "_"))
	url, err := s.assetStore.Upload(ctx, name, asset.Content)
	if err != nil {
		return "", &AssetUploadError{Err: err}
	}
	return url, nil
}

// create inserts the entity and issues the verification token. A store
// conflict despite the passing uniqueness check (the check-then-insert
// race) is reported as a duplicate-field error.
func (s *Service) create(ctx context.Context, account *domain.Account, credential string) (int64, error) {
	hash, err := HashCredential(credential, s.bcryptCost)
	if err != nil {
		return 0, fmt.Errorf("hash credential: %w", err)
	}
	account.CredentialHash = hash
	account.CredentialDigest = CredentialDigest(credential)
	account.EmailVerified = false

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.repo.Create(storeCtx, account); err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			return 0, &DuplicateFieldError{Field: conflict.Field}
		}
		return 0, mapStoreErr(err)
	}

	token := uuid.NewString()
	if err := s.repo.SaveVerificationToken(storeCtx, account.ID, token, time.Now().Add(verificationTokenTTL)); err != nil {
		// The account exists; the holder can request a fresh link through
		// the resend endpoint.
		ctxlog.FromContext(ctx).Error("save verification token", "account_id", account.ID, "error", err)
		token = ""
	}

	s.notifyRegistered(ctx, account, token)
	return account.ID, nil
}

func (s *Service) notifyRegistered(ctx context.Context, account *domain.Account, token string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.AccountRegistered(ctx, account, token); err != nil {
		ctxlog.FromContext(ctx).Error("account registered notification", "account_id", account.ID, "error", err)
	}
}

func (s *Service) notifyVerificationRequested(ctx context.Context, account *domain.Account, token string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.VerificationRequested(ctx, account, token); err != nil {
		ctxlog.FromContext(ctx).Error("verification requested notification", "account_id", account.ID, "error", err)
	}
}

func (s *Service) notifyApprovalChanged(ctx context.Context, account *domain.Account) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.ApprovalChanged(ctx, account); err != nil {
		ctxlog.FromContext(ctx).Error("approval changed notification", "account_id", account.ID, "error", err)
	}
}

// NormalizeEmail lowercases and trims a candidate email so uniqueness
// checks and logins agree on its canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// mapStoreErr translates a timed-out store call into the transient
// ErrStoreUnavailable; domain sentinels pass through untouched.
func mapStoreErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}
