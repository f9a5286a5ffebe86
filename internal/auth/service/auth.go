package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"sync"

	"github.com/aussiebroadwan/miniokta/internal/auth/domain"
	"github.com/aussiebroadwan/miniokta/internal/auth/identity"
	"github.com/aussiebroadwan/miniokta/internal/auth/store"
	"github.com/aussiebroadwan/miniokta/pkg/cryptox"
	"github.com/aussiebroadwan/miniokta/pkg/idx"
	"github.com/aussiebroadwan/miniokta/pkg/jwtx"
	"github.com/aussiebroadwan/miniokta/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

// Outcome is the terminal state of a successful login attempt. Rejections
// are returned as errors.
type Outcome int

const (
	OutcomeIssued Outcome = iota + 1
	OutcomeSecondFactorPending
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIssued:
		return "issued"
	case OutcomeSecondFactorPending:
		return "second_factor_pending"
	default:
		return "unknown"
	}
}

// LoginResult carries a token when Outcome is OutcomeIssued. User is always
// set so transports can tell the client who must present a second factor.
type LoginResult struct {
	Outcome Outcome
	Token   domain.IssuedToken
	User    domain.User
}

// Credential is what a login attempt presents. The set is closed:
// PasswordCredential and ExternalCredential.
type Credential interface {
	credential()
}

// PasswordCredential is an email and plaintext password.
type PasswordCredential struct {
	Email    string
	Password string
}

// ExternalCredential wraps an assertion from an identity provider that has
// already been verified by the adapter.
type ExternalCredential struct {
	Assertion identity.Assertion
}

func (PasswordCredential) credential() {}
func (ExternalCredential) credential() {}

// RegisterRequest creates a local account.
type RegisterRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// AuthService is the login state machine. Every path resolves a user, then
// either issues a token or stops at SecondFactorPending.
type AuthService struct {
	Store  store.Store
	Hasher *cryptox.PasswordHasher
	Tokens *TokenService
	MFA    *MFAService
	Clock  clockwork.Clock

	// MinPasswordLength applies to registration only; existing digests are
	// verified whatever their plaintext length was. Zero only requires a
	// non-empty password.
	MinPasswordLength int

	dummyOnce sync.Once
	dummyHash string
}

func (s *AuthService) clock() clockwork.Clock {
	if s.Clock == nil {
		return clockwork.NewRealClock()
	}
	return s.Clock
}

// Register creates a local user and issues a token straight away. The
// store's unique index decides races, so two concurrent registrations for
// one email yield exactly one account and one ErrConflict.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (LoginResult, error) {
	l := slogx.FromContext(ctx)

	email := domain.NormalizeEmail(req.Email)
	if err := validateEmail(email); err != nil {
		return LoginResult{}, err
	}
	if req.Password == "" || len(req.Password) < s.MinPasswordLength {
		return LoginResult{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidRequest, max(s.MinPasswordLength, 1))
	}

	hash, err := s.Hasher.Hash(req.Password)
	if err != nil {
		return LoginResult{}, upstream("hash password", err)
	}

	now := s.clock().Now().UTC()
	u := domain.User{
		ID:           idx.NewAt(now).String(),
		Email:        email,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
		Provider:     domain.ProviderLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.Store.Users().CreateUser(ctx, u)
	if errors.Is(err, store.ErrAlreadyExists) {
		l.Info("registration rejected, email taken")
		return LoginResult{}, ErrConflict
	}
	if err != nil {
		return LoginResult{}, upstream("create user", err)
	}

	l.Info("user registered", slog.String("user_id", u.ID))
	return s.issue(u, jwtx.AMRPassword)
}

// Login runs one attempt. Users with MFA enabled never get a token here;
// they get OutcomeSecondFactorPending and must call CompleteSecondFactor.
func (s *AuthService) Login(ctx context.Context, cred Credential) (LoginResult, error) {
	var (
		u   domain.User
		amr string
		err error
	)

	switch c := cred.(type) {
	case PasswordCredential:
		u, err = s.checkPassword(ctx, c)
		amr = jwtx.AMRPassword
	case ExternalCredential:
		u, err = s.resolveExternal(ctx, c.Assertion)
		amr = jwtx.AMRExternal
	default:
		return LoginResult{}, fmt.Errorf("%w: unsupported credential %T", ErrInvalidRequest, cred)
	}
	if err != nil {
		return LoginResult{}, err
	}

	if u.MFAEnabled {
		slogx.FromContext(ctx).Info("second factor required", slog.String("user_id", u.ID))
		return LoginResult{Outcome: OutcomeSecondFactorPending, User: u}, nil
	}
	return s.issue(u, amr)
}

// CompleteSecondFactor finishes a login that stopped at
// OutcomeSecondFactorPending.
func (s *AuthService) CompleteSecondFactor(ctx context.Context, email, code string) (LoginResult, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || code == "" {
		return LoginResult{}, fmt.Errorf("%w: email and code are required", ErrInvalidRequest)
	}

	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return LoginResult{}, ErrMFANotEnabled
	}
	if err != nil {
		return LoginResult{}, upstream("load user", err)
	}

	if err := s.MFA.redeem(ctx, u, code); err != nil {
		return LoginResult{}, err
	}

	slogx.FromContext(ctx).Info("second factor accepted", slog.String("user_id", u.ID))
	return s.issue(u, jwtx.AMRMFA)
}

func (s *AuthService) checkPassword(ctx context.Context, c PasswordCredential) (domain.User, error) {
	l := slogx.FromContext(ctx)

	email := domain.NormalizeEmail(c.Email)
	if email == "" || c.Password == "" {
		return domain.User{}, fmt.Errorf("%w: email and password are required", ErrInvalidRequest)
	}

	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.burnVerify(c.Password)
		l.Info("login rejected", slog.String("reason", "unknown email"))
		return domain.User{}, ErrInvalidCredentials
	case err != nil:
		return domain.User{}, upstream("load user", err)
	}

	if u.Provider != domain.ProviderLocal || u.PasswordHash == "" {
		s.burnVerify(c.Password)
		l.Info("login rejected", slog.String("reason", "no local password"), slog.String("user_id", u.ID))
		return domain.User{}, ErrInvalidCredentials
	}

	if err := s.Hasher.Verify(c.Password, u.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			l.Info("login rejected", slog.String("reason", "password mismatch"), slog.String("user_id", u.ID))
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, upstream("verify password", err)
	}

	return u, nil
}

// resolveExternal finds or provisions the local user for an assertion. A
// lost creation race is resolved by reading the winner's record.
func (s *AuthService) resolveExternal(ctx context.Context, a identity.Assertion) (domain.User, error) {
	email := domain.NormalizeEmail(a.Email)
	if email == "" {
		return domain.User{}, fmt.Errorf("%w: assertion has no email", ErrInvalidRequest)
	}

	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, upstream("load user", err)
	}

	now := s.clock().Now().UTC()
	u = domain.User{
		ID:          idx.NewAt(now).String(),
		Email:       email,
		DisplayName: a.Name,
		Provider:    domain.ProviderExternal,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.Store.Users().CreateUser(ctx, u)
	if errors.Is(err, store.ErrAlreadyExists) {
		u, err = s.Store.Users().GetUserByEmail(ctx, email)
		if err != nil {
			return domain.User{}, upstream("load user after create race", err)
		}
		return u, nil
	}
	if err != nil {
		return domain.User{}, upstream("create external user", err)
	}

	slogx.FromContext(ctx).Info("external user provisioned",
		slog.String("user_id", u.ID),
		slog.String("provider", a.Provider),
	)
	return u, nil
}

func (s *AuthService) issue(u domain.User, amr string) (LoginResult, error) {
	tok, err := s.Tokens.Issue(u, amr)
	if err != nil {
		return LoginResult{}, upstream("issue token", err)
	}
	return LoginResult{Outcome: OutcomeIssued, Token: tok, User: u}, nil
}

// burnVerify spends the same hashing work as a real verify so unknown
// emails are not distinguishable by response time.
func (s *AuthService) burnVerify(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.Hasher.Hash("miniokta-timing-equaliser")
	})
	if s.dummyHash != "" {
		_ = s.Hasher.Verify(password, s.dummyHash)
	}
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidRequest)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: email is not a valid address", ErrInvalidRequest)
	}
	return nil
}
