// ABOUTME: Signup, verification, password reset, login, refresh and social login flows
// ABOUTME: Lower-layer sentinel errors are translated into auth Error kinds here

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/coven-identity/internal/identity"
	"github.com/2389/coven-identity/internal/otp"
	"github.com/2389/coven-identity/internal/store"
)

// Signup creates an unverified account and sends it a signup code.
func (s *Service) Signup(ctx context.Context, req SignupRequest) error {
	name := strings.TrimSpace(req.Name)
	email := store.NormalizeEmail(req.Email)
	phone := normalizePhone(req.Phone)

	if name == "" {
		return validationError("name is required")
	}
	if err := validateEmail(email); err != nil {
		return err
	}
	if phone == "" {
		return validationError("phone is required")
	}
	if err := validatePassword(req.Password); err != nil {
		return err
	}

	exists, err := s.users.UserExists(ctx, store.FieldEmail, email)
	if err != nil {
		return internalError("checking email", err)
	}
	if exists {
		return newError(KindConflict, "email already registered", store.ErrEmailExists)
	}
	exists, err = s.users.UserExists(ctx, store.FieldPhone, phone)
	if err != nil {
		return internalError("checking phone", err)
	}
	if exists {
		return newError(KindConflict, "phone already registered", store.ErrPhoneExists)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return internalError("hashing password", err)
	}

	now := s.now().UTC()
	user := &store.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		Role:         store.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// The existence checks above can race; the unique index decides
	if err := s.users.CreateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, store.ErrEmailExists):
			return newError(KindConflict, "email already registered", err)
		case errors.Is(err, store.ErrPhoneExists):
			return newError(KindConflict, "phone already registered", err)
		default:
			return internalError("creating user", err)
		}
	}
	s.logger.Info("user created", "user_id", user.ID, "email", email)
	s.record(ctx, email, store.AuditSignup, nil)

	return s.issueOTP(ctx, email, otp.PurposeSignup)
}

// ResendVerification issues a fresh signup code to an unverified account.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email = store.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return storeError("looking up user", err)
	}
	if user.EmailVerified {
		return validationError("email already verified")
	}
	return s.issueOTP(ctx, email, otp.PurposeSignup)
}

// VerifyOTP consumes a code and completes whatever it was issued for.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (VerifyResult, error) {
	email = store.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if err := validateEmail(email); err != nil {
		return VerifyResult{}, err
	}
	if code == "" {
		return VerifyResult{}, validationError("code is required")
	}

	purpose, err := s.otp.Verify(ctx, email, code)
	if err != nil {
		if errors.Is(err, otp.ErrInvalidOTP) {
			s.logger.Debug("otp rejected", "email", email)
			return VerifyResult{}, newError(KindInvalidOTP, ErrInvalidOTP.Message, err)
		}
		return VerifyResult{}, internalError("verifying code", err)
	}

	switch purpose {
	case otp.PurposeSignup:
		if err := s.users.SetEmailVerified(ctx, email); err != nil {
			return VerifyResult{}, storeError("marking email verified", err)
		}
		s.logger.Info("email verified", "email", email)
		s.record(ctx, email, store.AuditEmailVerified, nil)
		return VerifyResult{Purpose: purpose}, nil

	case otp.PurposeForgotPassword:
		resetToken, err := s.tokens.IssuePasswordReset(email)
		if err != nil {
			return VerifyResult{}, internalError("issuing reset token", err)
		}
		s.logger.Info("password reset authorized", "email", email)
		return VerifyResult{Purpose: purpose, ResetToken: resetToken}, nil

	case otp.PurposeUnknown:
		return VerifyResult{}, newError(KindInvalidOTP, ErrInvalidOTP.Message, nil)

	default:
		return VerifyResult{}, newError(KindInvalidOTP, ErrInvalidOTP.Message, nil)
	}
}

// ForgotPassword sends a password reset code to an existing account.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = store.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	exists, err := s.users.UserExists(ctx, store.FieldEmail, email)
	if err != nil {
		return internalError("checking email", err)
	}
	if !exists {
		return newError(KindNotFound, ErrNotFound.Message, store.ErrNotFound)
	}
	if err := s.issueOTP(ctx, email, otp.PurposeForgotPassword); err != nil {
		return err
	}
	s.record(ctx, email, store.AuditPasswordResetRequested, nil)
	return nil
}

// ResetPassword sets a new password using a reset token from VerifyOTP.
// The token must have been issued for the same email and, with a replay
// guard configured, is accepted only once.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	email := store.NormalizeEmail(req.Email)
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := validatePassword(req.Password); err != nil {
		return err
	}
	if strings.TrimSpace(req.ResetToken) == "" {
		return validationError("reset token is required")
	}

	claims, err := s.tokens.VerifyPasswordReset(req.ResetToken)
	if err != nil {
		return newError(KindInvalidToken, ErrInvalidToken.Message, err)
	}
	if store.NormalizeEmail(claims.Email) != email {
		s.logger.Warn("reset token presented for another account", "email", email)
		return newError(KindInvalidToken, ErrInvalidToken.Message, nil)
	}
	if s.replay != nil {
		first, err := s.replay.Spend(ctx, claims.ID, claims.ExpiresAt)
		if err != nil {
			return internalError("recording reset token use", err)
		}
		if !first {
			s.logger.Warn("reset token replayed", "email", email, "jti", claims.ID)
			s.record(ctx, email, store.AuditResetTokenReplayed, map[string]any{"jti": claims.ID})
			return newError(KindInvalidToken, "reset token already used", nil)
		}
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return internalError("hashing password", err)
	}
	if err := s.users.SetPasswordHash(ctx, email, hash); err != nil {
		return storeError("updating password", err)
	}
	s.logger.Info("password reset", "email", email)
	s.record(ctx, email, store.AuditPasswordReset, nil)
	return nil
}

// Login checks a password and issues an access and refresh token.
// RememberMe selects the extended refresh lifetime.
func (s *Service) Login(ctx context.Context, req LoginRequest) (TokenPair, error) {
	email := store.NormalizeEmail(req.Email)
	if err := validateEmail(email); err != nil {
		return TokenPair{}, err
	}
	if req.Password == "" {
		return TokenPair{}, validationError("password is required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		_ = s.hasher.Compare(s.dummyHash, req.Password)
		s.logger.Info("login failed", "email", email, "reason", "user_not_found")
		s.record(ctx, email, store.AuditLoginFailed, map[string]any{"reason": "user_not_found"})
		return TokenPair{}, &Error{Kind: KindNotFound, Message: ErrNotFound.Message, Err: err, login: true}
	}
	if err != nil {
		return TokenPair{}, internalError("looking up user", err)
	}

	if !user.HasPassword() {
		_ = s.hasher.Compare(s.dummyHash, req.Password)
		s.logger.Info("login failed", "email", email, "reason", "social_only")
		s.record(ctx, email, store.AuditLoginFailed, map[string]any{"reason": "social_only"})
		return TokenPair{}, newError(KindSocialOnlyAccount, ErrSocialOnlyAccount.Message, nil)
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		s.logger.Info("login failed", "email", email, "reason", "password_mismatch")
		s.record(ctx, email, store.AuditLoginFailed, map[string]any{"reason": "password_mismatch"})
		return TokenPair{}, &Error{Kind: KindInvalidCredentials, Message: ErrInvalidCredentials.Message, login: true}
	}

	pair, err := s.issuePair(user.Email, user.Role, req.RememberMe)
	if err != nil {
		return TokenPair{}, err
	}
	s.logger.Info("login", "user_id", user.ID, "remember_me", req.RememberMe)
	s.record(ctx, user.Email, store.AuditLogin, map[string]any{"remember_me": req.RememberMe})
	return pair, nil
}

// Refresh mints a new access token from an "Authorization: Bearer" header
// value carrying a refresh token. The refresh token itself is not rotated.
func (s *Service) Refresh(ctx context.Context, authorization string) (string, error) {
	raw, errMsg := extractBearerToken(authorization)
	if errMsg != "" {
		return "", validationError("refresh token not found")
	}

	claims, err := s.tokens.VerifyRefresh(raw)
	if err != nil {
		return "", newError(KindInvalidToken, ErrInvalidToken.Message, err)
	}

	user, err := s.users.GetUserByEmail(ctx, claims.Email)
	if err != nil {
		return "", storeError("looking up user", err)
	}

	access, err := s.tokens.IssueAccess(user.Email, string(user.Role))
	if err != nil {
		return "", internalError("issuing access token", err)
	}
	s.logger.Debug("access token refreshed", "user_id", user.ID)
	return access, nil
}

// SocialLogin signs in with a provider identity token, creating or linking
// the account as needed. The refresh token always has the extended lifetime.
func (s *Service) SocialLogin(ctx context.Context, providerToken string) (TokenPair, error) {
	if s.identity == nil {
		return TokenPair{}, internalError("social login", errors.New("no identity provider configured"))
	}
	if strings.TrimSpace(providerToken) == "" {
		return TokenPair{}, validationError("identity token is required")
	}

	claims, err := s.identity.VerifyExternalIdentity(ctx, providerToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidExternalToken) {
			return TokenPair{}, newError(KindInvalidExternalToken, ErrInvalidExternalToken.Message, err)
		}
		return TokenPair{}, internalError("verifying identity token", err)
	}
	email := store.NormalizeEmail(claims.Email)

	user, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		user, err = s.createSocialUser(ctx, email, claims)
		if err != nil {
			return TokenPair{}, err
		}
	case err != nil:
		return TokenPair{}, internalError("looking up user", err)
	default:
		if err := s.linkSocialUser(ctx, user, claims); err != nil {
			return TokenPair{}, err
		}
	}

	pair, err := s.issuePair(user.Email, user.Role, true)
	if err != nil {
		return TokenPair{}, err
	}
	s.record(ctx, user.Email, store.AuditSocialLogin, map[string]any{"provider": claims.Provider})
	return pair, nil
}

func (s *Service) createSocialUser(ctx context.Context, email string, claims *identity.Claims) (*store.User, error) {
	now := s.now().UTC()
	user := &store.User{
		ID:            uuid.New().String(),
		Name:          claims.Name,
		Email:         email,
		Picture:       claims.Picture,
		EmailVerified: true,
		Role:          store.RoleUser,
		Providers:     map[string]string{claims.Provider: claims.Subject},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := s.users.CreateUser(ctx, user)
	if err == nil {
		s.logger.Info("user created", "user_id", user.ID, "email", email, "provider", claims.Provider)
		return user, nil
	}
	if !errors.Is(err, store.ErrEmailExists) {
		return nil, internalError("creating user", err)
	}

	// Lost a race with a concurrent signup or social login; link instead
	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, internalError("looking up user", err)
	}
	if err := s.linkSocialUser(ctx, existing, claims); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Service) linkSocialUser(ctx context.Context, user *store.User, claims *identity.Claims) error {
	if !user.EmailVerified {
		if err := s.users.SetEmailVerified(ctx, user.Email); err != nil {
			return storeError("marking email verified", err)
		}
		user.EmailVerified = true
	}
	if _, linked := user.Providers[claims.Provider]; linked {
		return nil
	}
	if err := s.users.LinkProvider(ctx, user.Email, claims.Provider, claims.Subject); err != nil {
		return storeError("linking provider", err)
	}
	s.logger.Info("provider linked", "user_id", user.ID, "provider", claims.Provider)
	s.record(ctx, user.Email, store.AuditProviderLinked, map[string]any{"provider": claims.Provider})
	return nil
}

// Authenticate verifies an access token and returns the caller's identity.
// It does not consult the store.
func (s *Service) Authenticate(_ context.Context, accessToken string) (*Identity, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, validationError("access token is required")
	}
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, newError(KindInvalidToken, ErrInvalidToken.Message, err)
	}
	return &Identity{Email: claims.Email, Role: store.Role(claims.Role)}, nil
}
