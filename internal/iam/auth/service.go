// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

/*
Authentication service: login, registration, token rotation, and password recovery.

Architecture:

  - Service: Orchestrates business logic (Register, Login, Rotate).
  - CredentialStore / TokenLedger: Abstracted Postgres interfaces.
  - StampCache / token repositories: Abstracted Redis interfaces.
  - Security: Bcrypt hashing and HMAC-signed JWTs via the sec package.

All "now" comparisons go through the injected clock so expiry logic is
deterministically testable.
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meridianhq/adminkit/internal/iam/catalog"
	"github.com/meridianhq/adminkit/internal/platform/apperr"
	"github.com/meridianhq/adminkit/internal/platform/clock"
	"github.com/meridianhq/adminkit/internal/platform/constants"
	"github.com/meridianhq/adminkit/internal/platform/ctxutil"
	"github.com/meridianhq/adminkit/internal/platform/email"
	"github.com/meridianhq/adminkit/internal/platform/sec"
	"github.com/meridianhq/adminkit/internal/platform/validate"
	"github.com/meridianhq/adminkit/pkg/uuid"
)

// # Rotation Outcomes

// Sentinel errors for the refresh-token rotation protocol. They are wrapped
// in a generic 401 [apperr.AppError] before crossing the service boundary, so
// clients see one message while logs and tests can distinguish the cause via
// errors.Is.
var (
	ErrTokenNotFound    = errors.New("refresh token not found")
	ErrTokenInvalidated = errors.New("refresh token invalidated")
	ErrTokenReused      = errors.New("refresh token reuse detected")
	ErrTokenExpired     = errors.New("refresh token expired")
)

// stampCacheTTL bounds how long a cached security stamp may be served.
const stampCacheTTL = 30 * time.Minute

// # Service

// Service implements the authentication use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, rotation,
// or login logic must be reviewed by the security team.
type Service struct {
	credentials  CredentialStore
	ledger       TokenLedger
	stamps       StampCache
	resetTokens  ResetTokenRepository
	verifyTokens VerificationTokenRepository
	tokens       *sec.TokenService
	mailer       email.Sender
	clock        clock.Clock
}

// NewService constructs a new authentication [Service] with necessary dependencies.
func NewService(
	credentials CredentialStore,
	ledger TokenLedger,
	stamps StampCache,
	resetTokens ResetTokenRepository,
	verifyTokens VerificationTokenRepository,
	tokens *sec.TokenService,
	mailer email.Sender,
	clk clock.Clock,
) *Service {
	return &Service{
		credentials:  credentials,
		ledger:       ledger,
		stamps:       stamps,
		resetTokens:  resetTokens,
		verifyTokens: verifyTokens,
		tokens:       tokens,
		mailer:       mailer,
		clock:        clk,
	}
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new member.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
	Phone       string
}

/*
Register validates, hashes, and persists a brand new user account.

Description: Enrolls a new member with the default base role, handling
password hashing, phone normalization, and initial verification token state.
Email delivery failures are logged and swallowed — registration succeeds
regardless of deliverability.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *User: Created entity
  - error: Validation, Conflict (if identity exists), or storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*User, error) {
	validator := &validate.Validator{}
	validator.
		Required(FieldUsername, input.Username).MinLen(FieldUsername, input.Username, 3).MaxLen(FieldUsername, input.Username, 32).
		Required(FieldEmail, input.Email).Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).MinLen(FieldPassword, input.Password, 8).MaxLen(FieldPassword, input.Password, 72)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	// Verify email uniqueness. Return a client-safe Conflict error.
	_, err := service.credentials.FindByEmail(context, input.Email)
	if err == nil {
		return nil, apperr.Conflict("Email is already registered")
	}

	// Verify username uniqueness. Return a client-safe Conflict error.
	_, err = service.credentials.FindByUsername(context, input.Username)
	if err == nil {
		return nil, apperr.Conflict("Username is already taken")
	}

	// Normalize and uniqueness-check the phone number before creating the account
	phone := NormalizePhone(input.Phone)
	if phone != "" {
		if _, err := service.credentials.FindByPhone(context, phone); err == nil {
			return nil, apperr.Conflict("Phone number is already registered")
		}
	}

	// Prevent storing plain-text passwords. Default cost is used for balance
	// between security and CPU utilization during registration spikes.
	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	// Every account starts with a fresh security stamp
	stamp, err := sec.GenerateSecureToken(SecurityStampLength)
	if err != nil {
		return nil, fmt.Errorf("auth_service_stamp_generation_failed: %w", err)
	}

	// Construct the new User entity. Time-sortable ID to prevent PG index fragmentation.
	user := &User{
		ID:             uuid.New(),
		Username:       input.Username,
		Email:          input.Email,
		PasswordHash:   hashedPassword,
		DisplayName:    input.DisplayName,
		Phone:          phone,
		SecurityStamp:  stamp,
		EmailConfirmed: false,
	}

	// Persist the user to the database
	if err := service.credentials.Create(context, user); err != nil {
		return nil, fmt.Errorf("auth_service_register_failed: %w", err)
	}

	// Every new account holds the base system role
	if err := service.credentials.AssignRole(context, user.ID, catalog.RoleUser); err != nil {
		return nil, fmt.Errorf("auth_service_assign_base_role_failed: %w", err)
	}

	// Generate a verification token and send the email best-effort
	token, err := sec.GenerateSecureToken(VerificationTokenLength)
	if err == nil {
		_ = service.verifyTokens.Set(context, token, user.ID, VerificationTokenTTL)
		service.sendMail(context, email.Message{
			To:      user.Email,
			Subject: "Verify your email address",
			Body:    "Welcome! Use this token to verify your email address: " + token,
		})
	}

	return user, nil
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Login      string // Can be Username or Email
	Password   string
	RememberMe bool
}

// LoginSession represents a successfully established user session.
type LoginSession struct {
	AccessToken           string
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	User                  *User
}

/*
Login validates user credentials and issues a token pair.

Description: Verifies identity with lockout-on-failure, performs constant-time
password comparison, and opens a new refresh-token chain. A locked account and
a wrong password both surface the same generic message to block enumeration,
but are logged distinctly.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginSession: Transport-ready session credentials
  - error: Unauthorized or internal failures
*/
func (service *Service) Login(context context.Context, input LoginInput) (*LoginSession, error) {
	logger := ctxutil.GetLogger(context)

	// Flexible login: look up by Email or Username
	user, err := service.credentials.FindByEmail(context, input.Login)
	if err != nil {
		user, err = service.credentials.FindByUsername(context, input.Login)
	}

	// If (err != nil) the user does not exist. Generic message to prevent enumeration.
	if err != nil {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	now := service.clock.Now()

	// A locked account fails with the same generic message but a distinct log line
	if user.LockedOut(now) {
		logger.WarnContext(context, "auth_login_rejected_locked_out", slog.String("user_id", user.ID))
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// Verify password hash using constant-time comparison in bcrypt to prevent timing attacks
	if !sec.CheckPasswordHash(input.Password, user.PasswordHash) {
		service.recordFailure(context, user, now)
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// Successful login clears the failure counter
	if user.AccessFailedCount > 0 {
		_ = service.credentials.ResetAccessFailures(context, user.ID)
	}

	// A fresh login opens a new chain with a full lifetime
	ttl := RefreshTokenTTL
	if input.RememberMe {
		ttl = PersistentRefreshTokenTTL
	}

	return service.issueSession(context, user, input.RememberMe, now.Add(ttl))
}

// recordFailure bumps the failed-login counter and starts the lockout window
// once the threshold is reached.
func (service *Service) recordFailure(context context.Context, user *User, now time.Time) {
	var lockoutUntil *time.Time
	if user.AccessFailedCount+1 >= constants.MaxAccessFailedCount {
		until := now.Add(constants.LockoutDuration)
		lockoutUntil = &until

		logger := ctxutil.GetLogger(context)
		logger.WarnContext(context, "auth_account_locked_out",
			slog.String("user_id", user.ID),
			slog.Time("until", until),
		)
	}
	_ = service.credentials.RecordAccessFailure(context, user.ID, lockoutUntil)
}

// issueSession resolves the user's live claims, mints an access token, and
// persists a fresh refresh token expiring at the given time.
func (service *Service) issueSession(context context.Context, user *User, persistent bool, expiresAt time.Time) (*LoginSession, error) {
	roles, err := service.credentials.RolesOf(context, user.ID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_roles_resolution_failed: %w", err)
	}

	permissions, err := service.credentials.PermissionsOf(context, user.ID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_permissions_resolution_failed: %w", err)
	}

	accessToken, err := service.tokens.IssueAccessToken(sec.IssueInput{
		UserID:        user.ID,
		Username:      user.Username,
		Email:         user.Email,
		SecurityStamp: user.SecurityStamp,
		Roles:         roles,
		Permissions:   permissions,
	})
	if err != nil {
		return nil, fmt.Errorf("auth_service_token_generation_failed: %w", err)
	}

	refreshSecret, err := sec.GenerateSecureToken(RefreshTokenLength)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_token_failed: %w", err)
	}

	token := &RefreshToken{
		ID:         uuid.New(),
		UserID:     user.ID,
		TokenHash:  sec.HashToken(refreshSecret),
		Persistent: persistent,
		ExpiresAt:  expiresAt,
		CreatedAt:  service.clock.Now(),
	}

	if err := service.ledger.Create(context, token); err != nil {
		return nil, fmt.Errorf("auth_service_refresh_persist_failed: %w", err)
	}

	return &LoginSession{
		AccessToken:           accessToken,
		RefreshToken:          refreshSecret,
		RefreshTokenExpiresAt: expiresAt,
		User:                  user,
	}, nil
}

// # Rotation Protocol

/*
Rotate exchanges a refresh secret for a fresh token pair.

Description: Implements the single-use rotation protocol with reuse detection.
Presenting an already-used secret is treated as theft: the entire token family
is invalidated, the security stamp rotates, and the account owner is alerted.
A plain rotation inherits the original expiry so the chain's total lifetime
never grows.

Parameters:
  - context: context.Context
  - refreshSecret: string

Returns:
  - *LoginSession: New session credentials
  - error: Unauthorized wrapping one of the sentinel rotation errors
*/
func (service *Service) Rotate(context context.Context, refreshSecret string) (*LoginSession, error) {

	// 1. Hash the presented secret; never compare raw secrets
	tokenHash := sec.HashToken(refreshSecret)
	token, err := service.ledger.FindByHash(context, tokenHash)
	if err != nil {
		return nil, apperr.UnauthorizedCause("Invalid or expired refresh token", ErrTokenNotFound)
	}

	// 2. An invalidated token is dead; no state change
	if token.Invalidated {
		return nil, apperr.UnauthorizedCause("Invalid or expired refresh token", ErrTokenInvalidated)
	}

	// 3. A used token presented again is the reuse alarm
	if token.Used {
		return nil, service.handleReuse(context, token)
	}

	// 4. Expiry check through the injected clock
	if token.Expired(service.clock.Now()) {
		_ = service.ledger.Invalidate(context, token.ID)
		return nil, apperr.UnauthorizedCause("Invalid or expired refresh token", ErrTokenExpired)
	}

	// 5. Single-winner transition: exactly one concurrent caller flips used
	won, err := service.ledger.MarkUsed(context, token.ID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_rotate_mark_used_failed: %w", err)
	}
	if !won {
		// A concurrent rotation of the same secret beat us; same teardown as reuse
		return nil, service.handleReuse(context, token)
	}

	// 6. Issue the replacement pair with the user's live claims
	user, err := service.credentials.FindByID(context, token.UserID)
	if err != nil {
		return nil, apperr.Unauthorized("User not found or suspended")
	}

	// A plain rotation inherits the chain's original expiry
	return service.issueSession(context, user, token.Persistent, token.ExpiresAt)
}

// handleReuse burns the whole token family, rotates the stamp, and alerts the
// account owner. Always returns the TokenReused classification.
func (service *Service) handleReuse(context context.Context, token *RefreshToken) error {
	logger := ctxutil.GetLogger(context)
	logger.WarnContext(context, "auth_refresh_token_reuse_detected",
		slog.String("user_id", token.UserID),
		slog.String("token_id", token.ID),
	)

	stamp, err := sec.GenerateSecureToken(SecurityStampLength)
	if err != nil {
		return fmt.Errorf("auth_service_reuse_stamp_generation_failed: %w", err)
	}

	if err := service.ledger.BurnFamily(context, token.ID, token.UserID, stamp); err != nil {
		return fmt.Errorf("auth_service_reuse_teardown_failed: %w", err)
	}

	// Drop cached identity so the rotated stamp is observed immediately
	_ = service.stamps.Evict(context, token.UserID)

	// Alert the owner out-of-band; delivery failure never masks the rejection
	if user, err := service.credentials.FindByID(context, token.UserID); err == nil {
		service.sendMail(context, email.Message{
			To:      user.Email,
			Subject: "Security alert: your sessions were signed out",
			Body: "A sign-in token for your account was used twice, which can indicate " +
				"token theft. All sessions have been signed out. If this was not you, " +
				"change your password immediately.",
		})
	}

	return apperr.UnauthorizedCause("Invalid or expired refresh token", ErrTokenReused)
}

// # Session Teardown

/*
Logout revokes every refresh token the user holds.

Description: Idempotent. Rotates the security stamp so outstanding access
tokens go stale alongside the refresh chain.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - error: Revocation failures
*/
func (service *Service) Logout(context context.Context, userID string) error {
	if err := service.RevokeAllForUser(context, userID); err != nil {
		return fmt.Errorf("auth_service_logout_failed: %w", err)
	}
	return nil
}

/*
RevokeAllForUser invalidates every live refresh token for a user, rotates the
security stamp, and evicts cached identity entries.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - error: Teardown failures
*/
func (service *Service) RevokeAllForUser(context context.Context, userID string) error {
	stamp, err := sec.GenerateSecureToken(SecurityStampLength)
	if err != nil {
		return fmt.Errorf("auth_service_revoke_stamp_generation_failed: %w", err)
	}

	if err := service.ledger.InvalidateAllForUser(context, userID, stamp); err != nil {
		return fmt.Errorf("auth_service_revoke_all_failed: %w", err)
	}

	_ = service.stamps.Evict(context, userID)
	return nil
}

// # Password Lifecycle

/*
ChangePassword allows an authenticated user to update their credentials.

Description: Verifies the current password, replaces the hash, and revokes
every refresh token so all other devices must re-authenticate.

Parameters:
  - context: context.Context
  - userID: string
  - currentPassword: string
  - newPassword: string

Returns:
  - error: Unauthorized or storage failures
*/
func (service *Service) ChangePassword(context context.Context, userID, currentPassword, newPassword string) error {
	validator := &validate.Validator{}
	validator.Required(FieldNewPassword, newPassword).MinLen(FieldNewPassword, newPassword, 8).MaxLen(FieldNewPassword, newPassword, 72)
	if err := validator.Err(); err != nil {
		return err
	}

	user, err := service.credentials.FindByID(context, userID)
	if err != nil {
		return err
	}

	// Verify the current password before allowing change
	if !sec.CheckPasswordHash(currentPassword, user.PasswordHash) {
		return apperr.Unauthorized("Current password is incorrect")
	}

	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_change_password_hash_failed: %w", err)
	}

	if err := service.credentials.UpdatePassword(context, userID, hashedPassword); err != nil {
		return fmt.Errorf("auth_service_change_password_update_failed: %w", err)
	}

	// Security side effect: force re-login everywhere
	return service.RevokeAllForUser(context, userID)
}

/*
ForgotPassword initiates the password reset flow.

Description: Always reports success regardless of whether the email exists
(enumeration resistance); an email is only actually sent when the account
exists.

Parameters:
  - context: context.Context
  - emailAddress: string

Returns:
  - error: Generation or storage errors (never NotFound)
*/
func (service *Service) ForgotPassword(context context.Context, emailAddress string) error {
	user, err := service.credentials.FindByEmail(context, emailAddress)
	if err != nil {
		return nil
	}

	token, err := sec.GenerateSecureToken(ResetTokenLength)
	if err != nil {
		return fmt.Errorf("auth_service_generate_reset_token_failed: %w", err)
	}

	if err := service.resetTokens.Set(context, token, user.ID, ResetTokenTTL); err != nil {
		return fmt.Errorf("auth_service_save_reset_token_failed: %w", err)
	}

	service.sendMail(context, email.Message{
		To:      user.Email,
		Subject: "Password reset requested",
		Body:    "Use this token to reset your password (valid for 1 hour): " + token,
	})

	return nil
}

/*
ResetPassword completes the forgot-password flow.

Description: Verifies the token, hashes the new password, updates storage,
and revokes every refresh token for security cleanup.

Parameters:
  - context: context.Context
  - token: string
  - newPassword: string

Returns:
  - error: Validation or update failures
*/
func (service *Service) ResetPassword(context context.Context, token, newPassword string) error {
	validator := &validate.Validator{}
	validator.Required(FieldNewPassword, newPassword).MinLen(FieldNewPassword, newPassword, 8).MaxLen(FieldNewPassword, newPassword, 72)
	if err := validator.Err(); err != nil {
		return err
	}

	userID, err := service.resetTokens.Get(context, token)
	if err != nil {
		return err
	}

	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_reset_password_hash_failed: %w", err)
	}

	if err := service.credentials.UpdatePassword(context, userID, hashedPassword); err != nil {
		return fmt.Errorf("auth_service_reset_password_update_failed: %w", err)
	}

	// Delete the used token and force re-login everywhere
	_ = service.resetTokens.Delete(context, token)
	return service.RevokeAllForUser(context, userID)
}

/*
VerifyEmail confirms a user's email address using a secure token.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - error: Database or resolution errors
*/
func (service *Service) VerifyEmail(context context.Context, token string) error {
	userID, err := service.verifyTokens.Get(context, token)
	if err != nil {
		return err
	}

	if err := service.credentials.MarkEmailConfirmed(context, userID); err != nil {
		return fmt.Errorf("auth_service_verify_email_failed: %w", err)
	}

	_ = service.verifyTokens.Delete(context, token)
	return nil
}

// # Stamp Resolution

/*
SecurityStamp returns the user's live security stamp, serving from the cache
when possible and falling back to PostgreSQL on a miss.

Description: This is the [middleware.StampSource] implementation used on
every authenticated request.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - string: The live security stamp
  - error: NotFound for unknown/deleted users, or retrieval failures
*/
func (service *Service) SecurityStamp(context context.Context, userID string) (string, error) {
	if stamp, err := service.stamps.Get(context, userID); err == nil && stamp != "" {
		return stamp, nil
	}

	user, err := service.credentials.FindByID(context, userID)
	if err != nil {
		return "", err
	}

	// Cache failures must never change the outcome
	_ = service.stamps.Set(context, userID, user.SecurityStamp, stampCacheTTL)

	return user.SecurityStamp, nil
}

// # Helpers

// sendMail delivers best-effort: failures are logged, never surfaced.
func (service *Service) sendMail(context context.Context, message email.Message) {
	if err := service.mailer.Send(context, message); err != nil {
		logger := ctxutil.GetLogger(context)
		logger.ErrorContext(context, "auth_email_delivery_failed",
			slog.String("to", message.To),
			slog.String("error", err.Error()),
		)
	}
}

// NormalizePhone strips spaces, dots, dashes, and parentheses from a phone
// number, keeping a single leading plus sign. Returns "" for empty input.
func NormalizePhone(phone string) string {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return ""
	}

	var builder strings.Builder
	for index, char := range trimmed {
		switch {
		case char >= '0' && char <= '9':
			builder.WriteRune(char)
		case char == '+' && index == 0:
			builder.WriteRune(char)
		}
	}
	return builder.String()
}
