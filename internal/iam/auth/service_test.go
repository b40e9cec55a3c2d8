// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/adminkit/internal/platform/apperr"
	"github.com/meridianhq/adminkit/internal/platform/clock"
	"github.com/meridianhq/adminkit/internal/platform/email"
	"github.com/meridianhq/adminkit/internal/platform/sec"
	"github.com/meridianhq/adminkit/pkg/uuid"
)

// # In-Memory Fakes

type fakeCredentials struct {
	mu    sync.Mutex
	users map[string]*User // by ID
	roles map[string][]string
	perms map[string][]string
}

func newFakeCredentials() *fakeCredentials {
	return &fakeCredentials{
		users: make(map[string]*User),
		roles: make(map[string][]string),
		perms: make(map[string][]string),
	}
}

func (f *fakeCredentials) FindByID(_ context.Context, id string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[id]; ok {
		clone := *user
		return &clone, nil
	}
	return nil, apperr.NotFound("User")
}

func (f *fakeCredentials) findBy(match func(*User) bool) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if match(user) {
			clone := *user
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("User")
}

func (f *fakeCredentials) FindByEmail(_ context.Context, email string) (*User, error) {
	return f.findBy(func(u *User) bool { return u.Email == email })
}

func (f *fakeCredentials) FindByUsername(_ context.Context, username string) (*User, error) {
	return f.findBy(func(u *User) bool { return u.Username == username })
}

func (f *fakeCredentials) FindByPhone(_ context.Context, phone string) (*User, error) {
	return f.findBy(func(u *User) bool { return u.Phone == phone })
}

func (f *fakeCredentials) Create(_ context.Context, user *User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *user
	f.users[user.ID] = &clone
	return nil
}

func (f *fakeCredentials) Update(_ context.Context, user *User) error {
	return f.Create(context.Background(), user)
}

func (f *fakeCredentials) UpdatePassword(_ context.Context, userID, newHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID].PasswordHash = newHash
	return nil
}

func (f *fakeCredentials) UpdateSecurityStamp(_ context.Context, userID, stamp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID].SecurityStamp = stamp
	return nil
}

func (f *fakeCredentials) RecordAccessFailure(_ context.Context, userID string, lockoutUntil *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID].AccessFailedCount++
	if lockoutUntil != nil {
		f.users[userID].LockoutUntil = lockoutUntil
	}
	return nil
}

func (f *fakeCredentials) ResetAccessFailures(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID].AccessFailedCount = 0
	return nil
}

func (f *fakeCredentials) SetLockout(_ context.Context, userID string, until *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID].LockoutUntil = until
	f.users[userID].AccessFailedCount = 0
	return nil
}

func (f *fakeCredentials) MarkEmailConfirmed(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID].EmailConfirmed = true
	return nil
}

func (f *fakeCredentials) SoftDelete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
	return nil
}

func (f *fakeCredentials) AssignRole(_ context.Context, userID, roleName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[userID] = append(f.roles[userID], roleName)
	return nil
}

func (f *fakeCredentials) RolesOf(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.roles[userID]...), nil
}

func (f *fakeCredentials) PermissionsOf(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.perms[userID]...), nil
}

type fakeLedger struct {
	mu     sync.Mutex
	tokens map[string]*RefreshToken // by ID
	owner  *fakeCredentials
}

func newFakeLedger(owner *fakeCredentials) *fakeLedger {
	return &fakeLedger{tokens: make(map[string]*RefreshToken), owner: owner}
}

func (f *fakeLedger) Create(_ context.Context, token *RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *token
	f.tokens[token.ID] = &clone
	return nil
}

func (f *fakeLedger) FindByHash(_ context.Context, tokenHash string) (*RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, token := range f.tokens {
		if token.TokenHash == tokenHash {
			clone := *token
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("Refresh token")
}

func (f *fakeLedger) MarkUsed(_ context.Context, tokenID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokens[tokenID]
	if !ok || token.Used || token.Invalidated {
		return false, nil
	}
	token.Used = true
	return true, nil
}

func (f *fakeLedger) Invalidate(_ context.Context, tokenID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token, ok := f.tokens[tokenID]; ok {
		token.Invalidated = true
	}
	return nil
}

func (f *fakeLedger) BurnFamily(_ context.Context, tokenID, userID, newStamp string) error {
	f.mu.Lock()
	for _, token := range f.tokens {
		if token.ID == tokenID || (token.UserID == userID && !token.Invalidated) {
			token.Invalidated = true
		}
	}
	f.mu.Unlock()
	return f.owner.UpdateSecurityStamp(context.Background(), userID, newStamp)
}

func (f *fakeLedger) InvalidateAllForUser(_ context.Context, userID, newStamp string) error {
	f.mu.Lock()
	for _, token := range f.tokens {
		if token.UserID == userID {
			token.Invalidated = true
		}
	}
	f.mu.Unlock()
	return f.owner.UpdateSecurityStamp(context.Background(), userID, newStamp)
}

func (f *fakeLedger) liveCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, token := range f.tokens {
		if token.UserID == userID && !token.Invalidated {
			count++
		}
	}
	return count
}

type fakeKV struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeKV() *fakeKV { return &fakeKV{values: make(map[string]string)} }

func (f *fakeKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value, ok := f.values[key]; ok {
		return value, nil
	}
	return "", apperr.NotFound("Token")
}

func (f *fakeKV) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return nil
}

type fakeStampCache struct {
	fakeKV
}

func (f *fakeStampCache) Get(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[userID], nil
}

func (f *fakeStampCache) Set(_ context.Context, userID, stamp string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[userID] = stamp
	return nil
}

func (f *fakeStampCache) Evict(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, userID)
	return nil
}

type fakeMailer struct {
	mu       sync.Mutex
	messages []email.Message
}

func (f *fakeMailer) Send(_ context.Context, message email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeMailer) sent() []email.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]email.Message(nil), f.messages...)
}

// # Test Harness

type harness struct {
	service     *Service
	credentials *fakeCredentials
	ledger      *fakeLedger
	stamps      *fakeStampCache
	mailer      *fakeMailer
	clock       *clock.Fake
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	credentials := newFakeCredentials()
	ledger := newFakeLedger(credentials)
	stamps := &fakeStampCache{fakeKV{values: make(map[string]string)}}
	mailer := &fakeMailer{}
	fakeClock := clock.NewFake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	tokens, err := sec.NewTokenService(strings.Repeat("k", 32), "adminkit.test", 10*time.Minute, fakeClock)
	require.NoError(t, err)

	service := NewService(
		credentials,
		ledger,
		stamps,
		newFakeKV(),
		newFakeKV(),
		tokens,
		mailer,
		fakeClock,
	)

	return &harness{
		service:     service,
		credentials: credentials,
		ledger:      ledger,
		stamps:      stamps,
		mailer:      mailer,
		clock:       fakeClock,
	}
}

// seedUser creates an account with a known password, bypassing Register.
func (h *harness) seedUser(t *testing.T, username, password string) *User {
	t.Helper()

	hash, err := sec.HashPassword(password)
	require.NoError(t, err)

	user := &User{
		ID:            uuid.New(),
		Username:      username,
		Email:         username + "@example.com",
		PasswordHash:  hash,
		SecurityStamp: "stamp-" + username,
	}
	require.NoError(t, h.credentials.Create(context.Background(), user))
	return user
}

// # Rotation Protocol

/*
TestRotation_LoginThenRefresh verifies the happy-path rotation chain and the
reuse teardown: the first rotation succeeds, replaying the spent secret fails
and burns the whole family, including the freshly issued token.
*/
func TestRotation_LoginThenRefresh(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedUser(t, "alice", "correct-pw")

	// 1. Login issues the first pair
	first, err := h.service.Login(ctx, LoginInput{Login: "alice", Password: "correct-pw"})
	require.NoError(t, err)
	require.NotEmpty(t, first.RefreshToken)

	// 2. Rotation succeeds and yields a different secret
	second, err := h.service.Rotate(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// 3. Replaying the spent secret is the reuse alarm
	_, err = h.service.Rotate(ctx, first.RefreshToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenReused)

	// 4. The teardown burned the fresh token too
	_, err = h.service.Rotate(ctx, second.RefreshToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenInvalidated)
}

/*
TestRotation_ReuseRotatesStampAndAlerts verifies the security side effects of
reuse detection: the stamp changes, the cache entry is evicted, and the owner
receives an alert email.
*/
func TestRotation_ReuseRotatesStampAndAlerts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.seedUser(t, "bob", "pw-123456")
	originalStamp := user.SecurityStamp

	session, err := h.service.Login(ctx, LoginInput{Login: "bob", Password: "pw-123456"})
	require.NoError(t, err)

	_, err = h.service.Rotate(ctx, session.RefreshToken)
	require.NoError(t, err)

	_, err = h.service.Rotate(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenReused)

	// Stamp rotated
	stored, err := h.credentials.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, originalStamp, stored.SecurityStamp)

	// Family fully invalidated
	assert.Zero(t, h.ledger.liveCount(user.ID))

	// Alert email sent to the owner
	messages := h.mailer.sent()
	require.NotEmpty(t, messages)
	last := messages[len(messages)-1]
	assert.Equal(t, "bob@example.com", last.To)
	assert.Contains(t, last.Subject, "Security alert")
}

/*
TestRotation_Expiry verifies that an expired token fails with the expiry
classification and is left invalidated.
*/
func TestRotation_Expiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedUser(t, "carol", "pw-123456")

	session, err := h.service.Login(ctx, LoginInput{Login: "carol", Password: "pw-123456"})
	require.NoError(t, err)

	// Jump past the 24h standard lifetime
	h.clock.Advance(25 * time.Hour)

	_, err = h.service.Rotate(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenExpired)

	// A dead token stays dead, now with the invalidated classification
	_, err = h.service.Rotate(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenInvalidated)
}

/*
TestRotation_UnknownSecret verifies that an unknown secret fails without state
change and maps to a 401.
*/
func TestRotation_UnknownSecret(t *testing.T) {
	h := newHarness(t)

	_, err := h.service.Rotate(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, 401, appError.HTTPStatus)
}

/*
TestRotation_PersistentChainInheritsExpiry verifies that a plain rotation
never extends the chain's lifetime.
*/
func TestRotation_PersistentChainInheritsExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedUser(t, "dave", "pw-123456")

	session, err := h.service.Login(ctx, LoginInput{Login: "dave", Password: "pw-123456", RememberMe: true})
	require.NoError(t, err)
	assert.Equal(t, h.clock.Now().Add(PersistentRefreshTokenTTL), session.RefreshTokenExpiresAt)

	h.clock.Advance(48 * time.Hour)

	rotated, err := h.service.Rotate(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, session.RefreshTokenExpiresAt, rotated.RefreshTokenExpiresAt)
}

// # Login & Lockout

/*
TestLogin_BadCredentialsGeneric verifies that unknown users and wrong
passwords yield the identical generic message.
*/
func TestLogin_BadCredentialsGeneric(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedUser(t, "erin", "pw-123456")

	_, unknownErr := h.service.Login(ctx, LoginInput{Login: "nobody", Password: "pw-123456"})
	_, wrongErr := h.service.Login(ctx, LoginInput{Login: "erin", Password: "wrong"})

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

/*
TestLogin_LockoutAfterRepeatedFailures verifies that the account locks after
the failure threshold and rejects even the correct password until the window
elapses.
*/
func TestLogin_LockoutAfterRepeatedFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedUser(t, "frank", "pw-123456")

	for range [5]struct{}{} {
		_, err := h.service.Login(ctx, LoginInput{Login: "frank", Password: "wrong"})
		require.Error(t, err)
	}

	// Correct password now fails: locked out
	_, err := h.service.Login(ctx, LoginInput{Login: "frank", Password: "pw-123456"})
	require.Error(t, err)

	// After the window passes the login succeeds again
	h.clock.Advance(16 * time.Minute)
	_, err = h.service.Login(ctx, LoginInput{Login: "frank", Password: "pw-123456"})
	assert.NoError(t, err)
}

// # Registration

/*
TestRegister_AssignsBaseRoleAndNormalizesPhone covers default role assignment
and phone normalization on enrollment.
*/
func TestRegister_AssignsBaseRoleAndNormalizesPhone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	user, err := h.service.Register(ctx, RegisterInput{
		Username: "grace",
		Email:    "grace@example.com",
		Password: "pw-123456",
		Phone:    "+1 (555) 010-2030",
	})
	require.NoError(t, err)
	assert.Equal(t, "+15550102030", user.Phone)
	assert.NotEmpty(t, user.SecurityStamp)

	roles, err := h.credentials.RolesOf(ctx, user.ID)
	require.NoError(t, err)
	assert.Contains(t, roles, "User")

	// Duplicate phone number is rejected
	_, err = h.service.Register(ctx, RegisterInput{
		Username: "heidi",
		Email:    "heidi@example.com",
		Password: "pw-123456",
		Phone:    "+1 555 010 2030",
	})
	require.Error(t, err)
	assert.Equal(t, 409, apperr.As(err).HTTPStatus)
}

// # Password Lifecycle

/*
TestChangePassword_RevokesAllSessions verifies the forced re-login side
effect of a password change.
*/
func TestChangePassword_RevokesAllSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.seedUser(t, "ivan", "pw-123456")

	session, err := h.service.Login(ctx, LoginInput{Login: "ivan", Password: "pw-123456"})
	require.NoError(t, err)

	// Wrong current password is rejected
	err = h.service.ChangePassword(ctx, user.ID, "wrong", "new-pw-123456")
	require.Error(t, err)

	require.NoError(t, h.service.ChangePassword(ctx, user.ID, "pw-123456", "new-pw-123456"))

	// The old refresh chain is dead
	_, err = h.service.Rotate(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenInvalidated)

	// The new password works
	_, err = h.service.Login(ctx, LoginInput{Login: "ivan", Password: "new-pw-123456"})
	assert.NoError(t, err)
}

/*
TestForgotPassword_EnumerationResistant verifies that an unknown email reports
success and sends nothing.
*/
func TestForgotPassword_EnumerationResistant(t *testing.T) {
	h := newHarness(t)

	err := h.service.ForgotPassword(context.Background(), "ghost@example.com")
	assert.NoError(t, err)
	assert.Empty(t, h.mailer.sent())
}

// # Stamp Resolution

/*
TestSecurityStamp_CacheFallback verifies the cache-then-database resolution
order and that eviction surfaces the rotated value.
*/
func TestSecurityStamp_CacheFallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.seedUser(t, "judy", "pw-123456")

	// First read falls back to the store and populates the cache
	stamp, err := h.service.SecurityStamp(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.SecurityStamp, stamp)

	// Rotation evicts the cached value; next read observes the new stamp
	require.NoError(t, h.service.RevokeAllForUser(ctx, user.ID))

	rotated, err := h.service.SecurityStamp(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, stamp, rotated)
}

// # Helpers

/*
TestNormalizePhone covers the separator-stripping rules.
*/
func TestNormalizePhone(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain digits", "5550102030", "5550102030"},
		{"international", "+44 20 7946 0958", "+442079460958"},
		{"formatted", "(555) 010-2030", "5550102030"},
		{"plus not at start dropped", "555+010", "555010"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.want, NormalizePhone(testCase.input))
		})
	}
}
