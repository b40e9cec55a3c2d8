// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

package auth

import "time"

// # Authentication Constraints

const (
	// RefreshTokenTTL is the refresh token lifetime for a standard login.
	RefreshTokenTTL = 24 * time.Hour

	// PersistentRefreshTokenTTL is the refresh token lifetime when the login
	// asked to be remembered across browser restarts.
	PersistentRefreshTokenTTL = 30 * 24 * time.Hour

	// RefreshTokenLength is the byte length of the random refresh secret.
	RefreshTokenLength = 32

	// SecurityStampLength is the byte length of the random security stamp.
	SecurityStampLength = 16

	// ResetTokenTTL is the duration a password reset token remains valid.
	// Short-lived (1 hour) for security.
	ResetTokenTTL = 1 * time.Hour

	// ResetTokenLength is the byte length of the random password reset token.
	ResetTokenLength = 32

	// VerificationTokenTTL is the duration an email verification token remains valid.
	// Long-lived (24 hours) as users might not check email immediately.
	VerificationTokenTTL = 24 * time.Hour

	// VerificationTokenLength is the byte length of the random verification token.
	VerificationTokenLength = 32
)
