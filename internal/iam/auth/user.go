// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

/*
Package auth implements the user identity and session management layer.

It defines the core domain entities (User, RefreshToken) and logic for
authentication, token rotation, and account lifecycle.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no external
dependencies and encapsulate all business rules related to user identity.
*/
package auth

import (
	"time"
)

// # Domain Entities

// User represents a registered account of the admin platform.
type User struct {
	ID                string     `json:"id"`
	Username          string     `json:"username"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"` // Explicitly omitted from JSON for security.
	DisplayName       string     `json:"display_name"`
	Phone             string     `json:"phone,omitempty"`
	Bio               string     `json:"bio,omitempty"`
	AvatarURL         string     `json:"avatar_url,omitempty"`
	SecurityStamp     string     `json:"-"` // Opaque value rotated on credential/permission change.
	EmailConfirmed    bool       `json:"email_confirmed"`
	AccessFailedCount int        `json:"-"`
	LockoutUntil      *time.Time `json:"lockout_until,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// LockedOut reports whether the account is currently locked.
func (user *User) LockedOut(now time.Time) bool {
	return user.LockoutUntil != nil && user.LockoutUntil.After(now)
}

// RefreshToken is one link in a user's rotation chain.
//
// # Lifecycle
//
// Created on login or on each successful rotation. Marked used the instant it
// is exchanged; marked invalidated on logout, password change, detected reuse,
// or explicit revocation. Rows are never deleted — the chain is retained as an
// audit trail.
type RefreshToken struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	TokenHash   string    `json:"-"` // Hashed value of the refresh secret. Omitted for security.
	Persistent  bool      `json:"persistent"`
	Used        bool      `json:"used"`
	Invalidated bool      `json:"invalidated"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Expired reports whether the token's lifetime has elapsed.
func (token *RefreshToken) Expired(now time.Time) bool {
	return token.ExpiresAt.Before(now)
}

// # Field Identifiers

// Global field names for validation and identity mapping in the authentication domain.
const (
	FieldUsername        = "username"
	FieldEmail           = "email"
	FieldPhone           = "phone"
	FieldPassword        = "password"
	FieldDisplayName     = "display_name"
	FieldLogin           = "login"
	FieldToken           = "token"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
	FieldAccessToken     = "access_token"
	FieldRefreshToken    = "refresh_token"
	FieldTokenType       = "token_type"
	FieldExpiresIn       = "expires_in"
	FieldUser            = "user"
	FieldMessage         = "message"
)
