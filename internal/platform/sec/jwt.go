// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the domain logic. It acts as an Infrastructure service injected into the
// Application layer via the auth service's TokenProvider interface.
package sec

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/meridianhq/adminkit/internal/iam/catalog"
	"github.com/meridianhq/adminkit/internal/platform/clock"
)

// minSecretBytes is the minimum HS256 key size accepted at startup.
const minSecretBytes = 32

// AuthClaims represents the payload embedded inside a JWT Access Token.
//
// # Why embedded claims?
//
// Roles and permissions are resolved once at issuance and carried inside the
// token, so the per-request authorization check never queries the database.
// The trade-off: a permission change only takes effect once the client
// obtains a new access token. StampHash makes that detectable — rotating a
// user's security stamp makes every previously issued token stale.
type AuthClaims struct {
	jwt.RegisteredClaims

	// UniqueName is the username ('unique_name' per the admin-token convention).
	UniqueName string `json:"unique_name"`
	// Email is the account email address.
	Email string `json:"email"`
	// StampHash is hex(SHA-256(security stamp)) at issuance time.
	StampHash string `json:"stp"`
	// Roles carries one entry per role the user holds.
	Roles []string `json:"role"`
	// Permissions carries every permission resolved from those roles, deduplicated.
	Permissions []string `json:"permission"`
}

// UserID returns the subject (user id) of the token.
func (claims *AuthClaims) UserID() string {
	return claims.Subject
}

// HasRole reports whether the token carries the given role, case-insensitively.
func (claims *AuthClaims) HasRole(name string) bool {
	folded := catalog.Fold(name)
	for _, role := range claims.Roles {
		if catalog.Fold(role) == folded {
			return true
		}
	}
	return false
}

// IsSuperAdmin reports whether the token carries the SuperAdmin role claim.
//
// SuperAdmin is checked by role, never by stored permission claims; its
// permission set is implicit in code and can never be edited or desynced.
func (claims *AuthClaims) IsSuperAdmin() bool {
	return claims.HasRole(catalog.RoleSuperAdmin)
}

// HasPermission is the authorization decision point: it resolves a required
// permission to allow (true) or deny (false) using only the embedded claims.
//
// # Decision order
//
//  1. SuperAdmin role claim: allow unconditionally.
//  2. Exact permission claim match (ordinal comparison): allow.
//  3. Otherwise: deny.
func (claims *AuthClaims) HasPermission(required catalog.Permission) bool {
	if claims.IsSuperAdmin() {
		return true
	}
	for _, permission := range claims.Permissions {
		if permission == string(required) {
			return true
		}
	}
	return false
}

// # Token Service

// TokenService handles generation and verification of JWT access tokens
// using HMAC-SHA256 with a shared symmetric key.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  clock.Clock
}

// NewTokenService creates a new TokenService.
//
// The secret must be at least 32 bytes; shorter keys are a configuration
// error and rejected at startup.
func NewTokenService(secret, issuer string, ttl time.Duration, clk clock.Clock) (*TokenService, error) {
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("sec: JWT secret must be at least %d bytes", minSecretBytes)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("sec: access token TTL must be positive")
	}
	return &TokenService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		clock:  clk,
	}, nil
}

// IssueInput bundles everything embedded into a new access token.
type IssueInput struct {
	UserID        string
	Username      string
	Email         string
	SecurityStamp string
	Roles         []string
	Permissions   []string
}

// IssueAccessToken creates a signed access token for a user.
//
// Each issuance gets a unique jti so two tokens minted in the same second
// for the same user are still distinguishable.
func (service *TokenService) IssueAccessToken(input IssueInput) (string, error) {
	currentTime := service.clock.Now()
	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   input.UserID,
			Issuer:    service.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(service.ttl)),
		},
		UniqueName:  input.Username,
		Email:       input.Email,
		StampHash:   HashToken(input.SecurityStamp),
		Roles:       input.Roles,
		Permissions: input.Permissions,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(service.secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, nil
}

// AccessTokenTTL returns the configured access-token lifetime.
func (service *TokenService) AccessTokenTTL() time.Duration {
	return service.ttl
}

// VerifyToken checks the signature and validity of a JWT string.
//
// Expiry is evaluated against the injected clock, not the wall clock, which
// keeps token lifetimes deterministic under test.
func (service *TokenService) VerifyToken(tokenString string) (*AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AuthClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
			}
			return service.secret, nil
		},
		jwt.WithIssuer(service.issuer),
		jwt.WithTimeFunc(service.clock.Now),
	)

	if err != nil {
		return nil, fmt.Errorf("sec: invalid token: %w", err)
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("sec: invalid token claims")
	}

	return claims, nil
}

// MatchesStamp reports whether the token was issued under the given live
// security stamp. A mismatch means the claims are stale: credentials or
// permissions changed after issuance, and the caller must refresh.
func (claims *AuthClaims) MatchesStamp(liveStamp string) bool {
	return claims.StampHash == HashToken(liveStamp)
}
