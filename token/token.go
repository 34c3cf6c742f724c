// Copyright 2024 Curaview, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/curaview/framegate/jwks"
)

// AuthError is a rejected token. Reason is a human-readable explanation
// safe to return to the caller; it never contains key material.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string { return e.Reason }

func (e *AuthError) Unwrap() error { return e.Err }

// Claims are produced only after a token has been fully verified
type Claims struct {
	Subject  string
	Email    string
	Expiry   time.Time
	Issuer   string
	Audience string
	KeyID    string
}

// Issuer returns the expected issuer string for a user pool
func Issuer(region, poolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, poolID)
}

// URL returns the published key-set endpoint for a user pool
func URL(region, poolID string) string {
	return Issuer(region, poolID) + "/.well-known/jwks.json"
}

// Validator verifies bearer tokens against a cached key set
type Validator struct {
	keys     *jwks.Cache
	issuer   string
	clientID string
	clock    func() time.Time
	logger   *logrus.Logger
}

// ValidatorOption configures a Validator
type ValidatorOption func(*Validator)

// WithClock injects a clock, used in tests
func WithClock(clock func() time.Time) ValidatorOption {
	return func(v *Validator) { v.clock = clock }
}

// WithLogger overrides the logger
func WithLogger(logger *logrus.Logger) ValidatorOption {
	return func(v *Validator) { v.logger = logger }
}

// NewValidator returns a Validator that accepts tokens issued to the given
// client by the given issuer
func NewValidator(keys *jwks.Cache, issuer, clientID string, opts ...ValidatorOption) *Validator {
	v := &Validator{
		keys:     keys,
		issuer:   issuer,
		clientID: clientID,
		clock:    time.Now,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var errMissingKeyID = errors.New("token has no kid header")

// Verify checks the token signature, issuer, audience and expiry, returning
// Claims on success and an AuthError otherwise. An invalid token never
// produces Claims.
func (v *Validator) Verify(ctx context.Context, raw string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock),
	)

	claims := jwt.MapClaims{}
	var keyID string

	tok, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errMissingKeyID
		}
		keyID = kid
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, v.reject(err)
	}
	if !tok.Valid {
		return nil, &AuthError{Reason: "invalid token"}
	}

	audience, ok := v.checkAudience(claims)
	if !ok {
		return nil, &AuthError{Reason: "invalid audience"}
	}

	// Cognito tokens carry a token_use claim which must be access or id
	if use, ok := claims["token_use"].(string); ok && use != "access" && use != "id" {
		return nil, &AuthError{Reason: "invalid token use"}
	}

	subject, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	issuer, _ := claims["iss"].(string)
	expiry, _ := claims.GetExpirationTime()

	result := &Claims{
		Subject:  subject,
		Email:    email,
		Issuer:   issuer,
		Audience: audience,
		KeyID:    keyID,
	}
	if expiry != nil {
		result.Expiry = expiry.Time
	}
	return result, nil
}

// checkAudience accepts a token whose aud claim, or client_id claim when
// aud is absent, matches the configured client id
func (v *Validator) checkAudience(claims jwt.MapClaims) (string, bool) {
	switch aud := claims["aud"].(type) {
	case string:
		return aud, aud == v.clientID
	case []interface{}:
		for _, entry := range aud {
			if s, ok := entry.(string); ok && s == v.clientID {
				return s, true
			}
		}
		return "", false
	}
	if clientID, ok := claims["client_id"].(string); ok {
		return clientID, clientID == v.clientID
	}
	return "", false
}

// reject maps verification failures onto the rejection taxonomy
func (v *Validator) reject(err error) *AuthError {
	var reason string
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		reason = "Token expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		reason = "invalid signature"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		reason = "invalid issuer"
	case errors.Is(err, jwks.ErrKeyNotFound):
		reason = "key not found"
	case errors.Is(err, jwks.ErrUnavailable):
		reason = "JWKS unavailable"
	case errors.Is(err, errMissingKeyID), errors.Is(err, jwt.ErrTokenMalformed):
		reason = "malformed token"
	default:
		reason = "invalid token"
	}
	v.logger.WithError(err).WithField("reason", reason).Info("token rejected")
	return &AuthError{Reason: reason, Err: err}
}
