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

// Package tokentest provides a fake issuer for tests: a generated RSA key
// pair, an HTTP server publishing the matching JWKS document, and a helper
// to mint signed tokens.
package tokentest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

// KeyID is the id under which the issuer's key is published
const KeyID = "test-key-1"

// Issuer is a fake token issuer backed by a local JWKS server
type Issuer struct {
	Key     *rsa.PrivateKey
	server  *httptest.Server
	fetches int32
}

// NewIssuer generates a key pair and starts the JWKS server. The caller
// must Close it.
func NewIssuer(t *testing.T) *Issuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %s", err)
	}
	issuer := &Issuer{Key: key}

	doc := map[string]interface{}{
		"keys": []map[string]string{
			{
				"kid": KeyID,
				"kty": "RSA",
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			},
		},
	}
	body, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("failed to marshal key set: %s", err)
	}

	issuer.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&issuer.fetches, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	return issuer
}

// URL returns the JWKS endpoint
func (i *Issuer) URL() string {
	return i.server.URL
}

// Fetches returns how many times the JWKS document was served
func (i *Issuer) Fetches() int {
	return int(atomic.LoadInt32(&i.fetches))
}

// Close shuts down the JWKS server
func (i *Issuer) Close() {
	i.server.Close()
}

// Sign mints an RS256 token with the given claims under the published key id
func (i *Issuer) Sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	return i.SignWithKeyID(t, KeyID, claims)
}

// SignWithKeyID mints a token under an arbitrary key id, which lets tests
// reference a key the JWKS document does not contain
func (i *Issuer) SignWithKeyID(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	raw, err := tok.SignedString(i.Key)
	if err != nil {
		t.Fatalf("failed to sign token: %s", err)
	}
	return raw
}
