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
package jwks

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
)

// PublicKeyFromModulusExponent reconstructs an RSA public key from the
// base64url (unpadded) modulus and exponent components of a JWK. It is a
// pure function with no I/O so it can be pinned with fixed test vectors.
func PublicKeyFromModulusExponent(n, e string) (*rsa.PublicKey, error) {
	modulus, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("malformed modulus: %w", err)
	}
	if len(modulus) == 0 {
		return nil, errors.New("empty modulus")
	}
	exponent, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("malformed exponent: %w", err)
	}
	if len(exponent) == 0 || len(exponent) > 8 {
		return nil, errors.New("exponent out of range")
	}

	ev := new(big.Int).SetBytes(exponent)
	if !ev.IsInt64() || ev.Int64() < 3 {
		return nil, errors.New("exponent out of range")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(modulus),
		E: int(ev.Int64()),
	}, nil
}
