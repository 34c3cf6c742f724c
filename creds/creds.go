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
package creds

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
)

// Credentials is the signing key triple used by the request signer.
// The secret key must never be logged or persisted.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Provider supplies signing credentials from the execution environment.
// It is passed in at construction time so tests can inject fixed values.
type Provider interface {

	// Retrieve the current signing credentials
	Retrieve(ctx context.Context) (Credentials, error)
}

type chainProvider struct {
	creds *credentials.Credentials
}

// NewChain returns a Provider backed by the standard AWS credential chain:
// environment variables, shared config, and instance or task roles
func NewChain() (Provider, error) {
	sess, err := session.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &chainProvider{creds: sess.Config.Credentials}, nil
}

func (p *chainProvider) Retrieve(ctx context.Context) (Credentials, error) {
	value, err := p.creds.GetWithContext(ctx)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to retrieve credentials: %w", err)
	}
	return Credentials{
		AccessKeyID:     value.AccessKeyID,
		SecretAccessKey: value.SecretAccessKey,
		SessionToken:    value.SessionToken,
	}, nil
}

type staticProvider struct {
	value Credentials
}

// NewStatic returns a Provider with fixed credentials, used in tests
func NewStatic(accessKeyID, secretAccessKey, sessionToken string) Provider {
	return &staticProvider{
		value: Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
			SessionToken:    sessionToken,
		},
	}
}

func (p *staticProvider) Retrieve(ctx context.Context) (Credentials, error) {
	return p.value, nil
}
