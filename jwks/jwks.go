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
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrKeyNotFound indicates the key set has no key with the requested id
var ErrKeyNotFound = errors.New("key not found")

// ErrUnavailable indicates the key set could not be fetched
var ErrUnavailable = errors.New("JWKS unavailable")

const (
	// DefaultTTL is how long a fetched key set remains fresh
	DefaultTTL = time.Hour

	// DefaultFetchTimeout bounds the JWKS network call so a hung fetch
	// cannot block request handling indefinitely
	DefaultFetchTimeout = 5 * time.Second
)

// Snapshot is a fetched key set tagged with its fetch time. Snapshots are
// immutable once published; the cache replaces them wholesale.
type Snapshot struct {
	keys    map[string]*rsa.PublicKey
	fetched time.Time
}

// Cache fetches and caches a remote JWKS document with a time-based expiry.
// Reads are lock-free against an atomically swapped snapshot; refreshes are
// serialized so concurrent staleness observers trigger a single fetch.
type Cache struct {
	url     string
	ttl     time.Duration
	timeout time.Duration
	client  *http.Client
	clock   func() time.Time
	logger  *logrus.Logger

	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]
}

// Option configures a Cache
type Option func(*Cache)

// WithTTL overrides the snapshot expiry
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClient overrides the HTTP client used to fetch the key set
func WithClient(client *http.Client) Option {
	return func(c *Cache) { c.client = client }
}

// WithClock injects a clock, used in tests
func WithClock(clock func() time.Time) Option {
	return func(c *Cache) { c.clock = clock }
}

// WithFetchTimeout bounds the JWKS network call
func WithFetchTimeout(timeout time.Duration) Option {
	return func(c *Cache) { c.timeout = timeout }
}

// WithLogger overrides the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New returns a Cache for the key set at the given URL
func New(url string, opts ...Option) *Cache {
	c := &Cache{
		url:     url,
		ttl:     DefaultTTL,
		timeout: DefaultFetchTimeout,
		client:  http.DefaultClient,
		clock:   time.Now,
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key resolves a public key by its id, refreshing the snapshot first if it
// has expired. A fetch failure is not retried within this call.
func (c *Cache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	key, ok := snap.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

func (c *Cache) snapshot(ctx context.Context) (*Snapshot, error) {
	if snap := c.snap.Load(); snap != nil && c.clock().Sub(snap.fetched) < c.ttl {
		return snap, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have refreshed while we waited on the lock
	if snap := c.snap.Load(); snap != nil && c.clock().Sub(snap.fetched) < c.ttl {
		return snap, nil
	}

	keys, err := c.fetch(ctx)
	if err != nil {
		c.logger.WithError(err).WithField("url", c.url).Warn("JWKS fetch failed")
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	snap := &Snapshot{keys: keys, fetched: c.clock()}
	c.snap.Store(snap)

	c.logger.WithFields(logrus.Fields{
		"url":  c.url,
		"keys": len(keys),
	}).Info("JWKS refreshed")
	return snap, nil
}

type document struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	KeyID     string `json:"kid"`
	KeyType   string `json:"kty"`
	Algorithm string `json:"alg"`
	Use       string `json:"use"`
	Modulus   string `json:"n"`
	Exponent  string `json:"e"`
}

func (c *Cache) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode key set: %w", err)
	}

	keys := map[string]*rsa.PublicKey{}
	for _, k := range doc.Keys {
		// Non-RSA or incomplete entries are skipped, not fatal
		if k.KeyType != "RSA" || k.KeyID == "" || k.Modulus == "" || k.Exponent == "" {
			continue
		}
		key, err := PublicKeyFromModulusExponent(k.Modulus, k.Exponent)
		if err != nil {
			c.logger.WithError(err).WithField("kid", k.KeyID).Warn("skipping malformed key")
			continue
		}
		keys[k.KeyID] = key
	}
	return keys, nil
}
