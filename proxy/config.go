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
package proxy

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

const (
	// DefaultService is the upstream service name used in the credential scope
	DefaultService = "medical-imaging"

	// DefaultTimeout bounds the upstream call
	DefaultTimeout = 120 * time.Second

	upstreamHostPattern = "runtime-medical-imaging.%s.amazonaws.com"
)

// Config for the Forwarder
type Config struct {

	// Region the upstream image API lives in
	Region string

	// UpstreamHost overrides the host derived from Region
	UpstreamHost string

	// UpstreamScheme defaults to https; tests point it at a local server
	UpstreamScheme string

	// Service name for the signing scope
	Service string

	// Timeout for the upstream call
	Timeout time.Duration
}

// Validate the configuration, reporting all problems at once
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.Region == "" && c.UpstreamHost == "" {
		result = multierror.Append(result, errors.New("either region or upstream host is required"))
	}
	if c.UpstreamScheme != "" && c.UpstreamScheme != "http" && c.UpstreamScheme != "https" {
		result = multierror.Append(result, fmt.Errorf("invalid upstream scheme: %s", c.UpstreamScheme))
	}
	if c.Timeout < 0 {
		result = multierror.Append(result, errors.New("timeout must not be negative"))
	}
	return result.ErrorOrNil()
}

// Host returns the upstream host, derived from the region unless overridden
func (c *Config) Host() string {
	if c.UpstreamHost != "" {
		return c.UpstreamHost
	}
	return fmt.Sprintf(upstreamHostPattern, c.Region)
}

func (c *Config) scheme() string {
	if c.UpstreamScheme != "" {
		return c.UpstreamScheme
	}
	return "https"
}

func (c *Config) service() string {
	if c.Service != "" {
		return c.Service
	}
	return DefaultService
}

func (c *Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}
