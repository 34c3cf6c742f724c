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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/curaview/framegate/bridge"
	"github.com/curaview/framegate/creds"
	"github.com/curaview/framegate/request"
	"github.com/curaview/framegate/sign"
)

// Forwarder bridges, signs and forwards requests to the upstream image
// API, streaming response bodies back without buffering them. Frames can
// be tens of megabytes, so the body is piped with io.Copy.
type Forwarder struct {
	cfg      Config
	provider creds.Provider
	client   *http.Client
	clock    func() time.Time
	logger   *logrus.Logger
}

// Option configures a Forwarder
type Option func(*Forwarder)

// WithClient overrides the upstream HTTP client
func WithClient(client *http.Client) Option {
	return func(f *Forwarder) { f.client = client }
}

// WithClock injects the signing clock, used in tests
func WithClock(clock func() time.Time) Option {
	return func(f *Forwarder) { f.clock = clock }
}

// WithLogger overrides the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(f *Forwarder) { f.logger = logger }
}

// NewForwarder validates the configuration and returns a Forwarder
func NewForwarder(cfg Config, provider creds.Provider, opts ...Option) (*Forwarder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := &Forwarder{
		cfg:      cfg,
		provider: provider,
		client:   &http.Client{Timeout: cfg.timeout()},
		clock:    time.Now,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap, err := request.FromHTTP(r)
	if err != nil {
		f.logger.WithError(err).Info("malformed request")
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	req := bridge.Apply(snap)

	credentials, err := f.provider.Retrieve(r.Context())
	if err != nil {
		f.logger.WithError(err).Error("failed to retrieve credentials")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	signed, err := sign.Sign(sign.Input{
		Method:      req.Method,
		Host:        f.cfg.Host(),
		Path:        req.Path,
		Query:       req.QueryString(),
		Body:        req.Body,
		Region:      f.cfg.Region,
		Service:     f.cfg.service(),
		Time:        f.clock(),
		Credentials: credentials,
	})
	if err != nil {
		f.logger.WithError(err).Error("failed to sign request")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	upstream, err := f.buildUpstream(r, req, signed)
	if err != nil {
		f.logger.WithError(err).Error("failed to build upstream request")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp, err := f.client.Do(upstream)
	if err != nil {
		f.logger.WithError(err).WithField("host", f.cfg.Host()).Warn("upstream unreachable")
		writeError(w, http.StatusBadGateway, "upstream unreachable")
		return
	}
	defer resp.Body.Close()

	// A non-2xx upstream response is forwarded as-is, status and body
	for _, name := range []string{"Content-Type", "Content-Length", "ETag", "Last-Modified", "Cache-Control"} {
		if value := resp.Header.Get(name); value != "" {
			w.Header().Set(name, value)
		}
	}
	w.WriteHeader(resp.StatusCode)

	written, err := io.Copy(w, resp.Body)
	if err != nil {
		// The response is already committed; all we can do is log
		f.logger.WithError(err).Warn("response stream interrupted")
		return
	}

	f.logger.WithFields(logrus.Fields{
		"method":  req.Method,
		"path":    req.Path,
		"status":  resp.StatusCode,
		"bytes":   written,
		"subject": r.Header.Get("X-Auth-Subject"),
	}).Info("forwarded")
}

// buildUpstream assembles the outbound request: the bridged snapshot's
// method, path and body against the configured upstream, inbound context
// for cancellation, and the signed header set applied last so nothing can
// shadow it
func (f *Forwarder) buildUpstream(r *http.Request, req *request.Request, signed *sign.Output) (*http.Request, error) {
	target := url.URL{
		Scheme:   f.cfg.scheme(),
		Host:     f.cfg.Host(),
		Path:     req.Path,
		RawQuery: req.QueryString(),
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	upstream, err := http.NewRequestWithContext(r.Context(), req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	upstream.ContentLength = int64(len(req.Body))

	for _, name := range []string{"Content-Type", "Accept", "X-Auth-Subject", "X-Auth-Email"} {
		if value := req.Header.Get(name); value != "" {
			upstream.Header.Set(name, value)
		}
	}
	for name, value := range signed.Headers {
		if name == "Host" {
			upstream.Host = value
			continue
		}
		upstream.Header.Set(name, value)
	}
	return upstream, nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	js, _ := json.Marshal(map[string]string{"error": message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)
}
