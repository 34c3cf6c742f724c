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
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/curaview/framegate/token"
)

const (
	// HeaderSubject carries the verified token subject downstream
	HeaderSubject = "X-Auth-Subject"

	// HeaderEmail carries the verified token email downstream
	HeaderEmail = "X-Auth-Email"

	bearerPrefix = "Bearer "
)

// Config for the Gateway
type Config struct {

	// Origins is the allow-list of origin patterns echoed back on match
	Origins []string

	// AllowWildcardFallback answers unmatched origins with * instead of
	// omitting the CORS header. On by default to match the demo posture
	// of the source system; see DESIGN.md.
	AllowWildcardFallback bool

	// HealthPath is served unauthenticated for load-balancer probes
	HealthPath string
}

// Gateway authenticates every inbound request before handing it to the
// next handler. Preflight and health requests never reach the validator.
// On success the bearer token is stripped and replaced with derived
// identity headers, so downstream code never re-trusts caller input.
type Gateway struct {
	validator *token.Validator
	next      http.Handler
	cfg       Config
	logger    *logrus.Logger
}

// New returns a Gateway wrapping the next handler
func New(validator *token.Validator, next http.Handler, cfg Config, logger *logrus.Logger) *Gateway {
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/health"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Gateway{
		validator: validator,
		next:      next,
		cfg:       cfg,
		logger:    logger,
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	allowOrigin := AllowOrigin(r.Header.Get("Origin"), g.cfg.Origins, g.cfg.AllowWildcardFallback)
	setCORS(w.Header(), allowOrigin)

	if r.Method == http.MethodOptions {
		setPreflight(w.Header())
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.URL.Path == g.cfg.HealthPath {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	authorization := r.Header.Get("Authorization")
	if !strings.HasPrefix(authorization, bearerPrefix) {
		g.logger.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Info("missing bearer token")
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	claims, err := g.validator.Verify(r.Context(), strings.TrimPrefix(authorization, bearerPrefix))
	if err != nil {
		reason := "invalid token"
		var authErr *token.AuthError
		if errors.As(err, &authErr) {
			reason = authErr.Reason
		}
		g.logger.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"reason": reason,
		}).Info("unauthorized")
		writeError(w, http.StatusUnauthorized, reason)
		return
	}

	g.logger.WithFields(logrus.Fields{
		"method":  r.Method,
		"path":    r.URL.Path,
		"subject": claims.Subject,
	}).Info("authorized")

	// Strip the bearer token and any caller-supplied identity headers,
	// then inject the verified identity
	r.Header.Del("Authorization")
	r.Header.Del(HeaderSubject)
	r.Header.Del(HeaderEmail)
	r.Header.Set(HeaderSubject, claims.Subject)
	if claims.Email != "" {
		r.Header.Set(HeaderEmail, claims.Email)
	}

	g.next.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	js, err := json.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
