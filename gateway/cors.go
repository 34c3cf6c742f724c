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
	"net/http"
	"strings"
)

// AllowOrigin matches the request origin against the allow-list and returns
// the value for Access-Control-Allow-Origin. A matched origin is echoed
// back; otherwise the wildcard is used when the fallback is enabled, and
// the empty string (no header) when it is not.
func AllowOrigin(origin string, patterns []string, wildcardFallback bool) string {
	if origin != "" {
		for _, pattern := range patterns {
			if matchOrigin(pattern, origin) {
				return origin
			}
		}
	}
	if wildcardFallback {
		return "*"
	}
	return ""
}

// matchOrigin supports exact matches and a single * wildcard, which covers
// patterns like https://*.cloudfront.net and http://localhost:*
func matchOrigin(pattern, origin string) bool {
	if pattern == origin {
		return true
	}
	star := strings.Index(pattern, "*")
	if star < 0 {
		return false
	}
	prefix, suffix := pattern[:star], pattern[star+1:]
	return len(origin) >= len(prefix)+len(suffix) &&
		strings.HasPrefix(origin, prefix) &&
		strings.HasSuffix(origin, suffix)
}

func setCORS(h http.Header, allowOrigin string) {
	if allowOrigin == "" {
		return
	}
	h.Set("Access-Control-Allow-Origin", allowOrigin)
	if allowOrigin != "*" {
		h.Add("Vary", "Origin")
	}
}

func setPreflight(h http.Header) {
	h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
	h.Set("Access-Control-Max-Age", "86400")
}
