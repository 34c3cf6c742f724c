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
package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/curaview/framegate/creds"
)

const (
	// Algorithm is the SigV4 signing algorithm identifier
	Algorithm = "AWS4-HMAC-SHA256"

	// TimeFormat is the fixed-width timestamp format for X-Amz-Date
	TimeFormat = "20060102T150405Z"

	// ShortTimeFormat is the date portion used in the credential scope
	ShortTimeFormat = "20060102"

	scopeSuffix = "aws4_request"
)

// Input for a signing request. Time is caller-supplied so that signing is
// a deterministic, testable function.
type Input struct {
	Method      string
	Host        string
	Path        string
	Query       string
	Body        []byte
	Region      string
	Service     string
	Time        time.Time
	Credentials creds.Credentials
}

// Output from a signing request
type Output struct {
	Headers   map[string]string
	Signature string
}

// Sign computes a SigV4 signature for the given input and returns the
// header set to attach to the outbound request. A malformed input is a
// programming error and is returned as such, never a bad signature.
func Sign(in Input) (*Output, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	amzDate := in.Time.UTC().Format(TimeFormat)
	date := amzDate[:8]
	bodyHash := hashHex(in.Body)

	path := in.Path
	if path == "" {
		path = "/"
	}

	// Canonical headers: lower-cased names, sorted lexicographically,
	// rendered as name:value\n. Exactly host, x-amz-content-sha256 and
	// x-amz-date are signed, plus the session token when present.
	headers := [][2]string{
		{"host", in.Host},
		{"x-amz-content-sha256", bodyHash},
		{"x-amz-date", amzDate},
	}
	if in.Credentials.SessionToken != "" {
		headers = append(headers, [2]string{"x-amz-security-token", in.Credentials.SessionToken})
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i][0] < headers[j][0] })

	var canonicalHeaders strings.Builder
	names := make([]string, 0, len(headers))
	for _, h := range headers {
		canonicalHeaders.WriteString(h[0])
		canonicalHeaders.WriteString(":")
		canonicalHeaders.WriteString(h[1])
		canonicalHeaders.WriteString("\n")
		names = append(names, h[0])
	}
	signedHeaders := strings.Join(names, ";")

	canonicalRequest := strings.Join([]string{
		in.Method,
		path,
		in.Query,
		canonicalHeaders.String(),
		signedHeaders,
		bodyHash,
	}, "\n")

	scope := strings.Join([]string{date, in.Region, in.Service, scopeSuffix}, "/")

	stringToSign := strings.Join([]string{
		Algorithm,
		amzDate,
		scope,
		hashHex([]byte(canonicalRequest)),
	}, "\n")

	key := signingKey(in.Credentials.SecretAccessKey, date, in.Region, in.Service)
	signature := hex.EncodeToString(hmacSHA256(key, stringToSign))

	authorization := fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		Algorithm, in.Credentials.AccessKeyID, scope, signedHeaders, signature)

	out := &Output{
		Signature: signature,
		Headers: map[string]string{
			"Host":                 in.Host,
			"X-Amz-Date":           amzDate,
			"X-Amz-Content-Sha256": bodyHash,
			"Authorization":        authorization,
		},
	}
	if in.Credentials.SessionToken != "" {
		out.Headers["X-Amz-Security-Token"] = in.Credentials.SessionToken
	}
	return out, nil
}

func validate(in Input) error {
	if in.Method == "" {
		return errors.New("signing input has no method")
	}
	if in.Host == "" {
		return errors.New("signing input has no host")
	}
	if in.Region == "" || in.Service == "" {
		return errors.New("signing input has no region or service")
	}
	if in.Time.IsZero() {
		return errors.New("signing input has no timestamp")
	}
	if in.Credentials.AccessKeyID == "" || in.Credentials.SecretAccessKey == "" {
		return errors.New("signing credentials are incomplete")
	}
	return nil
}

// signingKey derives the request signing key by the four-step HMAC chain
// seeded with "AWS4" + secret key
func signingKey(secret, date, region, service string) []byte {
	k := hmacSHA256([]byte("AWS4"+secret), date)
	k = hmacSHA256(k, region)
	k = hmacSHA256(k, service)
	return hmacSHA256(k, scopeSuffix)
}

func hmacSHA256(key []byte, msg string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(msg))
	return h.Sum(nil)
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
