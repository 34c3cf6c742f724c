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
package request

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Request is an immutable snapshot of an inbound HTTP request. The gateway
// builds one per request and the bridge produces a new value rather than
// mutating in place, so every stage sees exactly what it was handed.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// New returns an empty Request with the given method and path
func New(method, path string) *Request {
	return &Request{
		Method: method,
		Path:   path,
		Query:  url.Values{},
		Header: http.Header{},
	}
}

// FromHTTP snapshots an inbound request, consuming its body
func FromHTTP(r *http.Request) (*Request, error) {
	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		body = b
	}
	return &Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	}, nil
}

// Clone returns a deep copy of the Request
func (r *Request) Clone() *Request {
	query := url.Values{}
	for k, vs := range r.Query {
		query[k] = append([]string(nil), vs...)
	}
	var body []byte
	if r.Body != nil {
		body = append([]byte(nil), r.Body...)
	}
	return &Request{
		Method: r.Method,
		Path:   r.Path,
		Query:  query,
		Header: r.Header.Clone(),
		Body:   body,
	}
}

// QueryString returns the canonical query string with keys sorted
// lexicographically, which is the form the signer expects
func (r *Request) QueryString() string {
	if len(r.Query) == 0 {
		return ""
	}
	return r.Query.Encode()
}
