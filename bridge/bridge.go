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

// Package bridge rewrites the cache-friendly GET form of a frame request
// into the POST form the backend image API requires. A CDN can cache
// GET ?imageFrameId=X keyed by the query string; the backend only accepts
// POST with a JSON body. The bridge reconciles the two.
package bridge

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/curaview/framegate/request"
)

const (
	// FramePathSuffix identifies the frame-retrieval operation
	FramePathSuffix = "/getImageFrame"

	// FrameParam is the query parameter carrying the frame identifier
	FrameParam = "imageFrameId"
)

type framePayload struct {
	ImageFrameID string `json:"imageFrameId"`
}

// Apply returns the bridged form of a frame-retrieval GET, and every other
// request unchanged. The input is never mutated.
func Apply(req *request.Request) *request.Request {
	if req.Method != http.MethodGet {
		return req
	}
	if !strings.HasSuffix(req.Path, FramePathSuffix) {
		return req
	}
	frameID := req.Query.Get(FrameParam)
	if frameID == "" {
		// Without the identifier there is nothing to bridge; the backend
		// rejects the GET itself
		return req
	}

	body, err := json.Marshal(framePayload{ImageFrameID: frameID})
	if err != nil {
		return req
	}

	out := req.Clone()
	out.Method = http.MethodPost
	out.Query = url.Values{}
	out.Body = body
	out.Header.Set("Content-Type", "application/json")
	out.Header.Set("Content-Length", strconv.Itoa(len(body)))
	return out
}
