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
package decode

// FrameInfo describes the pixel layout of a decoded frame. It must be
// identical across every progressive emission for the same frame.
type FrameInfo struct {
	Width          int
	Height         int
	BitsPerSample  int
	ComponentCount int
	Signed         bool
}

// Codec is the two-phase decode contract: ReadHeader parses dimensions
// without requiring the full body, Decode fully decodes. Both may fail
// with insufficient data, which the progressive loop treats as expected.
// The codec's internal transform math is opaque to this package.
type Codec interface {

	// ReadHeader parses the frame metadata from a bitstream prefix
	ReadHeader(data []byte) (FrameInfo, error)

	// Decode fully decodes the bitstream into pixel data
	Decode(data []byte) (FrameInfo, []byte, error)
}
