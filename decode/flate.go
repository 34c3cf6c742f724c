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

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrShortData indicates the bitstream does not yet contain enough bytes
// to decode. During progressive decode this is expected, not a failure.
var ErrShortData = errors.New("insufficient data")

// FlateCodec is a simple reference codec: a fixed 20-byte header followed
// by flate-compressed pixel data. It exists so the CLI and tests exercise
// the progressive loop against a real compressed bitstream; production
// deployments plug in a medical codec behind the same interface.
type FlateCodec struct{}

var flateMagic = []byte("FGF1")

const flateHeaderSize = 20

// ReadHeader parses the fixed-size header prefix
func (FlateCodec) ReadHeader(data []byte) (FrameInfo, error) {
	if len(data) < flateHeaderSize {
		return FrameInfo{}, ErrShortData
	}
	if !bytes.Equal(data[:4], flateMagic) {
		return FrameInfo{}, errors.New("not a framegate bitstream")
	}
	return FrameInfo{
		Width:          int(binary.BigEndian.Uint32(data[4:8])),
		Height:         int(binary.BigEndian.Uint32(data[8:12])),
		BitsPerSample:  int(binary.BigEndian.Uint16(data[12:14])),
		ComponentCount: int(data[14]),
		Signed:         data[15] != 0,
	}, nil
}

// Decode decompresses the pixel data. A truncated stream yields
// ErrShortData so the progressive loop can retry with more bytes.
func (c FlateCodec) Decode(data []byte) (FrameInfo, []byte, error) {
	info, err := c.ReadHeader(data)
	if err != nil {
		return FrameInfo{}, nil, err
	}
	declared := int(binary.BigEndian.Uint32(data[16:20]))

	reader := flate.NewReader(bytes.NewReader(data[flateHeaderSize:]))
	defer reader.Close()

	pixels, err := io.ReadAll(reader)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return FrameInfo{}, nil, ErrShortData
		}
		return FrameInfo{}, nil, fmt.Errorf("failed to decompress pixels: %w", err)
	}
	if len(pixels) < declared {
		return FrameInfo{}, nil, ErrShortData
	}
	if len(pixels) != declared {
		return FrameInfo{}, nil, fmt.Errorf("pixel length mismatch: %d != %d", len(pixels), declared)
	}
	return info, pixels, nil
}

// Encode produces a FlateCodec bitstream, used by tests and tooling
func Encode(info FrameInfo, pixels []byte) ([]byte, error) {
	header := make([]byte, flateHeaderSize)
	copy(header, flateMagic)
	binary.BigEndian.PutUint32(header[4:8], uint32(info.Width))
	binary.BigEndian.PutUint32(header[8:12], uint32(info.Height))
	binary.BigEndian.PutUint16(header[12:14], uint16(info.BitsPerSample))
	header[14] = byte(info.ComponentCount)
	if info.Signed {
		header[15] = 1
	}
	binary.BigEndian.PutUint32(header[16:20], uint32(len(pixels)))

	var buf bytes.Buffer
	buf.Write(header)
	writer, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := writer.Write(pixels); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
