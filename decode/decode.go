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

// Package decode implements progressive frame decoding: bytes accumulate
// in a per-frame session and decode is re-attempted as more structure
// becomes decodable, so a viewer can render a preview before the full
// payload arrives.
package decode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrInconsistentFrame indicates the codec reported different frame
// metadata across progressive attempts, which callers must treat as a
// codec inconsistency rather than a transient condition
var ErrInconsistentFrame = errors.New("codec returned inconsistent frame metadata")

// Frame is a decoded frame. Ownership of the pixel buffer transfers to
// the caller on emission.
type Frame struct {
	Info     FrameInfo
	Pixels   []byte
	Complete bool
	Chunks   int
}

// Metrics describe one completed decode session
type Metrics struct {
	FetchTime   time.Duration
	DecodeTime  time.Duration
	EncodedSize int
	DecodedSize int
}

// Session accumulates the bitstream for one in-flight frame. The buffer
// is append-only: every previous decode attempt remains a valid prefix of
// the true bitstream. A Session is owned by a single goroutine.
type Session struct {
	codec      Codec
	buf        []byte
	chunks     int
	info       *FrameInfo
	lastErr    error
	decodeTime time.Duration
}

// NewSession returns a Session decoding with the given codec
func NewSession(codec Codec) *Session {
	return &Session{codec: codec}
}

// Size returns the number of accumulated bytes
func (s *Session) Size() int {
	return len(s.buf)
}

// Feed appends a chunk and attempts a decode. A decode failure is the
// expected case while the stream is still arriving and yields (nil, nil);
// a successful attempt yields a partial Frame. The only error is codec
// metadata drift.
func (s *Session) Feed(chunk []byte) (*Frame, error) {
	s.buf = append(s.buf, chunk...)
	s.chunks++
	return s.attempt(false)
}

// Finish performs the final decode against the complete buffer. Failure
// here is terminal.
func (s *Session) Finish() (*Frame, error) {
	frame, err := s.attempt(true)
	if err != nil {
		return nil, err
	}
	if frame == nil {
		return nil, fmt.Errorf("final decode failed: %w", s.lastErr)
	}
	return frame, nil
}

func (s *Session) attempt(final bool) (*Frame, error) {
	start := time.Now()
	defer func() { s.decodeTime += time.Since(start) }()

	if _, err := s.codec.ReadHeader(s.buf); err != nil {
		s.lastErr = err
		if final {
			return nil, fmt.Errorf("final decode failed: %w", err)
		}
		return nil, nil
	}

	info, pixels, err := s.codec.Decode(s.buf)
	if err != nil {
		s.lastErr = err
		if final {
			return nil, fmt.Errorf("final decode failed: %w", err)
		}
		return nil, nil
	}

	if s.info == nil {
		copied := info
		s.info = &copied
	} else if *s.info != info {
		return nil, ErrInconsistentFrame
	}

	return &Frame{
		Info:     info,
		Pixels:   pixels,
		Complete: final,
		Chunks:   s.chunks,
	}, nil
}

// chunkSize is the read granularity of the progressive loop
const chunkSize = 64 * 1024

// Run drives a full progressive decode of the byte stream: partial frames
// are passed to emit as they become decodable, followed by the final
// complete frame. The context aborts a stalled stream without leaking the
// caller's goroutine.
func Run(ctx context.Context, r io.Reader, codec Codec, emit func(*Frame)) (*Frame, *Metrics, error) {
	session := NewSession(codec)
	start := time.Now()
	buf := make([]byte, chunkSize)

	for {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			frame, ferr := session.Feed(buf[:n])
			if ferr != nil {
				return nil, nil, ferr
			}
			if frame != nil && emit != nil {
				emit(frame)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("stream read failed: %w", err)
		}
	}
	// Decode attempts run inside the read loop; subtract them so fetch
	// and decode time are disjoint
	fetchTime := time.Since(start) - session.decodeTime

	final, err := session.Finish()
	if err != nil {
		return nil, nil, err
	}
	if emit != nil {
		emit(final)
	}

	metrics := &Metrics{
		FetchTime:   fetchTime,
		DecodeTime:  session.decodeTime,
		EncodedSize: session.Size(),
		DecodedSize: len(final.Pixels),
	}
	return final, metrics, nil
}
