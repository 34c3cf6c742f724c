package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testInfo = FrameInfo{
	Width:          64,
	Height:         48,
	BitsPerSample:  16,
	ComponentCount: 1,
	Signed:         false,
}

func testPixels() []byte {
	pixels := make([]byte, 64*48*2)
	for i := range pixels {
		pixels[i] = byte(i * 31)
	}
	return pixels
}

// chunkReader yields at most size bytes per read
type chunkReader struct {
	data []byte
	size int
	pos  int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := r.size
	if n > len(p) {
		n = len(p)
	}
	if r.pos+n > len(r.data) {
		n = len(r.data) - r.pos
	}
	copy(p, r.data[r.pos:r.pos+n])
	r.pos += n
	return n, nil
}

func TestFlateCodecRoundTrip(t *testing.T) {
	pixels := testPixels()
	encoded, err := Encode(testInfo, pixels)
	require.Nil(t, err)

	codec := FlateCodec{}

	info, err := codec.ReadHeader(encoded)
	require.Nil(t, err)
	require.Equal(t, testInfo, info)

	info, decoded, err := codec.Decode(encoded)
	require.Nil(t, err)
	require.Equal(t, testInfo, info)
	require.Equal(t, pixels, decoded)
}

func TestFlateCodecInsufficientData(t *testing.T) {
	pixels := testPixels()
	encoded, err := Encode(testInfo, pixels)
	require.Nil(t, err)

	codec := FlateCodec{}

	_, err = codec.ReadHeader(encoded[:10])
	require.ErrorIs(t, err, ErrShortData)

	// A truncated body parses its header but cannot decode
	_, _, err = codec.Decode(encoded[:len(encoded)/2])
	require.ErrorIs(t, err, ErrShortData)

	_, err = codec.ReadHeader([]byte("XXXXXXXXXXXXXXXXXXXXXXXX"))
	require.NotNil(t, err)
	require.NotErrorIs(t, err, ErrShortData)
}

func TestProgressiveConvergesToOneShotDecode(t *testing.T) {
	pixels := testPixels()
	encoded, err := Encode(testInfo, pixels)
	require.Nil(t, err)

	codec := FlateCodec{}
	_, oneShot, err := codec.Decode(encoded)
	require.Nil(t, err)

	// Every chunking of the bitstream must converge to the one-shot result
	for _, size := range []int{1, 3, 17, 256, 1 << 20} {
		t.Run(fmt.Sprintf("chunk-%d", size), func(t *testing.T) {
			var emitted []*Frame
			final, metrics, err := Run(context.Background(),
				&chunkReader{data: encoded, size: size}, codec,
				func(f *Frame) { emitted = append(emitted, f) })
			require.Nil(t, err)

			require.True(t, final.Complete)
			require.Equal(t, testInfo, final.Info)
			require.Equal(t, oneShot, final.Pixels)
			require.Equal(t, len(encoded), metrics.EncodedSize)
			require.Equal(t, len(pixels), metrics.DecodedSize)

			// The final frame is always emitted last
			require.NotEmpty(t, emitted)
			require.Same(t, final, emitted[len(emitted)-1])
			for _, f := range emitted[:len(emitted)-1] {
				require.False(t, f.Complete)
				require.Equal(t, testInfo, f.Info)
			}
		})
	}
}

// sliceCodec decodes whatever bytes it has once a minimal header arrived,
// simulating a codec that produces previews from partial bitstreams
type sliceCodec struct {
	info FrameInfo
	min  int
}

func (c *sliceCodec) ReadHeader(data []byte) (FrameInfo, error) {
	if len(data) < c.min {
		return FrameInfo{}, ErrShortData
	}
	return c.info, nil
}

func (c *sliceCodec) Decode(data []byte) (FrameInfo, []byte, error) {
	if len(data) < c.min {
		return FrameInfo{}, nil, ErrShortData
	}
	return c.info, append([]byte(nil), data...), nil
}

func TestSessionEmitsPartialFrames(t *testing.T) {
	codec := &sliceCodec{info: testInfo, min: 4}
	session := NewSession(codec)

	// Below the codec minimum: swallowed, no frame
	frame, err := session.Feed([]byte{1, 2})
	require.Nil(t, err)
	require.Nil(t, frame)

	frame, err = session.Feed([]byte{3, 4, 5})
	require.Nil(t, err)
	require.NotNil(t, frame)
	require.False(t, frame.Complete)
	require.Equal(t, 2, frame.Chunks)
	require.Equal(t, []byte{1, 2, 3, 4, 5}, frame.Pixels)

	frame, err = session.Feed([]byte{6})
	require.Nil(t, err)
	require.Equal(t, 3, frame.Chunks)

	final, err := session.Finish()
	require.Nil(t, err)
	require.True(t, final.Complete)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6}, final.Pixels)
}

// driftCodec changes its reported metadata after the first decode
type driftCodec struct {
	calls int
}

func (c *driftCodec) ReadHeader(data []byte) (FrameInfo, error) {
	return FrameInfo{Width: 1, Height: 1}, nil
}

func (c *driftCodec) Decode(data []byte) (FrameInfo, []byte, error) {
	c.calls++
	return FrameInfo{Width: c.calls, Height: 1}, nil, nil
}

func TestSessionDetectsMetadataDrift(t *testing.T) {
	session := NewSession(&driftCodec{})

	_, err := session.Feed([]byte{1})
	require.Nil(t, err)

	_, err = session.Feed([]byte{2})
	require.ErrorIs(t, err, ErrInconsistentFrame)
}

func TestFinishFailureIsTerminal(t *testing.T) {
	// The stream never becomes decodable
	session := NewSession(FlateCodec{})
	_, err := session.Feed([]byte("FGF1 but then garbage"))
	require.Nil(t, err)

	_, err = session.Finish()
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "final decode failed")
}

// slowCodec succeeds on any input after a fixed delay
type slowCodec struct {
	delay time.Duration
}

func (c slowCodec) ReadHeader(data []byte) (FrameInfo, error) {
	return FrameInfo{Width: 1, Height: 1}, nil
}

func (c slowCodec) Decode(data []byte) (FrameInfo, []byte, error) {
	time.Sleep(c.delay)
	return FrameInfo{Width: 1, Height: 1}, append([]byte(nil), data...), nil
}

func TestRunMetricsDisjoint(t *testing.T) {
	// Fetching three bytes is instant; all elapsed time is decode. The
	// fetch metric must not absorb the decode attempts made in the loop.
	_, metrics, err := Run(context.Background(),
		bytes.NewReader([]byte{1, 2, 3}), slowCodec{delay: 100 * time.Millisecond}, nil)
	require.Nil(t, err)

	require.GreaterOrEqual(t, metrics.DecodeTime, 100*time.Millisecond)
	require.Less(t, metrics.FetchTime, 100*time.Millisecond)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	encoded, err := Encode(testInfo, testPixels())
	require.Nil(t, err)

	_, _, err = Run(ctx, bytes.NewReader(encoded), FlateCodec{}, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDecodeAll(t *testing.T) {
	streams := map[string][]byte{}
	expected := map[string][]byte{}
	for _, id := range []string{"f-1", "f-2", "f-3"} {
		pixels := append(testPixels(), id...)
		encoded, err := Encode(testInfo, pixels)
		require.Nil(t, err)
		streams[id] = encoded
		expected[id] = pixels
	}

	fetch := func(ctx context.Context, id string) (io.ReadCloser, error) {
		data, ok := streams[id]
		if !ok {
			return nil, errors.New("no such frame")
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}

	results := DecodeAll(context.Background(), FlateCodec{}, fetch,
		[]string{"f-1", "f-2", "f-3", "missing"}, 2, nil)
	require.Len(t, results, 4)

	byID := map[string]Result{}
	for _, r := range results {
		byID[r.ID] = r
	}
	for id, pixels := range expected {
		require.Nil(t, byID[id].Err)
		require.True(t, byID[id].Frame.Complete)
		require.Equal(t, pixels, byID[id].Frame.Pixels)
		require.Equal(t, len(pixels), byID[id].Metrics.DecodedSize)
	}
	require.NotNil(t, byID["missing"].Err)
}

func TestDecodeAllCanceledReportsEveryFrame(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetch := func(ctx context.Context, id string) (io.ReadCloser, error) {
		return nil, ctx.Err()
	}

	// A canceled run still accounts for every requested frame; none are
	// silently dropped
	ids := []string{"f-1", "f-2", "f-3", "f-4"}
	results := DecodeAll(ctx, FlateCodec{}, fetch, ids, 2, nil)
	require.Len(t, results, len(ids))
	for _, result := range results {
		require.NotNil(t, result.Err, "frame %s has no error", result.ID)
	}
}
