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
	"context"
	"io"
	"sync"
)

// Fetcher obtains the byte stream for a frame id
type Fetcher func(ctx context.Context, id string) (io.ReadCloser, error)

// Result of decoding one frame
type Result struct {
	ID      string
	Frame   *Frame
	Metrics *Metrics
	Err     error
}

// DecodeAll fetches and progressively decodes independent frames in
// parallel. Each frame gets its own session; sessions share no state.
// Partial and final frames are passed to emit tagged with their frame id.
func DecodeAll(ctx context.Context, codec Codec, fetch Fetcher, ids []string, workers int, emit func(id string, frame *Frame)) []Result {
	if workers < 1 {
		workers = 1
	}
	if workers > len(ids) {
		workers = len(ids)
	}

	jobs := make(chan string, len(ids))
	results := make(chan Result, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker(ctx, codec, fetch, jobs, results, emit, &wg)
	}

	for _, id := range ids {
		jobs <- id
	}
	close(jobs)

	wg.Wait()
	close(results)

	out := make([]Result, 0, len(ids))
	for result := range results {
		out = append(out, result)
	}
	// Jobs the workers abandoned on cancellation still get a result
	for id := range jobs {
		out = append(out, Result{ID: id, Err: ctx.Err()})
	}
	return out
}

// worker grabs frame ids off the jobs channel and decodes them one after
// the other until the channel drains or the context is canceled
func worker(
	ctx context.Context,
	codec Codec,
	fetch Fetcher,
	jobs <-chan string,
	results chan<- Result,
	emit func(string, *Frame),
	wg *sync.WaitGroup) {

	defer wg.Done()

	for {
		select {

		case id, ok := <-jobs:
			if !ok {
				return
			}
			// The results channel is buffered to len(ids), so this
			// never blocks and no completed result is ever dropped
			results <- decodeOne(ctx, codec, fetch, id, emit)

		case <-ctx.Done():
			return
		}
	}
}

func decodeOne(ctx context.Context, codec Codec, fetch Fetcher, id string, emit func(string, *Frame)) Result {
	stream, err := fetch(ctx, id)
	if err != nil {
		return Result{ID: id, Err: err}
	}
	defer stream.Close()

	var forward func(*Frame)
	if emit != nil {
		forward = func(frame *Frame) { emit(id, frame) }
	}

	frame, metrics, err := Run(ctx, stream, codec, forward)
	return Result{ID: id, Frame: frame, Metrics: metrics, Err: err}
}
