// Copyright 2026 Antfly, Inc.
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

package audio

// Chunker splits a PCM stream into fixed-size, optionally overlapping
// windows for the encoder. Windows are always WindowSamples long; the tail
// of the stream is implicitly padded with silence.
type Chunker struct {
	totalSamples int
	stride       int
	totalChunks  int
}

// NewChunker plans the chunking of totalSamples of 16kHz mono audio.
// chunkDuration is the caller-requested chunk length in seconds (values
// under one second are raised to one second); useOverlap reserves up to two
// seconds of context shared between consecutive chunks, which reduces words
// lost at chunk boundaries at the cost of re-decoding the overlap.
func NewChunker(totalSamples, chunkDuration int, useOverlap bool) Chunker {
	durationSamples := chunkDuration * SampleRate
	if durationSamples < SampleRate {
		durationSamples = SampleRate
	}

	effectiveWindow := durationSamples
	if effectiveWindow > WindowSamples {
		effectiveWindow = WindowSamples
	}

	overlap := 0
	if useOverlap {
		overlap = effectiveWindow / 2
		if overlap > 2*SampleRate {
			overlap = 2 * SampleRate
		}
	}

	stride := effectiveWindow - overlap
	if stride < 1 {
		stride = 1
	}

	totalChunks := (totalSamples + stride - 1) / stride

	return Chunker{
		totalSamples: totalSamples,
		stride:       stride,
		totalChunks:  totalChunks,
	}
}

// NumChunks returns the number of windows the stream yields. Zero-length
// input yields zero chunks.
func (c Chunker) NumChunks() int {
	return c.totalChunks
}

// Stride returns the sample distance between consecutive window starts.
func (c Chunker) Stride() int {
	return c.stride
}

// RealSamples returns how many source samples (as opposed to silence
// padding) window i contains.
func (c Chunker) RealSamples(i int) int {
	offset := i * c.stride
	if offset >= c.totalSamples {
		return 0
	}
	n := c.totalSamples - offset
	if n > WindowSamples {
		n = WindowSamples
	}
	return n
}

// Chunk copies window i out of samples into a fresh zero-initialized
// WindowSamples buffer. The final partial window is padded with silence.
func (c Chunker) Chunk(i int, samples []float32) []float32 {
	buf := make([]float32, WindowSamples)
	offset := i * c.stride
	if offset < len(samples) {
		copy(buf, samples[offset:])
	}
	return buf
}
