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

import (
	"fmt"
	"math"
)

// Features is a log-mel spectrogram tensor of shape [1, NMels, Frames],
// laid out mel-major. Created fresh per chunk and consumed once by the
// encoder.
type Features struct {
	Data   []float32
	NMels  int
	Frames int
}

// Shape returns the tensor dimensions [1, nMels, frames].
func (f *Features) Shape() []int64 {
	return []int64{1, int64(f.NMels), int64(f.Frames)}
}

// FeatureExtractor turns one fixed-length PCM window into a normalized
// log-mel spectrogram. It is immutable after construction and safe for
// concurrent use.
type FeatureExtractor struct {
	nMels   int
	filters [][]float32
	window  []float32 // precomputed Hann window
}

// NewFeatureExtractor creates an extractor over the given filterbank.
// filters must be [nMels][NumFFTBins].
func NewFeatureExtractor(nMels int, filters [][]float32) (*FeatureExtractor, error) {
	if len(filters) != nMels {
		return nil, fmt.Errorf("filterbank has %d rows, want %d", len(filters), nMels)
	}

	// Hann window with period FFTSize: 0.5*(1-cos(2*pi*i/N))
	window := make([]float32, FFTSize)
	for i := range window {
		window[i] = float32(0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(FFTSize))))
	}

	return &FeatureExtractor{
		nMels:   nMels,
		filters: filters,
		window:  window,
	}, nil
}

// Extract computes the log-mel spectrogram of one WindowSamples chunk.
func (fe *FeatureExtractor) Extract(chunk []float32) (*Features, error) {
	if len(chunk) != WindowSamples {
		return nil, fmt.Errorf("chunk has %d samples, want %d", len(chunk), WindowSamples)
	}

	padded := reflectPad(chunk, FFTSize/2)

	// Power spectrogram, frame-major while accumulating.
	power := make([][]float64, MaxFrames)
	frame := make([]complex128, FFTSize)
	for f := 0; f < MaxFrames; f++ {
		start := f * HopLength
		for i := 0; i < FFTSize; i++ {
			frame[i] = complex(float64(padded[start+i])*float64(fe.window[i]), 0)
		}

		spectrum := fft(frame)

		power[f] = make([]float64, NumFFTBins)
		for bin := 0; bin < NumFFTBins; bin++ {
			re := real(spectrum[bin])
			im := imag(spectrum[bin])
			power[f][bin] = re*re + im*im
		}
	}

	// Mel projection, then clip and log10. Output is mel-major.
	data := make([]float32, fe.nMels*MaxFrames)
	globalMax := math.Inf(-1)
	for m := 0; m < fe.nMels; m++ {
		filter := fe.filters[m]
		for f := 0; f < MaxFrames; f++ {
			var sum float64
			for bin := 0; bin < NumFFTBins; bin++ {
				sum += power[f][bin] * float64(filter[bin])
			}
			if sum < 1e-10 {
				sum = 1e-10
			}
			v := math.Log10(sum)
			if v > globalMax {
				globalMax = v
			}
			data[m*MaxFrames+f] = float32(v)
		}
	}

	// Clamp to max-8, then remap x -> (x+4)/4.
	floor := float32(globalMax - 8)
	for i, v := range data {
		if v < floor {
			v = floor
		}
		data[i] = (v + 4) / 4
	}

	return &Features{
		Data:   data,
		NMels:  fe.nMels,
		Frames: MaxFrames,
	}, nil
}

// reflectPad mirrors pad samples on both ends without repeating the edge
// sample, matching center-mode STFT padding.
func reflectPad(samples []float32, pad int) []float32 {
	n := len(samples)
	out := make([]float32, n+2*pad)
	for i := 0; i < pad; i++ {
		out[i] = samples[pad-i]
	}
	copy(out[pad:], samples)
	for i := 0; i < pad; i++ {
		out[pad+n+i] = samples[n-2-i]
	}
	return out
}
