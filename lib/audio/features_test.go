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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor(t *testing.T) *FeatureExtractor {
	t.Helper()
	provider := NewFilterbankProvider(nil, nil)
	filters, err := provider.Get(DefaultMels)
	require.NoError(t, err)
	fe, err := NewFeatureExtractor(DefaultMels, filters)
	require.NoError(t, err)
	return fe
}

func TestExtractShape(t *testing.T) {
	fe := newTestExtractor(t)

	chunk := make([]float32, WindowSamples)
	feats, err := fe.Extract(chunk)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, DefaultMels, MaxFrames}, feats.Shape())
	assert.Len(t, feats.Data, DefaultMels*MaxFrames)
}

func TestExtractRejectsWrongLength(t *testing.T) {
	fe := newTestExtractor(t)

	_, err := fe.Extract(make([]float32, WindowSamples-1))
	assert.Error(t, err)
}

// The normalization clamps to max-8 then remaps x -> (x+4)/4, so the
// largest output is (max+4)/4 and nothing sits more than 2 below it.
func TestExtractNormalizationRange(t *testing.T) {
	fe := newTestExtractor(t)

	chunk := make([]float32, WindowSamples)
	for i := range chunk {
		chunk[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / float64(SampleRate)))
	}
	feats, err := fe.Extract(chunk)
	require.NoError(t, err)

	maxVal := float32(math.Inf(-1))
	minVal := float32(math.Inf(1))
	for _, v := range feats.Data {
		if v > maxVal {
			maxVal = v
		}
		if v < minVal {
			minVal = v
		}
	}
	assert.InDelta(t, 2.0, float64(maxVal-minVal), 1e-4,
		"clamp at max-8 plus /4 remap bounds the spread at exactly 2 when quiet bins exist")
	assert.Greater(t, float64(maxVal), float64(minVal))
}

// Silence hits the 1e-10 clip everywhere: every value becomes
// (log10(1e-10)+4)/4 = -1.5.
func TestExtractSilence(t *testing.T) {
	fe := newTestExtractor(t)

	feats, err := fe.Extract(make([]float32, WindowSamples))
	require.NoError(t, err)
	for _, v := range feats.Data {
		assert.InDelta(t, -1.5, float64(v), 1e-6)
	}
}

// A pure tone concentrates energy in the mel bins around its frequency.
func TestExtractToneLocalization(t *testing.T) {
	fe := newTestExtractor(t)

	const freq = 1000.0
	chunk := make([]float32, WindowSamples)
	for i := range chunk {
		chunk[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(SampleRate)))
	}
	feats, err := fe.Extract(chunk)
	require.NoError(t, err)

	// Mean energy per mel bin across a mid-stream frame range.
	energy := make([]float64, DefaultMels)
	for m := 0; m < DefaultMels; m++ {
		for f := 100; f < 200; f++ {
			energy[m] += float64(feats.Data[m*MaxFrames+f])
		}
	}
	peak := 0
	for m, e := range energy {
		if e > energy[peak] {
			peak = m
		}
	}
	// 1kHz is the end of the linear region, well below the last bin.
	assert.Greater(t, peak, 10)
	assert.Less(t, peak, 70)
}

func TestReflectPad(t *testing.T) {
	samples := []float32{1, 2, 3, 4, 5}
	padded := reflectPad(samples, 2)
	assert.Equal(t, []float32{3, 2, 1, 2, 3, 4, 5, 4, 3}, padded)
}

func TestFFTImpulse(t *testing.T) {
	// An impulse transforms to a flat spectrum of 1s, unnormalized.
	input := make([]complex128, FFTSize)
	input[0] = 1
	out := fft(input)
	require.Len(t, out, FFTSize)
	for k := 0; k < FFTSize; k += 37 {
		assert.InDelta(t, 1.0, real(out[k]), 1e-9)
		assert.InDelta(t, 0.0, imag(out[k]), 1e-9)
	}
}

func TestFFTMatchesDirectTransform(t *testing.T) {
	input := make([]complex128, 20)
	for i := range input {
		input[i] = complex(math.Sin(float64(i)), 0)
	}
	fast := fft(input)
	direct := dft(input)
	for k := range fast {
		assert.InDelta(t, real(direct[k]), real(fast[k]), 1e-9)
		assert.InDelta(t, imag(direct[k]), imag(fast[k]), 1e-9)
	}
}

// DC input of all ones produces N at bin 0, confirming no library scaling
// sneaks in.
func TestFFTUnnormalized(t *testing.T) {
	n := 64
	input := make([]complex128, n)
	for i := range input {
		input[i] = 1
	}
	out := fft(input)
	assert.InDelta(t, float64(n), real(out[0]), 1e-9)
	for k := 1; k < n; k++ {
		assert.InDelta(t, 0, real(out[k]), 1e-9)
	}
}
