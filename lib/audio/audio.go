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

// Package audio implements the DSP front end of the transcription engine:
// splitting arbitrarily long PCM into fixed 30-second windows, and turning
// each window into the log-mel spectrogram tensor the Whisper encoder
// expects. The numeric pipeline (reflect padding, unnormalized FFT, Slaney
// or model-supplied mel filters, clip-then-log10, max-minus-8
// normalization) must match the model's training preprocessing exactly;
// deviating in any step changes transcription output materially.
package audio

// Fixed parameters of the Whisper audio front end.
const (
	// SampleRate is the only sample rate the models accept.
	SampleRate = 16000

	// FFTSize is the STFT window size (25ms at 16kHz).
	FFTSize = 400

	// HopLength is the STFT hop (10ms at 16kHz).
	HopLength = 160

	// WindowSeconds is the encoder's fixed receptive field.
	WindowSeconds = 30

	// WindowSamples is the sample count of one encoder window.
	WindowSamples = SampleRate * WindowSeconds

	// MaxFrames is the number of STFT frames per window.
	MaxFrames = WindowSamples / HopLength

	// NumFFTBins is the number of non-redundant spectrum bins.
	NumFFTBins = FFTSize/2 + 1

	// DefaultMels is the mel bin count used when the model config
	// does not specify one.
	DefaultMels = 80
)
