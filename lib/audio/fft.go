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

import "math"

// fft computes the unnormalized discrete Fourier transform of input at its
// exact length (no zero padding, which would shift the bin frequencies).
// Cooley-Tukey even/odd splitting handles the power-of-two factors of
// FFTSize = 400 = 16·25; the odd remainder falls back to a direct DFT.
// No 1/N or 1/sqrt(N) scaling is applied anywhere, so |X[k]|^2 is the
// power spectrum of an unnormalized transform.
func fft(input []complex128) []complex128 {
	n := len(input)
	if n == 1 {
		return []complex128{input[0]}
	}
	if n%2 != 0 {
		return dft(input)
	}

	half := n / 2
	even := make([]complex128, half)
	odd := make([]complex128, half)
	for i := 0; i < half; i++ {
		even[i] = input[2*i]
		odd[i] = input[2*i+1]
	}

	evenFFT := fft(even)
	oddFFT := fft(odd)

	out := make([]complex128, n)
	for k := 0; k < half; k++ {
		angle := -2 * math.Pi * float64(k) / float64(n)
		w := complex(math.Cos(angle), math.Sin(angle))
		t := w * oddFFT[k]
		out[k] = evenFFT[k] + t
		out[k+half] = evenFFT[k] - t
	}
	return out
}

// dft is the direct O(n^2) transform used for odd lengths.
func dft(input []complex128) []complex128 {
	n := len(input)
	out := make([]complex128, n)
	for k := 0; k < n; k++ {
		var sum complex128
		for t := 0; t < n; t++ {
			angle := -2 * math.Pi * float64(k*t) / float64(n)
			sum += input[t] * complex(math.Cos(angle), math.Sin(angle))
		}
		out[k] = sum
	}
	return out
}
