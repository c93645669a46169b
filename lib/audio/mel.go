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
	"sync"

	"go.uber.org/zap"
)

// FilterbankProvider supplies the mel filterbank matrix for feature
// extraction. Filters embedded in the model's preprocessor configuration
// are preferred because they are bit-compatible with the weights the model
// was trained against; when absent, a Slaney-scale filterbank is computed
// analytically. The result is cached per nMels and safe for concurrent
// readers; a racing recompute produces identical values, so redundant work
// is tolerated instead of serializing reads.
type FilterbankProvider struct {
	loaded [][]float32 // rows from preprocessor config, nil if absent
	logger *zap.Logger

	mu      sync.Mutex
	nMels   int
	filters [][]float32
}

// NewFilterbankProvider creates a provider. loaded may be nil (analytic
// fallback) and may be in either [nMels][bins] or transposed [bins][nMels]
// orientation; the orientation is detected at Get time.
func NewFilterbankProvider(loaded [][]float32, logger *zap.Logger) *FilterbankProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilterbankProvider{loaded: loaded, logger: logger}
}

// Get returns the nMels x NumFFTBins filterbank, computing and caching it
// on first use. The cache holds one entry; a different nMels replaces it.
func (p *FilterbankProvider) Get(nMels int) ([][]float32, error) {
	if nMels <= 0 {
		return nil, fmt.Errorf("invalid mel bin count %d", nMels)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.filters != nil && p.nMels == nMels {
		return p.filters, nil
	}

	filters, err := p.build(nMels)
	if err != nil {
		return nil, err
	}

	p.nMels = nMels
	p.filters = filters
	return filters, nil
}

func (p *FilterbankProvider) build(nMels int) ([][]float32, error) {
	if p.loaded != nil {
		if filters, ok := orientLoadedFilters(p.loaded, nMels); ok {
			p.logger.Debug("Using mel filters from model configuration",
				zap.Int("n_mels", nMels))
			return filters, nil
		}
		p.logger.Warn("Configured mel filters do not match requested bin count, computing Slaney filterbank",
			zap.Int("n_mels", nMels),
			zap.Int("loaded_rows", len(p.loaded)))
	}
	return slaneyFilterbank(nMels), nil
}

// orientLoadedFilters validates configured filter weights against the
// requested bin count, transposing a [bins][nMels] layout if necessary.
func orientLoadedFilters(loaded [][]float32, nMels int) ([][]float32, bool) {
	if len(loaded) == nMels && len(loaded[0]) == NumFFTBins {
		return loaded, true
	}
	if len(loaded) == NumFFTBins && len(loaded[0]) == nMels {
		transposed := make([][]float32, nMels)
		for m := 0; m < nMels; m++ {
			transposed[m] = make([]float32, NumFFTBins)
			for b := 0; b < NumFFTBins; b++ {
				transposed[m][b] = loaded[b][m]
			}
		}
		return transposed, true
	}
	return nil, false
}

// Slaney mel scale: linear below 1kHz, logarithmic above.
const (
	slaneyFsp       = 200.0 / 3.0
	slaneyMinLogHz  = 1000.0
	slaneyMinLogMel = slaneyMinLogHz / slaneyFsp
)

var slaneyLogStep = math.Log(6.4) / 27.0

func hzToMel(hz float64) float64 {
	if hz < slaneyMinLogHz {
		return hz / slaneyFsp
	}
	return slaneyMinLogMel + math.Log(hz/slaneyMinLogHz)/slaneyLogStep
}

func melToHz(mel float64) float64 {
	if mel < slaneyMinLogMel {
		return mel * slaneyFsp
	}
	return slaneyMinLogHz * math.Exp(slaneyLogStep*(mel-slaneyMinLogMel))
}

// slaneyFilterbank computes triangular mel filters with nMels+2 points
// evenly spaced in Slaney-mel space between 0Hz and Nyquist, each filter
// area-normalized by 2/(freq[m+2]-freq[m]).
func slaneyFilterbank(nMels int) [][]float32 {
	nyquist := float64(SampleRate) / 2.0

	melPoints := make([]float64, nMels+2)
	freqPoints := make([]float64, nMels+2)
	maxMel := hzToMel(nyquist)
	for i := range melPoints {
		melPoints[i] = maxMel * float64(i) / float64(nMels+1)
		freqPoints[i] = melToHz(melPoints[i])
	}

	filters := make([][]float32, nMels)
	for m := 0; m < nMels; m++ {
		filters[m] = make([]float32, NumFFTBins)
		lower := freqPoints[m]
		center := freqPoints[m+1]
		upper := freqPoints[m+2]
		enorm := 2.0 / (upper - lower)

		for bin := 0; bin < NumFFTBins; bin++ {
			freq := float64(bin) * float64(SampleRate) / float64(FFTSize)

			rising := (freq - lower) / (center - lower)
			falling := (upper - freq) / (upper - center)
			weight := math.Min(rising, falling)
			if weight < 0 {
				weight = 0
			}
			filters[m][bin] = float32(weight * enorm)
		}
	}

	return filters
}
