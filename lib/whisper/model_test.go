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

package whisper

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antflydb/murmur/lib/audio"
	"github.com/antflydb/murmur/lib/backends"
	"github.com/antflydb/murmur/lib/tokenizer"
)

func testFeatures(t *testing.T) *audio.Features {
	t.Helper()
	return &audio.Features{
		Data:   make([]float32, 80*10),
		NMels:  80,
		Frames: 10,
	}
}

func newTestModelWithEncoder(t *testing.T, encoder backends.Session) *Model {
	t.Helper()
	cfg := &Config{
		NMels: 80,
		Generation: GenerationConfig{
			DecoderStartTokenID: testSOT,
			EOSTokenID:          testEOT,
			NoTimestampsTokenID: -1,
			MaxLength:           -1,
		},
	}
	m, err := NewModel(cfg, tokenizer.New(map[string]int{}, nil), encoder, newScriptedDecoder(), nil)
	require.NoError(t, err)
	return m
}

func TestEncodeCopiesBackendBuffer(t *testing.T) {
	buffer := make([]float32, 8)
	encoder := &fakeSession{
		inputs: []backends.TensorInfo{{Name: "input_features"}},
		onRun: func(in []backends.NamedTensor) ([]backends.NamedTensor, error) {
			require.Len(t, in, 1)
			assert.Equal(t, "input_features", in[0].Name)
			return []backends.NamedTensor{{
				Name:  "last_hidden_state",
				Shape: []int64{1, 2, 4},
				Data:  buffer,
			}}, nil
		},
	}
	m := newTestModelWithEncoder(t, encoder)

	state, err := m.Encode(testFeatures(t))
	require.NoError(t, err)
	assert.Equal(t, int64(2), state.Frames())

	// Mutating the backend's buffer must not affect the returned state.
	buffer[0] = 99
	assert.Equal(t, float32(0), state.Hidden[0])
}

func TestEncodeRejectsWrongRank(t *testing.T) {
	encoder := &fakeSession{
		inputs: []backends.TensorInfo{{Name: "input_features"}},
		onRun: func(in []backends.NamedTensor) ([]backends.NamedTensor, error) {
			return []backends.NamedTensor{{
				Name:  "last_hidden_state",
				Shape: []int64{2, 4},
				Data:  make([]float32, 8),
			}}, nil
		},
	}
	m := newTestModelWithEncoder(t, encoder)

	_, err := m.Encode(testFeatures(t))
	assert.Error(t, err)
}

func TestEncodeNoOutputs(t *testing.T) {
	encoder := &fakeSession{
		inputs: []backends.TensorInfo{{Name: "input_features"}},
		onRun: func(in []backends.NamedTensor) ([]backends.NamedTensor, error) {
			return nil, nil
		},
	}
	m := newTestModelWithEncoder(t, encoder)

	_, err := m.Encode(testFeatures(t))
	assert.Error(t, err)
}

func TestEncodeBackendError(t *testing.T) {
	encoder := &fakeSession{
		inputs: []backends.TensorInfo{{Name: "input_features"}},
		onRun: func(in []backends.NamedTensor) ([]backends.NamedTensor, error) {
			return nil, errors.New("device lost")
		},
	}
	m := newTestModelWithEncoder(t, encoder)

	_, err := m.Encode(testFeatures(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device lost")
}

func TestEncoderInputNameFromGraph(t *testing.T) {
	encoder := &fakeSession{
		inputs: []backends.TensorInfo{{Name: "mel"}},
		onRun: func(in []backends.NamedTensor) ([]backends.NamedTensor, error) {
			assert.Equal(t, "mel", in[0].Name)
			return []backends.NamedTensor{{
				Name:  "out",
				Shape: []int64{1, 2, 4},
				Data:  make([]float32, 8),
			}}, nil
		},
	}
	m := newTestModelWithEncoder(t, encoder)

	_, err := m.Encode(testFeatures(t))
	require.NoError(t, err)
}
