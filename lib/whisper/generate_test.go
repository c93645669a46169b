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
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antflydb/murmur/lib/backends"
	"github.com/antflydb/murmur/lib/tokenizer"
)

const (
	testVocabSize = 100
	testSOT       = 1
	testEOT       = 2
)

// fakeSession satisfies backends.Session with a scripted Run.
type fakeSession struct {
	inputs  []backends.TensorInfo
	outputs []backends.TensorInfo
	onRun   func(in []backends.NamedTensor) ([]backends.NamedTensor, error)
}

func (s *fakeSession) Run(in []backends.NamedTensor) ([]backends.NamedTensor, error) {
	return s.onRun(in)
}
func (s *fakeSession) InputInfo() []backends.TensorInfo  { return s.inputs }
func (s *fakeSession) OutputInfo() []backends.TensorInfo { return s.outputs }
func (s *fakeSession) Close() error                      { return nil }

// scriptedDecoder emits a fixed token sequence by putting a spike in the
// logits, returning present tensors unless noPresent is set. It records
// every step's inputs for assertions.
type scriptedDecoder struct {
	fakeSession
	script    []int
	nextToken func(step int) int
	noPresent bool
	failAt    int // step index that returns an error, -1 for never
	calls     int
	recorded  [][]backends.NamedTensor
}

func newScriptedDecoder() *scriptedDecoder {
	d := &scriptedDecoder{failAt: -1}
	d.inputs = mergedDecoderInputs()
	d.onRun = d.step
	return d
}

func (d *scriptedDecoder) step(in []backends.NamedTensor) ([]backends.NamedTensor, error) {
	d.recorded = append(d.recorded, in)
	step := d.calls
	d.calls++
	if step == d.failAt {
		return nil, fmt.Errorf("synthetic backend failure")
	}

	var seqLen int
	for _, t := range in {
		if t.Name == "input_ids" {
			seqLen = int(t.Shape[1])
		}
	}

	tok := 0
	switch {
	case d.nextToken != nil:
		tok = d.nextToken(step)
	case step < len(d.script):
		tok = d.script[step]
	case len(d.script) > 0:
		tok = d.script[len(d.script)-1]
	}

	logits := make([]float32, seqLen*testVocabSize)
	// Secondary spike so a banned primary still yields a varying token
	// instead of a degenerate constant argmax.
	logits[(seqLen-1)*testVocabSize+step%97+3] = 3
	logits[(seqLen-1)*testVocabSize+tok] = 5
	outputs := []backends.NamedTensor{{
		Name:  "logits",
		Shape: []int64{1, int64(seqLen), testVocabSize},
		Data:  logits,
	}}
	if !d.noPresent {
		for _, name := range []string{
			"present.0.decoder.key", "present.0.decoder.value",
			"present.0.encoder.key", "present.0.encoder.value",
		} {
			outputs = append(outputs, backends.NamedTensor{
				Name:  name,
				Shape: []int64{1, 1, int64(step + 1), 1},
				Data:  makeRamp(step + 1),
			})
		}
	}
	return outputs, nil
}

func makeRamp(n int) []float32 {
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(i)
	}
	return data
}

func newTestModel(t *testing.T, decoder backends.Session) *Model {
	t.Helper()
	cfg := &Config{
		NMels:    80,
		NumHeads: 6,
		HeadDim:  64,
		Generation: GenerationConfig{
			DecoderStartTokenID: testSOT,
			EOSTokenID:          testEOT,
			NoTimestampsTokenID: -1,
			MaxLength:           -1,
		},
	}
	encoder := &fakeSession{
		inputs: []backends.TensorInfo{{Name: "input_features"}},
		onRun: func(in []backends.NamedTensor) ([]backends.NamedTensor, error) {
			return []backends.NamedTensor{{
				Name:  "last_hidden_state",
				Shape: []int64{1, 2, 4},
				Data:  make([]float32, 8),
			}}, nil
		},
	}
	m, err := NewModel(cfg, tokenizer.New(map[string]int{}, nil), encoder, decoder, nil)
	require.NoError(t, err)
	return m
}

func testEncoderState() *EncoderState {
	return &EncoderState{Hidden: make([]float32, 8), Shape: []int64{1, 2, 4}}
}

var testPrompt = []int{testSOT, 50, 51, 52}

func TestDecodeBansEOTUntilMinimum(t *testing.T) {
	d := newScriptedDecoder()
	d.nextToken = func(int) int { return testEOT }
	m := newTestModel(t, d)

	// chunkDuration 3 gives a minimum of 10 generated tokens.
	res, err := m.Decode(context.Background(), testEncoderState(), testPrompt, DecodeOptions{ChunkDuration: 3})
	require.NoError(t, err)

	assert.Equal(t, StopEOT, res.StopReason)
	require.Len(t, res.Tokens, 10)
	for i, tok := range res.Tokens {
		// With EOT banned, argmax falls through to the secondary spike.
		assert.Equal(t, i+3, tok)
	}
	assert.Equal(t, 11, res.Steps)
}

func TestDecodeRepetitionTrim(t *testing.T) {
	d := newScriptedDecoder()
	d.script = []int{11, 12, 5, 6, 5, 6, 5, 6}
	m := newTestModel(t, d)

	res, err := m.Decode(context.Background(), testEncoderState(), testPrompt, DecodeOptions{ChunkDuration: 3})
	require.NoError(t, err)

	assert.Equal(t, StopRepetition, res.StopReason)
	assert.Equal(t, []int{11, 12, 5, 6}, res.Tokens)
}

func TestDecodeSOTLoopStops(t *testing.T) {
	d := newScriptedDecoder()
	d.script = []int{7, testSOT}
	m := newTestModel(t, d)

	res, err := m.Decode(context.Background(), testEncoderState(), testPrompt, DecodeOptions{ChunkDuration: 3})
	require.NoError(t, err)

	assert.Equal(t, StopSOTLoop, res.StopReason)
	assert.Equal(t, []int{7}, res.Tokens)
}

func TestDecodeBudgetStops(t *testing.T) {
	d := newScriptedDecoder()
	// Cycle longer than the widest repetition window.
	d.nextToken = func(step int) int { return step%97 + 3 }
	m := newTestModel(t, d)

	// chunkDuration 13 clamps to the 80 token floor.
	res, err := m.Decode(context.Background(), testEncoderState(), testPrompt, DecodeOptions{ChunkDuration: 13})
	require.NoError(t, err)

	assert.Equal(t, StopBudget, res.StopReason)
	assert.Len(t, res.Tokens, 80)
}

func TestDecodeHardCeiling(t *testing.T) {
	d := newScriptedDecoder()
	d.nextToken = func(step int) int { return step%97 + 3 }
	m := newTestModel(t, d)

	// chunkDuration 100 pushes the budget to 448, but the ceiling counts
	// the prompt too, so it wins.
	res, err := m.Decode(context.Background(), testEncoderState(), testPrompt, DecodeOptions{ChunkDuration: 100})
	require.NoError(t, err)

	assert.Equal(t, StopCeiling, res.StopReason)
	assert.Len(t, res.Tokens, hardTokenCeiling-len(testPrompt))
}

func TestDecodeCacheFlow(t *testing.T) {
	d := newScriptedDecoder()
	d.script = []int{20, 21, testEOT}
	m := newTestModel(t, d)

	res, err := m.Decode(context.Background(), testEncoderState(), testPrompt, DecodeOptions{ChunkDuration: 1})
	require.NoError(t, err)
	assert.True(t, res.CacheUsed)
	require.GreaterOrEqual(t, len(d.recorded), 2)

	first := tensorsByName(d.recorded[0])
	assert.Equal(t, []int64{1, 4}, first["input_ids"].Shape, "step 0 feeds the full prompt")
	assert.Equal(t, []bool{false}, first["use_cache_branch"].Data)
	assert.Equal(t, int64(0), first["past_key_values.0.decoder.key"].Shape[2], "step 0 cache slots are empty")

	second := tensorsByName(d.recorded[1])
	assert.Equal(t, []int64{1, 1}, second["input_ids"].Shape, "later steps feed only the newest token")
	assert.Equal(t, []bool{true}, second["use_cache_branch"].Data)
	assert.Equal(t, []float32{0}, second["past_key_values.0.decoder.key"].Data,
		"previous present output is fed back as past")
}

func TestDecodeNoPresentFallsBackToSlowPath(t *testing.T) {
	d := newScriptedDecoder()
	d.noPresent = true
	d.script = []int{20, 21, testEOT}
	m := newTestModel(t, d)

	res, err := m.Decode(context.Background(), testEncoderState(), testPrompt, DecodeOptions{ChunkDuration: 1})
	require.NoError(t, err)
	assert.False(t, res.CacheUsed)

	second := tensorsByName(d.recorded[1])
	assert.Equal(t, []int64{1, 5}, second["input_ids"].Shape,
		"without cache the full sequence is re-fed")
	assert.Equal(t, []bool{false}, second["use_cache_branch"].Data)
}

func TestDecodeBackendErrorAborts(t *testing.T) {
	d := newScriptedDecoder()
	d.script = []int{20, 21}
	d.failAt = 1
	m := newTestModel(t, d)

	_, err := m.Decode(context.Background(), testEncoderState(), testPrompt, DecodeOptions{ChunkDuration: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "synthetic backend failure")
}

func TestDecodeCancellation(t *testing.T) {
	d := newScriptedDecoder()
	d.script = []int{20}
	m := newTestModel(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Decode(ctx, testEncoderState(), testPrompt, DecodeOptions{ChunkDuration: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, d.calls)
}

func TestDecodeRejectsBadPlanShapes(t *testing.T) {
	d := newScriptedDecoder()
	d.inputs = []backends.TensorInfo{
		{Name: "input_ids", Shape: []int64{-1, -1}, DataType: backends.DataTypeInt64},
		{Name: "past_key_values.0.decoder.key", Shape: []int64{-1, 6, 64}},
	}
	m := newTestModel(t, d)

	_, err := m.Decode(context.Background(), testEncoderState(), testPrompt, DecodeOptions{ChunkDuration: 1})
	require.Error(t, err)
	assert.Equal(t, 0, d.calls, "shape mismatch is caught before any inference")
}

func TestDecodeRejectsMalformedLogits(t *testing.T) {
	d := &fakeSession{
		inputs: mergedDecoderInputs(),
		onRun: func(in []backends.NamedTensor) ([]backends.NamedTensor, error) {
			return []backends.NamedTensor{{
				Name:  "logits",
				Shape: []int64{1, testVocabSize},
				Data:  make([]float32, testVocabSize),
			}}, nil
		},
	}
	m := newTestModel(t, d)

	_, err := m.Decode(context.Background(), testEncoderState(), testPrompt, DecodeOptions{ChunkDuration: 1})
	assert.Error(t, err)
}

func TestMinGeneratedTokens(t *testing.T) {
	tests := []struct {
		chunkDuration int
		want          int
	}{
		{1, 10},
		{3, 10},
		{5, 10},
		{10, 20},
		{30, 60},
		{100, 60},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, minGeneratedTokens(tt.chunkDuration), "chunkDuration=%d", tt.chunkDuration)
	}
}

func TestTokenBudget(t *testing.T) {
	tests := []struct {
		chunkDuration int
		want          int
	}{
		{1, 80},
		{13, 80},
		{15, 90},
		{30, 180},
		{100, 448},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tokenBudget(tt.chunkDuration), "chunkDuration=%d", tt.chunkDuration)
	}
}

func TestRepeatedWindow(t *testing.T) {
	tests := []struct {
		name string
		in   []int
		want int
	}{
		{"no repetition", []int{1, 2, 3, 4, 5, 6}, 0},
		{"two copies only", []int{1, 2, 5, 6, 5, 6}, 0},
		{"three copies of a pair", []int{1, 2, 5, 6, 5, 6, 5, 6}, 2},
		{"three copies of a triple", []int{9, 1, 2, 3, 1, 2, 3, 1, 2, 3}, 3},
		{"window wider than eight ignored", repeatBlocks([]int{1, 2, 3, 4, 5, 6, 7, 8, 9}, 3), 0},
		{"too short", []int{5, 6, 5, 6}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, repeatedWindow(tt.in))
		})
	}
}

func repeatBlocks(block []int, n int) []int {
	var out []int
	for i := 0; i < n; i++ {
		out = append(out, block...)
	}
	return out
}

func tensorsByName(tensors []backends.NamedTensor) map[string]backends.NamedTensor {
	m := make(map[string]backends.NamedTensor, len(tensors))
	for _, t := range tensors {
		m[t.Name] = t
	}
	return m
}
