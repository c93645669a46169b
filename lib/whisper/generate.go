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
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/antflydb/murmur/lib/backends"
)

// hardTokenCeiling bounds the total sequence length (prompt plus generated)
// regardless of any other stop condition.
const hardTokenCeiling = 448

// Repetition scan window bounds.
const (
	repeatMinWindow = 2
	repeatMaxWindow = 8
)

// StopReason records why generation ended for a chunk.
type StopReason string

const (
	StopEOT        StopReason = "eot"
	StopSOTLoop    StopReason = "sot_loop"
	StopBudget     StopReason = "budget"
	StopRepetition StopReason = "repetition"
	StopCeiling    StopReason = "ceiling"
)

// DecodeOptions tunes one chunk's generation.
type DecodeOptions struct {
	// ChunkDuration in seconds drives both the minimum token count before
	// EOT is allowed and the token budget.
	ChunkDuration int
}

// DecodeResult is the outcome of one chunk's generation.
type DecodeResult struct {
	// Tokens are the generated ids, prompt excluded.
	Tokens []int
	// StopReason records which condition ended generation.
	StopReason StopReason
	// Steps is the number of decoder invocations.
	Steps int
	// CacheUsed is false when the graph produced no present outputs and
	// generation fell back to re-feeding the full sequence each step.
	CacheUsed bool
}

// minGeneratedTokens is the count below which EOT is banned from argmax,
// preventing degenerate immediate termination on quiet audio.
func minGeneratedTokens(chunkDuration int) int {
	n := chunkDuration * 2
	if n < 10 {
		n = 10
	}
	if n > 60 {
		n = 60
	}
	return n
}

// tokenBudget caps generated tokens per chunk in proportion to its length.
func tokenBudget(chunkDuration int) int {
	n := chunkDuration * 6
	if n < 80 {
		n = 80
	}
	if n > hardTokenCeiling {
		n = hardTokenCeiling
	}
	return n
}

// decodeState is the per-call generation state. Nothing here is shared
// between calls, so concurrent Decode invocations on one Model are safe.
type decodeState struct {
	tokens       []int
	promptLen    int
	cache        map[string]backends.NamedTensor
	cacheEnabled bool
	step         int
}

func (st *decodeState) generated() int {
	return len(st.tokens) - st.promptLen
}

// Decode runs greedy generation for one chunk. The cache is rebuilt from
// scratch; nothing carries over between chunks. Any backend error is
// returned to the caller, which treats the chunk as producing no text.
// Cancellation is checked before every step.
func (m *Model) Decode(ctx context.Context, enc *EncoderState, prompt []int, opts DecodeOptions) (*DecodeResult, error) {
	if err := m.plan.Validate(); err != nil {
		return nil, fmt.Errorf("decoder input contract: %w", err)
	}
	if len(prompt) == 0 {
		return nil, fmt.Errorf("empty prompt")
	}
	eot := m.prompts.EOT()
	sot := m.prompts.SOT()
	minTokens := minGeneratedTokens(opts.ChunkDuration)
	budget := tokenBudget(opts.ChunkDuration)

	st := &decodeState{
		tokens:       append([]int(nil), prompt...),
		promptLen:    len(prompt),
		cache:        make(map[string]backends.NamedTensor, m.plan.CacheSlots),
		cacheEnabled: m.plan.CacheSlots > 0,
	}

	reason := StopCeiling
	for len(st.tokens) < hardTokenCeiling {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		outputs, err := m.decoder.Run(m.buildDecoderInputs(st, enc))
		if err != nil {
			return nil, fmt.Errorf("decoder inference at step %d: %w", st.step, err)
		}
		logits, err := findLogits(outputs)
		if err != nil {
			return nil, err
		}
		m.updateCache(st, outputs)

		banned := -1
		if st.generated() < minTokens {
			banned = eot
		}
		next, err := argmaxLast(logits, banned)
		if err != nil {
			return nil, err
		}
		isFirstStep := st.step == 0
		st.step++

		if next == eot {
			reason = StopEOT
			break
		}
		if next == sot && !isFirstStep {
			reason = StopSOTLoop
			break
		}
		st.tokens = append(st.tokens, next)
		if st.generated() >= budget {
			reason = StopBudget
			break
		}
		if w := repeatedWindow(st.tokens[st.promptLen:]); w > 0 {
			st.tokens = st.tokens[:len(st.tokens)-2*w]
			m.logger.Debug("repetition loop trimmed",
				zap.Int("window", w), zap.Int("step", st.step))
			reason = StopRepetition
			break
		}
	}

	return &DecodeResult{
		Tokens:     st.tokens[st.promptLen:],
		StopReason: reason,
		Steps:      st.step,
		CacheUsed:  st.cacheEnabled,
	}, nil
}

// buildDecoderInputs assembles one step's input tensors per the plan. On
// step 0 the full prompt is fed with empty cache slots; afterwards only the
// newest token plus the previous step's present outputs, unless caching was
// disabled, in which case the full sequence is re-fed every step.
func (m *Model) buildDecoderInputs(st *decodeState, enc *EncoderState) []backends.NamedTensor {
	useCache := st.step > 0 && st.cacheEnabled
	inputs := make([]backends.NamedTensor, 0, len(m.plan.Inputs))
	for _, in := range m.plan.Inputs {
		switch in.Kind {
		case InputPromptTokens:
			feed := st.tokens
			if useCache {
				feed = st.tokens[len(st.tokens)-1:]
			}
			inputs = append(inputs, tokenTensor(in, feed))
		case InputEncoderState:
			inputs = append(inputs, backends.NamedTensor{
				Name:  in.Name,
				Shape: enc.Shape,
				Data:  enc.Hidden,
			})
		case InputUseCacheFlag:
			inputs = append(inputs, flagTensor(in, useCache))
		case InputCacheSlot:
			if cached, ok := st.cache[in.PresentName]; ok && useCache {
				cached.Name = in.Name
				inputs = append(inputs, cached)
			} else {
				inputs = append(inputs, m.emptyCacheTensor(in))
			}
		case InputGenericMask:
			n := len(st.tokens)
			if in.EncoderSized {
				n = int(enc.Frames())
			}
			inputs = append(inputs, onesTensor(in, n))
		}
	}
	return inputs
}

// updateCache replaces the cache wholesale with this step's present
// outputs. A merged decoder that yields none on the first step cannot be
// cached against, so the chunk falls back to the slow path.
func (m *Model) updateCache(st *decodeState, outputs []backends.NamedTensor) {
	found := false
	for _, out := range outputs {
		if strings.HasPrefix(out.Name, "present") {
			st.cache[out.Name] = out.Clone()
			found = true
		}
	}
	if !found && st.step == 0 && st.cacheEnabled {
		st.cacheEnabled = false
		m.logger.Warn("decoder produced no present outputs, disabling KV cache for this chunk")
	}
}

// emptyCacheTensor builds a zero-length cache slot. Head count and head
// dimension come from the graph's declared shape when static, otherwise
// from the model configuration.
func (m *Model) emptyCacheTensor(in PlannedInput) backends.NamedTensor {
	heads := int64(m.cfg.NumHeads)
	headDim := int64(m.cfg.HeadDim)
	if len(in.Shape) == 4 {
		if in.Shape[1] > 0 {
			heads = in.Shape[1]
		}
		if in.Shape[3] > 0 {
			headDim = in.Shape[3]
		}
	}
	if heads <= 0 {
		heads = 1
	}
	if headDim <= 0 {
		headDim = 1
	}
	return backends.NamedTensor{
		Name:  in.Name,
		Shape: []int64{1, heads, 0, headDim},
		Data:  []float32{},
	}
}

func tokenTensor(in PlannedInput, tokens []int) backends.NamedTensor {
	shape := []int64{1, int64(len(tokens))}
	if in.DataType == backends.DataTypeInt32 {
		data := make([]int32, len(tokens))
		for i, t := range tokens {
			data[i] = int32(t)
		}
		return backends.NamedTensor{Name: in.Name, Shape: shape, Data: data}
	}
	data := make([]int64, len(tokens))
	for i, t := range tokens {
		data[i] = int64(t)
	}
	return backends.NamedTensor{Name: in.Name, Shape: shape, Data: data}
}

func flagTensor(in PlannedInput, v bool) backends.NamedTensor {
	if in.DataType == backends.DataTypeBool {
		return backends.NamedTensor{Name: in.Name, Shape: []int64{1}, Data: []bool{v}}
	}
	var i int64
	if v {
		i = 1
	}
	return backends.NamedTensor{Name: in.Name, Shape: []int64{1}, Data: []int64{i}}
}

// onesTensor fills attention-mask-like inputs with 1s.
func onesTensor(in PlannedInput, n int) backends.NamedTensor {
	shape := []int64{1, int64(n)}
	switch in.DataType {
	case backends.DataTypeInt32:
		data := make([]int32, n)
		for i := range data {
			data[i] = 1
		}
		return backends.NamedTensor{Name: in.Name, Shape: shape, Data: data}
	case backends.DataTypeFloat32:
		data := make([]float32, n)
		for i := range data {
			data[i] = 1
		}
		return backends.NamedTensor{Name: in.Name, Shape: shape, Data: data}
	default:
		data := make([]int64, n)
		for i := range data {
			data[i] = 1
		}
		return backends.NamedTensor{Name: in.Name, Shape: shape, Data: data}
	}
}

// findLogits locates the logits output, preferring an output named
// "logits" and otherwise taking the first rank-3 float output.
func findLogits(outputs []backends.NamedTensor) (backends.NamedTensor, error) {
	for _, out := range outputs {
		if out.Name == "logits" {
			return out, nil
		}
	}
	for _, out := range outputs {
		if _, ok := out.Data.([]float32); ok && len(out.Shape) == 3 {
			return out, nil
		}
	}
	return backends.NamedTensor{}, fmt.Errorf("decoder outputs contain no logits tensor")
}

// argmaxLast greedily selects the highest-scoring token at the last
// position, skipping banned (-1 disables banning).
func argmaxLast(logits backends.NamedTensor, banned int) (int, error) {
	data, err := logits.Floats()
	if err != nil {
		return 0, fmt.Errorf("decoder logits: %w", err)
	}
	if len(logits.Shape) != 3 {
		return 0, fmt.Errorf("decoder logits have shape %v, want rank 3", logits.Shape)
	}
	vocab := int(logits.Shape[2])
	if vocab <= 0 || len(data) < vocab {
		return 0, fmt.Errorf("decoder logits too small: %d values for vocab %d", len(data), vocab)
	}
	last := data[len(data)-vocab:]
	best := -1
	bestVal := math.Inf(-1)
	for i, v := range last {
		if i == banned {
			continue
		}
		if float64(v) > bestVal {
			bestVal = float64(v)
			best = i
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("argmax found no candidate token")
	}
	return best, nil
}

// repeatedWindow returns the smallest window size w in [2, 8] for which the
// last three w-sized blocks of generated are identical, or 0 when no such
// loop exists.
func repeatedWindow(generated []int) int {
	n := len(generated)
	for w := repeatMinWindow; w <= repeatMaxWindow; w++ {
		if n < 3*w {
			continue
		}
		if blocksEqual(generated, n-w, n-2*w, w) && blocksEqual(generated, n-2*w, n-3*w, w) {
			return w
		}
	}
	return 0
}

func blocksEqual(s []int, a, b, w int) bool {
	for i := 0; i < w; i++ {
		if s[a+i] != s[b+i] {
			return false
		}
	}
	return true
}
