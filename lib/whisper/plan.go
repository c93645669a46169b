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
	"fmt"
	"strings"

	"github.com/antflydb/murmur/lib/backends"
)

// InputKind classifies a decoder input by role. The plan is built once at
// load time from the graph's declared input names, so the per-step feeding
// code is a switch over kinds instead of repeated string matching.
type InputKind int

const (
	// InputPromptTokens is the token id sequence (input_ids or
	// decoder_input_ids).
	InputPromptTokens InputKind = iota
	// InputEncoderState is the encoder hidden state tensor.
	InputEncoderState
	// InputCacheSlot is a past_key_values.* self- or cross-attention slot.
	InputCacheSlot
	// InputUseCacheFlag is the use_cache_branch boolean on merged decoders.
	InputUseCacheFlag
	// InputGenericMask is any other declared input; it is fed a tensor of
	// ones sized to the sequence or encoder length.
	InputGenericMask
)

func (k InputKind) String() string {
	switch k {
	case InputPromptTokens:
		return "prompt_tokens"
	case InputEncoderState:
		return "encoder_state"
	case InputCacheSlot:
		return "cache_slot"
	case InputUseCacheFlag:
		return "use_cache_flag"
	case InputGenericMask:
		return "generic_mask"
	default:
		return fmt.Sprintf("InputKind(%d)", int(k))
	}
}

// PlannedInput is one decoder input with its resolved role.
type PlannedInput struct {
	Name     string
	Kind     InputKind
	DataType backends.DataType

	// Shape is the graph's declared shape, -1 for dynamic dimensions.
	// nil when the graph declares none.
	Shape []int64

	// PresentName is the matching present.* output carrying this slot's
	// updated cache tensor. Set only for InputCacheSlot.
	PresentName string

	// EncoderSized marks cache slots and masks whose sequence dimension
	// follows the encoder output rather than the decoded tokens.
	EncoderSized bool
}

// DecoderPlan is the fixed feeding plan for a decoder graph.
type DecoderPlan struct {
	Inputs     []PlannedInput
	CacheSlots int
	HasPrompt  bool
}

// PlanDecoderInputs classifies every declared decoder input. Unrecognized
// names degrade to InputGenericMask rather than failing the load; a graph
// without a token input is rejected since nothing could be decoded.
func PlanDecoderInputs(inputs []backends.TensorInfo) (*DecoderPlan, error) {
	plan := &DecoderPlan{Inputs: make([]PlannedInput, 0, len(inputs))}
	for _, info := range inputs {
		pi := PlannedInput{
			Name:     info.Name,
			DataType: info.DataType,
			Shape:    info.Shape,
		}
		switch {
		case info.Name == "input_ids" || info.Name == "decoder_input_ids":
			pi.Kind = InputPromptTokens
			plan.HasPrompt = true
		case info.Name == "encoder_hidden_states" || info.Name == "encoder_outputs":
			pi.Kind = InputEncoderState
		case strings.HasPrefix(info.Name, "past_key_values"):
			pi.Kind = InputCacheSlot
			pi.PresentName = presentNameFor(info.Name)
			pi.EncoderSized = strings.Contains(info.Name, "encoder")
			plan.CacheSlots++
		case info.Name == "use_cache_branch":
			pi.Kind = InputUseCacheFlag
		default:
			pi.Kind = InputGenericMask
			pi.EncoderSized = strings.Contains(info.Name, "encoder")
		}
		plan.Inputs = append(plan.Inputs, pi)
	}
	if !plan.HasPrompt {
		return nil, fmt.Errorf("decoder graph declares no token input (inputs: %s)", inputNames(inputs))
	}
	return plan, nil
}

// presentNameFor maps a past_key_values input name to the present output
// that refreshes it, e.g. past_key_values.0.decoder.key ->
// present.0.decoder.key.
func presentNameFor(past string) string {
	return "present" + strings.TrimPrefix(past, "past_key_values")
}

// Validate checks declared ranks against what the feeding code will build.
// It runs once per decode so a mismatched export fails fast with a clear
// error instead of a backend shape fault mid-generation. Inputs with no
// declared shape are skipped.
func (p *DecoderPlan) Validate() error {
	for _, in := range p.Inputs {
		rank := len(in.Shape)
		if rank == 0 {
			continue
		}
		var want int
		switch in.Kind {
		case InputPromptTokens, InputGenericMask:
			want = 2
		case InputEncoderState:
			want = 3
		case InputCacheSlot:
			want = 4
		case InputUseCacheFlag:
			// Scalar or [1]; either rank is fine.
			if rank > 1 {
				return fmt.Errorf("input %q: expected scalar use_cache flag, graph declares rank %d", in.Name, rank)
			}
			continue
		}
		if rank != want {
			return fmt.Errorf("input %q (%s): expected rank %d, graph declares rank %d",
				in.Name, in.Kind, want, rank)
		}
	}
	return nil
}

func inputNames(infos []backends.TensorInfo) string {
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return strings.Join(names, ", ")
}
