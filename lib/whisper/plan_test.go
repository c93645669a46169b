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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antflydb/murmur/lib/backends"
)

func mergedDecoderInputs() []backends.TensorInfo {
	return []backends.TensorInfo{
		{Name: "input_ids", Shape: []int64{-1, -1}, DataType: backends.DataTypeInt64},
		{Name: "encoder_hidden_states", Shape: []int64{-1, 1500, 384}, DataType: backends.DataTypeFloat32},
		{Name: "use_cache_branch", Shape: []int64{1}, DataType: backends.DataTypeBool},
		{Name: "past_key_values.0.decoder.key", Shape: []int64{-1, 6, -1, 64}, DataType: backends.DataTypeFloat32},
		{Name: "past_key_values.0.decoder.value", Shape: []int64{-1, 6, -1, 64}, DataType: backends.DataTypeFloat32},
		{Name: "past_key_values.0.encoder.key", Shape: []int64{-1, 6, -1, 64}, DataType: backends.DataTypeFloat32},
		{Name: "past_key_values.0.encoder.value", Shape: []int64{-1, 6, -1, 64}, DataType: backends.DataTypeFloat32},
	}
}

func TestPlanDecoderInputsClassification(t *testing.T) {
	plan, err := PlanDecoderInputs(mergedDecoderInputs())
	require.NoError(t, err)
	require.Len(t, plan.Inputs, 7)
	assert.Equal(t, 4, plan.CacheSlots)
	assert.True(t, plan.HasPrompt)

	byName := make(map[string]PlannedInput)
	for _, in := range plan.Inputs {
		byName[in.Name] = in
	}

	assert.Equal(t, InputPromptTokens, byName["input_ids"].Kind)
	assert.Equal(t, InputEncoderState, byName["encoder_hidden_states"].Kind)
	assert.Equal(t, InputUseCacheFlag, byName["use_cache_branch"].Kind)

	selfKey := byName["past_key_values.0.decoder.key"]
	assert.Equal(t, InputCacheSlot, selfKey.Kind)
	assert.Equal(t, "present.0.decoder.key", selfKey.PresentName)
	assert.False(t, selfKey.EncoderSized)

	crossKey := byName["past_key_values.0.encoder.key"]
	assert.Equal(t, InputCacheSlot, crossKey.Kind)
	assert.Equal(t, "present.0.encoder.key", crossKey.PresentName)
	assert.True(t, crossKey.EncoderSized)
}

func TestPlanDecoderInputsMaskFallback(t *testing.T) {
	plan, err := PlanDecoderInputs([]backends.TensorInfo{
		{Name: "decoder_input_ids", Shape: []int64{-1, -1}, DataType: backends.DataTypeInt64},
		{Name: "attention_mask", Shape: []int64{-1, -1}, DataType: backends.DataTypeInt64},
		{Name: "encoder_attention_mask", Shape: []int64{-1, -1}, DataType: backends.DataTypeInt64},
	})
	require.NoError(t, err)

	byName := make(map[string]PlannedInput)
	for _, in := range plan.Inputs {
		byName[in.Name] = in
	}
	assert.Equal(t, InputPromptTokens, byName["decoder_input_ids"].Kind)
	assert.Equal(t, InputGenericMask, byName["attention_mask"].Kind)
	assert.False(t, byName["attention_mask"].EncoderSized)
	assert.Equal(t, InputGenericMask, byName["encoder_attention_mask"].Kind)
	assert.True(t, byName["encoder_attention_mask"].EncoderSized)
}

func TestPlanDecoderInputsRequiresTokenInput(t *testing.T) {
	_, err := PlanDecoderInputs([]backends.TensorInfo{
		{Name: "encoder_hidden_states", Shape: []int64{-1, 1500, 384}},
	})
	assert.Error(t, err)
}

func TestPlanValidate(t *testing.T) {
	tests := []struct {
		name    string
		inputs  []backends.TensorInfo
		wantErr bool
	}{
		{
			name:   "well formed merged decoder",
			inputs: mergedDecoderInputs(),
		},
		{
			name: "cache slot with wrong rank",
			inputs: []backends.TensorInfo{
				{Name: "input_ids", Shape: []int64{-1, -1}, DataType: backends.DataTypeInt64},
				{Name: "past_key_values.0.decoder.key", Shape: []int64{-1, 6, 64}},
			},
			wantErr: true,
		},
		{
			name: "token input with wrong rank",
			inputs: []backends.TensorInfo{
				{Name: "input_ids", Shape: []int64{-1}, DataType: backends.DataTypeInt64},
			},
			wantErr: true,
		},
		{
			name: "undeclared shapes are skipped",
			inputs: []backends.TensorInfo{
				{Name: "input_ids", DataType: backends.DataTypeInt64},
				{Name: "past_key_values.0.decoder.key"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := PlanDecoderInputs(tt.inputs)
			require.NoError(t, err)
			err = plan.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPresentNameMapping(t *testing.T) {
	assert.Equal(t, "present.3.encoder.value", presentNameFor("past_key_values.3.encoder.value"))
	assert.Equal(t, "present.0.decoder.key", presentNameFor("past_key_values.0.decoder.key"))
}
