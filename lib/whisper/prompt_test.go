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

	"github.com/antflydb/murmur/lib/tokenizer"
)

func emptyGeneration() *GenerationConfig {
	return &GenerationConfig{
		DecoderStartTokenID: -1,
		EOSTokenID:          -1,
		NoTimestampsTokenID: -1,
		MaxLength:           -1,
	}
}

func TestPromptHardcodedFallbacks(t *testing.T) {
	// Nothing configured, nothing in the vocabulary: every token comes
	// from the hardcoded multilingual table.
	b := NewPromptBuilder(emptyGeneration(), tokenizer.New(map[string]int{}, nil), nil)

	prompt := b.Build(PromptOptions{})
	assert.Equal(t, []int{fallbackSOT, fallbackEnglish, fallbackTranscribe, fallbackNoTimestamps}, prompt)

	prompt = b.Build(PromptOptions{Translate: true, Timestamps: true})
	assert.Equal(t, []int{fallbackSOT, fallbackEnglish, fallbackTranslate}, prompt)
}

func TestPromptVocabularyLookup(t *testing.T) {
	tok := tokenizer.New(map[string]int{}, []tokenizer.AddedToken{
		{ID: 101, Content: "<|startoftranscript|>"},
		{ID: 102, Content: "<|endoftext|>"},
		{ID: 103, Content: "<|de|>"},
		{ID: 104, Content: "<|transcribe|>"},
		{ID: 105, Content: "<|notimestamps|>"},
	})
	b := NewPromptBuilder(emptyGeneration(), tok, nil)

	assert.Equal(t, 101, b.SOT())
	assert.Equal(t, 102, b.EOT())
	assert.Equal(t, []int{101, 103, 104, 105}, b.Build(PromptOptions{Language: "de"}))
}

func TestPromptConfiguredIDsWinOverVocabulary(t *testing.T) {
	tok := tokenizer.New(map[string]int{}, []tokenizer.AddedToken{
		{ID: 104, Content: "<|transcribe|>"},
		{ID: 105, Content: "<|notimestamps|>"},
		{ID: 106, Content: "<|en|>"},
	})
	gen := emptyGeneration()
	gen.TaskToID = map[string]int{"transcribe": 900, "translate": 901}
	gen.NoTimestampsTokenID = 902
	gen.ForcedDecoderIDs = map[int]int{forcedPosLanguage: 903}

	b := NewPromptBuilder(gen, tok, nil)
	prompt := b.Build(PromptOptions{})
	assert.Equal(t, []int{fallbackSOT, 903, 900, 902}, prompt)

	prompt = b.Build(PromptOptions{Translate: true})
	assert.Equal(t, 901, prompt[2])
}

func TestPromptForcedTableBeatsVocabularyForTask(t *testing.T) {
	tok := tokenizer.New(map[string]int{}, []tokenizer.AddedToken{
		{ID: 104, Content: "<|transcribe|>"},
	})
	gen := emptyGeneration()
	gen.ForcedDecoderIDs = map[int]int{forcedPosTask: 910, forcedPosNoTimestamps: 911}

	b := NewPromptBuilder(gen, tok, nil)
	prompt := b.Build(PromptOptions{})
	assert.Equal(t, 910, prompt[2])
	assert.Equal(t, 911, prompt[3])
}

func TestPromptUnknownLanguageFallsBack(t *testing.T) {
	tok := tokenizer.New(map[string]int{}, []tokenizer.AddedToken{
		{ID: 106, Content: "<|en|>"},
	})
	b := NewPromptBuilder(emptyGeneration(), tok, nil)

	// Unknown language code falls back to English from the vocabulary.
	prompt := b.Build(PromptOptions{Language: "zz"})
	assert.Equal(t, 106, prompt[1])
}

func TestPromptLangToIDMap(t *testing.T) {
	gen := emptyGeneration()
	gen.LangToID = map[string]int{"<|fr|>": 777}
	b := NewPromptBuilder(gen, tokenizer.New(map[string]int{}, nil), nil)

	prompt := b.Build(PromptOptions{Language: "fr"})
	assert.Equal(t, 777, prompt[1])
}

func TestPromptConfiguredStartAndEnd(t *testing.T) {
	gen := emptyGeneration()
	gen.DecoderStartTokenID = 42
	gen.EOSTokenID = 43
	b := NewPromptBuilder(gen, tokenizer.New(map[string]int{}, nil), nil)

	assert.Equal(t, 42, b.SOT())
	assert.Equal(t, 43, b.EOT())
}
