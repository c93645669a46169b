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

	"github.com/antflydb/murmur/lib/tokenizer"
	"go.uber.org/zap"
)

// Hardcoded token ids for the multilingual Whisper vocabulary, used as the
// final fallback when neither the generation config nor the tokenizer
// resolves a token.
const (
	fallbackSOT          = 50258
	fallbackEOT          = 50257
	fallbackTranslate    = 50358
	fallbackTranscribe   = 50359
	fallbackNoTimestamps = 50363
	fallbackEnglish      = 50259
)

// Forced decoder id positions conventionally used by Whisper exports:
// position 1 is the language token, 2 the task, 3 the timestamp mode.
const (
	forcedPosLanguage     = 1
	forcedPosTask         = 2
	forcedPosNoTimestamps = 3
)

// PromptOptions selects what the model is asked to do with a chunk.
type PromptOptions struct {
	// Language is an ISO 639-1 code such as "en" or "de". Empty means the
	// configured default, falling back to English.
	Language string
	// Translate requests translation to English instead of transcription.
	Translate bool
	// Timestamps requests timestamp tokens; when false the notimestamps
	// token is appended to the prompt.
	Timestamps bool
}

// PromptBuilder resolves special tokens against the generation config and
// tokenizer once and assembles decoder prompts. Token resolution prefers,
// in order: explicit generation config maps, the forced decoder id table,
// a tokenizer vocabulary lookup of the literal piece, and finally the
// hardcoded multilingual ids.
type PromptBuilder struct {
	gen    *GenerationConfig
	tok    *tokenizer.Tokenizer
	logger *zap.Logger

	sot int
	eot int
}

// NewPromptBuilder resolves the start and end of transcript tokens up
// front; per-call tokens (language, task) are resolved in Build.
func NewPromptBuilder(gen *GenerationConfig, tok *tokenizer.Tokenizer, logger *zap.Logger) *PromptBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &PromptBuilder{gen: gen, tok: tok, logger: logger}
	b.sot = b.resolveConfigured(gen.DecoderStartTokenID, "<|startoftranscript|>", fallbackSOT)
	b.eot = b.resolveConfigured(gen.EOSTokenID, "<|endoftext|>", fallbackEOT)
	return b
}

// SOT returns the start of transcript token id.
func (b *PromptBuilder) SOT() int { return b.sot }

// EOT returns the end of text token id.
func (b *PromptBuilder) EOT() int { return b.eot }

// Build assembles the decoder prompt: SOT, language, task, and the
// notimestamps token unless timestamps were requested.
func (b *PromptBuilder) Build(opts PromptOptions) []int {
	prompt := []int{b.sot, b.languageToken(opts.Language), b.taskToken(opts.Translate)}
	if !opts.Timestamps {
		prompt = append(prompt, b.noTimestampsToken())
	}
	return prompt
}

func (b *PromptBuilder) languageToken(lang string) int {
	if lang != "" {
		piece := fmt.Sprintf("<|%s|>", lang)
		if id, ok := b.gen.LangToID[piece]; ok {
			return id
		}
		if id, ok := b.tok.TokenID(piece); ok {
			return id
		}
		b.logger.Warn("unknown language, falling back to default",
			zap.String("language", lang))
	}
	if id, ok := b.gen.ForcedDecoderIDs[forcedPosLanguage]; ok {
		return id
	}
	if id, ok := b.tok.TokenID("<|en|>"); ok {
		return id
	}
	return fallbackEnglish
}

func (b *PromptBuilder) taskToken(translate bool) int {
	name, piece, fallback := "transcribe", "<|transcribe|>", fallbackTranscribe
	if translate {
		name, piece, fallback = "translate", "<|translate|>", fallbackTranslate
	}
	if id, ok := b.gen.TaskToID[name]; ok {
		return id
	}
	if id, ok := b.gen.ForcedDecoderIDs[forcedPosTask]; ok {
		return id
	}
	if id, ok := b.tok.TokenID(piece); ok {
		return id
	}
	return fallback
}

func (b *PromptBuilder) noTimestampsToken() int {
	if b.gen.NoTimestampsTokenID >= 0 {
		return b.gen.NoTimestampsTokenID
	}
	if id, ok := b.gen.ForcedDecoderIDs[forcedPosNoTimestamps]; ok {
		return id
	}
	if id, ok := b.tok.TokenID("<|notimestamps|>"); ok {
		return id
	}
	return fallbackNoTimestamps
}

// resolveConfigured picks a configured id when set, otherwise a vocabulary
// lookup of piece, otherwise the hardcoded fallback.
func (b *PromptBuilder) resolveConfigured(configured int, piece string, fallback int) int {
	if configured >= 0 {
		return configured
	}
	if id, ok := b.tok.TokenID(piece); ok {
		return id
	}
	return fallback
}
