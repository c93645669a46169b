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

// Package tokenizer reconstructs text from Whisper token ids. The
// vocabulary is a bidirectional id/piece mapping loaded from the model's
// tokenizer document; pieces are byte-level encoded, and special control
// tokens use a literal <|...|> bracket pattern.
package tokenizer

import (
	"fmt"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// AddedToken is one entry of the tokenizer document's added/special token
// list, merged into the vocabulary on load.
type AddedToken struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
}

// Tokenizer is a bidirectional mapping between token ids and opaque string
// pieces. Read-only after construction and safe for concurrent use.
type Tokenizer struct {
	vocab  map[string]int
	pieces map[int]string
}

// New builds a tokenizer from a vocabulary and added tokens. Added tokens
// win conflicts with the base vocabulary.
func New(vocab map[string]int, added []AddedToken) *Tokenizer {
	t := &Tokenizer{
		vocab:  make(map[string]int, len(vocab)+len(added)),
		pieces: make(map[int]string, len(vocab)+len(added)),
	}
	for piece, id := range vocab {
		t.vocab[piece] = id
		t.pieces[id] = piece
	}
	for _, a := range added {
		t.vocab[a.Content] = a.ID
		t.pieces[a.ID] = a.Content
	}
	return t
}

// tokenizerDocument covers both the HuggingFace tokenizer.json layout
// (vocab nested under "model") and the flat vocab.json layout.
type tokenizerDocument struct {
	Vocab map[string]int `json:"vocab"`
	Model struct {
		Vocab map[string]int `json:"vocab"`
	} `json:"model"`
	AddedTokens []AddedToken `json:"added_tokens"`
}

// Load reads a tokenizer document from disk and merges its added tokens
// into the vocabulary.
func Load(path string, logger *zap.Logger) (*Tokenizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tokenizer document: %w", err)
	}

	var doc tokenizerDocument
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing tokenizer document: %w", err)
	}

	vocab := doc.Vocab
	if len(vocab) == 0 {
		vocab = doc.Model.Vocab
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("tokenizer document %s has no vocabulary", path)
	}

	logger.Debug("Loaded tokenizer vocabulary",
		zap.String("path", path),
		zap.Int("vocab_size", len(vocab)),
		zap.Int("added_tokens", len(doc.AddedTokens)))

	return New(vocab, doc.AddedTokens), nil
}

// TokenID resolves a literal piece to its id.
func (t *Tokenizer) TokenID(piece string) (int, bool) {
	id, ok := t.vocab[piece]
	return id, ok
}

// Piece returns the string piece for a token id.
func (t *Tokenizer) Piece(id int) (string, bool) {
	piece, ok := t.pieces[id]
	return piece, ok
}

// VocabSize returns the number of distinct token ids.
func (t *Tokenizer) VocabSize() int {
	return len(t.pieces)
}

// IsSpecial reports whether a piece is a control token like <|en|> or
// <|endoftext|>.
func IsSpecial(piece string) bool {
	return strings.HasPrefix(piece, "<|") && strings.HasSuffix(piece, "|>")
}

// Decode reconstructs UTF-8 text from token ids. Special tokens are
// dropped; remaining pieces are concatenated and passed through the
// byte-level table so multi-byte characters split across pieces reassemble
// correctly. Unknown ids are skipped.
func (t *Tokenizer) Decode(ids []int) string {
	var sb strings.Builder
	for _, id := range ids {
		piece, ok := t.pieces[id]
		if !ok || IsSpecial(piece) {
			continue
		}
		sb.WriteString(piece)
	}
	return DecodeBytes(sb.String())
}
