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

// Package whisper loads Whisper-family encoder/decoder ONNX models and runs
// greedy sequence generation over them. The package is backend-agnostic: all
// inference goes through backends.Session, so tests can substitute fake
// sessions and the decoder input wiring adapts to whatever input names the
// exported graph declares.
package whisper

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Config aggregates everything read from a model directory: the model
// architecture, the generation defaults and the preprocessing parameters.
type Config struct {
	ModelPath   string
	EncoderPath string
	DecoderPath string

	// Architecture, used to shape empty cache placeholders.
	NumLayers int
	NumHeads  int
	HeadDim   int

	NMels      int
	MelFilters [][]float32

	Generation GenerationConfig
}

// GenerationConfig carries the decoding defaults exported alongside the
// model. Any field may be absent in a given export; absent integer fields
// are -1 and absent maps are nil.
type GenerationConfig struct {
	DecoderStartTokenID int
	EOSTokenID          int
	NoTimestampsTokenID int
	MaxLength           int

	// TaskToID maps task names ("transcribe", "translate") to token ids.
	TaskToID map[string]int

	// LangToID maps language token literals ("<|en|>") to token ids.
	LangToID map[string]int

	// ForcedDecoderIDs maps decoder positions to forced token ids.
	// Entries whose token was null in the JSON are omitted.
	ForcedDecoderIDs map[int]int
}

// rawModelConfig mirrors the subset of config.json we consume. Whisper
// exports have used several names for the same dimension over time, so we
// accept all of them.
type rawModelConfig struct {
	NumMelBins       int `json:"num_mel_bins"`
	DecoderLayers    int `json:"decoder_layers"`
	DecoderHeads     int `json:"decoder_attention_heads"`
	DModel           int `json:"d_model"`
	DecoderStartToken int `json:"decoder_start_token_id"`
	EOSTokenID       int `json:"eos_token_id"`
	MaxLength        int `json:"max_length"`
}

type rawGenerationConfig struct {
	DecoderStartToken   *int             `json:"decoder_start_token_id"`
	EOSTokenID          *int             `json:"eos_token_id"`
	NoTimestampsTokenID *int             `json:"no_timestamps_token_id"`
	MaxLength           *int             `json:"max_length"`
	TaskToID            map[string]int   `json:"task_to_id"`
	ForcedDecoderIDs    [][2]*int        `json:"forced_decoder_ids"`
	LangToID            map[string]int   `json:"lang_to_id"`
}

type rawPreprocessorConfig struct {
	FeatureSize int           `json:"feature_size"`
	NumMelBins  int           `json:"num_mel_bins"`
	NMels       int           `json:"n_mels"`
	MelFilters  [][]float32   `json:"mel_filters"`
}

// LoadConfig reads config.json, generation_config.json and
// preprocessor_config.json from modelPath and locates the encoder and
// decoder ONNX files. Only config.json and the two ONNX files are required;
// the other files refine defaults when present.
func LoadConfig(modelPath string, logger *zap.Logger) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := &Config{
		ModelPath: modelPath,
		NMels:     80,
		Generation: GenerationConfig{
			DecoderStartTokenID: -1,
			EOSTokenID:          -1,
			NoTimestampsTokenID: -1,
			MaxLength:           -1,
		},
	}

	var raw rawModelConfig
	if err := readJSON(filepath.Join(modelPath, "config.json"), &raw); err != nil {
		return nil, fmt.Errorf("reading model config: %w", err)
	}
	if raw.NumMelBins > 0 {
		cfg.NMels = raw.NumMelBins
	}
	cfg.NumLayers = raw.DecoderLayers
	cfg.NumHeads = raw.DecoderHeads
	if raw.DecoderHeads > 0 && raw.DModel > 0 {
		cfg.HeadDim = raw.DModel / raw.DecoderHeads
	}
	if raw.DecoderStartToken > 0 {
		cfg.Generation.DecoderStartTokenID = raw.DecoderStartToken
	}
	if raw.EOSTokenID > 0 {
		cfg.Generation.EOSTokenID = raw.EOSTokenID
	}
	if raw.MaxLength > 0 {
		cfg.Generation.MaxLength = raw.MaxLength
	}

	var gen rawGenerationConfig
	genPath := filepath.Join(modelPath, "generation_config.json")
	if err := readJSON(genPath, &gen); err == nil {
		applyGenerationConfig(&cfg.Generation, &gen)
	} else if !os.IsNotExist(err) {
		logger.Warn("ignoring unreadable generation config",
			zap.String("path", genPath), zap.Error(err))
	}

	var pre rawPreprocessorConfig
	prePath := filepath.Join(modelPath, "preprocessor_config.json")
	if err := readJSON(prePath, &pre); err == nil {
		switch {
		case pre.NumMelBins > 0:
			cfg.NMels = pre.NumMelBins
		case pre.FeatureSize > 0:
			cfg.NMels = pre.FeatureSize
		case pre.NMels > 0:
			cfg.NMels = pre.NMels
		}
		cfg.MelFilters = pre.MelFilters
	} else if !os.IsNotExist(err) {
		logger.Warn("ignoring unreadable preprocessor config",
			zap.String("path", prePath), zap.Error(err))
	}

	var err error
	cfg.EncoderPath, err = FindONNXFile(modelPath, EncoderCandidates)
	if err != nil {
		return nil, fmt.Errorf("locating encoder model: %w", err)
	}
	cfg.DecoderPath, err = FindONNXFile(modelPath, DecoderCandidates)
	if err != nil {
		return nil, fmt.Errorf("locating decoder model: %w", err)
	}
	logger.Debug("loaded model config",
		zap.String("encoder", cfg.EncoderPath),
		zap.String("decoder", cfg.DecoderPath),
		zap.Int("n_mels", cfg.NMels))
	return cfg, nil
}

func applyGenerationConfig(dst *GenerationConfig, src *rawGenerationConfig) {
	if src.DecoderStartToken != nil {
		dst.DecoderStartTokenID = *src.DecoderStartToken
	}
	if src.EOSTokenID != nil {
		dst.EOSTokenID = *src.EOSTokenID
	}
	if src.NoTimestampsTokenID != nil {
		dst.NoTimestampsTokenID = *src.NoTimestampsTokenID
	}
	if src.MaxLength != nil {
		dst.MaxLength = *src.MaxLength
	}
	if len(src.TaskToID) > 0 {
		dst.TaskToID = src.TaskToID
	}
	if len(src.LangToID) > 0 {
		dst.LangToID = src.LangToID
	}
	if len(src.ForcedDecoderIDs) > 0 {
		dst.ForcedDecoderIDs = make(map[int]int, len(src.ForcedDecoderIDs))
		for _, pair := range src.ForcedDecoderIDs {
			// Exports use null for "model decides"; skip those entries.
			if pair[0] == nil || pair[1] == nil {
				continue
			}
			dst.ForcedDecoderIDs[*pair[0]] = *pair[1]
		}
	}
}

// EncoderCandidates and DecoderCandidates are the ONNX file names Whisper
// exports use, in preference order.
var EncoderCandidates = []string{
	"encoder_model.onnx",
	"encoder_model_quantized.onnx",
	"encoder_model_fp16.onnx",
}

var DecoderCandidates = []string{
	"decoder_model_merged.onnx",
	"decoder_model_merged_quantized.onnx",
	"decoder_model_merged_fp16.onnx",
	"decoder_model.onnx",
}

// FindONNXFile returns the first candidate that exists under dir, checking
// both the directory root and an onnx/ subdirectory as produced by optimum
// exports.
func FindONNXFile(dir string, candidates []string) (string, error) {
	for _, sub := range []string{"", "onnx"} {
		for _, name := range candidates {
			p := filepath.Join(dir, sub, name)
			if st, err := os.Stat(p); err == nil && !st.IsDir() {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("no ONNX file found in %s (tried %v)", dir, candidates)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}
