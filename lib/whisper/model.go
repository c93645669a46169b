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
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/antflydb/murmur/lib/audio"
	"github.com/antflydb/murmur/lib/backends"
	"github.com/antflydb/murmur/lib/tokenizer"
)

// Model bundles the encoder and decoder sessions with the loaded
// configuration, tokenizer and decoder feeding plan. A Model is safe for
// concurrent use as long as the underlying sessions are; all per-call
// decoding state is local to Decode.
type Model struct {
	cfg       *Config
	tokenizer *tokenizer.Tokenizer
	encoder   backends.Session
	decoder   backends.Session
	plan      *DecoderPlan
	prompts   *PromptBuilder
	logger    *zap.Logger

	encoderInputName string
}

// EncoderState is one chunk's encoder output, copied out of the backend's
// buffers so it survives subsequent Run calls.
type EncoderState struct {
	Hidden []float32
	Shape  []int64 // [1, frames, hidden]
}

// Frames returns the encoder sequence length.
func (s *EncoderState) Frames() int64 {
	if len(s.Shape) >= 2 {
		return s.Shape[1]
	}
	return 0
}

// LoadModel loads every artifact of a model directory: configuration,
// tokenizer, and both ONNX sessions, then plans the decoder inputs.
func LoadModel(modelPath string, factory backends.SessionFactory, logger *zap.Logger, opts ...backends.SessionOption) (*Model, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := LoadConfig(modelPath, logger)
	if err != nil {
		return nil, err
	}
	tok, err := tokenizer.Load(filepath.Join(modelPath, "tokenizer.json"), logger)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer: %w", err)
	}
	encoder, err := factory.CreateSession(cfg.EncoderPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating encoder session: %w", err)
	}
	decoder, err := factory.CreateSession(cfg.DecoderPath, opts...)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("creating decoder session: %w", err)
	}
	m, err := NewModel(cfg, tok, encoder, decoder, logger)
	if err != nil {
		encoder.Close()
		decoder.Close()
		return nil, err
	}
	logger.Info("loaded whisper model",
		zap.String("path", modelPath),
		zap.String("backend", factory.Name()),
		zap.Int("decoder_inputs", len(m.plan.Inputs)),
		zap.Int("cache_slots", m.plan.CacheSlots))
	return m, nil
}

// NewModel assembles a model from already-created sessions. Tests use this
// with fake sessions.
func NewModel(cfg *Config, tok *tokenizer.Tokenizer, encoder, decoder backends.Session, logger *zap.Logger) (*Model, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	plan, err := PlanDecoderInputs(decoder.InputInfo())
	if err != nil {
		return nil, fmt.Errorf("planning decoder inputs: %w", err)
	}
	m := &Model{
		cfg:              cfg,
		tokenizer:        tok,
		encoder:          encoder,
		decoder:          decoder,
		plan:             plan,
		prompts:          NewPromptBuilder(&cfg.Generation, tok, logger),
		logger:           logger,
		encoderInputName: "input_features",
	}
	if infos := encoder.InputInfo(); len(infos) > 0 {
		m.encoderInputName = infos[0].Name
	}
	return m, nil
}

// Config returns the loaded model configuration.
func (m *Model) Config() *Config { return m.cfg }

// Tokenizer returns the model's tokenizer.
func (m *Model) Tokenizer() *tokenizer.Tokenizer { return m.tokenizer }

// Prompts returns the model's prompt builder.
func (m *Model) Prompts() *PromptBuilder { return m.prompts }

// Encode runs the encoder over one chunk's mel features and copies the
// hidden state out of the backend's buffers.
func (m *Model) Encode(features *audio.Features) (*EncoderState, error) {
	outputs, err := m.encoder.Run([]backends.NamedTensor{{
		Name:  m.encoderInputName,
		Shape: features.Shape(),
		Data:  features.Data,
	}})
	if err != nil {
		return nil, fmt.Errorf("encoder inference: %w", err)
	}
	if len(outputs) == 0 {
		return nil, errors.New("encoder produced no outputs")
	}
	hidden := outputs[0].Clone()
	data, err := hidden.Floats()
	if err != nil {
		return nil, fmt.Errorf("encoder output: %w", err)
	}
	if len(hidden.Shape) != 3 {
		return nil, fmt.Errorf("encoder output has shape %v, want rank 3", hidden.Shape)
	}
	return &EncoderState{Hidden: data, Shape: hidden.Shape}, nil
}

// Close releases both sessions.
func (m *Model) Close() error {
	var errs []error
	if err := m.encoder.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := m.decoder.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
