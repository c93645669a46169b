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

package transcribing

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/antflydb/murmur/lib/backends"
	"github.com/antflydb/murmur/lib/whisper"
)

// Pool runs several transcribers over independent model sessions so
// transcription calls for different audio inputs proceed in parallel.
// Each call acquires a slot via semaphore and picks a transcriber
// round-robin.
type Pool struct {
	transcribers []*Transcriber
	sem          *semaphore.Weighted
	next         atomic.Uint64
	logger       *zap.Logger
	size         int
}

// PoolConfig holds configuration for creating a Pool.
type PoolConfig struct {
	// ModelPath is the local model directory.
	ModelPath string

	// Size is the number of concurrent transcribers (0 = auto-detect
	// from CPU count, capped at 4).
	Size int

	// SessionOptions are passed through to the backend.
	SessionOptions []backends.SessionOption

	// Logger for logging. If nil, uses a no-op logger.
	Logger *zap.Logger
}

// NewPool loads Size independent copies of the model through factory.
func NewPool(cfg *PoolConfig, factory backends.SessionFactory) (*Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.Size
	if size <= 0 {
		size = min(runtime.NumCPU(), 4)
	}

	transcribers := make([]*Transcriber, size)
	for i := 0; i < size; i++ {
		model, err := whisper.LoadModel(cfg.ModelPath, factory, logger, cfg.SessionOptions...)
		if err != nil {
			for j := 0; j < i; j++ {
				_ = transcribers[j].Close()
			}
			return nil, fmt.Errorf("loading model %d: %w", i, err)
		}
		t, err := NewTranscriber(model, logger)
		if err != nil {
			model.Close()
			for j := 0; j < i; j++ {
				_ = transcribers[j].Close()
			}
			return nil, fmt.Errorf("creating transcriber %d: %w", i, err)
		}
		transcribers[i] = t
	}

	logger.Info("created transcriber pool",
		zap.Int("size", size),
		zap.String("backend", factory.Name()),
		zap.String("model", cfg.ModelPath))
	return &Pool{
		transcribers: transcribers,
		sem:          semaphore.NewWeighted(int64(size)),
		logger:       logger,
		size:         size,
	}, nil
}

// Transcribe acquires a slot and runs a batch transcription.
func (p *Pool) Transcribe(ctx context.Context, samples []float32, opts Options) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquiring transcriber slot: %w", err)
	}
	defer p.sem.Release(1)
	return p.pick().Transcribe(ctx, samples, opts)
}

// TranscribeStream acquires a slot and runs a streaming transcription.
func (p *Pool) TranscribeStream(ctx context.Context, samples []float32, opts Options, emit func(Update) bool) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquiring transcriber slot: %w", err)
	}
	defer p.sem.Release(1)
	return p.pick().TranscribeStream(ctx, samples, opts, emit)
}

func (p *Pool) pick() *Transcriber {
	idx := p.next.Add(1) - 1
	return p.transcribers[idx%uint64(p.size)]
}

// Close releases every transcriber in the pool.
func (p *Pool) Close() error {
	var errs []error
	for i, t := range p.transcribers {
		if err := t.Close(); err != nil {
			p.logger.Warn("error closing transcriber",
				zap.Int("index", i), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
