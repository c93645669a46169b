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

// Package transcribing turns PCM audio into text by driving the whisper
// engine chunk by chunk. It owns the public transcription surface:
// batch and streaming calls, progress reporting, pooling and result
// caching.
package transcribing

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/antflydb/murmur/lib/audio"
	"github.com/antflydb/murmur/lib/whisper"
)

// Options configures one transcription call.
type Options struct {
	// Language is an ISO 639-1 code; empty uses the model default.
	Language string

	// Translate requests translation to English.
	Translate bool

	// Timestamps requests timestamp tokens in the output.
	Timestamps bool

	// UseOverlap overlaps adjacent chunks by up to two seconds so words
	// spanning a chunk boundary are not lost.
	UseOverlap bool

	// ChunkDuration is the chunk length in seconds (default and maximum
	// 30; shorter values trade throughput for latency).
	ChunkDuration int
}

func (o Options) withDefaults() Options {
	if o.ChunkDuration <= 0 {
		o.ChunkDuration = audio.WindowSeconds
	}
	return o
}

// Update is one streamed increment: the text of a completed chunk. The
// stream is append-only and may end early on cancellation without a
// trailing marker.
type Update struct {
	ChunkIndex int
	Text       string
}

// Transcriber runs a whisper model over audio. Samples must be mono
// 16 kHz; use audio.Buffer's Resample and Rechannel first if they are
// not. A Transcriber is safe for concurrent use if the model's backend
// sessions are; each call keeps its own decode state.
type Transcriber struct {
	model     *whisper.Model
	extractor *audio.FeatureExtractor
	logger    *zap.Logger

	// progress holds the last reported fraction of the most recent call,
	// nil outside of any call.
	progress atomic.Pointer[float64]

	diagMu      sync.Mutex
	diagnostics []string
}

// NewTranscriber builds the feature extraction pipeline for the model's
// mel configuration.
func NewTranscriber(model *whisper.Model, logger *zap.Logger) (*Transcriber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := model.Config()
	filterbanks := audio.NewFilterbankProvider(cfg.MelFilters, logger)
	filters, err := filterbanks.Get(cfg.NMels)
	if err != nil {
		return nil, err
	}
	extractor, err := audio.NewFeatureExtractor(cfg.NMels, filters)
	if err != nil {
		return nil, err
	}
	return &Transcriber{
		model:     model,
		extractor: extractor,
		logger:    logger,
	}, nil
}

// Transcribe converts samples to text, joining chunk texts with newlines.
// It returns an error only on cancellation; chunk-level failures degrade
// to empty text for that chunk and are recorded as diagnostics.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32, opts Options) (string, error) {
	var parts []string
	err := t.TranscribeStream(ctx, samples, opts, func(u Update) bool {
		parts = append(parts, u.Text)
		return true
	})
	if err != nil {
		return "", err
	}
	return strings.Join(parts, "\n"), nil
}

// TranscribeStream delivers one Update per completed chunk. Returning
// false from emit stops the stream. Cancellation is honored at chunk
// boundaries and within each chunk's decode loop; partial text of the
// chunk in flight is discarded.
func (t *Transcriber) TranscribeStream(ctx context.Context, samples []float32, opts Options, emit func(Update) bool) error {
	opts = opts.withDefaults()
	t.clearDiagnostics()

	chunker := audio.NewChunker(len(samples), opts.ChunkDuration, opts.UseOverlap)
	total := chunker.NumChunks()
	if total == 0 {
		return nil
	}

	t.setProgress(0)
	defer t.progress.Store(nil)

	prompt := t.model.Prompts().Build(whisper.PromptOptions{
		Language:   opts.Language,
		Translate:  opts.Translate,
		Timestamps: opts.Timestamps,
	})
	t.logger.Debug("starting transcription",
		zap.Int("samples", len(samples)),
		zap.Int("chunks", total),
		zap.Int("stride", chunker.Stride()))

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		text, err := t.transcribeChunk(ctx, chunker.Chunk(i, samples), prompt, opts)
		if err != nil {
			return err
		}
		observeChunk(time.Since(start))
		t.setProgress(float64(i+1) / float64(total))
		if !emit(Update{ChunkIndex: i, Text: text}) {
			return nil
		}
	}
	transcriptionsCompleted.Inc()
	return nil
}

// transcribeChunk runs extract, encode and decode for one chunk. Every
// failure other than cancellation is converted to empty text plus a
// diagnostic so later chunks still run.
func (t *Transcriber) transcribeChunk(ctx context.Context, chunk []float32, prompt []int, opts Options) (string, error) {
	feats, err := t.extractor.Extract(chunk)
	if err != nil {
		t.recordDiagnostic("feature extraction", err)
		return "", nil
	}
	enc, err := t.model.Encode(feats)
	if err != nil {
		t.recordDiagnostic("encoder", err)
		return "", nil
	}
	res, err := t.model.Decode(ctx, enc, prompt, whisper.DecodeOptions{ChunkDuration: opts.ChunkDuration})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		t.recordDiagnostic("decoder", err)
		return "", nil
	}
	chunkStops.WithLabelValues(string(res.StopReason)).Inc()
	return strings.TrimSpace(t.model.Tokenizer().Decode(res.Tokens)), nil
}

// Progress reports the fraction of chunks completed by the most recent
// call, and false outside of any call.
func (t *Transcriber) Progress() (float64, bool) {
	p := t.progress.Load()
	if p == nil {
		return 0, false
	}
	return *p, true
}

func (t *Transcriber) setProgress(f float64) {
	t.progress.Store(&f)
}

// LastDiagnostics returns the non-fatal failures recorded by the most
// recent call.
func (t *Transcriber) LastDiagnostics() []string {
	t.diagMu.Lock()
	defer t.diagMu.Unlock()
	out := make([]string, len(t.diagnostics))
	copy(out, t.diagnostics)
	return out
}

func (t *Transcriber) recordDiagnostic(stage string, err error) {
	chunkFailures.WithLabelValues(stage).Inc()
	t.logger.Warn("chunk degraded to empty text",
		zap.String("stage", stage), zap.Error(err))
	t.diagMu.Lock()
	t.diagnostics = append(t.diagnostics, stage+": "+err.Error())
	t.diagMu.Unlock()
}

func (t *Transcriber) clearDiagnostics() {
	t.diagMu.Lock()
	t.diagnostics = t.diagnostics[:0]
	t.diagMu.Unlock()
}

// Close releases the underlying model.
func (t *Transcriber) Close() error {
	return t.model.Close()
}
