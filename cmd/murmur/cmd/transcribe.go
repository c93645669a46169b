// Copyright 2026 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/antflydb/murmur/lib/audio"
	"github.com/antflydb/murmur/lib/backends"
	"github.com/antflydb/murmur/lib/transcribing"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <model> <audio.wav>",
	Short: "Transcribe a WAV file to text",
	Long: `Transcribe speech in a WAV file using a local Whisper ONNX model.

The model argument is either a path to a model directory or a name under
the models directory (see murmur pull).

Examples:
  # Transcribe with a pulled model
  murmur transcribe onnx-community/whisper-tiny.en speech.wav

  # Translate German speech to English, streaming chunk by chunk
  murmur transcribe whisper-small speech.wav --language de --translate --stream

  # Shorter chunks with overlap for long recordings
  murmur transcribe whisper-small podcast.wav --chunk-duration 20 --overlap`,
	Args: cobra.ExactArgs(2),
	RunE: runTranscribe,
}

func init() {
	rootCmd.AddCommand(transcribeCmd)

	transcribeCmd.Flags().String("language", "", "source language code (e.g. en, de); default model-dependent")
	transcribeCmd.Flags().Bool("translate", false, "translate to English instead of transcribing")
	transcribeCmd.Flags().Bool("timestamps", false, "keep timestamp tokens in the output")
	transcribeCmd.Flags().Bool("overlap", false, "overlap adjacent chunks to avoid losing boundary words")
	transcribeCmd.Flags().Int("chunk-duration", 0, "chunk length in seconds (default 30)")
	transcribeCmd.Flags().Bool("stream", false, "print each chunk's text as it completes")
	transcribeCmd.Flags().Int("pool", 1, "number of parallel model instances")
	transcribeCmd.Flags().Int("threads", 0, "inference threads per session (0 = auto)")
	transcribeCmd.Flags().Bool("gpu", false, "use a GPU execution provider when available")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	samples, err := loadAudio(args[1])
	if err != nil {
		return err
	}

	factory, err := backends.NewONNXSessionFactory()
	if err != nil {
		return fmt.Errorf("initializing backend: %w", err)
	}

	threads, _ := cmd.Flags().GetInt("threads")
	gpu, _ := cmd.Flags().GetBool("gpu")
	poolSize, _ := cmd.Flags().GetInt("pool")
	pool, err := transcribing.NewPool(&transcribing.PoolConfig{
		ModelPath: resolveModelPath(args[0]),
		Size:      poolSize,
		SessionOptions: []backends.SessionOption{
			backends.WithSessionThreads(threads),
			backends.WithSessionGPU(gpu),
		},
		Logger: logger,
	}, factory)
	if err != nil {
		return err
	}
	defer pool.Close()

	opts := transcribing.Options{}
	opts.Language, _ = cmd.Flags().GetString("language")
	opts.Translate, _ = cmd.Flags().GetBool("translate")
	opts.Timestamps, _ = cmd.Flags().GetBool("timestamps")
	opts.UseOverlap, _ = cmd.Flags().GetBool("overlap")
	opts.ChunkDuration, _ = cmd.Flags().GetInt("chunk-duration")

	if stream, _ := cmd.Flags().GetBool("stream"); stream {
		return pool.TranscribeStream(ctx, samples, opts, func(u transcribing.Update) bool {
			fmt.Println(u.Text)
			return true
		})
	}
	text, err := pool.Transcribe(ctx, samples, opts)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

// loadAudio reads a WAV file and converts it to the mono 16 kHz samples
// the engine expects.
func loadAudio(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading audio file: %w", err)
	}
	buf, err := audio.ReadWAV(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	buf.Rechannel(1)
	buf.Resample(audio.SampleRate)
	return buf.Samples, nil
}
