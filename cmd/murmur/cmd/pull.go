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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/antflydb/murmur/lib/whisper"
)

var pullCmd = &cobra.Command{
	Use:   "pull <repo-id> [repo-id...]",
	Short: "Pull Whisper ONNX model(s) from HuggingFace",
	Long: `Download one or more Whisper ONNX exports from HuggingFace Hub.

Models are stored under <models-dir>/<owner>/<name>/ with any onnx/
subdirectory flattened.

Variants:
  (none)     - full precision export (default)
  quantized  - INT8 quantized export
  fp16       - half precision export

Examples:
  # Pull the tiny English model
  murmur pull onnx-community/whisper-tiny.en

  # Pull the quantized variant of a multilingual model
  murmur pull --variant quantized onnx-community/whisper-small

  # Pull a gated model
  murmur pull --hf-token $HF_TOKEN my-org/private-whisper`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)

	pullCmd.Flags().String("variant", "",
		"ONNX variant to download (quantized, fp16); empty selects full precision")
	pullCmd.Flags().String("hf-token", "",
		"HuggingFace API token for gated models (or use HF_TOKEN env var)")
}

func runPull(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	variant, _ := cmd.Flags().GetString("variant")
	token, _ := cmd.Flags().GetString("hf-token")
	if token == "" {
		token = os.Getenv("HF_TOKEN")
	}

	for _, repoID := range args {
		fmt.Printf("\n=== Pulling %s ===\n", repoID)
		dir, err := whisper.Pull(repoID, viper.GetString("models_dir"), whisper.PullOptions{
			Token:   token,
			Variant: variant,
			Progress: func(name string, bytes int64) {
				if bytes > 0 {
					fmt.Printf("  %s (%d bytes)\n", name, bytes)
				}
			},
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to pull %s: %w", repoID, err)
		}
		fmt.Printf("Pulled to %s\n", dir)
	}
	return nil
}
