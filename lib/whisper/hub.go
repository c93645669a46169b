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
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/go-huggingface/hub"
	"go.uber.org/zap"
)

// PullOptions configures a model download from HuggingFace Hub.
type PullOptions struct {
	// Token authenticates against gated repositories.
	Token string
	// Variant selects a quantized export ("quantized", "fp16"). Empty
	// selects the full-precision files.
	Variant string
	// Progress, when set, is called before and after each file copy with
	// the file name and its size (0 before the copy completes).
	Progress func(name string, bytes int64)
}

// hubConfigFiles are the repository files a Whisper export needs besides
// the ONNX graphs.
var hubConfigFiles = map[string]bool{
	"config.json":              true,
	"generation_config.json":   true,
	"preprocessor_config.json": true,
	"tokenizer.json":           true,
	"tokenizer_config.json":    true,
	"special_tokens_map.json":  true,
	"added_tokens.json":        true,
	"vocab.json":               true,
	"merges.txt":               true,
}

// Pull downloads a Whisper export from HuggingFace Hub into
// destDir/<owner>/<name>, flattening any onnx/ subdirectory. Returns the
// local model directory.
func Pull(repoID, destDir string, opts PullOptions, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	repo := hub.New(repoID)
	if opts.Token != "" {
		repo = repo.WithAuth(opts.Token)
	}

	var files []string
	for fileName, err := range repo.IterFileNames() {
		if err != nil {
			return "", fmt.Errorf("listing files in %s: %w", repoID, err)
		}
		files = append(files, fileName)
	}
	toDownload := selectWhisperFiles(files, opts.Variant)
	if len(toDownload) == 0 {
		return "", fmt.Errorf("no whisper model files found in %s", repoID)
	}

	modelDir := filepath.Join(destDir, filepath.FromSlash(repoID))
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return "", fmt.Errorf("creating model directory: %w", err)
	}

	for _, fileName := range toDownload {
		localPath, err := repo.DownloadFile(fileName)
		if err != nil {
			return "", fmt.Errorf("downloading %s: %w", fileName, err)
		}
		destName := filepath.Base(fileName)
		destPath := filepath.Join(modelDir, destName)
		if opts.Progress != nil {
			opts.Progress(destName, 0)
		}
		if err := copyFile(localPath, destPath); err != nil {
			return "", fmt.Errorf("copying %s: %w", fileName, err)
		}
		if info, err := os.Stat(destPath); err == nil && opts.Progress != nil {
			opts.Progress(destName, info.Size())
		}
		logger.Debug("pulled model file",
			zap.String("repo", repoID), zap.String("file", destName))
	}
	return modelDir, nil
}

// selectWhisperFiles picks the encoder, the merged decoder and the config
// files out of a repository listing. ONNX files are matched against the
// requested variant: "" wants the plain export, anything else wants
// <stem>_<variant>.onnx.
func selectWhisperFiles(files []string, variant string) []string {
	var result []string
	for _, f := range files {
		base := filepath.Base(f)
		if hubConfigFiles[base] {
			result = append(result, f)
			continue
		}
		if !strings.HasSuffix(base, ".onnx") && !strings.HasSuffix(base, ".onnx_data") {
			continue
		}
		stem := strings.TrimSuffix(strings.TrimSuffix(base, ".onnx_data"), ".onnx")
		if !strings.HasPrefix(stem, "encoder_model") && !strings.HasPrefix(stem, "decoder_model_merged") {
			continue
		}
		if matchesVariant(stem, variant) {
			result = append(result, f)
		}
	}
	return result
}

func matchesVariant(stem, variant string) bool {
	switch {
	case stem == "encoder_model" || stem == "decoder_model_merged":
		return variant == ""
	default:
		return variant != "" && strings.HasSuffix(stem, "_"+variant)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
