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
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/antflydb/murmur/lib/whisper"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List local models",
	Long: `List Whisper models installed under the models directory.

A directory counts as a model when it holds a config.json plus encoder
and decoder ONNX files.`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	root := viper.GetString("models_dir")
	var found int
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if !isModelDir(path) {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		fmt.Println(rel)
		found++
		return fs.SkipDir
	})
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("No models found in %s\n", root)
			return nil
		}
		return err
	}
	if found == 0 {
		fmt.Printf("No models found in %s (use murmur pull)\n", root)
	}
	return nil
}

func isModelDir(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, "config.json")); err != nil {
		return false
	}
	_, err := whisper.FindONNXFile(dir, whisper.EncoderCandidates)
	return err == nil
}
