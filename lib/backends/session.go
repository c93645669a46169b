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

// Package backends provides the tensor-computation abstraction the
// transcription engine runs on. A Session executes one ONNX graph (the
// Whisper encoder or decoder) given named input tensors and returns named
// output tensors. Sessions are stateless between calls; all decoding state
// (KV cache, token sequence) lives with the caller.
//
// The real implementation wraps ONNX Runtime and requires
// -tags="onnx,ORT" plus CGO. Without those tags NewONNXSessionFactory
// returns an error, which keeps pure-Go builds (and unit tests with fake
// sessions) working.
package backends

import "fmt"

// Session is a low-level inference session over one computation graph.
// It handles tensor I/O without knowledge of model semantics.
type Session interface {
	// Run executes the graph with the given named inputs and returns the
	// named outputs. Deterministic for identical inputs; no hidden state
	// is carried between calls.
	Run(inputs []NamedTensor) ([]NamedTensor, error)

	// InputInfo returns metadata about the graph's declared inputs.
	InputInfo() []TensorInfo

	// OutputInfo returns metadata about the graph's declared outputs.
	OutputInfo() []TensorInfo

	// Close releases resources associated with the session.
	Close() error
}

// NamedTensor associates a name with tensor data.
type NamedTensor struct {
	Name  string
	Shape []int64
	Data  interface{} // []float32, []int64, []int32, []bool
}

// Clone returns a deep copy of the tensor. Backends are free to reuse or
// invalidate the buffers they hand out, so anything held across a Run call
// must be cloned first.
func (t NamedTensor) Clone() NamedTensor {
	out := NamedTensor{Name: t.Name, Shape: make([]int64, len(t.Shape))}
	copy(out.Shape, t.Shape)
	switch data := t.Data.(type) {
	case []float32:
		c := make([]float32, len(data))
		copy(c, data)
		out.Data = c
	case []int64:
		c := make([]int64, len(data))
		copy(c, data)
		out.Data = c
	case []int32:
		c := make([]int32, len(data))
		copy(c, data)
		out.Data = c
	case []bool:
		c := make([]bool, len(data))
		copy(c, data)
		out.Data = c
	default:
		out.Data = t.Data
	}
	return out
}

// Floats returns the tensor data as []float32, or an error if the tensor
// holds a different element type.
func (t NamedTensor) Floats() ([]float32, error) {
	data, ok := t.Data.([]float32)
	if !ok {
		return nil, fmt.Errorf("tensor %s is %T, not []float32", t.Name, t.Data)
	}
	return data, nil
}

// NumElements returns the element count implied by the shape.
func (t NamedTensor) NumElements() int {
	n := 1
	for _, d := range t.Shape {
		n *= int(d)
	}
	return n
}

// TensorInfo describes a tensor's declared metadata.
type TensorInfo struct {
	Name     string
	Shape    []int64 // -1 for dynamic dimensions
	DataType DataType
}

// DataType represents tensor element types.
type DataType string

const (
	DataTypeFloat32 DataType = "float32"
	DataTypeFloat16 DataType = "float16"
	DataTypeInt64   DataType = "int64"
	DataTypeInt32   DataType = "int32"
	DataTypeBool    DataType = "bool"
)

// SessionFactory creates sessions from model files.
type SessionFactory interface {
	// CreateSession creates a session from an ONNX graph file.
	CreateSession(modelPath string, opts ...SessionOption) (Session, error)

	// Name identifies the backend for logging.
	Name() string
}

// SessionOption configures session creation.
type SessionOption func(*SessionConfig)

// SessionConfig holds configuration for session creation.
type SessionConfig struct {
	// NumThreads for inference (0 = auto)
	NumThreads int

	// UseGPU requests a GPU execution provider when available.
	UseGPU bool

	// GraphOptimizationLevel for ONNX (0-3)
	GraphOptimizationLevel int
}

// DefaultSessionConfig returns sensible defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		NumThreads:             0,
		UseGPU:                 false,
		GraphOptimizationLevel: 3,
	}
}

// WithSessionThreads sets the number of intra-op threads.
func WithSessionThreads(n int) SessionOption {
	return func(c *SessionConfig) {
		c.NumThreads = n
	}
}

// WithSessionGPU requests GPU execution.
func WithSessionGPU(enabled bool) SessionOption {
	return func(c *SessionConfig) {
		c.UseGPU = enabled
	}
}

// ApplySessionOptions applies options to a fresh config.
func ApplySessionOptions(opts ...SessionOption) *SessionConfig {
	cfg := DefaultSessionConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
