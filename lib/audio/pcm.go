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

package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Buffer holds normalized PCM samples with their format. Multi-channel data
// is interleaved. The transcription engine requires 16kHz mono; callers use
// Resample and Rechannel to get there before feature extraction.
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Resample converts the buffer to the target sample rate in place using
// linear interpolation. Returns false if the buffer is empty or has an
// invalid rate. Mono input expected; call Rechannel first.
func (b *Buffer) Resample(targetRate int) bool {
	if b.SampleRate <= 0 || targetRate <= 0 || len(b.Samples) == 0 {
		return false
	}
	if b.SampleRate == targetRate {
		return true
	}

	ratio := float64(b.SampleRate) / float64(targetRate)
	newLen := int(float64(len(b.Samples)) / ratio)
	resampled := make([]float32, newLen)

	for i := 0; i < newLen; i++ {
		srcIdx := float64(i) * ratio
		srcIdxInt := int(srcIdx)
		frac := float32(srcIdx - float64(srcIdxInt))

		if srcIdxInt+1 < len(b.Samples) {
			resampled[i] = b.Samples[srcIdxInt]*(1-frac) + b.Samples[srcIdxInt+1]*frac
		} else if srcIdxInt < len(b.Samples) {
			resampled[i] = b.Samples[srcIdxInt]
		}
	}

	b.Samples = resampled
	b.SampleRate = targetRate
	return true
}

// Rechannel converts the buffer to the target channel count in place.
// Downmixing averages channels; only targetChannels == 1 is supported.
func (b *Buffer) Rechannel(targetChannels int) bool {
	if targetChannels != 1 || b.Channels < 1 {
		return false
	}
	if b.Channels == 1 {
		return true
	}

	numFrames := len(b.Samples) / b.Channels
	mono := make([]float32, numFrames)
	for i := 0; i < numFrames; i++ {
		var sum float32
		for ch := 0; ch < b.Channels; ch++ {
			sum += b.Samples[i*b.Channels+ch]
		}
		mono[i] = sum / float32(b.Channels)
	}

	b.Samples = mono
	b.Channels = 1
	return true
}

// ReadWAV parses a PCM RIFF/WAVE file into a Buffer, preserving the file's
// sample rate and channel count.
func ReadWAV(data []byte) (*Buffer, error) {
	reader := bytes.NewReader(data)

	var riffHeader [4]byte
	if _, err := io.ReadFull(reader, riffHeader[:]); err != nil {
		return nil, fmt.Errorf("reading RIFF header: %w", err)
	}
	if string(riffHeader[:]) != "RIFF" {
		return nil, fmt.Errorf("not a RIFF file")
	}

	var fileSize uint32
	if err := binary.Read(reader, binary.LittleEndian, &fileSize); err != nil {
		return nil, fmt.Errorf("reading file size: %w", err)
	}

	var waveHeader [4]byte
	if _, err := io.ReadFull(reader, waveHeader[:]); err != nil {
		return nil, fmt.Errorf("reading WAVE header: %w", err)
	}
	if string(waveHeader[:]) != "WAVE" {
		return nil, fmt.Errorf("not a WAVE file")
	}

	var audioFormat, numChannels uint16
	var sampleRate, byteRate uint32
	var blockAlign, bitsPerSample uint16
	var audioData []byte

	for {
		var chunkID [4]byte
		if _, err := io.ReadFull(reader, chunkID[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("reading chunk ID: %w", err)
		}

		var chunkSize uint32
		if err := binary.Read(reader, binary.LittleEndian, &chunkSize); err != nil {
			return nil, fmt.Errorf("reading chunk size: %w", err)
		}

		switch string(chunkID[:]) {
		case "fmt ":
			if err := binary.Read(reader, binary.LittleEndian, &audioFormat); err != nil {
				return nil, fmt.Errorf("reading audio format: %w", err)
			}
			if err := binary.Read(reader, binary.LittleEndian, &numChannels); err != nil {
				return nil, fmt.Errorf("reading num channels: %w", err)
			}
			if err := binary.Read(reader, binary.LittleEndian, &sampleRate); err != nil {
				return nil, fmt.Errorf("reading sample rate: %w", err)
			}
			if err := binary.Read(reader, binary.LittleEndian, &byteRate); err != nil {
				return nil, fmt.Errorf("reading byte rate: %w", err)
			}
			if err := binary.Read(reader, binary.LittleEndian, &blockAlign); err != nil {
				return nil, fmt.Errorf("reading block align: %w", err)
			}
			if err := binary.Read(reader, binary.LittleEndian, &bitsPerSample); err != nil {
				return nil, fmt.Errorf("reading bits per sample: %w", err)
			}
			remaining := int(chunkSize) - 16
			if remaining > 0 {
				reader.Seek(int64(remaining), io.SeekCurrent)
			}

		case "data":
			audioData = make([]byte, chunkSize)
			if _, err := io.ReadFull(reader, audioData); err != nil {
				return nil, fmt.Errorf("reading audio data: %w", err)
			}

		default:
			reader.Seek(int64(chunkSize), io.SeekCurrent)
		}
	}

	if audioData == nil {
		return nil, fmt.Errorf("no audio data found")
	}
	if audioFormat != 1 {
		return nil, fmt.Errorf("unsupported audio format %d (only PCM supported)", audioFormat)
	}

	samples, err := bytesToSamples(audioData, int(bitsPerSample), int(numChannels))
	if err != nil {
		return nil, fmt.Errorf("converting to samples: %w", err)
	}

	return &Buffer{
		Samples:    samples,
		SampleRate: int(sampleRate),
		Channels:   int(numChannels),
	}, nil
}

// bytesToSamples converts raw PCM bytes to interleaved float32 samples in
// range [-1, 1].
func bytesToSamples(data []byte, bitsPerSample, numChannels int) ([]float32, error) {
	bytesPerSample := bitsPerSample / 8
	if bytesPerSample == 0 || numChannels == 0 {
		return nil, fmt.Errorf("invalid PCM format: %d bits, %d channels", bitsPerSample, numChannels)
	}
	numSamples := len(data) / bytesPerSample
	samples := make([]float32, numSamples)

	reader := bytes.NewReader(data)

	for i := 0; i < numSamples; i++ {
		switch bitsPerSample {
		case 8:
			var s uint8
			binary.Read(reader, binary.LittleEndian, &s)
			// 8-bit WAV is unsigned, centered at 128
			samples[i] = (float32(s) - 128) / 128.0
		case 16:
			var s int16
			binary.Read(reader, binary.LittleEndian, &s)
			samples[i] = float32(s) / 32768.0
		case 24:
			var buf [3]byte
			reader.Read(buf[:])
			s := int32(buf[0]) | int32(buf[1])<<8 | int32(buf[2])<<16
			if s&0x800000 != 0 {
				s |= -0x1000000 // sign extend
			}
			samples[i] = float32(s) / 8388608.0
		case 32:
			var s int32
			binary.Read(reader, binary.LittleEndian, &s)
			samples[i] = float32(s) / 2147483648.0
		default:
			return nil, fmt.Errorf("unsupported bits per sample: %d", bitsPerSample)
		}
	}

	return samples, nil
}
