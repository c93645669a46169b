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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	transcriptionsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "murmur",
			Name:      "transcriptions_completed_total",
			Help:      "The total number of completed transcription calls.",
		},
	)
	chunkDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "antfly",
			Subsystem: "murmur",
			Name:      "chunk_duration_seconds",
			Help:      "Wall time spent transcribing one audio chunk.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)
	chunkStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "murmur",
			Name:      "chunk_stops_total",
			Help:      "Decode stop conditions hit, by reason.",
		},
		[]string{"reason"},
	)
	chunkFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "murmur",
			Name:      "chunk_failures_total",
			Help:      "Chunks degraded to empty text, by pipeline stage.",
		},
		[]string{"stage"},
	)
	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "murmur",
			Name:      "result_cache_hits_total",
			Help:      "Transcription result cache hits, by kind.",
		},
		[]string{"kind"},
	)
	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "murmur",
			Name:      "result_cache_misses_total",
			Help:      "Transcription result cache misses, by kind.",
		},
		[]string{"kind"},
	)
)

func observeChunk(d time.Duration) {
	chunkDuration.Observe(d.Seconds())
}

func init() {
	prometheus.MustRegister(transcriptionsCompleted)
	prometheus.MustRegister(chunkDuration)
	prometheus.MustRegister(chunkStops)
	prometheus.MustRegister(chunkFailures)
	prometheus.MustRegister(cacheHits)
	prometheus.MustRegister(cacheMisses)
}
