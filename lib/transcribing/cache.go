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
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ResultCacheTTL is the default TTL for cached transcripts.
const ResultCacheTTL = 10 * time.Minute

// BatchTranscriber is the batch transcription surface shared by
// Transcriber, Pool and CachedTranscriber.
type BatchTranscriber interface {
	Transcribe(ctx context.Context, samples []float32, opts Options) (string, error)
}

// CachedTranscriber memoizes transcripts keyed by a hash of the samples
// and options. Concurrent identical requests are deduplicated with
// singleflight so the model runs once.
type CachedTranscriber struct {
	inner   BatchTranscriber
	cache   *ttlcache.Cache[string, string]
	sfGroup *singleflight.Group
	logger  *zap.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
	sfHits atomic.Uint64
}

// NewCachedTranscriber wraps inner with an expiring result cache.
// capacity 0 means unbounded.
func NewCachedTranscriber(inner BatchTranscriber, ttl time.Duration, capacity uint64, logger *zap.Logger) *CachedTranscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = ResultCacheTTL
	}
	cacheOpts := []ttlcache.Option[string, string]{
		ttlcache.WithTTL[string, string](ttl),
	}
	if capacity > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithCapacity[string, string](capacity))
	}
	cache := ttlcache.New[string, string](cacheOpts...)
	go cache.Start()
	return &CachedTranscriber{
		inner:   inner,
		cache:   cache,
		sfGroup: &singleflight.Group{},
		logger:  logger,
	}
}

// Transcribe returns a cached transcript when one exists and otherwise
// runs the inner transcriber, deduplicating concurrent identical calls.
func (c *CachedTranscriber) Transcribe(ctx context.Context, samples []float32, opts Options) (string, error) {
	key := cacheKey(samples, opts)

	if item := c.cache.Get(key); item != nil {
		c.hits.Add(1)
		cacheHits.WithLabelValues("transcript").Inc()
		c.logger.Debug("transcript cache hit", zap.String("key", key))
		return item.Value(), nil
	}

	result, err, shared := c.sfGroup.Do(key, func() (any, error) {
		c.misses.Add(1)
		cacheMisses.WithLabelValues("transcript").Inc()
		text, err := c.inner.Transcribe(ctx, samples, opts)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, text, ttlcache.DefaultTTL)
		return text, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		c.sfHits.Add(1)
	}
	return result.(string), nil
}

// Stats reports hit, miss and singleflight-dedup counts.
func (c *CachedTranscriber) Stats() (hits, misses, sfHits uint64) {
	return c.hits.Load(), c.misses.Load(), c.sfHits.Load()
}

// Close stops the cache's expiration loop. It does not close the inner
// transcriber.
func (c *CachedTranscriber) Close() {
	c.cache.Stop()
}

// cacheKey hashes the sample data together with every option that
// changes the output.
func cacheKey(samples []float32, opts Options) string {
	opts = opts.withDefaults()
	d := xxhash.New()
	var buf [4]byte
	for _, s := range samples {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(s))
		_, _ = d.Write(buf[:])
	}
	_, _ = d.WriteString(fmt.Sprintf("|%s|%t|%t|%t|%d",
		opts.Language, opts.Translate, opts.Timestamps, opts.UseOverlap, opts.ChunkDuration))
	return fmt.Sprintf("%016x", d.Sum64())
}
