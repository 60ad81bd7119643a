package counter

import (
	"context"
	"strconv"

	"github.com/coursebeam/entitlesync/internal/pkg/cache"
)

const (
	receivedKey  = "webhook:counters:received"
	processedKey = "webhook:counters:processed"
	failedKey    = "webhook:counters:failed"
)

// AddReceived increments the received-delivery counter for a provider in Redis
func AddReceived(provider string) error {
	return incr(receivedKey, provider)
}

// AddProcessed increments the processed-event counter for a provider in Redis
func AddProcessed(provider string) error {
	return incr(processedKey, provider)
}

// AddFailed increments the failed-event counter for a provider in Redis
func AddFailed(provider string) error {
	return incr(failedKey, provider)
}

func incr(key, provider string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, key, provider, 1).Err()
}

// Recorder adapts the package functions for injection into the ingestion
// endpoint. Increments are best effort; errors are dropped.
type Recorder struct{}

func NewRecorder() Recorder {
	return Recorder{}
}

func (Recorder) Received(provider string)  { _ = AddReceived(provider) }
func (Recorder) Processed(provider string) { _ = AddProcessed(provider) }
func (Recorder) Failed(provider string)    { _ = AddFailed(provider) }

// Counts holds the per-provider ingestion totals read back from Redis.
type Counts struct {
	Received  int64 `json:"received"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Snapshot reads the current per-provider counters. Best effort: a cache
// error yields an empty snapshot, never a hard failure.
func Snapshot(ctx context.Context) map[string]Counts {
	out := map[string]Counts{}
	merge := func(key string, apply func(c *Counts, v int64)) {
		data, err := cache.GetClient().HGetAll(ctx, key).Result()
		if err != nil {
			return
		}
		for provider, raw := range data {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				continue
			}
			c := out[provider]
			apply(&c, v)
			out[provider] = c
		}
	}
	merge(receivedKey, func(c *Counts, v int64) { c.Received = v })
	merge(processedKey, func(c *Counts, v int64) { c.Processed = v })
	merge(failedKey, func(c *Counts, v int64) { c.Failed = v })
	return out
}
