package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog/log"

	"github.com/born-ml/spinesight/internal/backbone"
	"github.com/born-ml/spinesight/internal/classifier"
	"github.com/born-ml/spinesight/internal/metric"
	"github.com/born-ml/spinesight/internal/tensor"
)

// modelCache keeps loaded classifiers keyed by weights path, bounded by the
// total parameter bytes they hold. Cached classifiers are shared read-only.
type modelCache struct {
	mu      sync.Mutex
	cache   *ristretto.Cache
	backend tensor.Backend
	metrics *metric.Client
}

func newModelCache(maxBytes int64, b tensor.Backend, m *metric.Client) (*modelCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        1000,
		MaxCost:            maxBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: model cache: %w", err)
	}
	return &modelCache{cache: cache, backend: b, metrics: m}, nil
}

// get returns the classifier for (bb, path), loading it on a miss. Loads are
// serialized so concurrent misses on one artifact read it once.
func (c *modelCache) get(bb backbone.Backbone, path string) (*classifier.Classifier, error) {
	key := string(bb.Architecture()) + "|" + path
	if clf, ok := c.lookup(key); ok {
		return clf, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if clf, ok := c.lookup(key); ok {
		return clf, nil
	}
	c.metrics.Incr(metric.ModelCacheCount, metric.BuildTag(metric.NewTag(metric.TagOutcome, "miss")))

	start := time.Now()
	clf, err := classifier.New(bb, path, classifier.WithBackend(c.backend))
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	c.metrics.Timing(metric.ModelLoadLatency, elapsed,
		metric.BuildTag(metric.NewTag(metric.TagArchitecture, string(bb.Architecture()))))

	if !c.cache.Set(key, clf, clf.ParameterBytes()) {
		log.Warn().Str("weights", path).Int64("bytes", clf.ParameterBytes()).
			Msg("model not admitted to cache")
	}
	c.cache.Wait()
	log.Debug().Str("weights", path).Dur("elapsed", elapsed).Msg("model loaded")
	return clf, nil
}

// lookup returns a cached classifier and counts the hit.
func (c *modelCache) lookup(key string) (*classifier.Classifier, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	c.metrics.Incr(metric.ModelCacheCount, metric.BuildTag(metric.NewTag(metric.TagOutcome, "hit")))
	return v.(*classifier.Classifier), true
}

func (c *modelCache) close() {
	c.cache.Close()
}
