// Package metric emits pipeline timings and counters to a statsd agent.
package metric

import (
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog/log"
)

const (
	PipelineStageLatency = "pipeline_stage_latency"
	PipelineRequestCount = "pipeline_request_count"
	ModelLoadLatency     = "model_load_latency"
	ModelCacheCount      = "model_cache_count"
)

// Sink is the subset of the statsd client the package uses.
type Sink interface {
	Timing(name string, value time.Duration, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
	Close() error
}

// Client is safe for concurrent use.
type Client struct {
	sink         Sink
	samplingRate float64
	globalTags   []string
}

// New dials the statsd agent at address. Packets are sent over UDP, so an
// absent agent does not fail construction.
func New(address, appName string, samplingRate float64) (*Client, error) {
	globalTags := []string{TagAsString(TagService, appName)}
	c, err := statsd.New(address, statsd.WithTags(globalTags))
	if err != nil {
		return nil, err
	}
	log.Info().Msgf("Metrics client initialized with address - %s, global tags - %v, and "+
		"sampling rate - %f", address, globalTags, samplingRate)
	return &Client{sink: c, samplingRate: samplingRate}, nil
}

// NoOp returns a client that discards everything.
func NoOp() *Client {
	return &Client{sink: &statsd.NoOpClient{}, samplingRate: 1}
}

// WithSink wraps an arbitrary sink, tagging every point with tags.
func WithSink(sink Sink, samplingRate float64, tags ...string) *Client {
	return &Client{sink: sink, samplingRate: samplingRate, globalTags: tags}
}

// Timing sends timing information.
func (c *Client) Timing(name string, value time.Duration, tags []string) {
	if err := c.sink.Timing(name, value, c.tags(tags), c.samplingRate); err != nil {
		log.Warn().Err(err).Msg("Error occurred while doing statsd timing")
	}
}

// Count increases a counter by value.
func (c *Client) Count(name string, value int64, tags []string) {
	if err := c.sink.Count(name, value, c.tags(tags), c.samplingRate); err != nil {
		log.Warn().Err(err).Msg("Error occurred while doing statsd count")
	}
}

// Incr increases a counter by 1.
func (c *Client) Incr(name string, tags []string) {
	c.Count(name, 1, tags)
}

// Close flushes buffered points.
func (c *Client) Close() error {
	return c.sink.Close()
}

func (c *Client) tags(tags []string) []string {
	if len(c.globalTags) == 0 {
		return tags
	}
	out := make([]string, 0, len(tags)+len(c.globalTags))
	out = append(out, tags...)
	return append(out, c.globalTags...)
}
