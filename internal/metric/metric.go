// Package metric wraps a DogStatsD client. Without an address every call is a no-op.
package metric

import (
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog/log"
)

const (
	ApiRequestCount   = "api_request_count"
	ApiRequestLatency = "api_request_latency"
	JobEnqueuedCount  = "job_enqueued_count"
	JobCount          = "job_count"
	JobLatency        = "job_latency"
	VectorsUpserted   = "vectors_upserted"
	VectorsDeleted    = "vectors_deleted"
	DocumentsSkipped  = "documents_skipped"
)

// Client is safe for concurrent use.
type Client struct {
	statsd statsd.ClientInterface
}

// New connects to addr with global env/service tags. An empty addr yields a no-op client.
func New(addr, appName, env string) (*Client, error) {
	if addr == "" {
		log.Info().Msg("STATSD_ADDR not set, metrics disabled")
		return NewNoop(), nil
	}

	c, err := statsd.New(addr,
		statsd.WithNamespace(appName+"."),
		statsd.WithTags([]string{TagAsString("env", env), TagAsString("service", appName)}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create statsd client: %w", err)
	}

	log.Info().Str("addr", addr).Msg("✓ Metrics client initialized")
	return &Client{statsd: c}, nil
}

func NewNoop() *Client {
	return &Client{statsd: &statsd.NoOpClient{}}
}

func (c *Client) Incr(name string, tags []string) {
	if err := c.statsd.Incr(name, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("statsd incr failed")
	}
}

func (c *Client) Count(name string, value int64, tags []string) {
	if err := c.statsd.Count(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("statsd count failed")
	}
}

// TimingWithStart is meant for defer: defer m.TimingWithStart(name, time.Now(), tags)
func (c *Client) TimingWithStart(name string, start time.Time, tags []string) {
	if err := c.statsd.Timing(name, time.Since(start), tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("statsd timing failed")
	}
}

func (c *Client) Close() error {
	return c.statsd.Close()
}

func TagAsString(key, value string) string {
	return key + ":" + value
}
