package datadog

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/thermistor-controller/internal/config"
)

// Client emits DogStatsD metrics. A nil or disabled Client drops everything.
type Client struct {
	dogstatsd *statsd.Client
	verbose   bool
}

func New(cfg config.Config) *Client {
	if !cfg.EnableDatadog {
		log.Info().Msg("Datadog metrics disabled")
		return &Client{}
	}

	dogstatsd, err := statsd.New(cfg.DDAgentAddr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return &Client{}
	}

	dogstatsd.Namespace = cfg.DDNamespace
	dogstatsd.Tags = cfg.DDTags

	log.Info().
		Str("addr", cfg.DDAgentAddr).
		Str("namespace", cfg.DDNamespace).
		Strs("tags", cfg.DDTags).
		Msg("Datadog metrics initialized")

	return &Client{dogstatsd: dogstatsd, verbose: true}
}

func (c *Client) Gauge(name string, value float64, tags ...string) {
	if c == nil || c.dogstatsd == nil {
		return
	}
	if err := c.dogstatsd.Gauge(name, value, tags, 1); err != nil && c.verbose {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
	}
}

func (c *Client) Incr(name string, tags ...string) {
	if c == nil || c.dogstatsd == nil {
		return
	}
	if err := c.dogstatsd.Incr(name, tags, 1); err != nil && c.verbose {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit count metric")
	}
}

func (c *Client) Close() error {
	if c == nil || c.dogstatsd == nil {
		return nil
	}
	return c.dogstatsd.Close()
}
