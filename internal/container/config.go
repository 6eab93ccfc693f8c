package container

import (
	"fmt"
	"slices"

	"github.com/caarlos0/env/v11"
)

// ConsumerConfig is the environment configuration of the lease event consumer.
type ConsumerConfig struct {
	RedisAddr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	LogFormat     string `env:"LOG_FORMAT"     envDefault:"console"`
	ConsumerGroup string `env:"CONSUMER_GROUP" envDefault:"ratelimit-analytics"`
	Sink          string `env:"ANALYTICS_SINK" envDefault:"redis"`
}

// LoadConsumerOptions reads ConsumerConfig from the environment and maps it
// onto the shared Options.
func LoadConsumerOptions() (*Options, error) {
	cfg, err := env.ParseAs[ConsumerConfig]()
	if err != nil {
		return nil, fmt.Errorf("parse consumer config: %w", err)
	}

	if !slices.Contains([]string{SinkLog, SinkRedis}, cfg.Sink) {
		return nil, fmt.Errorf("%w: ANALYTICS_SINK %q, want %s or %s", errInvalidOption, cfg.Sink, SinkLog, SinkRedis)
	}

	return cfg.Options(), nil
}

// Options returns the container options the consumer packages read.
func (c ConsumerConfig) Options() *Options {
	return &Options{
		LogFormat:     c.LogFormat,
		RedisAddr:     c.RedisAddr,
		Events:        EventsRedis,
		ConsumerGroup: c.ConsumerGroup,
		AnalyticsSink: c.Sink,
	}
}
