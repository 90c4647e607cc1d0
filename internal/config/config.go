// Package config defines the runner's CLI surface, bound to a pflag
// FlagSet the same way cdc-sink's internal/source/server.Config binds its
// flags: a Config struct with a Bind method that wires each field to a
// flag name, default, and help string.
package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config holds the runner's process-level configuration.
type Config struct {
	// PipelinePath is the filesystem path to the declarative pipeline spec
	// document (YAML).
	PipelinePath string

	// ChannelCapacity is the buffer size of every inter-operator channel.
	ChannelCapacity int
}

// Bind registers the Config's fields onto flags.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.StringVar(&c.PipelinePath, "pipeline", "", "path to the pipeline spec document")
	flags.IntVar(&c.ChannelCapacity, "channel-capacity", 8, "buffer size of inter-operator channels")
}

// Validate checks that required fields were supplied and are sane.
func (c *Config) Validate() error {
	if c.PipelinePath == "" {
		return errors.New("config: --pipeline is required")
	}
	if c.ChannelCapacity <= 0 {
		return errors.Errorf("config: --channel-capacity must be positive, got %d", c.ChannelCapacity)
	}
	return nil
}
