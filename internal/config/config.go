// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package config holds the tunables of a run.
//
// Values start from Default, are overlaid by an optional YAML file and finally by
// command line flags and environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/matt-FFFFFF/dwqc/internal/broker/disque"
	"github.com/matt-FFFFFF/dwqc/internal/cleanup"
	"github.com/matt-FFFFFF/dwqc/internal/collect"
	"github.com/matt-FFFFFF/dwqc/internal/submit"
	"github.com/spf13/afero"
)

const (
	// DefaultQueue is the work queue commands are submitted to.
	DefaultQueue = "test"
	// DefaultBuffer is the capacity of every channel between stages.
	DefaultBuffer = 1024
	// DefaultConnectTimeout bounds dialing the broker.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultTickInterval is how often progress counters are reported.
	DefaultTickInterval = 500 * time.Millisecond
	// DefaultCollectorGrace is how long collectors may take to stop once the run is over.
	DefaultCollectorGrace = time.Second
)

var (
	// ErrInvalidYaml is returned when the configuration file cannot be decoded.
	ErrInvalidYaml = errors.New("invalid YAML")
	// ErrReadConfig is returned when the configuration file cannot be read.
	ErrReadConfig = errors.New("failed to read config file")
	// ErrInvalidConfig is returned when a value is out of range.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config is the configuration of a run.
type Config struct {
	Queue  string `yaml:"queue"`
	URL    string `yaml:"url"`
	Repo   string `yaml:"repo"`
	Commit string `yaml:"commit"`

	Submitters int `yaml:"submitters"`
	Collectors int `yaml:"collectors"`
	Buffer     int `yaml:"buffer"`

	FetchBatch   int           `yaml:"fetch_batch"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	FetchRetries int           `yaml:"fetch_retries"`

	JobTimeout time.Duration `yaml:"job_timeout"`
	JobTTL     time.Duration `yaml:"job_ttl"`

	DeleteBatch    int           `yaml:"delete_batch"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	TickInterval   time.Duration `yaml:"tick_interval"`
	CollectorGrace time.Duration `yaml:"collector_grace"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Queue:          DefaultQueue,
		URL:            disque.DefaultURL,
		Submitters:     submit.DefaultWorkers,
		Collectors:     1,
		Buffer:         DefaultBuffer,
		FetchBatch:     collect.DefaultBatch,
		JobTimeout:     submit.DefaultJobTimeout,
		JobTTL:         submit.DefaultTTL,
		DeleteBatch:    cleanup.DefaultBatchSize,
		ConnectTimeout: DefaultConnectTimeout,
		TickInterval:   DefaultTickInterval,
		CollectorGrace: DefaultCollectorGrace,
	}
}

// Load returns Default overlaid with the YAML file at path. An empty path returns Default.
// Unknown keys are rejected.
func Load(fs afero.Fs, path string) (Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, errors.Join(ErrReadConfig, err)
	}

	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.DisallowUnknownField()); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalidYaml, path, err)
	}

	return cfg, cfg.Validate()
}

// Validate reports every value that is out of range.
func (c Config) Validate() error {
	var errs []error

	positive := []struct {
		name  string
		value int
	}{
		{"submitters", c.Submitters},
		{"collectors", c.Collectors},
		{"buffer", c.Buffer},
		{"fetch_batch", c.FetchBatch},
		{"delete_batch", c.DeleteBatch},
	}

	for _, p := range positive {
		if p.value < 1 {
			errs = append(errs, fmt.Errorf("%w: %s must be at least 1, got %d", ErrInvalidConfig, p.name, p.value))
		}
	}

	if c.FetchRetries < 0 {
		errs = append(errs, fmt.Errorf("%w: fetch_retries must not be negative", ErrInvalidConfig))
	}

	if c.FetchTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: fetch_timeout must not be negative", ErrInvalidConfig))
	}

	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: tick_interval must be positive", ErrInvalidConfig))
	}

	if c.Queue == "" {
		errs = append(errs, fmt.Errorf("%w: queue must not be empty", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// WriteYAML writes c in the format Load reads.
func (c Config) WriteYAML(w io.Writer) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	_, err = w.Write(data)

	return err
}
