// Package config loads the YAML-encoded runtime configuration for the
// disciplined clock, its PI servo, and the monitoring/event-log
// subsystems.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	Servo   ServoConfig   `yaml:"servo"`
	Monitor MonitorConfig `yaml:"monitor"`
	Events  EventsConfig  `yaml:"events"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServoConfig holds the PollWorker/PIController tunables of §4.2-4.3.
type ServoConfig struct {
	PollPeriod  time.Duration `yaml:"poll_period"`
	Kp          float64       `yaml:"kp"`
	Ki          float64       `yaml:"ki"`
	MaxPpm      float64       `yaml:"max_ppm"`
	MinSlewPpm  float64       `yaml:"min_slew_ppm"`
	PhaseEpsNs  int64         `yaml:"phase_eps_ns"`
}

// MonitorConfig holds the real-time TE monitor's tunables of §4.10.
type MonitorConfig struct {
	SampleRateHz float64       `yaml:"monitor_rate"`
	BufferSize   int           `yaml:"monitor_buffer"`
	ComputeEvery time.Duration `yaml:"monitor_compute_dt"`
}

// EventsConfig holds the event-log subsystem's tunables of §4.9/§6.
type EventsConfig struct {
	RingBufferBytes int    `yaml:"event_ring_bytes"`
	Path            string `yaml:"event_log_path"`
}

// LoggingConfig holds the structured logger's tunables.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Quiet  bool   `yaml:"quiet"`
}

// Default returns the configuration matching every default named in §4
// and §4.10.
func Default() *Config {
	return &Config{
		Servo: ServoConfig{
			PollPeriod: 10 * time.Millisecond,
			Kp:         200.0,
			Ki:         8.0,
			MaxPpm:     200.0,
			MinSlewPpm: 100.0,
			PhaseEpsNs: 20_000,
		},
		Monitor: MonitorConfig{
			SampleRateHz: 10.0,
			BufferSize:   36000,
			ComputeEvery: 10 * time.Second,
		},
		Events: EventsConfig{
			RingBufferBytes: 1024 * 1024,
			Path:            "swclock-events.log",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads and parses a YAML configuration file, filling any
// unset field with Default's value. Kp and Ki are defaulted as a pair:
// only when both are unset; setting either one leaves the other as given.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(&c)
	return &c, nil
}

func applyDefaults(c *Config) {
	d := Default()
	if c.Servo.PollPeriod == 0 {
		c.Servo.PollPeriod = d.Servo.PollPeriod
	}
	if c.Servo.Kp == 0 && c.Servo.Ki == 0 {
		c.Servo.Kp, c.Servo.Ki = d.Servo.Kp, d.Servo.Ki
	}
	if c.Servo.MaxPpm == 0 {
		c.Servo.MaxPpm = d.Servo.MaxPpm
	}
	if c.Servo.MinSlewPpm == 0 {
		c.Servo.MinSlewPpm = d.Servo.MinSlewPpm
	}
	if c.Servo.PhaseEpsNs == 0 {
		c.Servo.PhaseEpsNs = d.Servo.PhaseEpsNs
	}
	if c.Monitor.SampleRateHz == 0 {
		c.Monitor.SampleRateHz = d.Monitor.SampleRateHz
	}
	if c.Monitor.BufferSize == 0 {
		c.Monitor.BufferSize = d.Monitor.BufferSize
	}
	if c.Monitor.ComputeEvery == 0 {
		c.Monitor.ComputeEvery = d.Monitor.ComputeEvery
	}
	if c.Events.RingBufferBytes == 0 {
		c.Events.RingBufferBytes = d.Events.RingBufferBytes
	}
	if c.Events.Path == "" {
		c.Events.Path = d.Events.Path
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
}
