package asftp

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config mirrors the YAML endpoint description accepted by the asftp
// tool.  Durations are strings in time.ParseDuration form ("15s").
type Config struct {
	Hostname         string `yaml:"hostname"`
	Port             int    `yaml:"port"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	Timeout          string `yaml:"timeout"`
	ChunkSize        int    `yaml:"chunk_size"`
	ProgressInterval string `yaml:"progress_interval"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(fileN string) (*Config, error) {
	content, err := os.ReadFile(fileN)
	if err != nil {
		return nil, chainf(err, KindInvalidArguments, "read config %s", fileN)
	}
	cfg := &Config{}
	err = yaml.Unmarshal(content, cfg)
	if err != nil {
		return nil, chainf(err, KindInvalidArguments, "parse config %s", fileN)
	}
	return cfg, nil
}

// Connection builds a Connection from the config.  Additional opts apply
// after (and may override) the config.
func (cfg *Config) Connection(opts ...Option) (*Connection, error) {
	var all []Option
	if 0 != cfg.Port {
		all = append(all, WithPort(cfg.Port))
	}
	if 0 != len(cfg.Timeout) {
		timeout, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, chainf(err, KindInvalidArguments,
				"bad timeout %q", cfg.Timeout)
		}
		all = append(all, WithTimeout(timeout))
	}
	if 0 != cfg.ChunkSize {
		all = append(all, WithChunkSize(cfg.ChunkSize))
	}
	if 0 != len(cfg.ProgressInterval) {
		interval, err := time.ParseDuration(cfg.ProgressInterval)
		if err != nil {
			return nil, chainf(err, KindInvalidArguments,
				"bad progress_interval %q", cfg.ProgressInterval)
		}
		all = append(all, WithProgressInterval(interval))
	}
	all = append(all, opts...)
	return NewConnection(cfg.Hostname, cfg.Username, cfg.Password, all...)
}
