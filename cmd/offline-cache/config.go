package main

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Origin         string        `yaml:"origin"`
	Version        string        `yaml:"version"`
	Precache       []string      `yaml:"precache"`
	Shell          string        `yaml:"shell"`
	Placeholder    string        `yaml:"placeholder"`
	DocumentRoutes []string      `yaml:"documentRoutes"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
	Dynamic        ConfigDynamic `yaml:"dynamic"`
}

type ConfigDynamic struct {
	MaxEntries    int    `yaml:"maxEntries"`
	SweepInterval string `yaml:"sweepInterval"`
}

// interval parses the configured sweep interval, e.g. "90s" or "2m".
// An empty value means the library default.
func (c ConfigDynamic) interval() (time.Duration, error) {
	if c.SweepInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(c.SweepInterval)
}

func getConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
