package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	fileConfig struct {
		API       fileAPI      `yaml:"api"`
		LogLevel  string       `yaml:"log_level"`
		History   fileHistory  `yaml:"history"`
		Engine    fileEngine   `yaml:"engine"`
		Work      fileWork     `yaml:"work"`
		WorkUnits []ScriptUnit `yaml:"work_units"`
	}

	fileAPI struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	}

	fileHistory struct {
		Backend    string `yaml:"backend"`
		Addr       string `yaml:"addr"`
		Password   string `yaml:"password"`
		DB         *int   `yaml:"db"`
		Prefix     string `yaml:"prefix"`
		CacheSize  int    `yaml:"cache_size"`
		ArchiveURL string `yaml:"archive_url"`
	}

	fileEngine struct {
		Workers          int    `yaml:"workers"`
		PassTimeout      string `yaml:"pass_timeout"`
		AppendRetries    int    `yaml:"append_retries"`
		RecoveryInterval string `yaml:"recovery_interval"`
		ShutdownTimeout  string `yaml:"shutdown_timeout"`
	}

	fileWork struct {
		Workers int    `yaml:"workers"`
		Timeout string `yaml:"timeout"`
	}
)

// LoadFromFile overlays values present in a YAML configuration file
func (c *Config) LoadFromFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f fileConfig
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}

	setString(&c.APIHost, f.API.Host)
	setInt(&c.APIPort, f.API.Port)
	setString(&c.LogLevel, f.LogLevel)

	setString(&c.HistoryBackend, f.History.Backend)
	setString(&c.HistoryStore.Addr, f.History.Addr)
	setString(&c.HistoryStore.Password, f.History.Password)
	setString(&c.HistoryStore.Prefix, f.History.Prefix)
	if f.History.DB != nil {
		c.HistoryStore.DB = *f.History.DB
	}
	setInt(&c.CacheSize, f.History.CacheSize)
	setString(&c.ArchiveURL, f.History.ArchiveURL)

	setInt(&c.PassWorkers, f.Engine.Workers)
	setInt(&c.AppendRetries, f.Engine.AppendRetries)
	setInt(&c.WorkWorkers, f.Work.Workers)
	c.WorkUnits = append(c.WorkUnits, f.WorkUnits...)

	durations := []struct {
		name string
		src  string
		dst  *time.Duration
	}{
		{"engine.pass_timeout", f.Engine.PassTimeout, &c.PassTimeout},
		{"engine.recovery_interval", f.Engine.RecoveryInterval,
			&c.RecoveryInterval},
		{"engine.shutdown_timeout", f.Engine.ShutdownTimeout,
			&c.ShutdownTimeout},
		{"work.timeout", f.Work.Timeout, &c.WorkTimeout},
	}
	for _, d := range durations {
		if d.src == "" {
			continue
		}
		v, err := time.ParseDuration(d.src)
		if err != nil {
			return fmt.Errorf("invalid %s: %q", d.name, d.src)
		}
		*d.dst = v
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
