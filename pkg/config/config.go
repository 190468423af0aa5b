package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Pagination struct {
		MaxPerPage int `yaml:"max_per_page"`
	} `yaml:"pagination"`
	Recall struct {
		Enabled       bool    `yaml:"enabled"`
		TopK          int     `yaml:"top_k"`
		MinScore      float32 `yaml:"min_score"`
		LastMessages  int     `yaml:"last_messages"`
		Workers       int     `yaml:"workers"`
		QueueCapacity int     `yaml:"queue_capacity"`
		EmbedRPS      float64 `yaml:"embed_rps"`
	} `yaml:"recall"`
	Retention struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron"`
		Period  string `yaml:"period"`
	} `yaml:"retention"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.Storage.DBPath = "./db"
	c.Pagination.MaxPerPage = 100
	c.Recall.Enabled = true
	c.Recall.TopK = 5
	c.Recall.LastMessages = 10
	c.Recall.Workers = 2
	c.Recall.QueueCapacity = 4096
	c.Retention.Cron = "0 2 * * *"
	c.Retention.Period = "30d"
	c.Logging.Level = "info"
	return c
}

// Load merges defaults, an optional YAML file and environment overrides,
// in that order.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&c)
	return c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("MEMODB_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("MEMODB_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MEMODB_MAX_PER_PAGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pagination.MaxPerPage = n
		}
	}
	if v := os.Getenv("MEMODB_RECALL_ENABLED"); v != "" {
		c.Recall.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("MEMODB_RETENTION_ENABLED"); v != "" {
		c.Retention.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("MEMODB_RETENTION_PERIOD"); v != "" {
		c.Retention.Period = v
	}
}

// ParsePeriod parses retention periods: time.ParseDuration syntax plus a
// day suffix ("30d").
func ParsePeriod(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty period")
	}
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid period %q: %w", s, err)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
