package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Task struct {
		TTL string `yaml:"ttl"`
	} `yaml:"task"`
	Scoring struct {
		CompletionWeight float64 `yaml:"completion_weight"`
		WordsWeight      float64 `yaml:"words_weight"`
		TimeWeight       float64 `yaml:"time_weight"`
		QuestionsWeight  float64 `yaml:"questions_weight"`
	} `yaml:"scoring"`
	Reading struct {
		BaselineWPM             float64            `yaml:"baseline_wpm"`
		BaselineWPMByDifficulty map[string]float64 `yaml:"baseline_wpm_by_difficulty"`
		Lookahead               int                `yaml:"lookahead"`
		MatchThreshold          float64            `yaml:"match_threshold"`
	} `yaml:"reading"`
	Session struct {
		GracePeriod   string `yaml:"grace_period"`
		SweepInterval string `yaml:"sweep_interval"`
	} `yaml:"session"`
	Transcriber struct {
		MaxAttempts    int    `yaml:"max_attempts"`
		InitialBackoff string `yaml:"initial_backoff"`
	} `yaml:"transcriber"`
	Leaderboard struct {
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"leaderboard"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty or
// malformed.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// BaselineWPM resolves the cohort reading rate for a task difficulty.
func (c Config) BaselineWPM(difficulty string) float64 {
	if rate, ok := c.Reading.BaselineWPMByDifficulty[difficulty]; ok && rate > 0 {
		return rate
	}
	if c.Reading.BaselineWPM > 0 {
		return c.Reading.BaselineWPM
	}
	return 90
}
