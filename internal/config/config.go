// Package config provides YAML-based configuration loading for Refinery.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Refinery configuration, loaded from config.yaml.
type Config struct {
	Platform  string          `yaml:"platform"` // "slack" or "discord"
	Slack     SlackConfig     `yaml:"slack"`
	Discord   DiscordConfig   `yaml:"discord"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Database  DatabaseConfig  `yaml:"database"`
	GitHub    GitHubConfig    `yaml:"github"`
	Batch     BatchConfig     `yaml:"batch"`
	Consensus ConsensusConfig `yaml:"consensus"`
	Calendar  CalendarConfig  `yaml:"calendar"`
	Poller    PollerConfig    `yaml:"poller"`
}

// SlackConfig holds Slack Socket Mode credentials.
type SlackConfig struct {
	AppToken  string `yaml:"app_token"` // xapp-... app-level token
	BotToken  string `yaml:"bot_token"` // xoxb-... bot token
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig holds Discord Gateway credentials.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// WebhookConfig holds settings for the inbound HTTP webhook server.
type WebhookConfig struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token"` // shared token checked on every request
}

// DatabaseConfig selects and configures the backing store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "mysql"
	Path   string `yaml:"path"`   // sqlite file path
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Name   string `yaml:"name"`
	User   string `yaml:"user"`
}

// GitHubConfig holds the token used to resolve issue titles.
type GitHubConfig struct {
	Token string `yaml:"token"`
}

// BatchConfig holds estimation batch policy.
type BatchConfig struct {
	MaxItems            int      `yaml:"max_items"`
	DeadlineHours       int      `yaml:"deadline_hours"`
	Scale               []int    `yaml:"scale"` // valid story point values
	DefaultParticipants []string `yaml:"default_participants"`
}

// ConsensusConfig tunes the estimate clustering analysis.
type ConsensusConfig struct {
	GapThreshold int     `yaml:"gap_threshold"` // sorted gap that starts a new cluster
	ClusterShare float64 `yaml:"cluster_share"` // fraction of votes one cluster needs
	MinVotes     int     `yaml:"min_votes"`     // fewer votes than this always needs discussion
}

// CalendarConfig configures the business calendar used for deadlines.
type CalendarConfig struct {
	Timezone    string   `yaml:"timezone"`
	Country     string   `yaml:"country"`      // national holiday table, e.g. "US"
	CustomDates []string `yaml:"custom_dates"` // extra non-business days, "YYYY-MM-DD"
}

// PollerConfig configures the deadline poller.
type PollerConfig struct {
	Interval time.Duration `yaml:"interval"`
	Cron     string        `yaml:"cron"` // optional 5-field cron expression, overrides Interval
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Platform == "" {
		c.Platform = "slack"
	}
	if c.Webhook.Addr == "" {
		c.Webhook.Addr = ":8080"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "refinery.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Batch.MaxItems == 0 {
		c.Batch.MaxItems = 6
	}
	if c.Batch.DeadlineHours == 0 {
		c.Batch.DeadlineHours = 48
	}
	if len(c.Batch.Scale) == 0 {
		c.Batch.Scale = []int{1, 2, 3, 5, 8, 13, 21}
	}
	if c.Consensus.GapThreshold == 0 {
		c.Consensus.GapThreshold = 2
	}
	if c.Consensus.ClusterShare == 0 {
		c.Consensus.ClusterShare = 0.6
	}
	if c.Consensus.MinVotes == 0 {
		c.Consensus.MinVotes = 3
	}
	if c.Calendar.Timezone == "" {
		c.Calendar.Timezone = "UTC"
	}
	if c.Poller.Interval == 0 {
		c.Poller.Interval = 5 * time.Minute
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Platform {
	case "slack", "discord":
	default:
		errs = append(errs, fmt.Sprintf("platform must be slack or discord, got %q", c.Platform))
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be sqlite or mysql, got %q", c.Database.Driver))
	}
	if c.Database.Driver == "mysql" && c.Database.Name == "" {
		errs = append(errs, "database.name is required for mysql")
	}
	if c.Batch.MaxItems < 1 {
		errs = append(errs, "batch.max_items must be positive")
	}
	if c.Batch.DeadlineHours < 1 {
		errs = append(errs, "batch.deadline_hours must be positive")
	}
	if c.Consensus.ClusterShare <= 0 || c.Consensus.ClusterShare > 1 {
		errs = append(errs, "consensus.cluster_share must be in (0, 1]")
	}
	if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("calendar.timezone: %v", err))
	}
	for _, d := range c.Calendar.CustomDates {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			errs = append(errs, fmt.Sprintf("calendar.custom_dates: %q is not YYYY-MM-DD", d))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
