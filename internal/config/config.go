// Package config loads jira-q-sync configuration from a TOML file and the
// environment.
//
// Values resolve in order: environment, config file, defaults. The legacy
// environment names (JIRA_SERVER_URL, Q_APPLICATION_ID, BATCH_SIZE, ...)
// are bound to their file keys, so existing deployments keep working.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Index backends.
const (
	IndexQBusiness = "qbusiness"
	IndexMeili     = "meili"
	IndexMemory    = "memory"
)

// Cache backends.
const (
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

// QBusinessMaxBatch is the managed index's per-call document limit.
const QBusinessMaxBatch = 10

// Config is the full configuration.
type Config struct {
	Jira  JiraConfig  `mapstructure:"jira"`
	AWS   AWSConfig   `mapstructure:"aws"`
	Index IndexConfig `mapstructure:"index"`
	Meili MeiliConfig `mapstructure:"meili"`
	Sync  SyncConfig  `mapstructure:"sync"`
	Cache CacheConfig `mapstructure:"cache"`
	Redis RedisConfig `mapstructure:"redis"`
	Log   LogConfig   `mapstructure:"log"`

	Schedule ScheduleConfig `mapstructure:"schedule"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// JiraConfig holds tracker connection settings.
type JiraConfig struct {
	ServerURL            string        `mapstructure:"server_url"`
	Username             string        `mapstructure:"username"`
	Password             string        `mapstructure:"password"`
	Token                string        `mapstructure:"token"`
	VerifySSL            bool          `mapstructure:"verify_ssl"`
	Timeout              int           `mapstructure:"timeout"`
	RequestsPerSecond    float64       `mapstructure:"requests_per_second"`
	MaxRetries           int           `mapstructure:"max_retries"`
	RetryDelay           time.Duration `mapstructure:"retry_delay"`
	IncludeInactiveUsers bool          `mapstructure:"include_inactive_users"`
}

// TimeoutDuration returns the request timeout.
func (j JiraConfig) TimeoutDuration() time.Duration {
	return time.Duration(j.Timeout) * time.Second
}

// AWSConfig identifies the Q Business data source.
type AWSConfig struct {
	Region        string `mapstructure:"region"`
	ApplicationID string `mapstructure:"application_id"`
	IndexID       string `mapstructure:"index_id"`
	DataSourceID  string `mapstructure:"data_source_id"`
	RoleARN       string `mapstructure:"role_arn"`
}

// IndexConfig selects the index backend.
type IndexConfig struct {
	Backend string `mapstructure:"backend"`
}

// MeiliConfig configures the Meilisearch backend.
type MeiliConfig struct {
	URL          string `mapstructure:"url"`
	APIKey       string `mapstructure:"api_key"`
	IndexUID     string `mapstructure:"index_uid"`
	MaxBatchSize int    `mapstructure:"max_batch_size"`
}

// SyncConfig tunes extraction and upload.
type SyncConfig struct {
	Projects              []string          `mapstructure:"projects"`
	IssueTypes            []string          `mapstructure:"issue_types"`
	JQLFilter             string            `mapstructure:"jql_filter"`
	IncludeComments       bool              `mapstructure:"include_comments"`
	CustomFields          map[string]string `mapstructure:"custom_fields"`
	BatchSize             int               `mapstructure:"batch_size"`
	PageSize              int               `mapstructure:"page_size"`
	Concurrency           int               `mapstructure:"concurrency"`
	MaxRetries            int               `mapstructure:"max_retries"`
	RetryInterval         time.Duration     `mapstructure:"retry_interval"`
	FailureThreshold      float64           `mapstructure:"failure_threshold"`
	FallbackGroupTemplate string            `mapstructure:"fallback_group_template"`
	LeaseTTL              time.Duration     `mapstructure:"lease_ttl"`
}

// CacheConfig configures change detection.
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Backend   string        `mapstructure:"backend"`
	Retention time.Duration `mapstructure:"retention"`
	DataDir   string        `mapstructure:"data_dir"`
}

// ScheduleConfig configures the serve command.
type ScheduleConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	HistoryLimit int           `mapstructure:"history_limit"`
	Clean        bool          `mapstructure:"clean"`
}

// RedisConfig configures the shared cache and lease backend.
type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

// LogConfig configures the optional log file.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// envBindings maps config keys to their legacy environment names.
var envBindings = map[string][]string{
	"jira.server_url":              {"JIRA_SERVER_URL"},
	"jira.username":                {"JIRA_USERNAME"},
	"jira.password":                {"JIRA_PASSWORD"},
	"jira.token":                   {"JIRA_TOKEN", "JIRA_API_TOKEN"},
	"jira.verify_ssl":              {"JIRA_VERIFY_SSL"},
	"jira.timeout":                 {"JIRA_TIMEOUT"},
	"jira.requests_per_second":     {"JIRA_REQUESTS_PER_SECOND"},
	"aws.region":                   {"AWS_REGION"},
	"aws.application_id":           {"Q_APPLICATION_ID"},
	"aws.index_id":                 {"Q_INDEX_ID"},
	"aws.data_source_id":           {"Q_DATA_SOURCE_ID"},
	"aws.role_arn":                 {"AWS_ROLE_ARN"},
	"index.backend":                {"INDEX_BACKEND"},
	"meili.url":                    {"MEILI_URL"},
	"meili.api_key":                {"MEILI_API_KEY"},
	"meili.index_uid":              {"MEILI_INDEX"},
	"sync.projects":                {"PROJECTS"},
	"sync.issue_types":             {"ISSUE_TYPES"},
	"sync.jql_filter":              {"JQL_FILTER"},
	"sync.include_comments":        {"INCLUDE_COMMENTS"},
	"sync.batch_size":              {"BATCH_SIZE"},
	"sync.concurrency":             {"SYNC_CONCURRENCY"},
	"sync.failure_threshold":       {"FAILURE_THRESHOLD"},
	"sync.fallback_group_template": {"FALLBACK_GROUP_TEMPLATE"},
	"cache.enabled":                {"CACHE_ENABLED", "ENABLE_CACHE"},
	"cache.backend":                {"CACHE_BACKEND"},
	"cache.retention":              {"CACHE_RETENTION"},
	"cache.data_dir":               {"CACHE_DATA_DIR"},
	"redis.url":                    {"REDIS_URL"},
	"redis.prefix":                 {"REDIS_PREFIX"},
	"log.file":                     {"LOG_FILE"},
	"schedule.interval":            {"SYNC_INTERVAL"},
}

// Defaults returns the default value of every key.
func Defaults() map[string]any {
	return map[string]any{
		"jira.server_url":              "",
		"jira.username":                "",
		"jira.password":                "",
		"jira.token":                   "",
		"jira.verify_ssl":              true,
		"jira.timeout":                 30,
		"jira.requests_per_second":     10.0,
		"jira.max_retries":             3,
		"jira.retry_delay":             "1s",
		"jira.include_inactive_users":  false,
		"aws.region":                   "us-east-1",
		"aws.application_id":           "",
		"aws.index_id":                 "",
		"aws.data_source_id":           "",
		"aws.role_arn":                 "",
		"index.backend":                IndexQBusiness,
		"meili.url":                    "",
		"meili.api_key":                "",
		"meili.index_uid":              "jira_issues",
		"meili.max_batch_size":         100,
		"sync.projects":                []string{},
		"sync.issue_types":             []string{},
		"sync.jql_filter":              "",
		"sync.include_comments":        true,
		"sync.batch_size":              QBusinessMaxBatch,
		"sync.page_size":               100,
		"sync.concurrency":             1,
		"sync.max_retries":             3,
		"sync.retry_interval":          "1s",
		"sync.failure_threshold":       0.1,
		"sync.fallback_group_template": "jira-project-{KEY}",
		"sync.lease_ttl":               "2m",
		"cache.enabled":                true,
		"cache.backend":                CacheSQLite,
		"cache.retention":              "720h",
		"cache.data_dir":               "",
		"redis.url":                    "",
		"redis.prefix":                 "jira-q-sync:",
		"log.file":                     "",
		"log.max_size_mb":              50,
		"log.max_backups":              3,
		"log.max_age_days":             28,
		"schedule.interval":            "1h",
		"schedule.history_limit":       100,
		"schedule.clean":               false,
	}
}

// DefaultDir returns ~/.jira-q-sync.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".jira-q-sync"), nil
}

// Load reads configuration. An explicit path must exist; otherwise
// config.toml in the default directory is read when present.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}
	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if dir, err := DefaultDir(); err == nil {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.normalise()
	return &cfg, nil
}

// normalise trims list values and applies case conventions.
func (c *Config) normalise() {
	c.Jira.ServerURL = strings.TrimRight(strings.TrimSpace(c.Jira.ServerURL), "/")
	c.Sync.Projects = cleanList(c.Sync.Projects, strings.ToUpper)
	c.Sync.IssueTypes = cleanList(c.Sync.IssueTypes, nil)
	c.Index.Backend = strings.ToLower(strings.TrimSpace(c.Index.Backend))
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
}

func cleanList(items []string, transform func(string) string) []string {
	var out []string
	for _, item := range items {
		// Env values arrive as one comma separated string.
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if transform != nil {
				part = transform(part)
			}
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration for the selected backends.
//
//nolint:gocyclo // Flat list of independent checks
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Jira.ServerURL == "" {
		add("jira.server_url is required (JIRA_SERVER_URL)")
	}
	if c.Jira.Token == "" && (c.Jira.Username == "" || c.Jira.Password == "") {
		add("jira credentials are required: jira.username and jira.password, or jira.token")
	}
	if c.Jira.MaxRetries < 0 {
		add("jira.max_retries must not be negative")
	}

	switch c.Index.Backend {
	case IndexQBusiness:
		if c.AWS.ApplicationID == "" {
			add("aws.application_id is required (Q_APPLICATION_ID)")
		}
		if c.AWS.IndexID == "" {
			add("aws.index_id is required (Q_INDEX_ID)")
		}
		if c.AWS.DataSourceID == "" {
			add("aws.data_source_id is required (Q_DATA_SOURCE_ID)")
		}
		if c.Sync.BatchSize > QBusinessMaxBatch {
			add("sync.batch_size must be at most %d for qbusiness", QBusinessMaxBatch)
		}
	case IndexMeili:
		if c.Meili.URL == "" {
			add("meili.url is required (MEILI_URL)")
		}
	case IndexMemory:
	default:
		add("index.backend must be one of %s, %s, %s", IndexQBusiness, IndexMeili, IndexMemory)
	}

	switch c.Cache.Backend {
	case CacheSQLite, CacheMemory:
	case CacheRedis:
		if c.Redis.URL == "" {
			add("redis.url is required for the redis cache backend (REDIS_URL)")
		}
	default:
		add("cache.backend must be one of %s, %s, %s", CacheSQLite, CacheRedis, CacheMemory)
	}

	if c.Schedule.Interval <= 0 {
		add("schedule.interval must be positive")
	}
	if c.Schedule.HistoryLimit < 1 {
		add("schedule.history_limit must be positive")
	}

	if c.Sync.BatchSize < 1 {
		add("sync.batch_size must be positive")
	}
	if c.Sync.PageSize < 1 {
		add("sync.page_size must be positive")
	}
	if c.Sync.Concurrency < 1 {
		add("sync.concurrency must be positive")
	}
	if c.Sync.MaxRetries < 0 {
		add("sync.max_retries must not be negative")
	}
	if c.Sync.FailureThreshold < 0 || c.Sync.FailureThreshold > 1 {
		add("sync.failure_threshold must be in [0, 1]")
	}
	if !strings.Contains(c.Sync.FallbackGroupTemplate, "{KEY}") {
		add("sync.fallback_group_template must contain {KEY}")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.Jira.Password = mask(c.Jira.Password)
	c.Jira.Token = mask(c.Jira.Token)
	c.Meili.APIKey = mask(c.Meili.APIKey)
	if c.Redis.URL != "" {
		c.Redis.URL = redactURL(c.Redis.URL)
	}
	return c
}

// redactURL masks the password of a URL's userinfo.
func redactURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return raw
	}
	user, _, _ := strings.Cut(userinfo, ":")
	return scheme + "://" + user + ":********@" + host
}

// durationKeys hold Go duration strings such as "90s" or "720h".
var durationKeys = map[string]bool{
	"jira.retry_delay":    true,
	"sync.retry_interval": true,
	"sync.lease_ttl":      true,
	"cache.retention":     true,
	"schedule.interval":   true,
}

// customFieldsPrefix holds free-form custom field display names.
const customFieldsPrefix = "sync.custom_fields."

// DefaultFor returns the default value of key and whether the key is
// known. Duration keys return a time.Duration.
func DefaultFor(key string) (any, bool) {
	if strings.HasPrefix(key, customFieldsPrefix) && len(key) > len(customFieldsPrefix) {
		return "", true
	}
	value, ok := Defaults()[key]
	if !ok {
		return nil, false
	}
	if durationKeys[key] {
		d, _ := time.ParseDuration(value.(string))
		return d, true
	}
	return value, true
}

// IsSecretKey reports whether a key holds a credential.
func IsSecretKey(key string) bool {
	switch key {
	case "jira.password", "jira.token", "meili.api_key":
		return true
	}
	return false
}
