// Package config loads the cpaws configuration from a YAML file and CPAWS_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cloudshell-cp/aws/internal/ec2"
	"github.com/cloudshell-cp/aws/internal/log"
	"github.com/cloudshell-cp/aws/internal/models"
)

const envPrefix = "CPAWS_"

type Config struct {
	Region      string      `yaml:"region"`
	Endpoint    string      `yaml:"endpoint"`
	Credentials Credentials `yaml:"credentials"`

	// Attributes are the cloud provider resource attributes, keyed by
	// attribute name with or without the model namespace.
	Attributes map[string]string `yaml:"attributes"`

	Log Log `yaml:"log"`

	SubnetWaitTimeout time.Duration `yaml:"subnet_wait_timeout"` // default: 10m
	TagRetry          TagRetry      `yaml:"tag_retry"`

	// MetricsFile is a node_exporter textfile written after each command.
	MetricsFile string `yaml:"metrics_file"`
}

type Credentials struct {
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	RoleARN         string `yaml:"role_arn"`
	ExternalID      string `yaml:"external_id"`
}

type Log struct {
	Level  string `yaml:"level"`  // default: info
	Format string `yaml:"format"` // default: text
	Dir    string `yaml:"dir"`
}

type TagRetry struct {
	Attempts int           `yaml:"attempts"` // default: 30
	Interval time.Duration `yaml:"interval"` // default: 1s
}

// Load reads path (optional), applies CPAWS_* overrides and defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"REGION":                &c.Region,
		"ENDPOINT":              &c.Endpoint,
		"AWS_ACCESS_KEY_ID":     &c.Credentials.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY": &c.Credentials.SecretAccessKey,
		"AWS_SESSION_TOKEN":     &c.Credentials.SessionToken,
		"ROLE_ARN":              &c.Credentials.RoleARN,
		"EXTERNAL_ID":           &c.Credentials.ExternalID,
		"LOG_LEVEL":             &c.Log.Level,
		"LOG_FORMAT":            &c.Log.Format,
		"LOGS_DIR":              &c.Log.Dir,
		"METRICS_FILE":          &c.MetricsFile,
	}
	for name, dst := range str {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"SUBNET_WAIT_TIMEOUT": &c.SubnetWaitTimeout,
		"TAG_RETRY_INTERVAL":  &c.TagRetry.Interval,
	}
	for name, dst := range durations {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = d
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "TAG_RETRY_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sTAG_RETRY_ATTEMPTS: %w", envPrefix, err)
		}
		c.TagRetry.Attempts = n
	}

	// Resource attributes most often switched per environment.
	attrs := map[string]string{
		"VPC_MODE":      models.AttrVPCMode,
		"SHARED_VPC_ID": models.AttrSharedVPCID,
		"MGMT_VPC_ID":   models.AttrMgmtVPCID,
	}
	for name, attr := range attrs {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			if c.Attributes == nil {
				c.Attributes = map[string]string{}
			}
			c.Attributes[attr] = v
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.SubnetWaitTimeout == 0 {
		c.SubnetWaitTimeout = 10 * time.Minute
	}
	if c.TagRetry.Attempts == 0 {
		c.TagRetry.Attempts = 30
	}
	if c.TagRetry.Interval == 0 {
		c.TagRetry.Interval = time.Second
	}
	if c.Attributes == nil {
		c.Attributes = make(map[string]string)
	}
}

func (c *Config) validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.SubnetWaitTimeout < 0 {
		return fmt.Errorf("subnet_wait_timeout must be positive")
	}
	if c.TagRetry.Attempts < 1 {
		return fmt.Errorf("tag_retry.attempts must be at least 1")
	}
	if c.TagRetry.Interval < 0 {
		return fmt.Errorf("tag_retry.interval must not be negative")
	}
	if (c.Credentials.AccessKeyID == "") != (c.Credentials.SecretAccessKey == "") {
		return fmt.Errorf("credentials.access_key_id and credentials.secret_access_key must be set together")
	}
	if _, err := c.ResourceModel(); err != nil {
		return fmt.Errorf("attributes: %w", err)
	}
	return nil
}

// ResourceModel parses the provider attributes. The top level region is used
// when the attributes carry none.
func (c *Config) ResourceModel() (models.ResourceModel, error) {
	m, err := models.ResourceModelFromAttributes(c.Attributes)
	if err != nil {
		return models.ResourceModel{}, err
	}
	if m.Region == "" {
		m.Region = c.Region
	}
	return m, nil
}

func (c *Config) ClientConfig(region string) ec2.ClientConfig {
	if region == "" {
		region = c.Region
	}
	return ec2.ClientConfig{
		Region:          region,
		AccessKeyID:     c.Credentials.AccessKeyID,
		SecretAccessKey: c.Credentials.SecretAccessKey,
		SessionToken:    c.Credentials.SessionToken,
		RoleARN:         c.Credentials.RoleARN,
		ExternalID:      c.Credentials.ExternalID,
		Endpoint:        c.Endpoint,
	}
}
