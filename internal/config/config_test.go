package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudshell-cp/aws/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cpaws.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 10*time.Minute, cfg.SubnetWaitTimeout)
	assert.Equal(t, 30, cfg.TagRetry.Attempts)
	assert.Equal(t, time.Second, cfg.TagRetry.Interval)

	m, err := cfg.ResourceModel()
	require.NoError(t, err)
	assert.Equal(t, models.VPCModeDynamic, m.VPCMode)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
region: eu-west-1
credentials:
  role_arn: arn:aws:iam::123456789012:role/cloudshell
  external_id: ext
attributes:
  AWS EC2 Cloud Provider.VPC Mode: Shared
  AWS EC2 Cloud Provider.Shared VPC ID: vpc-shared
  AWS EC2 Cloud Provider.VPN CIDRs: 10.10.0.0/16
log:
  level: debug
  format: json
  dir: /var/log/cpaws
subnet_wait_timeout: 2m
tag_retry:
  attempts: 5
  interval: 500ms
metrics_file: /tmp/cpaws.prom
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/var/log/cpaws", cfg.Log.Dir)
	assert.Equal(t, 2*time.Minute, cfg.SubnetWaitTimeout)
	assert.Equal(t, 5, cfg.TagRetry.Attempts)
	assert.Equal(t, 500*time.Millisecond, cfg.TagRetry.Interval)
	assert.Equal(t, "/tmp/cpaws.prom", cfg.MetricsFile)

	m, err := cfg.ResourceModel()
	require.NoError(t, err)
	assert.Equal(t, models.VPCModeShared, m.VPCMode)
	assert.Equal(t, "vpc-shared", m.SharedVPCID)
	assert.Equal(t, "eu-west-1", m.Region)
	assert.Equal(t, []string{"10.10.0.0/16"}, m.VGWCIDRs)

	cc := cfg.ClientConfig("")
	assert.Equal(t, "eu-west-1", cc.Region)
	assert.Equal(t, "arn:aws:iam::123456789012:role/cloudshell", cc.RoleARN)
	assert.Equal(t, "ext", cc.ExternalID)
	assert.Equal(t, "us-east-2", cfg.ClientConfig("us-east-2").Region)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
region: eu-west-1
log:
  level: info
`)
	t.Setenv("CPAWS_REGION", "us-east-1")
	t.Setenv("CPAWS_LOG_LEVEL", "warn")
	t.Setenv("CPAWS_TAG_RETRY_ATTEMPTS", "3")
	t.Setenv("CPAWS_SUBNET_WAIT_TIMEOUT", "30s")
	t.Setenv("CPAWS_VPC_MODE", "Single")
	t.Setenv("CPAWS_MGMT_VPC_ID", "vpc-mgmt")
	t.Setenv("CPAWS_AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("CPAWS_AWS_SECRET_ACCESS_KEY", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 3, cfg.TagRetry.Attempts)
	assert.Equal(t, 30*time.Second, cfg.SubnetWaitTimeout)
	assert.Equal(t, "AKIA", cfg.ClientConfig("").AccessKeyID)

	m, err := cfg.ResourceModel()
	require.NoError(t, err)
	assert.Equal(t, models.VPCModeSingle, m.VPCMode)
	assert.Equal(t, "vpc-mgmt", m.MgmtVPCID)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
		want string
	}{
		{name: "bad yaml", body: "region: [", want: "parse config file"},
		{name: "bad level", body: "log:\n  level: loud\n", want: "invalid log level"},
		{name: "bad format", body: "log:\n  format: xml\n", want: "log.format"},
		{name: "bad mode", body: "attributes:\n  VPC Mode: hybrid\n", want: "unknown VPC mode"},
		{name: "shared without vpc", body: "attributes:\n  VPC Mode: Shared\n", want: "Shared VPC ID"},
		{name: "half credentials", body: "credentials:\n  access_key_id: AKIA\n", want: "must be set together"},
		{name: "bad env duration", env: map[string]string{"CPAWS_TAG_RETRY_INTERVAL": "soon"}, want: "CPAWS_TAG_RETRY_INTERVAL"},
		{name: "bad env attempts", env: map[string]string{"CPAWS_TAG_RETRY_ATTEMPTS": "many"}, want: "CPAWS_TAG_RETRY_ATTEMPTS"},
		{name: "negative attempts", body: "tag_retry:\n  attempts: -1\n", want: "tag_retry.attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.body != "" {
				path = writeConfig(t, tt.body)
			}
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}
