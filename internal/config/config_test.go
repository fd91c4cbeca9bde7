package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadWithEnv(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	if _, ok := env["LOCKBOX_CONFIG_FILE"]; !ok {
		// Point at a file that does not exist so a stray lockbox.yaml in the
		// working directory cannot leak into the test.
		env["LOCKBOX_CONFIG_FILE"] = filepath.Join(t.TempDir(), "absent.yaml")
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
	return Load()
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadWithEnv(t, map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.True(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "licensing-1", cfg.Licensing.SigningKeyID)
	assert.Equal(t, "data/license.json", cfg.Licensing.LicenseFile)
	assert.Equal(t, 30*time.Second, cfg.Cloud.SyncTimeout)
	assert.True(t, cfg.Cloud.EnableCloudCommunication)
	assert.False(t, cfg.SelfHosted)
	assert.False(t, cfg.BillingSync.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("LOCKBOX_SERVER_PORT", "9090")
	t.Setenv("LOCKBOX_SELF_HOSTED", "true")
	t.Setenv("LOCKBOX_BILLING_SYNC_ENABLED", "true")
	t.Setenv("LOCKBOX_BILLING_SYNC_ORGANIZATION_ID", "5f4c8128-a5d1-4a02-9c6d-3d4bbf1a9a01")
	t.Setenv("LOCKBOX_INSTALLATION_ID", "91f1a1f7-58c1-4a34-9f62-7e2f5f6f2b11")
	t.Setenv("LOCKBOX_INSTALLATION_KEY", "installation-secret-0001")
	t.Setenv("LOCKBOX_CLOUD_IDENTITY_URL", "https://identity.example.test")
	t.Setenv("LOCKBOX_CLOUD_ENABLE_CLOUD_COMMUNICATION", "false")

	cfg, err := loadWithEnv(t, map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.SelfHosted)
	assert.True(t, cfg.BillingSync.Enabled)
	assert.Equal(t, "5f4c8128-a5d1-4a02-9c6d-3d4bbf1a9a01", cfg.BillingSync.OrganizationID)
	assert.Equal(t, "installation-secret-0001", cfg.Installation.Key)
	assert.Equal(t, "https://identity.example.test", cfg.Cloud.IdentityURL)
	assert.False(t, cfg.Cloud.EnableCloudCommunication)
}

func TestLoadMergesConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "lockbox.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
installation:
  key: file-installation-key
billing_sync:
  key: file-sync-key
  license_key: file-license-key
licensing:
  signing_key_file: /etc/lockbox/signing.pem
`), 0o600))

	cfg, err := loadWithEnv(t, map[string]string{
		"LOCKBOX_CONFIG_FILE":      file,
		"LOCKBOX_BILLING_SYNC_KEY": "env-sync-key",
	})
	require.NoError(t, err)

	// Environment wins where set; the file fills in the rest.
	assert.Equal(t, "env-sync-key", cfg.BillingSync.Key)
	assert.Equal(t, "file-installation-key", cfg.Installation.Key)
	assert.Equal(t, "file-license-key", cfg.BillingSync.LicenseKey)
	assert.Equal(t, "/etc/lockbox/signing.pem", cfg.Licensing.SigningKeyFile)
}

func TestLoadFileBooleans(t *testing.T) {
	writeConfig := func(t *testing.T, body string) string {
		t.Helper()
		file := filepath.Join(t.TempDir(), "lockbox.yaml")
		require.NoError(t, os.WriteFile(file, []byte(body), 0o600))
		return file
	}

	t.Run("file booleans survive the merge without env overrides", func(t *testing.T) {
		file := writeConfig(t, `
self_hosted: true
server:
  rate_limit:
    enabled: false
cloud:
  enable_cloud_communication: false
billing_sync:
  enabled: true
`)
		cfg, err := loadWithEnv(t, map[string]string{"LOCKBOX_CONFIG_FILE": file})
		require.NoError(t, err)

		assert.True(t, cfg.SelfHosted)
		assert.False(t, cfg.Server.RateLimit.Enabled)
		assert.False(t, cfg.Cloud.EnableCloudCommunication)
		assert.True(t, cfg.BillingSync.Enabled)
	})

	t.Run("explicit env booleans win in both directions", func(t *testing.T) {
		file := writeConfig(t, `
cloud:
  enable_cloud_communication: false
billing_sync:
  enabled: true
`)
		cfg, err := loadWithEnv(t, map[string]string{
			"LOCKBOX_CONFIG_FILE":                      file,
			"LOCKBOX_CLOUD_ENABLE_CLOUD_COMMUNICATION": "true",
			"LOCKBOX_BILLING_SYNC_ENABLED":             "false",
		})
		require.NoError(t, err)

		assert.True(t, cfg.Cloud.EnableCloudCommunication)
		assert.False(t, cfg.BillingSync.Enabled)
	})

	t.Run("booleans absent from the file keep their defaults", func(t *testing.T) {
		file := writeConfig(t, `
installation:
  key: file-installation-key
`)
		cfg, err := loadWithEnv(t, map[string]string{"LOCKBOX_CONFIG_FILE": file})
		require.NoError(t, err)

		assert.True(t, cfg.Cloud.EnableCloudCommunication)
		assert.True(t, cfg.Server.RateLimit.Enabled)
		assert.False(t, cfg.SelfHosted)
		assert.False(t, cfg.BillingSync.Enabled)
	})

	t.Run("a config file does not zero the rate limit", func(t *testing.T) {
		file := writeConfig(t, `
installation:
  key: file-installation-key
`)
		cfg, err := loadWithEnv(t, map[string]string{"LOCKBOX_CONFIG_FILE": file})
		require.NoError(t, err)

		assert.Equal(t, float64(10), cfg.Server.RateLimit.RPS)
		assert.Equal(t, 20, cfg.Server.RateLimit.Burst)
	})
}

func TestLoadValidation(t *testing.T) {
	t.Run("rejects an out of range port", func(t *testing.T) {
		_, err := loadWithEnv(t, map[string]string{"LOCKBOX_SERVER_PORT": "70000"})
		assert.Error(t, err)
	})

	t.Run("rejects an unknown logging level", func(t *testing.T) {
		_, err := loadWithEnv(t, map[string]string{"LOCKBOX_LOGGING_LEVEL": "verbose"})
		assert.Error(t, err)
	})

	t.Run("rejects a malformed installation id", func(t *testing.T) {
		_, err := loadWithEnv(t, map[string]string{"LOCKBOX_INSTALLATION_ID": "not-a-uuid"})
		assert.Error(t, err)
	})
}
