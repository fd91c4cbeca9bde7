// Package config loads application configuration from environment variables
// and an optional YAML file, environment taking precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete application configuration for both deployment
// shapes: the cloud licensing server and a self-hosted agent.
type Config struct {
	Server       ServerConfig       `yaml:"server" envconfig:"SERVER"`
	Logging      LoggingConfig      `yaml:"logging" envconfig:"LOGGING"`
	Licensing    LicensingConfig    `yaml:"licensing" envconfig:"LICENSING"`
	Installation InstallationConfig `yaml:"installation" envconfig:"INSTALLATION"`
	Cloud        CloudConfig        `yaml:"cloud" envconfig:"CLOUD"`
	BillingSync  BillingSyncConfig  `yaml:"billing_sync" envconfig:"BILLING_SYNC"`
	Registry     RegistryConfig     `yaml:"registry" envconfig:"REGISTRY"`

	// SelfHosted marks this deployment as self-hosted. License sync is only
	// meaningful on self-hosted deployments.
	SelfHosted bool `yaml:"self_hosted" envconfig:"SELF_HOSTED" default:"false"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration for the issuance
// endpoints.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"10"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"20"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/lockbox.log"`
}

// LicensingConfig contains the signing and verification key material and the
// location of the stored license on self-hosted deployments.
type LicensingConfig struct {
	// SigningKeyFile is the PEM RSA private key used to sign issued
	// licenses. Cloud side only.
	SigningKeyFile string `yaml:"signing_key_file" envconfig:"SIGNING_KEY_FILE"`
	// SigningKeyID names the signing key in minted tokens.
	SigningKeyID string `yaml:"signing_key_id" envconfig:"SIGNING_KEY_ID" default:"licensing-1"`
	// TrustedKeyFiles maps key id to PEM RSA public key file. A verifier may
	// trust several keys during a rotation window.
	TrustedKeyFiles map[string]string `yaml:"trusted_key_files" envconfig:"TRUSTED_KEY_FILES"`
	// LicenseFile is where a self-hosted deployment stores its synced
	// organization license.
	LicenseFile string `yaml:"license_file" envconfig:"LICENSE_FILE" default:"data/license.json"`
}

// InstallationConfig identifies a registered self-hosted deployment to the
// cloud billing authority.
type InstallationConfig struct {
	ID  string `yaml:"id" envconfig:"ID" validate:"omitempty,uuid4"`
	Key string `yaml:"key" envconfig:"KEY"`
}

// CloudConfig contains the remote endpoints a self-hosted deployment syncs
// against.
type CloudConfig struct {
	IdentityURL string `yaml:"identity_url" envconfig:"IDENTITY_URL" default:"https://identity.lockbox.example.com" validate:"url"`
	APIURL      string `yaml:"api_url" envconfig:"API_URL" default:"https://api.lockbox.example.com" validate:"url"`

	// EnableCloudCommunication gates every outbound call. Air-gapped
	// deployments turn this off and sideload licenses instead.
	EnableCloudCommunication bool          `yaml:"enable_cloud_communication" envconfig:"ENABLE_CLOUD_COMMUNICATION" default:"true"`
	SyncTimeout              time.Duration `yaml:"sync_timeout" envconfig:"SYNC_TIMEOUT" default:"30s"`
}

// BillingSyncConfig is the self-hosted connection to a cloud organization.
// Sync attempts fail fast unless the connection is enabled and well formed.
type BillingSyncConfig struct {
	Enabled        bool   `yaml:"enabled" envconfig:"ENABLED" default:"false"`
	Key            string `yaml:"key" envconfig:"KEY"`
	OrganizationID string `yaml:"organization_id" envconfig:"ORGANIZATION_ID" validate:"omitempty,uuid4"`
	// LicenseKey is the subscriber license key presented alongside the sync
	// key. The stored license's key wins once a license has been synced.
	LicenseKey string `yaml:"license_key" envconfig:"LICENSE_KEY"`
}

// RegistryConfig locates the cloud side's installation and organization
// registries.
type RegistryConfig struct {
	InstallationsFile string `yaml:"installations_file" envconfig:"INSTALLATIONS_FILE" default:"data/installations.json"`
	OrganizationsFile string `yaml:"organizations_file" envconfig:"ORGANIZATIONS_FILE" default:"data/organizations.json"`
}

// Load loads configuration from environment variables and an optional config
// file. Environment variables win.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("LOCKBOX", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	configFile := configFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileCfg, bools, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config from file: %w", err)
		}
		cfg = merge(*fileCfg, cfg, bools)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// fileBools records which boolean fields the config file actually sets.
// Booleans carry envconfig defaults after processing, so a plain zero check
// cannot tell "unset" from "false" on either side of the merge.
type fileBools struct {
	SelfHosted *bool `yaml:"self_hosted"`
	Server     struct {
		RateLimit struct {
			Enabled *bool `yaml:"enabled"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Cloud struct {
		EnableCloudCommunication *bool `yaml:"enable_cloud_communication"`
	} `yaml:"cloud"`
	BillingSync struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"billing_sync"`
}

func loadFromFile(path string) (*Config, fileBools, error) {
	var bools fileBools
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, bools, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, bools, err
	}
	if err := yaml.Unmarshal(data, &bools); err != nil {
		return nil, bools, err
	}
	return &cfg, bools, nil
}

func configFilePath() string {
	if path := os.Getenv("LOCKBOX_CONFIG_FILE"); path != "" {
		return path
	}
	return filepath.Join(".", "lockbox.yaml")
}

// merge overlays env-supplied values onto the file config. Environment
// values are only applied where they differ from the zero value, so the file
// remains the base. Booleans are resolved from the raw environment because
// their envconfig defaults make the zero check meaningless.
func merge(file, env Config, bools fileBools) Config {
	out := file
	if env.Server.Port != 0 {
		out.Server.Port = env.Server.Port
	}
	if env.Server.ReadTimeout != 0 {
		out.Server.ReadTimeout = env.Server.ReadTimeout
	}
	if env.Server.WriteTimeout != 0 {
		out.Server.WriteTimeout = env.Server.WriteTimeout
	}
	if env.Server.IdleTimeout != 0 {
		out.Server.IdleTimeout = env.Server.IdleTimeout
	}
	if env.Server.ShutdownTimeout != 0 {
		out.Server.ShutdownTimeout = env.Server.ShutdownTimeout
	}
	if env.Server.RateLimit.RPS != 0 {
		out.Server.RateLimit.RPS = env.Server.RateLimit.RPS
	}
	if env.Server.RateLimit.Burst != 0 {
		out.Server.RateLimit.Burst = env.Server.RateLimit.Burst
	}
	if env.Logging.Level != "" {
		out.Logging.Level = env.Logging.Level
	}
	if env.Logging.Format != "" {
		out.Logging.Format = env.Logging.Format
	}
	if env.Logging.Output != "" {
		out.Logging.Output = env.Logging.Output
	}
	if env.Logging.FilePath != "" {
		out.Logging.FilePath = env.Logging.FilePath
	}
	if env.Licensing.SigningKeyFile != "" {
		out.Licensing.SigningKeyFile = env.Licensing.SigningKeyFile
	}
	if env.Licensing.SigningKeyID != "" {
		out.Licensing.SigningKeyID = env.Licensing.SigningKeyID
	}
	if len(env.Licensing.TrustedKeyFiles) != 0 {
		out.Licensing.TrustedKeyFiles = env.Licensing.TrustedKeyFiles
	}
	if env.Licensing.LicenseFile != "" {
		out.Licensing.LicenseFile = env.Licensing.LicenseFile
	}
	if env.Installation.ID != "" {
		out.Installation.ID = env.Installation.ID
	}
	if env.Installation.Key != "" {
		out.Installation.Key = env.Installation.Key
	}
	if env.Cloud.IdentityURL != "" {
		out.Cloud.IdentityURL = env.Cloud.IdentityURL
	}
	if env.Cloud.APIURL != "" {
		out.Cloud.APIURL = env.Cloud.APIURL
	}
	if env.Cloud.SyncTimeout != 0 {
		out.Cloud.SyncTimeout = env.Cloud.SyncTimeout
	}
	if env.BillingSync.Key != "" {
		out.BillingSync.Key = env.BillingSync.Key
	}
	if env.BillingSync.OrganizationID != "" {
		out.BillingSync.OrganizationID = env.BillingSync.OrganizationID
	}
	if env.BillingSync.LicenseKey != "" {
		out.BillingSync.LicenseKey = env.BillingSync.LicenseKey
	}
	if env.Registry.InstallationsFile != "" {
		out.Registry.InstallationsFile = env.Registry.InstallationsFile
	}
	if env.Registry.OrganizationsFile != "" {
		out.Registry.OrganizationsFile = env.Registry.OrganizationsFile
	}
	out.Server.RateLimit.Enabled = resolveBool(env.Server.RateLimit.Enabled, bools.Server.RateLimit.Enabled, "SERVER_RATE_LIMIT_ENABLED")
	out.Cloud.EnableCloudCommunication = resolveBool(env.Cloud.EnableCloudCommunication, bools.Cloud.EnableCloudCommunication, "CLOUD_ENABLE_CLOUD_COMMUNICATION")
	out.BillingSync.Enabled = resolveBool(env.BillingSync.Enabled, bools.BillingSync.Enabled, "BILLING_SYNC_ENABLED")
	out.SelfHosted = resolveBool(env.SelfHosted, bools.SelfHosted, "SELF_HOSTED")
	return out
}

// resolveBool picks the environment value when the operator set the variable
// explicitly, otherwise the file value when the file sets one, otherwise the
// envconfig default.
func resolveBool(envVal bool, fileVal *bool, name string) bool {
	if _, ok := os.LookupEnv("LOCKBOX_" + name); ok {
		return envVal
	}
	if fileVal != nil {
		return *fileVal
	}
	return envVal
}

// Validate checks structural validity of the loaded configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	return nil
}
