package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Storage    StorageConfig    `toml:"storage"`
	Uploader   UploaderConfig   `toml:"uploader"`
	Upload     UploadConfig     `toml:"upload"`
	Playlists  PlaylistsConfig  `toml:"playlists"`
	Auth       AuthConfig       `toml:"auth"`
	Notify     NotifyConfig     `toml:"notify"`
	Classifier ClassifierConfig `toml:"classifier"`
	Database   DatabaseConfig   `toml:"database"`
	Log        LogConfig        `toml:"log"`
}

// StorageConfig locates recorded sessions and the persisted state files.
type StorageConfig struct {
	Root          string `toml:"root"`
	StateDir      string `toml:"state_dir"`
	LedgerFile    string `toml:"ledger_file"`
	PlaylistsFile string `toml:"playlists_file"`
	QuotaFile     string `toml:"quota_file"`
}

// UploaderConfig describes how the external uploader binary is invoked.
type UploaderConfig struct {
	Bin           string `toml:"bin"`
	ClientSecrets string `toml:"client_secrets"`
	TokenCache    string `toml:"token_cache"`
	WorkDir       string `toml:"work_dir"`
	Quiet         bool   `toml:"quiet"`
}

// UploadConfig contains per-run upload policy.
type UploadConfig struct {
	Visibility      string   `toml:"visibility"`
	MaxPerRun       int      `toml:"max_per_run"`
	CapPolicy       string   `toml:"cap_policy"`
	QuotaCooldown   Duration `toml:"quota_cooldown"`
	Language        string   `toml:"language"`
	FixedTag        string   `toml:"fixed_tag"`
	ThumbnailWidth  int      `toml:"thumbnail_width"`
	ThumbnailHeight int      `toml:"thumbnail_height"`
}

// PlaylistsConfig selects the remote playlist backend.
type PlaylistsConfig struct {
	Mode string `toml:"mode"`
}

// AuthConfig controls the reaction to expired credentials.
type AuthConfig struct {
	Mode         string   `toml:"mode"`
	PollInterval Duration `toml:"poll_interval"`
	WaitTimeout  Duration `toml:"wait_timeout"`
}

// NotifyConfig contains webhook notification settings.
type NotifyConfig struct {
	WebhookURL string  `toml:"webhook_url"`
	Rate       float64 `toml:"rate"`
}

// ClassifierConfig overrides the diagnostic substrings used to classify uploader failures.
// Empty lists keep the built-in patterns.
type ClassifierConfig struct {
	Quota      []string `toml:"quota"`
	Auth       []string `toml:"auth"`
	Validation []string `toml:"validation"`
}

// DatabaseConfig contains database connection settings for the attempt journal.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

const (
	CapPolicyOwner = "owner"
	CapPolicyHard  = "hard"

	AuthModeWait = "wait"
	AuthModeExit = "exit"

	PlaylistModeAPI      = "api"
	PlaylistModeUploader = "uploader"
)

// Duration is a [time.Duration] that decodes from strings such as "24h" or "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LedgerPath returns the upload ledger location inside the state directory.
func (c *Config) LedgerPath() string {
	return c.statePath(c.Storage.LedgerFile)
}

// PlaylistsPath returns the playlist directory location inside the state directory.
func (c *Config) PlaylistsPath() string {
	return c.statePath(c.Storage.PlaylistsFile)
}

// QuotaPath returns the quota cooldown state location inside the state directory.
func (c *Config) QuotaPath() string {
	return c.statePath(c.Storage.QuotaFile)
}

// LockPath returns the run lock location inside the state directory.
func (c *Config) LockPath() string {
	return c.statePath(".vodsync.lock")
}

func (c *Config) statePath(name string) string {
	if filepath.IsAbs(name) || c.Storage.StateDir == "" {
		return name
	}
	return filepath.Join(c.Storage.StateDir, name)
}

// Validate checks enumerated settings and numeric bounds.
func (c *Config) Validate() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("%w: storage.root is required", ErrInvalidConfig)
	}
	if c.Uploader.Bin == "" {
		return fmt.Errorf("%w: uploader.bin is required", ErrInvalidConfig)
	}
	switch c.Upload.Visibility {
	case "private", "unlisted", "public":
	default:
		return fmt.Errorf("%w: upload.visibility %q", ErrInvalidConfig, c.Upload.Visibility)
	}
	if c.Upload.MaxPerRun < 0 {
		return fmt.Errorf("%w: upload.max_per_run must not be negative", ErrInvalidConfig)
	}
	switch c.Upload.CapPolicy {
	case CapPolicyOwner, CapPolicyHard:
	default:
		return fmt.Errorf("%w: upload.cap_policy %q", ErrInvalidConfig, c.Upload.CapPolicy)
	}
	if c.Upload.QuotaCooldown.Duration <= 0 {
		return fmt.Errorf("%w: upload.quota_cooldown must be positive", ErrInvalidConfig)
	}
	switch c.Auth.Mode {
	case AuthModeWait, AuthModeExit:
	default:
		return fmt.Errorf("%w: auth.mode %q", ErrInvalidConfig, c.Auth.Mode)
	}
	switch c.Playlists.Mode {
	case PlaylistModeAPI, PlaylistModeUploader:
	default:
		return fmt.Errorf("%w: playlists.mode %q", ErrInvalidConfig, c.Playlists.Mode)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values from [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
