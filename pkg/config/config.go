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

// Config holds the lxt application configuration
type Config struct {
	ControlPlane  string        `mapstructure:"control_plane"`
	Firewall      string        `mapstructure:"firewall"`
	NATChain      string        `mapstructure:"nat_chain"`
	UseSudo       bool          `mapstructure:"use_sudo"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
	SetupCommand  string        `mapstructure:"setup_command"`
	SSHUser       string        `mapstructure:"ssh_user"`
	RecordSubpath string        `mapstructure:"record_subpath"`
	DiskImage     string        `mapstructure:"disk_image"`
	PrivateKey    string        `mapstructure:"private_key"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ControlPlane:  "lxc",
		Firewall:      "iptables",
		NATChain:      "PREROUTING",
		UseSudo:       true,
		SettleDelay:   7 * time.Second,
		SetupCommand:  "./setup.sh {name}",
		SSHUser:       "ubuntu",
		RecordSubpath: ".conf/ct.yml",
		DiskImage:     ".conf/disk/disk.img",
		PrivateKey:    ".conf/private_key",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ControlPlane == "" {
		return fmt.Errorf("control plane binary cannot be empty")
	}
	if c.Firewall == "" {
		return fmt.Errorf("firewall binary cannot be empty")
	}
	if c.NATChain == "" {
		return fmt.Errorf("nat chain cannot be empty")
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle delay must not be negative")
	}
	if c.SSHUser == "" {
		return fmt.Errorf("ssh user cannot be empty")
	}
	for name, p := range map[string]string{
		"record_subpath": c.RecordSubpath,
		"disk_image":     c.DiskImage,
		"private_key":    c.PrivateKey,
	} {
		if p == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
		if filepath.IsAbs(p) {
			return fmt.Errorf("%s must be relative to the container directory", name)
		}
	}
	return nil
}

// GetConfigPath returns the default config file path
func GetConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "lxt", "config.yaml")
}

// ExpandPath expands ~ to home directory
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// Load reads the config file at path on top of the defaults. A missing file
// is not an error. LXT_* environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("LXT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(ExpandPath(path))
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadConfig loads the config from the default path.
func LoadConfig() (*Config, error) {
	return Load(GetConfigPath())
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("control_plane", d.ControlPlane)
	v.SetDefault("firewall", d.Firewall)
	v.SetDefault("nat_chain", d.NATChain)
	v.SetDefault("use_sudo", d.UseSudo)
	v.SetDefault("settle_delay", d.SettleDelay)
	v.SetDefault("setup_command", d.SetupCommand)
	v.SetDefault("ssh_user", d.SSHUser)
	v.SetDefault("record_subpath", d.RecordSubpath)
	v.SetDefault("disk_image", d.DiskImage)
	v.SetDefault("private_key", d.PrivateKey)
}
