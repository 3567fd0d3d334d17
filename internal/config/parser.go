// Package config provides configuration file parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fgeck/fz-backup/internal/models"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Defaults applied when a field is left out of the config file.
const (
	DefaultPort             = 22
	DefaultUsername         = "root"
	DefaultTimeout          = 30 * time.Second
	DefaultBackupsDir       = "backups"
	DefaultWorkers          = 1
	DefaultRetryDelay       = 2 * time.Second
	DefaultProgressInterval = 5 * time.Second
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.BackupConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.BackupConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.BackupConfig, error) {
	cfg := &models.BackupConfig{}

	// Parse device config (required).
	if !p.v.IsSet("device") {
		return nil, errors.New("device is required")
	}

	keyPath, err := p.expandPath(p.v.GetString("device.key_path"))
	if err != nil {
		return nil, fmt.Errorf("device.key_path: %w", err)
	}
	root, err := p.expandPath(p.v.GetString("device.root"))
	if err != nil {
		return nil, fmt.Errorf("device.root: %w", err)
	}

	cfg.Device = models.DeviceConfig{
		Name:          p.expandEnv(p.v.GetString("device.name")),
		Transport:     strings.ToLower(p.v.GetString("device.transport")),
		Host:          p.expandEnv(p.v.GetString("device.host")),
		Port:          p.v.GetInt("device.port"),
		Username:      p.expandEnv(p.v.GetString("device.username")),
		Password:      p.expandEnv(p.v.GetString("device.password")),
		KeyPath:       keyPath,
		SSHConfigHost: p.v.GetString("device.ssh_config_host"),
		Timeout:       p.v.GetDuration("device.timeout"),
		Root:          root,
	}

	if cfg.Device.Transport == "" {
		cfg.Device.Transport = models.TransportSSH
	}
	if cfg.Device.Port == 0 {
		cfg.Device.Port = DefaultPort
	}
	if cfg.Device.Username == "" {
		cfg.Device.Username = DefaultUsername
	}
	if cfg.Device.Timeout == 0 {
		cfg.Device.Timeout = DefaultTimeout
	}

	// Parse backup settings.
	directory, err := p.expandPath(p.v.GetString("backup.directory"))
	if err != nil {
		return nil, fmt.Errorf("backup.directory: %w", err)
	}
	cfg.Backup = models.BackupSettings{
		Directory:   directory,
		MountPoints: p.v.GetStringSlice("backup.mount_points"),
	}

	if cfg.Backup.Directory == "" {
		cfg.Backup.Directory = DefaultBackupsDir
	}
	if len(cfg.Backup.MountPoints) == 0 {
		cfg.Backup.MountPoints = models.DefaultMountPoints()
	}

	// Parse transfer settings.
	cfg.Transfer = models.TransferSettings{
		Workers:          p.v.GetInt("transfer.workers"),
		Retries:          p.v.GetInt("transfer.retries"),
		RetryDelay:       p.v.GetDuration("transfer.retry_delay"),
		ContinueOnError:  p.v.GetBool("transfer.continue_on_error"),
		ProgressInterval: DefaultProgressInterval,
	}

	if cfg.Transfer.Workers == 0 {
		cfg.Transfer.Workers = DefaultWorkers
	}
	if cfg.Transfer.RetryDelay == 0 {
		cfg.Transfer.RetryDelay = DefaultRetryDelay
	}
	// An explicit 0 turns progress logging off.
	if p.v.IsSet("transfer.progress_interval") {
		cfg.Transfer.ProgressInterval = p.v.GetDuration("transfer.progress_interval")
	}

	// Parse optional WOL config.
	if p.v.IsSet("wol") { //nolint:nestif // config parsing with defaults
		cfg.WOL = &models.WOLConfig{
			MACAddress:    p.v.GetString("wol.mac_address"),
			BroadcastIP:   p.v.GetString("wol.broadcast_ip"),
			WaitAddress:   p.v.GetString("wol.wait_address"),
			Timeout:       p.v.GetDuration("wol.timeout"),
			PollInterval:  p.v.GetDuration("wol.poll_interval"),
			StabilizeWait: p.v.GetDuration("wol.stabilize_wait"),
		}

		if cfg.WOL.MACAddress == "" {
			return nil, errors.New("wol.mac_address is required when wol is configured")
		}

		// Set defaults.
		if cfg.WOL.BroadcastIP == "" {
			cfg.WOL.BroadcastIP = "255.255.255.255"
		}
		if cfg.WOL.Timeout == 0 {
			cfg.WOL.Timeout = 5 * time.Minute
		}
		if cfg.WOL.PollInterval == 0 {
			cfg.WOL.PollInterval = 10 * time.Second
		}
		if cfg.WOL.StabilizeWait == 0 {
			cfg.WOL.StabilizeWait = 10 * time.Second
		}
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, errors.New("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, errors.New("telegram.chat_id is required when telegram is configured")
		}
	}

	return cfg, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// expandPath expands environment variables and a leading ~.
func (p *Parser) expandPath(s string) (string, error) {
	return homedir.Expand(p.expandEnv(s))
}

// Validate performs validation on the loaded configuration.
//
//nolint:gocyclo // one check per field
func Validate(cfg *models.BackupConfig) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}

	switch cfg.Device.Transport {
	case models.TransportSSH:
		if cfg.Device.Host == "" && cfg.Device.SSHConfigHost == "" {
			return errors.New("device.host or device.ssh_config_host is required for the ssh transport")
		}
		if cfg.Device.SSHConfigHost == "" && cfg.Device.KeyPath == "" &&
			cfg.Device.Password == "" && len(cfg.Device.PrivateKey) == 0 {
			return errors.New("device.key_path or device.password is required for the ssh transport")
		}
		if cfg.Device.Port < 1 || cfg.Device.Port > 65535 {
			return fmt.Errorf("device.port %d is out of range", cfg.Device.Port)
		}
	case models.TransportLocal:
		if cfg.Device.Root == "" {
			return errors.New("device.root is required for the local transport")
		}
	default:
		return fmt.Errorf("device.transport must be one of: ssh, local (got %q)", cfg.Device.Transport)
	}

	if cfg.Backup.Directory == "" {
		return errors.New("backup.directory is required")
	}

	for _, mp := range cfg.Backup.MountPoints {
		if strings.TrimSpace(mp) == "" {
			return fmt.Errorf("backup.mount_points contains an empty entry %q", mp)
		}
	}

	if cfg.Transfer.Workers < 1 {
		return errors.New("transfer.workers must be at least 1")
	}
	if cfg.Transfer.Retries < 0 {
		return errors.New("transfer.retries must not be negative")
	}
	if cfg.Transfer.RetryDelay < 0 || cfg.Transfer.ProgressInterval < 0 {
		return errors.New("transfer durations must not be negative")
	}

	return nil
}
