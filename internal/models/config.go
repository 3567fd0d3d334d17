// Package models contains the data structures used throughout fz-backup.
package models

import "time"

// Transport kinds for reaching a device.
const (
	TransportSSH   = "ssh"
	TransportLocal = "local"
)

// BackupConfig holds the complete configuration for a backup run.
type BackupConfig struct {
	Device   DeviceConfig
	Backup   BackupSettings
	Transfer TransferSettings
	WOL      *WOLConfig      // nil if not configured
	Telegram *TelegramConfig // nil if not configured
}

// DeviceConfig describes how to reach the device being backed up.
type DeviceConfig struct {
	Name      string // optional identity override
	Transport string // "ssh" (default) or "local"

	// SSH transport.
	Host          string
	Port          int
	Username      string
	Password      string
	KeyPath       string
	PrivateKey    []byte // in-memory key, used instead of KeyPath when set
	SSHConfigHost string // alias resolved from ~/.ssh/config
	Timeout       time.Duration

	// Local transport.
	Root string // local directory standing in for the device's "/"
}

// BackupSettings holds backup-specific settings.
type BackupSettings struct {
	Directory   string   // base directory for auto-named backup roots
	MountPoints []string // remote roots to traverse
}

// TransferSettings controls the transfer phase.
type TransferSettings struct {
	Workers          int           // parallel transfers, 1 is sequential
	Retries          int           // extra read attempts per file
	RetryDelay       time.Duration // pause between read attempts
	ContinueOnError  bool          // record failures and keep going
	ProgressInterval time.Duration // how often progress is logged, 0 disables
}

// DefaultMountPoints returns the roots traversed when none are configured.
func DefaultMountPoints() []string {
	return []string{"/int", "/ext"}
}
