package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fgeck/fz-backup/internal/config"
	"github.com/fgeck/fz-backup/internal/models"
	"github.com/fgeck/fz-backup/internal/services/ssh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var testConnection bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the configuration file without executing any backup operations.

With --connect the SSH credentials are checked against the device as well.`,
	RunE: validateConfig,
}

func init() {
	validateCmd.Flags().BoolVar(&testConnection, "connect", false, "also test the SSH connection to the device")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		_ = cmd.Help()
		return errors.New("config file is required")
	}

	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	// Load configuration
	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to parse config")
		return err
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Device:")
	if cfg.Device.Name != "" {
		fmt.Printf("  Name: %s\n", cfg.Device.Name)
	}
	fmt.Printf("  Transport: %s\n", cfg.Device.Transport)
	switch cfg.Device.Transport {
	case models.TransportLocal:
		fmt.Printf("  Root: %s\n", cfg.Device.Root)
	default:
		if cfg.Device.SSHConfigHost != "" {
			fmt.Printf("  SSH config host: %s\n", cfg.Device.SSHConfigHost)
		} else {
			fmt.Printf("  Host: %s\n", cfg.Device.Host)
			fmt.Printf("  Port: %d\n", cfg.Device.Port)
			fmt.Printf("  Username: %s\n", cfg.Device.Username)
		}
		fmt.Printf("  Timeout: %s\n", cfg.Device.Timeout)
	}
	fmt.Println()
	fmt.Println("Backup:")
	fmt.Printf("  Directory: %s\n", cfg.Backup.Directory)
	fmt.Printf("  Mount points: %s\n", strings.Join(cfg.Backup.MountPoints, ", "))
	fmt.Println()
	fmt.Println("Transfer:")
	fmt.Printf("  Workers: %d\n", cfg.Transfer.Workers)
	fmt.Printf("  Retries: %d (delay %s)\n", cfg.Transfer.Retries, cfg.Transfer.RetryDelay)
	fmt.Printf("  Continue on error: %v\n", cfg.Transfer.ContinueOnError)
	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Wake-on-LAN: %v\n", cfg.WOL != nil)
	fmt.Printf("  Telegram: %v\n", cfg.Telegram != nil)

	if cfg.WOL != nil {
		fmt.Println()
		fmt.Println("WOL Configuration:")
		fmt.Printf("  MAC Address: %s\n", cfg.WOL.MACAddress)
		fmt.Printf("  Broadcast IP: %s\n", cfg.WOL.BroadcastIP)
		if cfg.WOL.WaitAddress != "" {
			fmt.Printf("  Wait address: %s\n", cfg.WOL.WaitAddress)
		}
	}

	if cfg.Telegram != nil {
		fmt.Println()
		fmt.Println("Telegram Configuration:")
		fmt.Printf("  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Printf("  Bot Token: (configured)\n")
	}

	if !testConnection {
		return nil
	}

	if cfg.Device.Transport != models.TransportSSH {
		log.Warn().Str("transport", cfg.Device.Transport).Msg("connection test only applies to the ssh transport")
		return nil
	}

	fmt.Println()
	result, err := ssh.New(log.Logger).TestConnection(context.Background(), cfg.Device)
	if err != nil {
		log.Error().Err(err).Msg("connection test failed")
		return err
	}
	if result.Error != nil {
		log.Error().Err(result.Error).Msg("connection test failed")
		return result.Error
	}
	fmt.Printf("Connection: OK (%s)\n", strings.TrimSpace(string(result.Output)))

	return nil
}
