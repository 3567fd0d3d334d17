package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/fgeck/fz-backup/internal/config"
	"github.com/fgeck/fz-backup/internal/models"
	"github.com/fgeck/fz-backup/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var outputDir string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Back up the device",
	Long: `Execute the complete backup workflow:
1. Wake-on-LAN (if configured)
2. Connect to the device
3. Create the backup root (--output, or <backup.directory>/<device>_<timestamp>)
4. Discover every directory and file under the mount points
5. Recreate the directory tree locally
6. Copy every file
7. Send Telegram notification (if configured)

The first failure stops the run unless transfer.continue_on_error is set.`,
	RunE: runBackup,
}

func init() {
	runCmd.Flags().StringVarP(&outputDir, "output", "o", "", "write the backup into this directory instead of a generated one")
}

func runBackup(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		_ = cmd.Help()
		return errors.New("config file is required")
	}

	// Load configuration
	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return err
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return err
	}

	log.Info().
		Str("config", configFile).
		Str("transport", cfg.Device.Transport).
		Str("host", cfg.Device.Host).
		Msg("configuration loaded")

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Run backup
	runnerSvc := runner.New(log.Logger)
	result, err := runnerSvc.Run(ctx, *cfg, outputDir)
	if err != nil {
		var pe *models.PhaseError
		if errors.As(err, &pe) {
			log.Error().
				Err(pe.Err).
				Str("state", string(result.State)).
				Str("phase", string(pe.Phase)).
				Str("path", pe.Path).
				Int("completed", result.Completed).
				Int("total", result.TotalFiles).
				Msg("backup failed")
		} else {
			log.Error().Err(err).Msg("backup failed")
		}
		return err
	}

	log.Info().
		Str("root", result.BackupRoot).
		Int("files", result.Completed).
		Str("written", humanize.Bytes(uint64(result.BytesWritten))).
		Msg("backup completed successfully")
	return nil
}
