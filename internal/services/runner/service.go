// Package runner orchestrates the backup workflow.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fgeck/fz-backup/internal/models"
	"github.com/fgeck/fz-backup/internal/pathmap"
	"github.com/fgeck/fz-backup/internal/services/device"
	"github.com/fgeck/fz-backup/internal/services/discovery"
	"github.com/fgeck/fz-backup/internal/services/progress"
	"github.com/fgeck/fz-backup/internal/services/telegram"
	"github.com/fgeck/fz-backup/internal/services/transfer"
	"github.com/fgeck/fz-backup/internal/services/wol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	dirPerm          = 0o750
	timestampLayout  = "20060102_150405"
	notifyTimeout    = 30 * time.Second
	fallbackIdentity = "device"
)

// Service defines the interface for the backup runner.
type Service interface {
	Run(ctx context.Context, cfg models.BackupConfig, destination string) (*models.RunResult, error)
}

// Impl implements the runner Service interface.
type Impl struct {
	deviceSvc    device.Service
	discoverySvc discovery.Service
	transferSvc  transfer.Service
	wolSvc       wol.Service
	telegramSvc  telegram.Service
	logger       zerolog.Logger
	now          func() time.Time
}

// New creates a new runner service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		deviceSvc:    device.New(logger),
		discoverySvc: discovery.New(logger),
		transferSvc:  transfer.New(logger),
		wolSvc:       wol.New(logger),
		telegramSvc:  telegram.New(logger),
		logger:       logger,
		now:          time.Now,
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	deviceSvc device.Service,
	discoverySvc discovery.Service,
	transferSvc transfer.Service,
	wolSvc wol.Service,
	telegramSvc telegram.Service,
	now func() time.Time,
) *Impl {
	if now == nil {
		now = time.Now
	}
	return &Impl{
		deviceSvc:    deviceSvc,
		discoverySvc: discoverySvc,
		transferSvc:  transferSvc,
		wolSvc:       wolSvc,
		telegramSvc:  telegramSvc,
		logger:       logger,
		now:          now,
	}
}

// run carries the state of a single backup run.
type run struct {
	logger zerolog.Logger
	result *models.RunResult
}

func (r *run) enter(state models.RunState) {
	r.logger.Debug().
		Str("from", string(r.result.State)).
		Str("to", string(state)).
		Msg("state transition")
	r.result.State = state
}

// fail moves the run into its terminal failure state. Cancellation of ctx
// wins over whatever error the phase reported.
func (r *run) fail(ctx context.Context, err error) error {
	pe := models.NewPhaseError(r.result.State, err)
	r.result.Error = pe

	if ctx.Err() != nil || pe.Cancelled() {
		r.enter(models.StateCancelled)
		r.logger.Warn().
			Str("phase", string(pe.Phase)).
			Str("path", pe.Path).
			Msg("backup cancelled")
		return pe
	}

	r.enter(models.StateFailed)
	r.logger.Error().
		Err(pe.Err).
		Str("phase", string(pe.Phase)).
		Str("path", pe.Path).
		Msg("backup failed")
	return pe
}

// Run executes one full backup of the configured device. On failure the
// returned error is a *models.PhaseError naming the failing phase and path,
// and the result still describes how far the run got.
//
//nolint:gocognit,gocyclo // backup workflow has multiple steps by design
func (s *Impl) Run(ctx context.Context, cfg models.BackupConfig, destination string) (*models.RunResult, error) {
	startTime := s.now()
	r := &run{
		logger: s.logger.With().Str("run_id", uuid.NewString()).Logger(),
		result: &models.RunResult{State: models.StateIdle, Device: cfg.Device.Name},
	}

	r.logger.Info().
		Str("transport", cfg.Device.Transport).
		Strs("mount_points", cfg.Backup.MountPoints).
		Msg("starting backup run")

	defer func() {
		r.result.Duration = s.now().Sub(startTime)
		if cfg.Telegram != nil {
			s.sendNotification(ctx, r, *cfg.Telegram, startTime)
		}
	}()

	// Step 1: Wake-on-LAN (if configured)
	if cfg.WOL != nil {
		r.enter(models.StateWaking)
		if err := s.runWOL(ctx, r.logger, cfg.WOL); err != nil {
			return r.result, r.fail(ctx, err)
		}
	}

	// Step 2: Connect
	r.enter(models.StateConnecting)
	dev, err := s.deviceSvc.Connect(ctx, cfg.Device)
	if err != nil {
		return r.result, r.fail(ctx, fmt.Errorf("connect failed: %w", err))
	}
	defer func() {
		if err := dev.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to close device connection")
		}
	}()

	// Step 3: Resolve and create the backup root
	r.enter(models.StateResolvingRoot)
	root, err := s.resolveRoot(ctx, r, dev, cfg, destination, startTime)
	if err != nil {
		return r.result, r.fail(ctx, err)
	}
	r.result.BackupRoot = root

	r.logger.Info().Str("root", root).Str("device", r.result.Device).Msg("backup root ready")

	// Step 4: Discover the remote tree
	r.enter(models.StateDiscovering)
	mountPoints := cfg.Backup.MountPoints
	if len(mountPoints) == 0 {
		mountPoints = models.DefaultMountPoints()
	}
	tree, err := s.discoverySvc.Discover(ctx, dev, mountPoints)
	if err != nil {
		return r.result, r.fail(ctx, err)
	}
	r.result.Directories = len(tree.Directories)
	r.result.TotalFiles = len(tree.Files)

	// Step 5: Mirror the directory structure locally
	r.enter(models.StateMaterializing)
	if err := materialize(ctx, tree.Directories, root); err != nil {
		return r.result, r.fail(ctx, err)
	}

	// Step 6: Transfer file contents
	r.enter(models.StateTransferring)
	tracker := progress.New(len(tree.Files))
	stop := reportProgress(r.logger, tracker, cfg.Transfer.ProgressInterval)
	transferResult, err := s.transferSvc.Transfer(ctx, dev, tree.Files, root, tracker, cfg.Transfer)
	stop()
	if transferResult != nil {
		r.result.Completed = transferResult.Completed
		r.result.Failed = len(transferResult.Failures)
		r.result.BytesWritten = transferResult.BytesWritten
	}
	if err != nil {
		return r.result, r.fail(ctx, err)
	}

	r.enter(models.StateDone)
	r.logger.Info().
		Str("root", root).
		Int("directories", r.result.Directories).
		Int("files", r.result.Completed).
		Str("written", humanize.Bytes(uint64(r.result.BytesWritten))).
		Dur("duration", s.now().Sub(startTime)).
		Msg("backup run completed successfully")

	return r.result, nil
}

func (s *Impl) runWOL(ctx context.Context, logger zerolog.Logger, cfg *models.WOLConfig) error {
	result, err := s.wolSvc.Wake(ctx, *cfg)
	if err != nil {
		return fmt.Errorf("WOL failed: %w", err)
	}
	if result.Error != nil {
		return fmt.Errorf("WOL failed: %w", result.Error)
	}

	if !result.TargetReady && cfg.WaitAddress != "" {
		return errors.New("target did not become ready after WOL")
	}

	logger.Info().
		Bool("packet_sent", result.PacketSent).
		Bool("target_ready", result.TargetReady).
		Dur("wait_duration", result.WaitDuration).
		Msg("WOL completed")

	return nil
}

// resolveRoot returns the directory this run writes into, creating it. An
// explicit destination is used verbatim; otherwise the root is named after the
// device identity and the run's start time.
func (s *Impl) resolveRoot(
	ctx context.Context,
	r *run,
	dev device.Device,
	cfg models.BackupConfig,
	destination string,
	startTime time.Time,
) (string, error) {
	identity, err := dev.Identity(ctx)
	switch {
	case err == nil:
		r.result.Device = identity
	case destination == "":
		return "", fmt.Errorf("failed to read device identity: %w", err)
	default:
		r.logger.Warn().Err(err).Msg("failed to read device identity")
	}

	root := destination
	if root == "" {
		root = filepath.Join(cfg.Backup.Directory, rootName(identity, startTime))
	}

	if err := os.MkdirAll(root, dirPerm); err != nil {
		return "", &models.FileError{Op: "mkdir", Path: root, Err: err}
	}
	return root, nil
}

// rootName builds "{identity}_{YYYYmmdd_HHMMSS}" with path separators in the
// identity replaced so the result is always a single path element.
func rootName(identity string, t time.Time) string {
	name := strings.NewReplacer("/", "_", `\`, "_").Replace(strings.TrimSpace(identity))
	if name == "" || name == "." || name == ".." {
		name = fallbackIdentity
	}
	return name + "_" + t.Format(timestampLayout)
}

// materialize creates the local counterpart of every discovered directory.
// Existing directories are not an error.
func materialize(ctx context.Context, dirs []string, root string) error {
	for _, d := range dirs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.MkdirAll(pathmap.Local(d, root), dirPerm); err != nil {
			return &models.FileError{Op: "mkdir", Path: d, Err: err}
		}
	}
	return nil
}

// reportProgress logs a tracker snapshot every interval until the returned
// stop function is called. A non-positive interval disables reporting.
func reportProgress(logger zerolog.Logger, tracker *progress.Tracker, interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				completed, total := tracker.Snapshot()
				logger.Info().
					Int("completed", completed).
					Int("total", total).
					Msg("transfer progress")
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

func (s *Impl) sendNotification(ctx context.Context, r *run, cfg models.TelegramConfig, startTime time.Time) {
	res := r.result
	msg := models.TelegramMessage{
		Success:        res.State == models.StateDone,
		Cancelled:      res.State == models.StateCancelled,
		Device:         res.Device,
		BackupRoot:     res.BackupRoot,
		StartTime:      startTime,
		Duration:       res.Duration,
		Directories:    res.Directories,
		TotalFiles:     res.TotalFiles,
		FilesCompleted: res.Completed,
		FilesFailed:    res.Failed,
		BytesWritten:   res.BytesWritten,
	}
	if res.Error != nil {
		msg.FailedPhase = string(res.Error.Phase)
		msg.FailedPath = res.Error.Path
		msg.ErrorMessage = res.Error.Err.Error()
	}

	// A cancelled run still reports how far it got.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	result, err := s.telegramSvc.SendNotification(notifyCtx, cfg, msg)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		r.logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
		return
	}

	r.logger.Info().Msg("Telegram notification sent")
}
