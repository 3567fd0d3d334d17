// Package transfer copies remote file contents into the local backup root.
package transfer

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fgeck/fz-backup/internal/models"
	"github.com/fgeck/fz-backup/internal/pathmap"
	"github.com/fgeck/fz-backup/internal/services/progress"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const filePerm = 0o640

// Reader reads remote file contents.
type Reader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// concurrentReader is implemented by readers that accept overlapping requests.
type concurrentReader interface {
	Concurrent() bool
}

// Service defines the interface for the transfer phase.
type Service interface {
	Transfer(
		ctx context.Context,
		reader Reader,
		files []string,
		backupRoot string,
		tracker *progress.Tracker,
		settings models.TransferSettings,
	) (*models.TransferResult, error)
}

// FileWriter allows mocking local writes in tests.
type FileWriter interface {
	WriteFile(name string, data []byte, perm os.FileMode) error
}

// DefaultWriter writes through to the local filesystem.
type DefaultWriter struct{}

// WriteFile truncates name and writes data to it. The parent directory must exist.
func (w *DefaultWriter) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// Impl implements the transfer Service interface.
type Impl struct {
	writer FileWriter
	logger zerolog.Logger
}

// New creates a new transfer service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		writer: &DefaultWriter{},
		logger: logger,
	}
}

// NewWithWriter creates a new transfer service with a custom writer (for testing).
func NewWithWriter(logger zerolog.Logger, writer FileWriter) *Impl {
	return &Impl{
		writer: writer,
		logger: logger,
	}
}

// Transfer reads every file from the device and writes it under backupRoot,
// advancing tracker once per written file. It never creates directories.
//
// By default the first failure stops the transfer. With ContinueOnError the
// failures are collected in the result and joined into the returned error.
func (s *Impl) Transfer(
	ctx context.Context,
	reader Reader,
	files []string,
	backupRoot string,
	tracker *progress.Tracker,
	settings models.TransferSettings,
) (*models.TransferResult, error) {
	workers := settings.Workers
	if workers > 1 {
		if cr, ok := reader.(concurrentReader); !ok || !cr.Concurrent() {
			s.logger.Warn().Int("workers", workers).Msg("transport does not support concurrent reads, transferring sequentially")
			workers = 1
		}
	}
	if workers < 1 {
		workers = 1
	}

	s.logger.Info().
		Int("files", len(files)).
		Int("workers", workers).
		Str("root", backupRoot).
		Msg("starting transfer")

	start := time.Now()
	var (
		result *models.TransferResult
		err    error
	)
	if workers == 1 {
		result, err = s.sequential(ctx, reader, files, backupRoot, tracker, settings)
	} else {
		result, err = s.parallel(ctx, reader, files, backupRoot, tracker, settings, workers)
	}
	result.Total = len(files)
	result.Duration = time.Since(start)

	if err != nil {
		return result, err
	}

	s.logger.Info().
		Int("completed", result.Completed).
		Str("written", humanize.Bytes(uint64(result.BytesWritten))).
		Dur("duration", result.Duration).
		Msg("transfer completed")

	return result, nil
}

func (s *Impl) sequential(
	ctx context.Context,
	reader Reader,
	files []string,
	backupRoot string,
	tracker *progress.Tracker,
	settings models.TransferSettings,
) (*models.TransferResult, error) {
	result := &models.TransferResult{}

	for _, p := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		n, err := s.copyFile(ctx, reader, p, backupRoot, settings)
		if err != nil {
			if settings.ContinueOnError && ctx.Err() == nil {
				s.logger.Error().Err(err).Str("path", p).Msg("file failed, continuing")
				result.Failures = append(result.Failures, models.FileFailure{Path: p, Error: err})
				continue
			}
			return result, err
		}

		tracker.Advance()
		result.Completed++
		result.BytesWritten += n
	}

	return result, joinFailures(result.Failures)
}

func (s *Impl) parallel(
	ctx context.Context,
	reader Reader,
	files []string,
	backupRoot string,
	tracker *progress.Tracker,
	settings models.TransferSettings,
	workers int,
) (*models.TransferResult, error) {
	var (
		completed atomic.Int64
		written   atomic.Int64
		mu        sync.Mutex
		failures  []models.FileFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, p := range files {
		if gctx.Err() != nil {
			break
		}
		p := p
		g.Go(func() error {
			n, err := s.copyFile(gctx, reader, p, backupRoot, settings)
			if err != nil {
				if settings.ContinueOnError && gctx.Err() == nil {
					s.logger.Error().Err(err).Str("path", p).Msg("file failed, continuing")
					mu.Lock()
					failures = append(failures, models.FileFailure{Path: p, Error: err})
					mu.Unlock()
					return nil
				}
				return err
			}
			tracker.Advance()
			completed.Add(1)
			written.Add(n)
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	result := &models.TransferResult{
		Completed:    int(completed.Load()),
		BytesWritten: written.Load(),
		Failures:     failures,
	}
	if err != nil {
		return result, err
	}
	return result, joinFailures(failures)
}

func (s *Impl) copyFile(
	ctx context.Context,
	reader Reader,
	remotePath string,
	backupRoot string,
	settings models.TransferSettings,
) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.logger.Info().Str("path", remotePath).Msg("backing up")

	data, err := s.read(ctx, reader, remotePath, settings)
	if err != nil {
		return 0, &models.FileError{Op: "read", Path: remotePath, Err: err}
	}

	local := pathmap.Local(remotePath, backupRoot)
	if err := s.writer.WriteFile(local, data, filePerm); err != nil {
		return 0, &models.FileError{Op: "write", Path: remotePath, Err: err}
	}

	s.logger.Debug().
		Str("path", remotePath).
		Str("local", local).
		Int("bytes", len(data)).
		Msg("file written")

	return int64(len(data)), nil
}

// read calls ReadFile, retrying up to settings.Retries more times.
func (s *Impl) read(ctx context.Context, reader Reader, remotePath string, settings models.TransferSettings) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		data, err := reader.ReadFile(ctx, remotePath)
		if err == nil {
			return data, nil
		}
		if attempt >= settings.Retries || ctx.Err() != nil {
			return nil, err
		}

		s.logger.Warn().
			Err(err).
			Str("path", remotePath).
			Int("attempt", attempt+1).
			Int("retries", settings.Retries).
			Msg("read failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(settings.RetryDelay):
		}
	}
}

func joinFailures(failures []models.FileFailure) error {
	if len(failures) == 0 {
		return nil
	}
	errs := make([]error, len(failures))
	for i, f := range failures {
		errs[i] = f.Error
	}
	return errors.Join(errs...)
}
