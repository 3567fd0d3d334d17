// Package localfs treats a locally mounted device filesystem as a device.
package localfs

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fgeck/fz-backup/internal/models"
	"github.com/rs/zerolog"
)

// Device serves remote paths from a local directory that stands in for "/".
type Device struct {
	root   string
	name   string
	logger zerolog.Logger
}

// Open checks that cfg.Root is a directory and returns a Device for it.
func Open(logger zerolog.Logger, cfg models.DeviceConfig) (*Device, error) {
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("opening device root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("device root %s is not a directory", cfg.Root)
	}

	logger.Info().Str("root", cfg.Root).Msg("using locally mounted device")

	return &Device{root: cfg.Root, name: cfg.Name, logger: logger}, nil
}

func (d *Device) resolve(remotePath string) string {
	clean := path.Clean("/" + remotePath)
	return filepath.Join(d.root, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
}

// List returns the entries of a directory. Symlinks are reported as EntryOther.
func (d *Device) List(ctx context.Context, remotePath string) ([]models.RemoteEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(d.resolve(remotePath))
	if err != nil {
		return nil, err
	}

	entries := make([]models.RemoteEntry, 0, len(dirEntries))
	for _, e := range dirEntries {
		entry := models.RemoteEntry{Name: e.Name(), Kind: models.EntryOther}
		switch {
		case e.Type()&os.ModeSymlink != 0:
			// never followed
		case e.IsDir():
			entry.Kind = models.EntryDirectory
		case e.Type().IsRegular():
			entry.Kind = models.EntryFile
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ReadFile returns the contents of a file.
func (d *Device) ReadFile(ctx context.Context, remotePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(d.resolve(remotePath))
}

// Identity returns the configured name, else the base name of the mount.
func (d *Device) Identity(_ context.Context) (string, error) {
	if d.name != "" {
		return d.name, nil
	}
	return filepath.Base(filepath.Clean(d.root)), nil
}

// Concurrent reports that local reads may overlap.
func (d *Device) Concurrent() bool {
	return true
}

// Close is a no-op.
func (d *Device) Close() error {
	return nil
}
