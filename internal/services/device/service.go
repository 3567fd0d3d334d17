// Package device opens the transport configured for a device.
package device

import (
	"context"
	"fmt"

	"github.com/fgeck/fz-backup/internal/models"
	"github.com/fgeck/fz-backup/internal/services/localfs"
	"github.com/fgeck/fz-backup/internal/services/ssh"
	"github.com/rs/zerolog"
)

// Device is a connected device whose filesystem can be listed and read.
type Device interface {
	List(ctx context.Context, path string) ([]models.RemoteEntry, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Identity(ctx context.Context) (string, error)
	Concurrent() bool
	Close() error
}

// Service defines the interface for opening devices.
type Service interface {
	Connect(ctx context.Context, cfg models.DeviceConfig) (Device, error)
}

// Impl implements the device Service interface.
type Impl struct {
	sshSvc ssh.Service
	logger zerolog.Logger
}

// New creates a new device service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		sshSvc: ssh.New(logger),
		logger: logger,
	}
}

// NewWithSSH creates a new device service with a custom SSH service (for testing).
func NewWithSSH(logger zerolog.Logger, sshSvc ssh.Service) *Impl {
	return &Impl{
		sshSvc: sshSvc,
		logger: logger,
	}
}

// Connect opens the transport named by cfg.Transport.
func (s *Impl) Connect(ctx context.Context, cfg models.DeviceConfig) (Device, error) {
	switch cfg.Transport {
	case models.TransportSSH, "":
		dev, err := s.sshSvc.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return dev, nil
	case models.TransportLocal:
		dev, err := localfs.Open(s.logger, cfg)
		if err != nil {
			return nil, err
		}
		return dev, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
