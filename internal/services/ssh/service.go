// Package ssh reaches a device over SSH and exposes its filesystem.
package ssh

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/alexhunt7/ssher"
	"github.com/fgeck/fz-backup/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

const defaultTimeout = 30 * time.Second

// Service defines the interface for SSH device operations.
type Service interface {
	Connect(ctx context.Context, cfg models.DeviceConfig) (*Device, error)
	TestConnection(ctx context.Context, cfg models.DeviceConfig) (*models.SSHResult, error)
}

// SSHClient wraps ssh.Client for mocking.
type SSHClient interface {
	NewSession() (SSHSession, error)
	Close() error
}

// SSHSession wraps ssh.Session for mocking.
type SSHSession interface {
	Output(cmd string) ([]byte, error)
	CombinedOutput(cmd string) ([]byte, error)
	Close() error
}

// ClientFactory creates SSH clients.
type ClientFactory interface {
	NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

// DefaultClientFactory is the default SSH client factory.
type DefaultClientFactory struct{}

// NewClient creates a new SSH client.
func (f *DefaultClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	client, err := ssh.Dial(network, addr, config)
	if err != nil {
		return nil, err
	}
	return &defaultSSHClient{client: client}, nil
}

type defaultSSHClient struct {
	client *ssh.Client
}

func (c *defaultSSHClient) NewSession() (SSHSession, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return &defaultSSHSession{session: session}, nil
}

func (c *defaultSSHClient) Close() error {
	return c.client.Close()
}

type defaultSSHSession struct {
	session *ssh.Session
}

func (s *defaultSSHSession) Output(cmd string) ([]byte, error) {
	return s.session.Output(cmd)
}

func (s *defaultSSHSession) CombinedOutput(cmd string) ([]byte, error) {
	return s.session.CombinedOutput(cmd)
}

func (s *defaultSSHSession) Close() error {
	return s.session.Close()
}

// Impl implements the SSH Service interface.
type Impl struct {
	clientFactory ClientFactory
	logger        zerolog.Logger
}

// New creates a new SSH service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		clientFactory: &DefaultClientFactory{},
		logger:        logger,
	}
}

// NewWithClientFactory creates a new SSH service with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, factory ClientFactory) *Impl {
	return &Impl{
		clientFactory: factory,
		logger:        logger,
	}
}

// buildConfig returns the client config and the address to dial.
func (s *Impl) buildConfig(cfg models.DeviceConfig) (*ssh.ClientConfig, string, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	// Host aliases from ~/.ssh/config carry their own user, port and identity.
	if cfg.SSHConfigHost != "" {
		sshConfig, hostPort, err := ssher.ClientConfig(cfg.SSHConfigHost, "")
		if err != nil {
			return nil, "", fmt.Errorf("failed to resolve ssh config host %s: %w", cfg.SSHConfigHost, err)
		}
		sshConfig.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // devices regenerate host keys on reflash
		sshConfig.Timeout = timeout
		return sshConfig, hostPort, nil
	}

	var auth []ssh.AuthMethod

	var key []byte
	var err error
	if len(cfg.PrivateKey) > 0 {
		key = cfg.PrivateKey
	} else if cfg.KeyPath != "" {
		key, err = os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read private key from %s: %w", cfg.KeyPath, err)
		}
	}
	if key != nil {
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, "", fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}

	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}

	if len(auth) == 0 {
		return nil, "", fmt.Errorf("no private key or password provided")
	}

	return &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // devices regenerate host keys on reflash
		Timeout:         timeout,
	}, net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)), nil
}

func (s *Impl) dial(ctx context.Context, cfg models.DeviceConfig) (SSHClient, error) {
	sshConfig, addr, err := s.buildConfig(cfg)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Str("addr", addr).Str("user", sshConfig.User).Msg("dialing device")

	// Create client with context timeout
	clientChan := make(chan struct {
		client SSHClient
		err    error
	}, 1)

	go func() {
		client, err := s.clientFactory.NewClient("tcp", addr, sshConfig)
		clientChan <- struct {
			client SSHClient
			err    error
		}{client, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-clientChan:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect: %w", res.err)
		}
		return res.client, nil
	}
}

// Connect opens an SSH connection to the device.
func (s *Impl) Connect(ctx context.Context, cfg models.DeviceConfig) (*Device, error) {
	s.logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("user", cfg.Username).
		Str("alias", cfg.SSHConfigHost).
		Msg("connecting to device")

	client, err := s.dial(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &Device{
		client: client,
		name:   cfg.Name,
		host:   cfg.Host,
		logger: s.logger,
	}, nil
}

// TestConnection verifies SSH connectivity without touching the filesystem.
func (s *Impl) TestConnection(ctx context.Context, cfg models.DeviceConfig) (*models.SSHResult, error) {
	result := &models.SSHResult{}

	s.logger.Debug().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Msg("testing SSH connection")

	client, err := s.dial(ctx, cfg)
	if err != nil {
		result.Error = err
		return result, nil
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		result.Error = fmt.Errorf("failed to create session: %w", err)
		return result, nil
	}
	defer session.Close()

	// Run a simple command to verify connectivity
	output, err := session.CombinedOutput("echo OK")
	result.Output = output
	result.CommandRun = true

	if err != nil {
		result.Error = fmt.Errorf("test command failed: %w", err)
	}

	return result, nil
}

// Device is a connected device whose filesystem is read with shell commands.
type Device struct {
	client SSHClient
	name   string
	host   string
	logger zerolog.Logger
}

// listScript prints one NUL-terminated "<kind> <name>" record per entry of a
// directory. Names may contain newlines, NUL is the only byte they cannot hold.
// Symlinks are reported as "o" so traversal never follows them.
const listScript = `cd -- %s || exit 1; ` +
	`for e in * .[!.]* ..?*; do ` +
	`[ -e "$e" ] || [ -L "$e" ] || continue; ` +
	`if [ -L "$e" ]; then t=o; elif [ -d "$e" ]; then t=d; elif [ -f "$e" ]; then t=f; else t=o; fi; ` +
	`printf '%%s %%s\0' "$t" "$e"; ` +
	`done`

// List returns the entries of a remote directory.
func (d *Device) List(ctx context.Context, path string) ([]models.RemoteEntry, error) {
	output, err := d.run(ctx, fmt.Sprintf(listScript, shellQuote(path)))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}
	return parseListing(output)
}

// ReadFile returns the full contents of a remote file.
func (d *Device) ReadFile(ctx context.Context, path string) ([]byte, error) {
	output, err := d.run(ctx, "cat -- "+shellQuote(path))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return output, nil
}

// Identity returns the configured device name, else the device's hostname.
func (d *Device) Identity(ctx context.Context) (string, error) {
	if d.name != "" {
		return d.name, nil
	}

	output, err := d.run(ctx, "uname -n")
	if err != nil {
		return "", fmt.Errorf("reading device hostname: %w", err)
	}

	name := strings.TrimSpace(string(output))
	if name == "" {
		name = d.host
	}
	return name, nil
}

// Concurrent reports that multiple sessions may run over one connection.
func (d *Device) Concurrent() bool {
	return true
}

// Close closes the underlying connection.
func (d *Device) Close() error {
	return d.client.Close()
}

// run executes cmd in a fresh session and returns its stdout. A cancelled
// context closes the session.
func (d *Device) run(ctx context.Context, cmd string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	session, err := d.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	outChan := make(chan struct {
		output []byte
		err    error
	}, 1)

	go func() {
		output, err := session.Output(cmd)
		outChan <- struct {
			output []byte
			err    error
		}{output, err}
	}()

	select {
	case <-ctx.Done():
		_ = session.Close()
		return nil, ctx.Err()
	case res := <-outChan:
		return res.output, res.err
	}
}

func parseListing(output []byte) ([]models.RemoteEntry, error) {
	var entries []models.RemoteEntry

	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Split(scanRecords)
	for scanner.Scan() {
		record := scanner.Text()
		if record == "" {
			continue
		}
		if len(record) < 3 || record[1] != ' ' {
			return nil, fmt.Errorf("malformed listing record %q", record)
		}

		entry := models.RemoteEntry{Name: record[2:]}
		switch record[0] {
		case 'd':
			entry.Kind = models.EntryDirectory
		case 'f':
			entry.Kind = models.EntryFile
		default:
			entry.Kind = models.EntryOther
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading listing: %w", err)
	}
	return entries, nil
}

// scanRecords is a bufio.SplitFunc for NUL-terminated records.
func scanRecords(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
