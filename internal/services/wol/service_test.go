package wol

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/fgeck/fz-backup/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWOLClient struct {
	wakeFunc func(broadcastIP string, mac net.HardwareAddr) error
}

func (m *mockWOLClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	if m.wakeFunc != nil {
		return m.wakeFunc(broadcastIP, mac)
	}
	return nil
}

type mockDialer struct {
	dialFunc func(ctx context.Context, network, address string) (net.Conn, error)
}

func (m *mockDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if m.dialFunc != nil {
		return m.dialFunc(ctx, network, address)
	}
	client, server := net.Pipe()
	_ = server.Close()
	return client, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func waitConfig() models.WOLConfig {
	return models.WOLConfig{
		MACAddress:   "AA:BB:CC:DD:EE:FF",
		BroadcastIP:  "192.168.1.255",
		WaitAddress:  "192.168.1.50:22",
		Timeout:      10 * time.Second,
		PollInterval: 10 * time.Millisecond,
	}
}

func TestWake_Success_NoWaitAddress(t *testing.T) {
	var capturedMAC net.HardwareAddr
	var capturedBroadcastIP string

	wolClient := &mockWOLClient{
		wakeFunc: func(broadcastIP string, mac net.HardwareAddr) error {
			capturedMAC = mac
			capturedBroadcastIP = broadcastIP
			return nil
		},
	}

	svc := NewWithClients(testLogger(), wolClient, nil)

	cfg := models.WOLConfig{
		MACAddress:  "AA:BB:CC:DD:EE:FF",
		BroadcastIP: "192.168.1.255",
	}

	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)

	expectedMAC, _ := net.ParseMAC("AA:BB:CC:DD:EE:FF")
	assert.Equal(t, expectedMAC, capturedMAC)
	assert.Equal(t, "192.168.1.255", capturedBroadcastIP)
}

func TestWake_InvalidMAC(t *testing.T) {
	svc := NewWithClients(testLogger(), &mockWOLClient{}, nil)

	cfg := models.WOLConfig{
		MACAddress:  "invalid-mac",
		BroadcastIP: "192.168.1.255",
	}

	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.False(t, result.PacketSent)
	require.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Error(), "invalid MAC address")
}

func TestWake_SendFailed(t *testing.T) {
	wolClient := &mockWOLClient{
		wakeFunc: func(broadcastIP string, mac net.HardwareAddr) error {
			return errors.New("network error")
		},
	}

	svc := NewWithClients(testLogger(), wolClient, nil)

	result, err := svc.Wake(context.Background(), waitConfig())

	require.NoError(t, err)
	assert.False(t, result.PacketSent)
	require.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Error(), "network error")
}

func TestWake_WithWaitAddress_ImmediateSuccess(t *testing.T) {
	var capturedAddress string
	dialer := &mockDialer{
		dialFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			capturedAddress = address
			client, server := net.Pipe()
			_ = server.Close()
			return client, nil
		},
	}

	svc := NewWithClients(testLogger(), &mockWOLClient{}, dialer)

	result, err := svc.Wake(context.Background(), waitConfig())

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)
	assert.Equal(t, "192.168.1.50:22", capturedAddress)
}

func TestWake_WithWaitAddress_DelayedSuccess(t *testing.T) {
	callCount := 0
	dialer := &mockDialer{
		dialFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			callCount++
			if callCount < 3 {
				return nil, errors.New("connection refused")
			}
			client, server := net.Pipe()
			_ = server.Close()
			return client, nil
		},
	}

	svc := NewWithClients(testLogger(), &mockWOLClient{}, dialer)

	result, err := svc.Wake(context.Background(), waitConfig())

	require.NoError(t, err)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)
	assert.GreaterOrEqual(t, callCount, 3)
}

func TestWake_WithWaitAddress_Timeout(t *testing.T) {
	dialer := &mockDialer{
		dialFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := NewWithClients(testLogger(), &mockWOLClient{}, dialer)

	cfg := waitConfig()
	cfg.Timeout = 50 * time.Millisecond

	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.False(t, result.TargetReady)
	require.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Error(), "timeout")
}

func TestWake_ContextCancelled(t *testing.T) {
	dialer := &mockDialer{
		dialFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := NewWithClients(testLogger(), &mockWOLClient{}, dialer)

	ctx, cancel := context.WithCancel(context.Background())

	cfg := waitConfig()
	cfg.PollInterval = 100 * time.Millisecond

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	result, err := svc.Wake(ctx, cfg)

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.False(t, result.TargetReady)
	assert.Equal(t, context.Canceled, result.Error)
}

func TestWake_WithStabilizeWait(t *testing.T) {
	svc := NewWithClients(testLogger(), &mockWOLClient{}, &mockDialer{})

	stabilizeWait := 50 * time.Millisecond
	cfg := waitConfig()
	cfg.StabilizeWait = stabilizeWait

	start := time.Now()
	result, err := svc.Wake(context.Background(), cfg)
	duration := time.Since(start)

	require.NoError(t, err)
	assert.True(t, result.TargetReady)
	assert.GreaterOrEqual(t, duration, stabilizeWait)
}
