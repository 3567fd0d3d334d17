package models

import "time"

// WOLConfig holds Wake-on-LAN configuration.
type WOLConfig struct {
	MACAddress    string
	BroadcastIP   string
	WaitAddress   string        // host:port polled until the device accepts connections
	Timeout       time.Duration // max time to wait for the device
	PollInterval  time.Duration // how often to poll WaitAddress
	StabilizeWait time.Duration // wait after the device responds
}

// WOLResult holds the result of a Wake-on-LAN operation.
type WOLResult struct {
	PacketSent   bool
	TargetReady  bool
	WaitDuration time.Duration
	Error        error
}
