package main

import "time"

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// UpFlags holds flags for the up command.
type UpFlags struct {
	Detach  bool
	LogFile string // stdout/stderr of the detached supervisor itself
}

// DownFlags holds flags for the down command.
type DownFlags struct {
	Wait time.Duration
}

// StatusFlags holds flags for the status command.
type StatusFlags struct {
	Name       string
	Output     string
	APIUrl     string
	APITimeout time.Duration
}

// PortsFlags holds flags for the ports command.
type PortsFlags struct {
	Port int
}

// ReclaimFlags holds flags for the reclaim command.
type ReclaimFlags struct {
	Port int
	Yes  bool
}

// InitFlags holds flags for the init command.
type InitFlags struct {
	Output string
	Force  bool
}
