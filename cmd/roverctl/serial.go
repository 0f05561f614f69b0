package main

import (
	"context"
	"fmt"

	serial "go.bug.st/serial"

	"github.com/burahimasree/smartcar-core/internal/motorbridge"
)

// openSerialPort returns a motorbridge.OpenPortFunc that dials the
// physical UART device named in config. Each call opens a fresh
// handle; motorbridge.Bridge.Run calls it again on every reconnect.
func openSerialPort(device string, baud int) motorbridge.OpenPortFunc {
	return func(ctx context.Context) (motorbridge.Port, error) {
		mode := &serial.Mode{BaudRate: baud}
		port, err := serial.Open(device, mode)
		if err != nil {
			return nil, fmt.Errorf("open serial port %s: %w", device, err)
		}
		return port, nil
	}
}
