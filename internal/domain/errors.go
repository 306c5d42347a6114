package domain

import "errors"

var (
	ErrNotConnected      = errors.New("not connected")
	ErrWSDisconnect      = errors.New("websocket disconnected")
	ErrMonitorStopped    = errors.New("monitor stopped")
	ErrUnsupportedFormat = errors.New("unsupported output format")
)
