package main

import "errors"

// Fatal error kinds. Anything wrapping one of these terminates the daemon.
var (
	ErrConfigLoad        = errors.New("config load failed")
	ErrDeviceUnavailable = errors.New("input device unavailable")
	ErrReadFailed        = errors.New("input read failed")
	ErrNotificationInit  = errors.New("notification init failed")
)

// ErrCommandFailed marks a failed action command. It is only ever logged.
var ErrCommandFailed = errors.New("command failed")
