package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/godbus/dbus/v5"
)

// Notifier shows a desktop notification. It is fire-and-forget: a failure to
// display must never block or fail the caller.
type Notifier interface {
	Show(title, message string)
}

// newNotifier builds the configured backend. For the D-Bus backend, failing to
// reach the session bus is ErrNotificationInit.
func newNotifier(cfg NotificationsConfig, appName string, logger *slog.Logger) (Notifier, error) {
	if !cfg.Enabled {
		return nopNotifier{}, nil
	}
	switch cfg.Backend {
	case NotifyBackendBeeep:
		return newBeeepNotifier(logger), nil
	case NotifyBackendDBus, "":
		return newDBusNotifier(appName, logger)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrNotificationInit, cfg.Backend)
	}
}

// ============================================================================
// D-Bus backend (org.freedesktop.Notifications)
// ============================================================================

const (
	notifyDest   = "org.freedesktop.Notifications"
	notifyPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod = "org.freedesktop.Notifications.Notify"
)

// notifyCaller is the part of dbus.BusObject used here.
type notifyCaller interface {
	Go(method string, flags dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call
}

type dbusNotifier struct {
	appName string
	obj     notifyCaller
	conn    *dbus.Conn
	logger  *slog.Logger
}

func newDBusNotifier(appName string, logger *slog.Logger) (*dbusNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("%w: connect session bus: %w", ErrNotificationInit, err)
	}
	return &dbusNotifier{
		appName: appName,
		obj:     conn.Object(notifyDest, notifyPath),
		conn:    conn,
		logger:  logger,
	}, nil
}

// notificationHints is the fixed policy: low urgency, "device" category,
// transient so the server does not keep it in history.
func notificationHints() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"urgency":   dbus.MakeVariant(notifyUrgency),
		"category":  dbus.MakeVariant(notifyCategory),
		"transient": dbus.MakeVariant(true),
	}
}

// Show sends Notify without waiting for a reply.
func (n *dbusNotifier) Show(title, message string) {
	call := n.obj.Go(notifyMethod, dbus.FlagNoReplyExpected, nil,
		n.appName,       // app_name
		uint32(0),       // replaces_id
		"",              // app_icon
		title,           // summary
		message,         // body
		[]string{},      // actions
		notificationHints(),
		int32(notifyTimeout/time.Millisecond), // expire_timeout
	)
	if call != nil && call.Err != nil {
		n.logger.Warn("notification failed", "title", title, "error", call.Err)
	}
}

func (n *dbusNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}

// ============================================================================
// beeep backend
// ============================================================================
// beeep cannot express urgency or category hints, so this backend only exists
// for sessions where talking to the notification service directly fails.

type beeepNotifier struct {
	notify func(title, message string) error
	logger *slog.Logger
}

func newBeeepNotifier(logger *slog.Logger) *beeepNotifier {
	return &beeepNotifier{
		notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		logger: logger,
	}
}

// Show runs beeep in its own goroutine; it may shell out to notify-send.
func (n *beeepNotifier) Show(title, message string) {
	go func() {
		if err := n.notify(title, message); err != nil {
			n.logger.Warn("notification failed", "title", title, "error", err)
		}
	}()
}

type nopNotifier struct{}

func (nopNotifier) Show(string, string) {}
