package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// shutdownGrace bounds how long a graceful shutdown waits for queued commands.
const shutdownGrace = 5 * time.Second

// newExecutor builds the configured CommandExecutor. stop releases it on
// graceful shutdown.
func newExecutor(cfg Config, logger *slog.Logger) (exec CommandExecutor, stop func()) {
	if cfg.Executor == ExecutorDirect {
		return NewDirectExecutor(cfg.Shell, logger), func() {}
	}

	q := NewQueuedExecutor(shellRunner{Shell: cfg.Shell}, logger)
	q.Start()
	return q, func() {
		q.Close()
		select {
		case <-q.Done():
		case <-time.After(shutdownGrace):
			logger.Warn("queued commands still running at shutdown", "pending", q.Stats().Pending)
		}
	}
}

// run starts the daemon from a validated config and blocks until ctx is
// canceled (nil) or a fatal error occurs.
//
// Startup order: action table, notifications, input device, executor, then
// the dispatch loop and optional IPC/HTTP surfaces. Any startup failure is
// returned before the first read.
func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	table, err := cfg.ActionTable()
	if err != nil {
		return err
	}

	notifier, err := newNotifier(cfg.Notifications, cfg.Name, logger)
	if err != nil {
		return err
	}
	if c, ok := notifier.(io.Closer); ok {
		defer c.Close()
	}

	dev, err := openInputDevice(cfg.Device, cfg.Grab)
	if err != nil {
		logger.Error("failed to open input device", "device", cfg.Device, "error", err, "tip", "run as root or add user to 'input' group")
		return err
	}
	defer dev.Close()

	executor, stopExecutor := newExecutor(cfg, logger)

	var feed *FeedServer
	var sink TriggerSink
	if cfg.HTTP.Listen != "" {
		feed = NewFeedServer(feedHello{
			Name:     cfg.Name,
			Device:   cfg.Device,
			Executor: cfg.Executor,
			KeyCodes: table.Codes(),
		}, logger)
		sink = feed
	}

	dispatcher := NewDispatcher(table, executor, notifier, sink, logger)

	g, gctx := errgroup.WithContext(ctx)

	events := make(chan inputEvent, eventBufSize)
	readErr := make(chan error, 1)
	go readInputEvents(gctx, newEventReader(dev), events, readErr)

	g.Go(func() error {
		return dispatcher.Run(gctx, events, readErr)
	})

	if cfg.IPC.SocketPath != "" {
		svc := &ipcService{
			name:       cfg.Name,
			device:     cfg.Device,
			started:    time.Now(),
			table:      table,
			dispatcher: dispatcher,
			executor:   executor,
		}
		g.Go(func() error {
			return runIPCServer(gctx, cfg.IPC.SocketPath, svc, logger)
		})
	}

	if feed != nil {
		g.Go(func() error {
			feed.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.HTTP.Listen, newHTTPMux(feed), logger)
		})
	}

	listenInfo := []any{"name", cfg.Name, "device", cfg.Device, "executor", cfg.Executor, "keys", table.Len()}
	if cfg.IPC.SocketPath != "" {
		listenInfo = append(listenInfo, "ipc", cfg.IPC.SocketPath)
	}
	if cfg.HTTP.Listen != "" {
		listenInfo = append(listenInfo, "http", cfg.HTTP.Listen)
	}
	logger.Info("listening", listenInfo...)

	err = g.Wait()
	if err != nil {
		// Fatal: leave running commands to the OS.
		return err
	}

	logger.Info("shutting down")
	stopExecutor()
	return nil
}

// describe renders a fatal error for the final diagnostic line.
func describe(err error) string {
	switch {
	case errors.Is(err, ErrConfigLoad):
		return fmt.Sprintf("configuration: %v", err)
	case errors.Is(err, ErrDeviceUnavailable):
		return fmt.Sprintf("cannot access input device: %v", err)
	case errors.Is(err, ErrReadFailed):
		return fmt.Sprintf("input device read failed: %v", err)
	case errors.Is(err, ErrNotificationInit):
		return fmt.Sprintf("failed to initialize notifications: %v", err)
	default:
		return err.Error()
	}
}
