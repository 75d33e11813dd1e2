package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ============================================================================
// Dispatcher - the event-to-action loop
// ============================================================================
// WaitingForEvent -> Filtering -> (NoMatch | Triggered) -> WaitingForEvent
//
// Only key-down events (EV_KEY, value 1) qualify; release and autorepeat are
// ignored. A qualifying code found in the ActionTable submits the command and
// shows the notification, in that order, each independently of the other.
//
// All dispatching happens on the goroutine running Run. Presses injected over
// IPC are funneled into the same loop so the executor sees one producer.
// ============================================================================

// Trigger sources
const (
	sourceDevice = "device"
	sourceIPC    = "ipc"
)

// TriggerRecord describes one dispatched action.
type TriggerRecord struct {
	KeyCode uint16    `json:"key_code"`
	Command string    `json:"command"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Source  string    `json:"source"`
	At      time.Time `json:"at"`
}

// TriggerSink observes dispatched actions. Publish must not block.
type TriggerSink interface {
	Publish(TriggerRecord)
}

// DispatcherStats is a point-in-time view used by the IPC status request.
type DispatcherStats struct {
	Events      uint64    `json:"events"`
	Ignored     uint64    `json:"ignored"`
	Unmatched   uint64    `json:"unmatched"`
	Triggers    uint64    `json:"triggers"`
	LastKeyCode uint16    `json:"last_key_code,omitempty"`
	LastAt      time.Time `json:"last_at,omitzero"`
}

var errUnknownKey = errors.New("no action configured for key")

type Dispatcher struct {
	table    *ActionTable
	executor CommandExecutor
	notifier Notifier
	sink     TriggerSink
	logger   *slog.Logger

	injected chan uint16

	events    atomic.Uint64
	ignored   atomic.Uint64
	unmatched atomic.Uint64
	triggers  atomic.Uint64
	lastCode  atomic.Uint32
	lastAt    atomic.Int64
}

// NewDispatcher wires the loop. sink may be nil.
func NewDispatcher(table *ActionTable, executor CommandExecutor, notifier Notifier, sink TriggerSink, logger *slog.Logger) *Dispatcher {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &Dispatcher{
		table:    table,
		executor: executor,
		notifier: notifier,
		sink:     sink,
		logger:   logger,
		injected: make(chan uint16, injectedBufSize),
	}
}

// Run dispatches events until ctx is canceled (returns nil) or the reader
// reports an error (returned as is; it is fatal for the daemon).
func (d *Dispatcher) Run(ctx context.Context, events <-chan inputEvent, readErr <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErr:
			// Events read before the failure are still dispatched.
			d.drain(events)
			return err

		case ev := <-events:
			d.Handle(ev)

		case code := <-d.injected:
			d.trigger(code, sourceIPC)
		}
	}
}

func (d *Dispatcher) drain(events <-chan inputEvent) {
	for {
		select {
		case ev := <-events:
			d.Handle(ev)
		default:
			return
		}
	}
}

// Handle runs one Filtering step and reports whether an action was triggered.
func (d *Dispatcher) Handle(ev inputEvent) bool {
	d.events.Add(1)
	if ev.Type != EV_KEY || ev.Value != evValuePress {
		d.ignored.Add(1)
		return false
	}
	return d.trigger(ev.Code, sourceDevice)
}

// Inject queues a simulated key press for the dispatch loop. It fails fast
// for unknown keys and when the injection queue is full.
func (d *Dispatcher) Inject(code uint16) error {
	if _, ok := d.table.Lookup(code); !ok {
		return fmt.Errorf("%w %d", errUnknownKey, code)
	}
	select {
	case d.injected <- code:
		return nil
	default:
		return errors.New("trigger queue full")
	}
}

func (d *Dispatcher) trigger(code uint16, source string) bool {
	action, ok := d.table.Lookup(code)
	if !ok {
		d.unmatched.Add(1)
		if d.logger.Enabled(context.Background(), slog.LevelDebug) {
			d.logger.Debug("key without action", "key", keyLabel(code), "source", source)
		}
		return false
	}

	now := time.Now()
	d.triggers.Add(1)
	d.lastCode.Store(uint32(code))
	d.lastAt.Store(now.UnixNano())

	d.logger.Info("key triggered", "key", keyLabel(code), "source", source, "command", action.Command)

	d.guard("submit", func() { d.executor.Submit(action.Command) })
	d.guard("notify", func() { d.notifier.Show(action.NotificationTitle, action.NotificationMessage) })

	if d.sink != nil {
		d.sink.Publish(TriggerRecord{
			KeyCode: code,
			Command: action.Command,
			Title:   action.NotificationTitle,
			Message: action.NotificationMessage,
			Source:  source,
			At:      now,
		})
	}
	return true
}

// guard keeps a panicking collaborator from taking the other one, or the
// loop, down with it.
func (d *Dispatcher) guard(step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch step panicked", "step", step, "panic", r)
		}
	}()
	fn()
}

func (d *Dispatcher) Stats() DispatcherStats {
	st := DispatcherStats{
		Events:    d.events.Load(),
		Ignored:   d.ignored.Load(),
		Unmatched: d.unmatched.Load(),
		Triggers:  d.triggers.Load(),
	}
	if at := d.lastAt.Load(); at != 0 {
		st.LastKeyCode = uint16(d.lastCode.Load())
		st.LastAt = time.Unix(0, at)
	}
	return st
}
