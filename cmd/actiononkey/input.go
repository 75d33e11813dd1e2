package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// inputEvent mirrors the kernel's struct input_event:
//
//	struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
//
// unix.Timeval has the platform's layout, so the record is 16 bytes on 32-bit
// ARM handsets and 24 bytes on 64-bit ones.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

var inputEventSize = binary.Size(inputEvent{})

// openInputDevice opens the event device read-only, optionally grabbing it.
func openInputDevice(path string, grab bool) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	if grab {
		if err := grabDevice(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: grab %s: %w", ErrDeviceUnavailable, path, err)
		}
	}
	return f, nil
}

// eventReader decodes one input_event record per Next call.
type eventReader struct {
	r      io.Reader
	buf    []byte
	reader *bytes.Reader
}

func newEventReader(r io.Reader) *eventReader {
	buf := make([]byte, inputEventSize)
	return &eventReader{
		r:      r,
		buf:    buf,
		reader: bytes.NewReader(buf), // reset on each iteration
	}
}

// Next blocks until a whole record has been read. A short read cannot be
// resynchronized, so it is reported as ErrReadFailed like any other error.
func (er *eventReader) Next() (inputEvent, error) {
	if _, err := io.ReadFull(er.r, er.buf); err != nil {
		return inputEvent{}, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}

	er.reader.Reset(er.buf)
	var ev inputEvent
	if err := binary.Read(er.reader, binary.NativeEndian, &ev); err != nil {
		return inputEvent{}, fmt.Errorf("%w: decode: %w", ErrReadFailed, err)
	}
	return ev, nil
}

// readInputEvents runs in a dedicated goroutine and blocks on read operations.
// The first error is sent to readErr and the goroutine exits.
func readInputEvents(ctx context.Context, er *eventReader, events chan<- inputEvent, readErr chan<- error) {
	for {
		ev, err := er.Next()
		if err != nil {
			select {
			case readErr <- err:
			case <-ctx.Done():
			}
			return
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
