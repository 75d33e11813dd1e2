//go:build linux

package main

import (
	"os"

	"golang.org/x/sys/unix"
)

// grabDevice takes exclusive access to the device so other readers (the
// compositor, for example) stop receiving its events. SyscallConn keeps the
// file registered with the runtime poller, unlike Fd.
func grabDevice(f *os.File) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var ioctlErr error
	if err := rc.Control(func(fd uintptr) {
		ioctlErr = unix.IoctlSetInt(int(fd), EVIOCGRAB, 1)
	}); err != nil {
		return err
	}
	return ioctlErr
}
