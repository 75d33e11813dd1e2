package main

import "time"

// Linux input event types (from <linux/input.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Common switch/button codes seen on handsets. Only used for log labels.
const (
	KEY_MUTE       = 113
	KEY_VOLUMEDOWN = 114
	KEY_VOLUMEUP   = 115
	KEY_PROG3      = 202
	KEY_PROG4      = 203
	KEY_F13        = 183
	KEY_MICMUTE    = 248
)

// EVIOCGRAB is _IOW('E', 0x90, int).
const EVIOCGRAB = 0x40044590

const (
	defaultName       = "action-on-key"
	defaultConfigPath = "/usr/lib/droidian/device/action-on-key.conf"
	defaultShell      = "/bin/sh"

	// Notification policy: transient, low urgency, fixed category.
	notifyTimeout  = 2 * time.Second
	notifyCategory = "device"
	notifyUrgency  = byte(0) // low

	// maxConfigValueLen matches the line limit of the original config reader.
	maxConfigValueLen = 512

	eventBufSize    = 64
	injectedBufSize = 16
)
