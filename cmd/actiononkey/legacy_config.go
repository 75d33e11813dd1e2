package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
)

// The KEY=VALUE format shipped by device packages:
//
//	DEVICE_FILE=/dev/input/event2
//	NAME=tristate
//	KEY_CODE_1=289
//	COMMAND_1=pactl set-sink-mute @DEFAULT_SINK@ 1
//	NOTIFICATION_TITLE_1=Mute
//	NOTIFICATION_MESSAGE_1=Sound muted
//
// Mappings are numbered from 1. Unknown keys and lines without '=' are ignored.
const (
	legacyKeyDevice  = "DEVICE_FILE"
	legacyKeyName    = "NAME"
	legacyKeyCode    = "KEY_CODE_"
	legacyKeyCommand = "COMMAND_"
	legacyKeyTitle   = "NOTIFICATION_TITLE_"
	legacyKeyMessage = "NOTIFICATION_MESSAGE_"
)

type legacySlot struct {
	keyCode    string
	hasKeyCode bool
	command    string
	title      string
	message    string
}

// LoadLegacyConfigFile reads a KEY=VALUE config file.
func LoadLegacyConfigFile(path string) (Config, error) {
	f, err := os.Open(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("%w: open config file: %w", ErrConfigLoad, err)
	}
	defer f.Close()

	return parseLegacyConfig(f)
}

func parseLegacyConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	slots := make(map[int]*legacySlot)

	slot := func(n int) *legacySlot {
		s, ok := slots[n]
		if !ok {
			s = &legacySlot{}
			slots[n] = s
		}
		return s
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if len(value) > maxConfigValueLen {
			return Config{}, fmt.Errorf("%w: line %d: value of %s is longer than %d bytes", ErrConfigLoad, lineNo, key, maxConfigValueLen)
		}

		switch key {
		case legacyKeyDevice:
			cfg.Device = value
			continue
		case legacyKeyName:
			cfg.Name = value
			continue
		}

		prefix, n, ok := splitNumberedKey(key)
		if !ok {
			continue
		}
		s := slot(n)
		switch prefix {
		case legacyKeyCode:
			s.keyCode = value
			s.hasKeyCode = true
		case legacyKeyCommand:
			s.command = value
		case legacyKeyTitle:
			s.title = value
		case legacyKeyMessage:
			s.message = value
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("%w: read config: %w", ErrConfigLoad, err)
	}

	indexes := make([]int, 0, len(slots))
	for n := range slots {
		indexes = append(indexes, n)
	}
	slices.Sort(indexes)

	for _, n := range indexes {
		s := slots[n]
		if !s.hasKeyCode || s.keyCode == "" {
			return Config{}, fmt.Errorf("%w: %s%d is missing", ErrConfigLoad, legacyKeyCode, n)
		}
		code, err := strconv.Atoi(s.keyCode)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s%d: invalid key code %q", ErrConfigLoad, legacyKeyCode, n, s.keyCode)
		}
		cfg.Actions = append(cfg.Actions, ActionConfig{
			KeyCode: &code,
			Command: s.command,
			Title:   s.title,
			Message: s.message,
		})
	}

	return cfg, nil
}

// splitNumberedKey splits "COMMAND_2" into ("COMMAND_", 2).
func splitNumberedKey(key string) (string, int, bool) {
	for _, prefix := range []string{legacyKeyCode, legacyKeyCommand, legacyKeyTitle, legacyKeyMessage} {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return "", 0, false
		}
		return prefix, n, true
	}
	return "", 0, false
}
