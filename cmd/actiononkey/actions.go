package main

import (
	"fmt"
	"slices"
	"strconv"
)

// Action is what a configured key does when pressed.
type Action struct {
	Command             string `json:"command" yaml:"command"`
	NotificationTitle   string `json:"title" yaml:"title"`
	NotificationMessage string `json:"message" yaml:"message"`
}

// ActionTable maps key codes to actions.
//
// A table is built once at startup and never mutated afterwards, so it can be
// shared between the dispatcher, the IPC server and the websocket feed without
// any locking.
type ActionTable struct {
	actions map[uint16]Action
}

// NewActionTable copies actions into a new table.
func NewActionTable(actions map[uint16]Action) (*ActionTable, error) {
	t := &ActionTable{actions: make(map[uint16]Action, len(actions))}
	for code, a := range actions {
		if a.Command == "" {
			return nil, fmt.Errorf("%w: key %d has an empty command", ErrConfigLoad, code)
		}
		t.actions[code] = a
	}
	return t, nil
}

// Lookup returns the action bound to code.
func (t *ActionTable) Lookup(code uint16) (Action, bool) {
	if t == nil {
		return Action{}, false
	}
	a, ok := t.actions[code]
	return a, ok
}

func (t *ActionTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.actions)
}

// Codes returns the configured key codes in ascending order.
func (t *ActionTable) Codes() []uint16 {
	if t == nil {
		return nil
	}
	codes := make([]uint16, 0, len(t.actions))
	for code := range t.actions {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

// keyLabel renders a key code for logs.
func keyLabel(code uint16) string {
	switch code {
	case KEY_MUTE:
		return "KEY_MUTE"
	case KEY_VOLUMEDOWN:
		return "KEY_VOLUMEDOWN"
	case KEY_VOLUMEUP:
		return "KEY_VOLUMEUP"
	case KEY_F13:
		return "KEY_F13"
	case KEY_PROG3:
		return "KEY_PROG3"
	case KEY_PROG4:
		return "KEY_PROG4"
	case KEY_MICMUTE:
		return "KEY_MICMUTE"
	default:
		return strconv.Itoa(int(code))
	}
}
