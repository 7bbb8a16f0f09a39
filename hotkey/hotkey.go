// Package hotkey reads raw Linux evdev input events and detects the press
// edge of a single designated gamepad button.
package hotkey

import (
	"errors"
	"time"
)

// Button codes for the H700 gamepad (Linux evdev BTN_* constants, from evtest)
const (
	BtnStart  = 315
	BtnThumbR = 318 // right stick click
)

// HotkeyCode is the button whose press triggers a capture.
const HotkeyCode = BtnThumbR

// HotkeyName is a human readable label for HotkeyCode.
const HotkeyName = "Right stick click"

// Event types and key states
const (
	EvKey = 0x01

	KeyReleased = 0
	KeyPressed  = 1
	KeyRepeat   = 2
)

var (
	// ErrNoEvent is returned when a read yields zero bytes. Callers retry.
	ErrNoEvent = errors.New("no event")
	// ErrInterrupted is returned when a blocked read was cut short by Interrupt.
	ErrInterrupted = errors.New("read interrupted")
	// ErrDeviceNotFound is returned by Open when the device node does not exist.
	ErrDeviceNotFound = errors.New("input device not found")
	// ErrPermissionDenied is returned by Open when the device cannot be read.
	ErrPermissionDenied = errors.New("permission denied on input device")
	// ErrUnsupported is returned on platforms without evdev.
	ErrUnsupported = errors.New("evdev input is not supported on this platform")
)

// InputEvent is one decoded input_event record.
type InputEvent struct {
	Time  time.Time
	Type  uint16
	Code  uint16
	Value int32
}

// IsKey reports whether the event belongs to the EV_KEY category.
func (e InputEvent) IsKey() bool {
	return e.Type == EvKey
}

// Tracker keeps the set of held buttons and detects the rising edge of the
// hotkey. It is not safe for concurrent use; the worker loop owns it.
type Tracker struct {
	code       uint16
	pressed    map[uint16]struct{}
	wasPressed bool
}

// NewTracker creates a tracker for the given hotkey code.
func NewTracker(code uint16) *Tracker {
	return &Tracker{
		code:    code,
		pressed: make(map[uint16]struct{}),
	}
}

// Observe feeds one key event into the tracker and reports whether the hotkey
// just transitioned from released to pressed.
func (t *Tracker) Observe(ev InputEvent) bool {
	switch ev.Value {
	case KeyPressed:
		t.pressed[ev.Code] = struct{}{}
	case KeyReleased:
		delete(t.pressed, ev.Code)
	}

	held := t.Pressed(t.code)
	fire := held && !t.wasPressed
	t.wasPressed = held
	return fire
}

// Pressed reports whether code is currently held.
func (t *Tracker) Pressed(code uint16) bool {
	_, ok := t.pressed[code]
	return ok
}

// Held returns the number of buttons currently held.
func (t *Tracker) Held() int {
	return len(t.pressed)
}
