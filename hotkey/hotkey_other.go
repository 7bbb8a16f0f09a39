//go:build !linux

package hotkey

import "os"

// EventSize is zero where evdev does not exist.
const EventSize = 0

// Device is unavailable on this platform.
type Device struct{}

func Open(path string) (*Device, error) {
	return nil, ErrUnsupported
}

func NewDevice(path string, f *os.File) *Device {
	return &Device{}
}

func (d *Device) Next() (InputEvent, error) {
	return InputEvent{}, ErrUnsupported
}

func (d *Device) Interrupt() {}

func (d *Device) Close() error {
	return nil
}
