//go:build linux

package hotkey

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// rawEvent matches the Linux struct input_event layout.
//
//	struct input_event {
//	    struct timeval time;  // 16 bytes on 64-bit, 8 on 32-bit
//	    __u16 type;
//	    __u16 code;
//	    __s32 value;
//	};
type rawEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// EventSize is the size of one input_event record on this host.
const EventSize = int(unsafe.Sizeof(rawEvent{}))

// Decode converts one native input_event record into an InputEvent.
func Decode(buf []byte) (InputEvent, error) {
	if len(buf) != EventSize {
		return InputEvent{}, fmt.Errorf("decode input event: got %d bytes, want %d", len(buf), EventSize)
	}
	var raw rawEvent
	if err := binary.Read(bytes.NewReader(buf), binary.NativeEndian, &raw); err != nil {
		return InputEvent{}, fmt.Errorf("decode input event: %w", err)
	}
	sec, nsec := raw.Time.Unix()
	return InputEvent{
		Time:  time.Unix(sec, nsec),
		Type:  raw.Type,
		Code:  raw.Code,
		Value: raw.Value,
	}, nil
}

// Encode produces the native record for ev. It is the inverse of Decode and
// is mostly useful for feeding synthetic events.
func Encode(ev InputEvent) []byte {
	raw := rawEvent{
		Time:  unix.NsecToTimeval(ev.Time.UnixNano()),
		Type:  ev.Type,
		Code:  ev.Code,
		Value: ev.Value,
	}
	var buf bytes.Buffer
	buf.Grow(EventSize)
	// Writes to a bytes.Buffer of a fixed-size struct cannot fail.
	_ = binary.Write(&buf, binary.NativeEndian, &raw)
	return buf.Bytes()
}

// Device is an open evdev character device.
type Device struct {
	path        string
	file        *os.File
	buf         []byte
	interrupted atomic.Bool
}

// Open opens the input device at path for blocking reads.
func Open(path string) (*Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, openError(path, err)
	}
	return NewDevice(path, f), nil
}

// NewDevice wraps an already open file. Pipes work too, which is how the
// worker loop is exercised without real hardware.
func NewDevice(path string, f *os.File) *Device {
	return &Device{
		path: path,
		file: f,
		buf:  make([]byte, EventSize),
	}
}

func openError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, path)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s (need root or 'input' group)", ErrPermissionDenied, path)
	default:
		return fmt.Errorf("open %s: %w", path, err)
	}
}

// Next blocks until one full record has been read and returns it decoded.
// A zero-length read yields ErrNoEvent. After Interrupt, Next returns
// ErrInterrupted.
func (d *Device) Next() (InputEvent, error) {
	_, err := io.ReadFull(d.file, d.buf)
	if err != nil {
		if d.interrupted.Load() {
			return InputEvent{}, ErrInterrupted
		}
		if errors.Is(err, io.EOF) {
			return InputEvent{}, ErrNoEvent
		}
		if errors.Is(err, unix.EINTR) {
			return InputEvent{}, ErrInterrupted
		}
		return InputEvent{}, fmt.Errorf("read %s: %w", d.path, err)
	}
	return Decode(d.buf)
}

// Interrupt unblocks a pending Next. Pollable devices get an expired read
// deadline; anything else is closed outright.
func (d *Device) Interrupt() {
	d.interrupted.Store(true)
	if err := d.file.SetReadDeadline(time.Now()); err != nil {
		_ = d.file.Close()
	}
}

// Close releases the device handle.
func (d *Device) Close() error {
	err := d.file.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
