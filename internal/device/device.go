package device

import (
	"fmt"
	"strings"
)

// Identifies a writable device control.
type Control int

const (
	ControlExposure Control = iota // Exposure time in microseconds.
	ControlGain                    // Amplification, device units.
)

// Result of polling an exposure in progress.
type ExposureState int

const (
	StateIdle ExposureState = iota
	StateWorking
	StateSuccess
	StateFailed
)

func (s ExposureState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWorking:
		return "working"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Symbolic gain mode for devices without a numeric gain range.
type GainMode string

const (
	GainAuto   GainMode = "AUTO"
	GainHigh   GainMode = "HIGH"
	GainLow    GainMode = "LOW"
	GainManual GainMode = "MANUAL"
)

// Parses a symbolic gain mode, case-insensitively. The set is closed;
// anything else is rejected.
func ParseGainMode(s string) (GainMode, error) {
	switch GainMode(strings.ToUpper(s)) {
	case GainAuto:
		return GainAuto, nil
	case GainHigh:
		return GainHigh, nil
	case GainLow:
		return GainLow, nil
	case GainManual:
		return GainManual, nil
	}
	return "", fmt.Errorf("%w: unknown gain mode %q", ErrDevice, s)
}

// Raw pixel formats accepted by Configure.
type PixelFormat int

const (
	FormatRaw16 PixelFormat = iota
)

// One delivered sensor frame. The pixel slice is owned by the receiver
// once delivered; only the accumulator persists beyond the callback.
type Frame struct {
	Width  int
	Height int
	Pixels []uint16
}

// Static device identity and limits, surfaced into image headers and
// command validation.
type Info struct {
	Model        string  // Vendor model string, e.g. "ZWO ASI178MM".
	PixelSize    float64 // Pixel pitch in microns.
	MaxWidth     int
	MaxHeight    int
	MinGain      int64
	MaxGain      int64
	SymbolicGain bool // Gain is a mode (AUTO/HIGH/LOW/MANUAL), not a number.
}

// The vendor SDK boundary.
//
// Every call returns an error on a non-success SDK code; callers treat
// any failure as a DeviceError, respond to the client, and leave the
// session ready for the next command.
type Capability interface {
	Open() error
	Initialize() error
	Configure(width, height int, format PixelFormat) error
	SetControl(ctrl Control, value int64) error
	Trigger() error
	PollStatus() (ExposureState, error)
	ReadPixels(buf []uint16) error
	Abort() error
	Close() error
	Info() Info
}

// Implemented by devices whose SDK delivers frames continuously from a
// background capture thread. The sink is invoked once per frame, on that
// thread.
type FrameSource interface {
	SetFrameSink(sink func(Frame))
}

// Implemented by devices with symbolic gain modes.
type GainModer interface {
	SetGainMode(mode GainMode) error
}
