package acquire

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/obstools/camd/internal/device"
)

// Exposure time bounds and quantization step, in seconds.
const (
	MinEtime     = 0.001
	MaxEtime     = 600.0
	EtimeStep    = 0.001
	DefaultEtime = 1.0
)

// Threshold below which an exposure time change is not considered
// material and session state is left alone.
const etimeEpsilon = 0.0001

// Process-wide device session state. One instance exists for the
// lifetime of the server and is shared by every connection.
type Session struct {
	mu          sync.Mutex
	etime       float64
	gain        int64
	gainMode    device.GainMode
	symbolic    bool
	sequence    int64
	minGain     int64
	maxGain     int64
	readoutDone time.Time     // When the last readout completed.
	cycleTime   time.Duration // Trigger-to-readout of the last exposure.
}

// Creates a session seeded from the device's gain model.
func NewSession(info device.Info) *Session {
	return &Session{
		etime:    DefaultEtime,
		gainMode: device.GainAuto,
		symbolic: info.SymbolicGain,
		minGain:  info.MinGain,
		maxGain:  info.MaxGain,
	}
}

// Whether the device uses symbolic gain modes.
func (s *Session) SymbolicGain() bool {
	return s.symbolic
}

// Applies a new exposure time from its command argument.
//
// The argument is either plain seconds or minutes:seconds. A value of
// zero is a query: nothing changes and the current value is returned.
// Nonzero values are quantized to the nearest step and clamped into
// [MinEtime, MaxEtime]; session state only changes when the result
// differs materially from the current value. Returns the resulting
// exposure time and whether it changed.
func (s *Session) SetEtime(arg string) (float64, bool, error) {
	value, err := parseEtime(arg)
	if err != nil {
		return 0, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if value == 0 {
		return s.etime, false, nil
	}

	// Round to the nearest step, then clamp.
	value += EtimeStep / 2
	value = float64(int(value/EtimeStep)) * EtimeStep
	if value > MaxEtime {
		value = MaxEtime
	}
	if value < MinEtime {
		value = MinEtime
	}

	if math.Abs(s.etime-value) <= etimeEpsilon {
		return s.etime, false, nil
	}

	s.etime = value
	return s.etime, true, nil
}

// Parses an exposure time argument: "2.5" or "1:30".
func parseEtime(arg string) (float64, error) {
	if minutes, seconds, ok := strings.Cut(arg, ":"); ok {
		m, err := strconv.Atoi(minutes)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidArg, arg)
		}
		sec, err := strconv.ParseFloat(seconds, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidArg, arg)
		}
		return float64(m)*60 + sec, nil
	}

	value, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidArg, arg)
	}
	return value, nil
}

func (s *Session) Etime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.etime
}

// Applies a numeric gain. Out-of-range values are rejected without
// touching session state.
func (s *Session) SetGain(value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value < s.minGain || value > s.maxGain {
		return fmt.Errorf("%w: gain %d outside [%d, %d]", ErrInvalidArg, value, s.minGain, s.maxGain)
	}

	s.gain = value
	return nil
}

func (s *Session) Gain() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gain
}

// Records a symbolic gain mode. Validation happens at parse time; the
// set is closed.
func (s *Session) SetGainMode(mode device.GainMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gainMode = mode
}

func (s *Session) GainMode() device.GainMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gainMode
}

// Returns the next frame sequence number. Monotonic for the life of
// the process.
func (s *Session) NextSequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	return s.sequence
}

// Records readout completion for the last exposure.
func (s *Session) recordReadout(start, done time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readoutDone = done
	s.cycleTime = done.Sub(start)
}

// Trigger-to-readout duration of the most recent exposure.
func (s *Session) CycleTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycleTime
}
