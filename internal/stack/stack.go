package stack

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrSizeMismatch = errors.New("frame size mismatch")
	ErrNoFrames     = errors.New("no frames accumulated")
	ErrTimeout      = errors.New("exposure timeout")
)

// Maximum representable output pixel value after bias correction.
const maxPixel = 65535

// Holds the shared frame accumulator for one device.
//
// The zero exposure-start time means no exposure is in progress; a frame
// arriving in that state opens an implicit accumulation window instead of
// being dropped.
type Store struct {
	mu      sync.Mutex
	cond    *sync.Cond
	width   int
	height  int
	acc     []int64   // Running sum of median-subtracted pixel values.
	count   int       // Frames folded into the accumulator so far.
	started time.Time // Exposure window start; zero when idle.
}

// Creates an empty store. The accumulator is sized lazily from the first
// delivered frame.
func New() *Store {
	s := &Store{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Opens a new exposure window starting at the given instant.
//
// Resets the frame count and zeroes the accumulator so frames delivered
// from now on belong to this exposure.
func (s *Store) Begin(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	s.started = now
}

// Must be called with s.mu held.
func (s *Store) reset() {
	s.count = 0
	for i := range s.acc {
		s.acc[i] = 0
	}
}

// Folds one delivered frame into the accumulator.
//
// The first frame establishes the accumulator dimensions; later frames
// whose dimensions disagree are rejected. The frame's median pixel value
// is subtracted from every pixel as a background estimate before the
// result is added to the running sum. Safe to call from the capture
// goroutine while the controller waits.
func (s *Store) Append(width, height int, pixels []uint16) error {
	if len(pixels) != width*height {
		return fmt.Errorf("%w: %d pixels for %dx%d", ErrSizeMismatch, len(pixels), width, height)
	}

	median := Median(pixels)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.acc == nil {
		s.width = width
		s.height = height
		s.acc = make([]int64, width*height)
		s.count = 0
	}

	if width != s.width || height != s.height {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrSizeMismatch, width, height, s.width, s.height)
	}

	// A frame outside any exposure window starts a fresh implicit one.
	if s.started.IsZero() {
		s.reset()
	}

	for i, p := range pixels {
		s.acc[i] += int64(p) - int64(median)
	}
	s.count++

	s.cond.Broadcast()
	return nil
}

// Blocks until the exposure window has elapsed and at least one frame
// has arrived.
//
// Returns ErrTimeout (and closes the window) if no frame at all arrives
// by the deadline. stop is the end of the exposure window; deadline is
// the hard cutoff for the first frame.
func (s *Store) Wait(stop, deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		now := time.Now()

		if s.count > 0 && !now.Before(stop) {
			return nil
		}
		if s.count == 0 && now.After(deadline) {
			s.started = time.Time{}
			return ErrTimeout
		}

		// cond.Wait has no deadline of its own; arrange a wakeup at
		// the next timing boundary so the loop re-evaluates.
		next := stop
		if s.count == 0 && deadline.Before(next) {
			next = deadline
		}
		wake := time.AfterFunc(time.Until(next)+time.Millisecond, s.cond.Broadcast)
		s.cond.Wait()
		wake.Stop()
	}
}

// Collapses the accumulator into a bias-corrected pixel buffer and
// closes the exposure window.
//
// The minimum accumulated value is subtracted from every pixel, so the
// corrected output has a floor of exactly zero, clamped to the 16-bit
// maximum. Further frame deliveries start an implicit new window.
func (s *Store) Finalize() (pixels []uint16, width, height, frames int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == 0 || s.acc == nil {
		return nil, 0, 0, 0, ErrNoFrames
	}

	min := s.acc[0]
	for _, v := range s.acc[1:] {
		if v < min {
			min = v
		}
	}

	out := make([]uint16, len(s.acc))
	for i, v := range s.acc {
		v -= min
		if v > maxPixel {
			v = maxPixel
		}
		out[i] = uint16(v)
	}

	width = s.width
	height = s.height
	frames = s.count
	s.started = time.Time{}

	return out, width, height, frames, nil
}

// Reports the number of frames folded into the current window.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
