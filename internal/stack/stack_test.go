package stack

import (
	"errors"
	"testing"
	"time"
)

func flatFrame(w, h int, value uint16) []uint16 {
	f := make([]uint16, w*h)
	for i := range f {
		f[i] = value
	}
	return f
}

func TestAppendCountsFrames(t *testing.T) {
	s := New()
	s.Begin(time.Now())

	const n = 7
	for i := 0; i < n; i++ {
		if err := s.Append(4, 3, flatFrame(4, 3, 100)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	if s.Count() != n {
		t.Fatalf("Count = %d, want %d", s.Count(), n)
	}
}

func TestBeginResetsWindow(t *testing.T) {
	s := New()
	s.Begin(time.Now())
	if err := s.Append(2, 2, []uint16{10, 20, 30, 40}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	s.Begin(time.Now())

	if s.Count() != 0 {
		t.Fatalf("Count after Begin = %d, want 0", s.Count())
	}
	if _, _, _, _, err := s.Finalize(); !errors.Is(err, ErrNoFrames) {
		t.Fatalf("Finalize after reset = %v, want ErrNoFrames", err)
	}
}

func TestAppendRejectsSizeMismatch(t *testing.T) {
	s := New()
	s.Begin(time.Now())

	if err := s.Append(4, 4, flatFrame(4, 4, 1)); err != nil {
		t.Fatalf("first Append: %v", err)
	}
	if err := s.Append(8, 8, flatFrame(8, 8, 1)); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("mismatched Append = %v, want ErrSizeMismatch", err)
	}
	if s.Count() != 1 {
		t.Fatalf("Count = %d, want 1 after rejected frame", s.Count())
	}
}

func TestAppendOutsideWindowOpensImplicitOne(t *testing.T) {
	s := New()
	s.Begin(time.Now())
	for i := 0; i < 3; i++ {
		if err := s.Append(2, 2, flatFrame(2, 2, 50)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	// Finalize closes the window; the next arrival must not pile on.
	if _, _, _, _, err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := s.Append(2, 2, flatFrame(2, 2, 50)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if s.Count() != 1 {
		t.Fatalf("Count = %d, want 1 in implicit window", s.Count())
	}
}

func TestFinalizeFloorIsZero(t *testing.T) {
	s := New()
	s.Begin(time.Now())

	// Two frames with structure: the median-subtracted sums differ per
	// pixel, so the minimum subtraction has something to do.
	if err := s.Append(2, 2, []uint16{100, 200, 300, 400}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(2, 2, []uint16{150, 250, 350, 450}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	pixels, w, h, frames, err := s.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if w != 2 || h != 2 || frames != 2 {
		t.Fatalf("Finalize dims = %dx%d frames=%d", w, h, frames)
	}

	min := pixels[0]
	for _, p := range pixels[1:] {
		if p < min {
			min = p
		}
	}
	if min != 0 {
		t.Fatalf("corrected minimum = %d, want 0", min)
	}
}

func TestFinalizeClampsAtMax(t *testing.T) {
	s := New()
	s.Begin(time.Now())

	// Many bright frames push the brightest pixel's sum past 16 bits.
	frame := []uint16{0, 65535}
	for i := 0; i < 10; i++ {
		if err := s.Append(2, 1, frame); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	pixels, _, _, _, err := s.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if pixels[1] != 65535 {
		t.Fatalf("bright pixel = %d, want clamp at 65535", pixels[1])
	}
}

func TestWaitTimesOutWithoutFrames(t *testing.T) {
	s := New()
	start := time.Now()
	s.Begin(start)

	err := s.Wait(start.Add(10*time.Millisecond), start.Add(30*time.Millisecond))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Wait = %v, want ErrTimeout", err)
	}
	if s.Count() != 0 {
		t.Fatalf("Count = %d, want 0 after timeout", s.Count())
	}
}

func TestWaitReturnsAfterWindowWithFrames(t *testing.T) {
	s := New()
	start := time.Now()
	s.Begin(start)

	go func() {
		time.Sleep(5 * time.Millisecond)
		s.Append(2, 2, flatFrame(2, 2, 10))
	}()

	if err := s.Wait(start.Add(20*time.Millisecond), start.Add(time.Second)); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if s.Count() == 0 {
		t.Fatal("Wait returned with no frames accumulated")
	}
}
