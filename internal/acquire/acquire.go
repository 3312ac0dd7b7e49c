package acquire

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/obstools/camd/internal/device"
	"github.com/obstools/camd/internal/fits"
	"github.com/obstools/camd/internal/registry"
	"github.com/obstools/camd/internal/stack"
)

// Poll interval while a single-shot exposure is working.
const statusPollInterval = 5 * time.Millisecond

// How long past exposure start to wait for a first stacked frame before
// declaring a timeout. Variable so tests don't sit out the full margin.
var exposeTimeout = 5 * time.Second

// Runs exposures against one device and encodes the results.
type Controller struct {
	dev     device.Capability
	session *Session
	reg     *registry.Registry // May be nil (bench/tests): telemetry cards are skipped.
	store   *stack.Store       // Non-nil only for frame-pushing devices.
	spool   string             // Path of the FITS spool file.

	// Explicit per-device exposure lock. TryLock-ed so a concurrent
	// image request is rejected instead of silently serialized.
	expose sync.Mutex

	mu      sync.Mutex
	readBuf []uint16 // Reusable single-shot readout buffer, max resolution.
}

// Creates a controller for the device. If the device pushes frames, a
// frame store is attached as the sink and the stacking strategy is
// used; otherwise acquisitions poll for a single readout.
func New(dev device.Capability, session *Session, reg *registry.Registry, spool string) *Controller {
	c := &Controller{
		dev:     dev,
		session: session,
		reg:     reg,
		spool:   spool,
	}

	if src, ok := dev.(device.FrameSource); ok {
		c.store = stack.New()
		src.SetFrameSink(c.onFrame)
	}

	return c
}

// Receives one frame from the device capture goroutine.
func (c *Controller) onFrame(f device.Frame) {
	if err := c.store.Append(f.Width, f.Height, f.Pixels); err != nil {
		slog.Warn("dropping frame", "error", err, "width", f.Width, "height", f.Height)
	}
}

// The frame store, if the device stacks. Exposed for the bench command.
func (c *Controller) Store() *stack.Store {
	return c.store
}

// Runs one complete acquisition and returns the encoded FITS image.
//
// Fails fast with ErrBusy if another exposure is in flight. All other
// failures leave the session ready for the next command.
func (c *Controller) Acquire() ([]byte, error) {
	if !c.expose.TryLock() {
		return nil, ErrBusy
	}
	defer c.expose.Unlock()

	etime := c.session.Etime()
	if etime < MinEtime || etime > MaxEtime {
		return nil, fmt.Errorf("%w: etime %.4f", ErrEtimeNotSet, etime)
	}

	start := time.Now()

	var (
		pixels []uint16
		width  int
		height int
		frames int
		err    error
	)
	if c.store != nil {
		pixels, width, height, frames, err = c.acquireStacked(start, etime)
	} else {
		pixels, width, height, err = c.acquireSingle(etime)
		frames = 1
	}
	if err != nil {
		return nil, err
	}

	c.session.recordReadout(start, time.Now())
	slog.Debug("exposure cycle complete", "etime", etime, "cycle", c.session.CycleTime())

	return c.encode(pixels, width, height, frames)
}

// Single-shot strategy: configure, trigger, poll until the device is no
// longer working, then read the pixels out.
func (c *Controller) acquireSingle(etime float64) ([]uint16, int, int, error) {
	// Drain any exposure already in progress on the device.
	for {
		state, err := c.dev.PollStatus()
		if err != nil {
			return nil, 0, 0, fmt.Errorf("%w: %v", ErrStartExposure, err)
		}
		if state != device.StateWorking {
			break
		}
		time.Sleep(statusPollInterval)
	}

	if err := c.dev.SetControl(device.ControlExposure, int64(etime*1e6)); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrSetExposure, err)
	}

	if !c.session.SymbolicGain() {
		if err := c.dev.SetControl(device.ControlGain, c.session.Gain()); err != nil {
			return nil, 0, 0, fmt.Errorf("%w: %v", ErrSetGain, err)
		}
	}

	if err := c.dev.Trigger(); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrStartExposure, err)
	}

	state, err := c.dev.PollStatus()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrExposeFailed, err)
	}
	for state == device.StateWorking {
		time.Sleep(statusPollInterval)
		if state, err = c.dev.PollStatus(); err != nil {
			return nil, 0, 0, fmt.Errorf("%w: %v", ErrExposeFailed, err)
		}
	}
	if state != device.StateSuccess {
		return nil, 0, 0, fmt.Errorf("%w: status %s", ErrExposeFailed, state)
	}

	info := c.dev.Info()

	c.mu.Lock()
	if c.readBuf == nil {
		c.readBuf = make([]uint16, info.MaxWidth*info.MaxHeight)
		slog.Debug("allocated readout buffer", "pixels", len(c.readBuf))
	}
	buf := c.readBuf
	c.mu.Unlock()

	if err := c.dev.ReadPixels(buf); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrReadout, err)
	}

	return buf[:info.MaxWidth*info.MaxHeight], info.MaxWidth, info.MaxHeight, nil
}

// Stacking strategy: open an exposure window and let the capture
// goroutine fill the accumulator until the window closes.
func (c *Controller) acquireStacked(start time.Time, etime float64) ([]uint16, int, int, int, error) {
	c.store.Begin(start)

	stop := start.Add(time.Duration(etime * float64(time.Second)))
	deadline := start.Add(exposeTimeout)

	if err := c.store.Wait(stop, deadline); err != nil {
		if errors.Is(err, stack.ErrTimeout) {
			return nil, 0, 0, 0, fmt.Errorf("%w: no frames within %s", ErrTimeout, exposeTimeout)
		}
		return nil, 0, 0, 0, fmt.Errorf("%w: %v", ErrExposeFailed, err)
	}

	pixels, width, height, frames, err := c.store.Finalize()
	if err != nil {
		return nil, 0, 0, 0, fmt.Errorf("%w: %v", ErrExposeFailed, err)
	}
	return pixels, width, height, frames, nil
}

// Encodes the pixel buffer into the FITS spool file and reads the
// finished container back. The byte length comes from the file, not
// from arithmetic; that length is what the client is promised.
func (c *Controller) encode(pixels []uint16, width, height, frames int) ([]byte, error) {
	header := c.buildHeader(width, height, frames)

	f, err := os.OpenFile(c.spool, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrSpool, c.spool, err)
	}
	defer f.Close()

	if err := header.Write(f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpool, err)
	}
	if err := fits.WriteImage(f, pixels); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpool, err)
	}

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat: %v", ErrSpool, err)
	}

	data := make([]byte, st.Size())
	if _, err := f.ReadAt(data, 0); err != nil {
		return nil, fmt.Errorf("%w: read back: %v", ErrSpool, err)
	}

	slog.Info("image encoded", "bytes", len(data), "width", width, "height", height, "frames", frames)
	return data, nil
}

func (c *Controller) buildHeader(width, height, frames int) *fits.Header {
	info := c.dev.Info()
	now := time.Now()

	h := fits.NewHeader()
	h.SetBool("SIMPLE", true, "Standard FITS")
	h.SetInt("BITPIX", 16, "16-bit data")
	h.SetInt("NAXIS", 2, "Number of axes")
	h.SetInt("NAXIS1", int64(width), "Number of pixel columns")
	h.SetInt("NAXIS2", int64(height), "Number of pixel rows")
	h.SetInt("PCOUNT", 0, "No 'random' parameters")
	h.SetInt("GCOUNT", 1, "Only one group")
	h.SetString("DATE", now.UTC().Format("2006-01-02T15:04:05"), "UTC Date of file creation")
	h.SetString("LOCTIME", now.Format("Mon Jan 02 15:04:05 MST 2006"), "Local time of file creation")
	h.SetFloat("UNIXTIME", float64(now.UnixNano())/1e9, 3, "Fractional UNIX timestamp when image was taken")
	h.SetFloat("BZERO", 32768.0, 1, "Zero factor")
	h.SetFloat("BSCALE", 1.0, 1, "Scale factor")
	h.SetString("ORIGIN", "obstools", "File origin")
	h.SetString("INSTRUME", "camd", "Instrument Name")
	h.SetString("CAMMODEL", info.Model, "Camera Model")
	if info.PixelSize > 0 {
		h.SetFloat("PIXSIZE", info.PixelSize, 2, "Pixel size (micron)")
	}
	h.SetFloat("ETIME", c.session.Etime(), 3, "Exposure time")
	if c.session.SymbolicGain() {
		h.SetString("GAIN", string(c.session.GainMode()), "Camera Gain")
	} else {
		h.SetInt("GAIN", c.session.Gain(), "Camera Gain")
	}
	h.SetInt("SEQNUM", c.session.NextSequence(), "Frame sequence number")
	if c.store != nil {
		h.SetInt("STACKCNT", int64(frames), "Number of stacked subframes")
	}

	c.telemetryCards(h)

	// Room for downstream pipeline additions without rewriting the file.
	h.Reserve(220)

	return h
}

// Adds site telemetry cards from the registry. Missing telemetry is
// logged and skipped; an image without weather cards beats no image.
func (c *Controller) telemetryCards(h *fits.Header) {
	if c.reg == nil {
		return
	}

	cards := []struct {
		path    string
		name    string
		comment string
	}{
		{registry.PathDomeAz, "DOMEAZ", "Dome Azimuth"},
		{registry.PathTemperature, "TEMP", "Enclosure Temperature"},
		{registry.PathPressure, "PRESSURE", "Enclosure Pressure"},
		{registry.PathHumidity, "HUMID", "Enclosure Humidity"},
	}

	for _, card := range cards {
		value, err := c.reg.GetString(card.path)
		if err != nil || value == "" {
			slog.Debug("telemetry unavailable", "path", card.path, "error", err)
			continue
		}
		h.SetString(card.name, value, card.comment)
	}
}
