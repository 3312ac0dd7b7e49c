package device

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Frame rate for the bench capture loop. Real vendor SDKs pace delivery
// themselves; the webcam loop approximates a continuous sensor.
const webcamFrameInterval = 100 * time.Millisecond

// A UVC webcam behind the Capability boundary, built on gocv.
//
// Frames are captured as 8-bit grayscale and widened to 16 bits so the
// rest of the pipeline sees the same pixel depth as a science camera.
// The webcam implements both single-shot readout (Trigger/PollStatus/
// ReadPixels) and continuous delivery (SetFrameSink), so either
// acquisition strategy can run against it.
type Webcam struct {
	deviceID int

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	width  int
	height int
	last   []uint16 // Most recent readout, nil until the first Trigger.
	state  ExposureState
	sink   func(Frame)
	stop   chan struct{}
}

func NewWebcam(deviceID int) *Webcam {
	return &Webcam{deviceID: deviceID, state: StateIdle}
}

func (w *Webcam) Open() error {
	cap, err := gocv.OpenVideoCapture(w.deviceID)
	if err != nil {
		return fmt.Errorf("%w: open webcam %d: %v", ErrDevice, w.deviceID, err)
	}

	w.mu.Lock()
	w.cap = cap
	w.mu.Unlock()
	return nil
}

// Grabs one frame to learn the sensor dimensions.
func (w *Webcam) Initialize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cap == nil {
		return ErrNotOpen
	}

	img := gocv.NewMat()
	defer img.Close()

	if ok := w.cap.Read(&img); !ok || img.Empty() {
		return fmt.Errorf("%w: initial frame read failed", ErrDevice)
	}

	w.width = img.Cols()
	w.height = img.Rows()
	return nil
}

func (w *Webcam) Configure(width, height int, format PixelFormat) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cap == nil {
		return ErrNotOpen
	}
	if format != FormatRaw16 {
		return fmt.Errorf("%w: unsupported pixel format %d", ErrDevice, format)
	}

	w.cap.Set(gocv.VideoCaptureFrameWidth, float64(width))
	w.cap.Set(gocv.VideoCaptureFrameHeight, float64(height))
	w.width = width
	w.height = height
	return nil
}

func (w *Webcam) SetControl(ctrl Control, value int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cap == nil {
		return ErrNotOpen
	}

	switch ctrl {
	case ControlExposure:
		// UVC exposure is in driver units; microseconds are close
		// enough for a bench device.
		w.cap.Set(gocv.VideoCaptureExposure, float64(value))
	case ControlGain:
		w.cap.Set(gocv.VideoCaptureGain, float64(value))
	default:
		return fmt.Errorf("%w: unknown control %d", ErrDevice, ctrl)
	}
	return nil
}

// Captures one frame immediately. UVC cameras have no asynchronous
// exposure cycle, so the trigger itself performs the readout and
// PollStatus reports the outcome.
func (w *Webcam) Trigger() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cap == nil {
		return ErrNotOpen
	}

	w.state = StateWorking
	frame, err := w.capture()
	if err != nil {
		w.state = StateFailed
		return err
	}

	w.last = frame.Pixels
	w.width = frame.Width
	w.height = frame.Height
	w.state = StateSuccess
	return nil
}

func (w *Webcam) PollStatus() (ExposureState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state, nil
}

func (w *Webcam) ReadPixels(buf []uint16) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.last == nil {
		return ErrNoFrame
	}
	if len(buf) < len(w.last) {
		return fmt.Errorf("%w: buffer %d too small for %d pixels", ErrDevice, len(buf), len(w.last))
	}

	copy(buf, w.last)
	return nil
}

func (w *Webcam) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = StateIdle
	return nil
}

func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stop != nil {
		close(w.stop)
		w.stop = nil
	}
	if w.cap != nil {
		if err := w.cap.Close(); err != nil {
			return fmt.Errorf("%w: close: %v", ErrDevice, err)
		}
		w.cap = nil
	}
	return nil
}

func (w *Webcam) Info() Info {
	w.mu.Lock()
	defer w.mu.Unlock()

	return Info{
		Model:        "UVC bench webcam",
		PixelSize:    0,
		MaxWidth:     w.width,
		MaxHeight:    w.height,
		MinGain:      0,
		MaxGain:      510,
		SymbolicGain: false,
	}
}

// Starts the delivery goroutine, the bench analogue of a vendor capture
// thread. Frames flow to the sink until Close.
func (w *Webcam) SetFrameSink(sink func(Frame)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.sink = sink
	if w.stop != nil {
		return // Loop already running; just swap the sink.
	}

	w.stop = make(chan struct{})
	go w.deliver(w.stop)
}

func (w *Webcam) deliver(stop chan struct{}) {
	ticker := time.NewTicker(webcamFrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		w.mu.Lock()
		sink := w.sink
		frame, err := w.capture()
		w.mu.Unlock()

		if err != nil {
			slog.Debug("webcam frame capture failed", "error", err)
			continue
		}
		if sink != nil {
			sink(frame)
		}
	}
}

// Reads one frame and widens it to 16-bit grayscale. Must be called
// with w.mu held.
func (w *Webcam) capture() (Frame, error) {
	if w.cap == nil {
		return Frame{}, ErrNotOpen
	}

	img := gocv.NewMat()
	defer img.Close()

	if ok := w.cap.Read(&img); !ok || img.Empty() {
		return Frame{}, fmt.Errorf("%w: frame read failed", ErrDevice)
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	data, err := gray.DataPtrUint8()
	if err != nil {
		return Frame{}, fmt.Errorf("%w: frame data: %v", ErrDevice, err)
	}

	pixels := make([]uint16, len(data))
	for i, p := range data {
		pixels[i] = uint16(p) << 8
	}

	return Frame{Width: gray.Cols(), Height: gray.Rows(), Pixels: pixels}, nil
}
