package acquire

import "errors"

// Acquisition failures carry the diagnostic text that goes back to the
// client in the fail response, so the wording here is part of the wire
// contract.
var (
	ErrBusy          = errors.New("exposure already in progress")
	ErrEtimeNotSet   = errors.New("Exposure time isn't set")
	ErrSetExposure   = errors.New("Unable to set exposure time")
	ErrSetGain       = errors.New("Unable to set gain")
	ErrStartExposure = errors.New("Unable to start exposure")
	ErrExposeFailed  = errors.New("Exposure request failed")
	ErrReadout       = errors.New("Unable to read out image")
	ErrTimeout       = errors.New("Exposure timeout")
	ErrSpool         = errors.New("Unable to save temporary file on the camera server")
	ErrInvalidArg    = errors.New("Invalid argument specified")
)

// Ordered scan list for mapping a wrapped error back to its response
// diagnostic.
var diagnostics = []error{
	ErrBusy,
	ErrEtimeNotSet,
	ErrSetExposure,
	ErrSetGain,
	ErrStartExposure,
	ErrExposeFailed,
	ErrReadout,
	ErrTimeout,
	ErrSpool,
	ErrInvalidArg,
}

// Returns the client-facing diagnostic for an acquisition error.
func Diagnostic(err error) string {
	for _, d := range diagnostics {
		if errors.Is(err, d) {
			return d.Error()
		}
	}
	return "internal error"
}
