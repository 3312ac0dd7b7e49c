package device

import "errors"

var (
	ErrDevice  = errors.New("device error")
	ErrNotOpen = errors.New("device not open")
	ErrNoFrame = errors.New("no frame available")
)
